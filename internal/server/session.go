// Package server manages individual WebSocket sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/config"
	"github.com/Tyrowin/officechat/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Session is one WebSocket connection. user is nil when the handshake carried
// no valid token.
type Session struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	gateway        *Gateway
	addr           string
	user           *store.User
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      config.RateLimitConfig
	logger         *zap.Logger
}

// NewSession creates a Session for conn. The send channel is buffered to
// absorb bursts; a session whose buffer fills up is dropped by the hub.
func NewSession(conn *websocket.Conn, hub *Hub, gateway *Gateway, user *store.User, addr string, cfg config.Config) *Session {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := uuid.NewString()
	logger := zap.NewNop()
	if gateway != nil {
		logger = gateway.logger
	}
	fields := []zap.Field{zap.String("session_id", id), zap.String("addr", addr)}
	if user != nil {
		fields = append(fields, zap.Int64("user_id", user.ID))
	}

	return &Session{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		hub:            hub,
		gateway:        gateway,
		addr:           addr,
		user:           user,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		logger:         logger.With(fields...),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// User returns the authenticated user or nil.
func (s *Session) User() *store.User {
	return s.user
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool {
	return s.user != nil
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Warn("error setting initial read deadline", zap.Error(err))
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.logger.Warn("error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// logReadError logs the reason the read loop stopped.
func (s *Session) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.logger.Info("message exceeded maximum size", zap.Int64("limit", s.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		s.logger.Debug("session disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.logger.Debug("session connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		s.logger.Warn("unexpected WebSocket error", zap.Error(err))
	default:
		s.logger.Warn("WebSocket read error", zap.Error(err))
	}
}

// checkRateLimit verifies if the session has exceeded rate limits
// and returns true if the message should be processed
func (s *Session) checkRateLimit() bool {
	if s.rateLimiter != nil && !s.rateLimiter.allow() {
		s.logger.Info("rate limit exceeded; discarding message",
			zap.Int("burst", s.rateLimit.Burst),
			zap.Duration("interval", s.rateLimit.RefillInterval),
		)
		return false
	}
	return true
}

// readPump announces the session, dispatches inbound frames until the
// connection fails, then runs disconnect cleanup before the connection is
// released.
func (s *Session) readPump() {
	ctx := context.Background()
	s.gateway.Connect(ctx, s)
	defer func() {
		s.gateway.Disconnect(ctx, s)
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("error closing connection in readPump", zap.Error(err))
		}
	}()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		if !s.checkRateLimit() {
			s.gateway.metrics.Event("rate_limited", "dropped")
			continue
		}

		s.gateway.Handle(ctx, s, raw)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-s.send:
		return s.handleMessage(message, ok)
	case <-ticker.C:
		return s.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.logger.Warn("error closing connection in writePump", zap.Error(err))
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (s *Session) handleMessage(message []byte, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Debug("error setting write deadline", zap.Error(err))
		return false
	}

	if !ok {
		return s.writeCloseMessage()
	}

	return s.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the peer
func (s *Session) writeCloseMessage() bool {
	if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		s.logger.Debug("error writing close message", zap.Error(err))
	}
	return false
}

// writeTextMessage writes a frame holding message and any queued messages,
// separated by newlines.
func (s *Session) writeTextMessage(message []byte) bool {
	w, err := s.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		s.logger.Debug("error creating writer", zap.Error(err))
		return false
	}

	if _, err := w.Write(message); err != nil {
		s.logger.Debug("error writing message", zap.Error(err))
		return false
	}

	n := len(s.send)
	for i := 0; i < n; i++ {
		if !s.writeQueuedMessage(w) {
			return false
		}
	}

	if err := w.Close(); err != nil {
		s.logger.Debug("error closing writer", zap.Error(err))
		return false
	}
	return true
}

// writeQueuedMessage writes a single queued message with newline separator
func (s *Session) writeQueuedMessage(w io.Writer) bool {
	queued, ok := <-s.send
	if !ok {
		return true
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		s.logger.Debug("error writing newline", zap.Error(err))
		return false
	}
	if _, err := w.Write(queued); err != nil {
		s.logger.Debug("error writing queued message", zap.Error(err))
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		s.logger.Debug("error setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		s.logger.Debug("error writing ping message", zap.Error(err))
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
