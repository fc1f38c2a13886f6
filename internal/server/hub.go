// Package server coordinates session registration, room membership, and
// ordered fan-out for the OfficeChat WebSocket system via the Hub type.
package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/common"
	"github.com/Tyrowin/officechat/internal/metrics"
)

// GlobalRoom is the service-wide chat room. It is never reclaimed.
const GlobalRoom = "global"

// Hub manages all WebSocket sessions and the rooms they belong to.
// All state is owned by the Run goroutine; other goroutines reach it through
// the register/unregister channels and the ops queue, so deliveries to a room
// happen in the order the operations were issued.
type Hub struct {
	sessions map[string]*Session
	rooms    map[string]map[string]*Session
	joined   map[string]map[string]struct{}

	register   chan *Session
	unregister chan *Session
	ops        chan func()

	logger  *zap.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewHub creates a Hub ready to be started with Run.
func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[string]*Session),
		rooms:      map[string]map[string]*Session{GlobalRoom: {}},
		joined:     make(map[string]map[string]struct{}),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		ops:        make(chan func(), 256),
		logger:     logger.Named("hub"),
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSessions()
			return

		case s := <-h.register:
			if s == nil {
				h.logger.Warn("received nil session registration; skipping")
				continue
			}
			h.sessions[s.id] = s
			h.joined[s.id] = make(map[string]struct{})
			h.metrics.SessionOpened()
			h.logger.Debug("session registered",
				zap.String("session_id", s.id),
				zap.String("addr", s.addr),
				zap.Int("sessions", len(h.sessions)),
			)
			if s.conn != nil {
				h.wg.Go(s.writePump)
				h.wg.Go(s.readPump)
			}

		case s := <-h.unregister:
			if h.removeSession(s.id) {
				h.logger.Debug("session unregistered",
					zap.String("session_id", s.id),
					zap.String("addr", s.addr),
					zap.Int("sessions", len(h.sessions)),
				)
			}

		case op := <-h.ops:
			op()
		}
	}
}

// Register adds a session and starts its pumps. It blocks until the hub has
// accepted the session and returns common.ErrSessionClosed after shutdown.
func (h *Hub) Register(s *Session) error {
	select {
	case h.register <- s:
		return nil
	case <-h.ctx.Done():
		return fmt.Errorf("register session: %w", common.ErrSessionClosed)
	}
}

// Unregister removes a session from the hub and every room it joined.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.ctx.Done():
	}
}

// enqueue schedules op on the hub goroutine without waiting for it.
func (h *Hub) enqueue(op func()) {
	select {
	case h.ops <- op:
	case <-h.ctx.Done():
	}
}

// do runs op on the hub goroutine and waits for it to finish. It reports
// false when the hub stopped first.
func (h *Hub) do(op func()) bool {
	finished := make(chan struct{})
	select {
	case h.ops <- func() { op(); close(finished) }:
	case <-h.ctx.Done():
		return false
	}
	select {
	case <-finished:
		return true
	case <-h.done:
		return false
	}
}

// Join adds the session to room. added is false when the session was already
// a member; common.ErrSessionClosed is returned for unknown sessions.
func (h *Hub) Join(sessionID, room string) (added bool, err error) {
	registered := false
	ok := h.do(func() {
		s, exists := h.sessions[sessionID]
		if !exists {
			return
		}
		registered = true
		members := h.rooms[room]
		if members == nil {
			members = make(map[string]*Session)
			h.rooms[room] = members
		}
		if _, already := members[sessionID]; already {
			return
		}
		members[sessionID] = s
		h.joined[sessionID][room] = struct{}{}
		added = true
	})
	if !ok || !registered {
		return false, fmt.Errorf("join %s: %w", room, common.ErrSessionClosed)
	}
	return added, nil
}

// Leave removes the session from room and reports whether it was a member.
func (h *Hub) Leave(sessionID, room string) bool {
	removed := false
	h.do(func() {
		removed = h.leaveLocked(sessionID, room)
	})
	return removed
}

// JoinRoom adds the session to room and reports whether the session is still
// connected.
func (h *Hub) JoinRoom(sessionID, room string) bool {
	_, err := h.Join(sessionID, room)
	return err == nil
}

// LeaveRoom removes the session from room.
func (h *Hub) LeaveRoom(sessionID, room string) {
	h.Leave(sessionID, room)
}

// IsMember reports whether the session currently belongs to room.
func (h *Hub) IsMember(sessionID, room string) bool {
	member := false
	h.do(func() {
		_, member = h.rooms[room][sessionID]
	})
	return member
}

// members returns the session ids of room in sorted order.
func (h *Hub) members(room string) []string {
	var ids []string
	h.do(func() {
		ids = make([]string, 0, len(h.rooms[room]))
		for id := range h.rooms[room] {
			ids = append(ids, id)
		}
	})
	sort.Strings(ids)
	return ids
}

// hasRoom reports whether room currently exists.
func (h *Hub) hasRoom(room string) bool {
	exists := false
	h.do(func() {
		_, exists = h.rooms[room]
	})
	return exists
}

// sessionCount returns the number of registered sessions.
func (h *Hub) sessionCount() int {
	n := 0
	h.do(func() {
		n = len(h.sessions)
	})
	return n
}

// Broadcast delivers payload to every member of room except exclude.
func (h *Hub) Broadcast(room string, payload []byte, exclude string) {
	h.enqueue(func() {
		members := h.rooms[room]
		targets := make([]*Session, 0, len(members))
		for id, s := range members {
			if id != exclude {
				targets = append(targets, s)
			}
		}
		h.deliver(targets, payload)
	})
}

// BroadcastAll delivers payload to every registered session bound to a user.
// Unauthenticated sessions never receive service-wide notices.
func (h *Hub) BroadcastAll(payload []byte) {
	h.enqueue(func() {
		targets := make([]*Session, 0, len(h.sessions))
		for _, s := range h.sessions {
			if s.Authenticated() {
				targets = append(targets, s)
			}
		}
		h.deliver(targets, payload)
	})
}

// Send delivers payload to a single session.
func (h *Hub) Send(sessionID string, payload []byte) {
	h.enqueue(func() {
		if s, ok := h.sessions[sessionID]; ok {
			h.deliver([]*Session{s}, payload)
		}
	})
}

func (h *Hub) deliver(targets []*Session, payload []byte) {
	h.metrics.Broadcast()
	var slow []*Session
	for _, s := range targets {
		if !safeSend(s, payload) {
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		h.metrics.DroppedSend()
		if h.removeSession(s.id) {
			h.logger.Warn("session removed due to full send buffer",
				zap.String("session_id", s.id),
				zap.String("addr", s.addr),
			)
		}
	}
}

// safeSend never blocks; a full buffer reports false.
func safeSend(s *Session, message []byte) bool {
	select {
	case s.send <- message:
		return true
	default:
		return false
	}
}

// removeSession drops the session from every room and closes its send
// channel, which makes the write pump close the connection.
func (h *Hub) removeSession(sessionID string) bool {
	s, ok := h.sessions[sessionID]
	if !ok {
		return false
	}
	for room := range h.joined[sessionID] {
		h.leaveLocked(sessionID, room)
	}
	delete(h.joined, sessionID)
	delete(h.sessions, sessionID)
	close(s.send)
	h.metrics.SessionClosed()
	return true
}

func (h *Hub) leaveLocked(sessionID, room string) bool {
	members, ok := h.rooms[room]
	if !ok {
		return false
	}
	if _, member := members[sessionID]; !member {
		return false
	}
	delete(members, sessionID)
	delete(h.joined[sessionID], room)
	if len(members) == 0 && room != GlobalRoom {
		delete(h.rooms, room)
	}
	return true
}

// shutdownSessions closes every connection and send channel so both pumps
// of each session exit.
func (h *Hub) shutdownSessions() {
	h.logger.Info("shutting down all session connections")

	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	for _, s := range sessions {
		if s.conn != nil {
			if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.logger.Warn("error closing session connection", zap.String("addr", s.addr), zap.Error(err))
			}
		}
		h.removeSession(s.id)
	}
	h.logger.Info("closed session connections", zap.Int("count", len(sessions)))
}

// Shutdown stops the hub and waits for all session goroutines to complete,
// or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")
	h.cancel()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// done stays open when Run was never started.
	select {
	case <-h.done:
	case <-deadline.C:
		h.logger.Warn("hub run loop did not stop before the shutdown timeout")
		return context.DeadlineExceeded
	}

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-deadline.C:
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
