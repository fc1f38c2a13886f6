// Package server exposes HTTP handlers, including WebSocket upgrades, the
// JSON API, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/auth"
	"github.com/Tyrowin/officechat/internal/common"
	"github.com/Tyrowin/officechat/internal/config"
	"github.com/Tyrowin/officechat/internal/events"
	"github.com/Tyrowin/officechat/internal/presence"
)

// Handler serves every HTTP route of the service.
type Handler struct {
	gateway  *Gateway
	hub      *Hub
	auth     *auth.Authenticator
	cfg      config.Config
	upgrader websocket.Upgrader
	metrics  http.Handler
	logger   *zap.Logger
}

// NewHandler builds the route handlers. gatherer may be nil to disable
// /metrics.
func NewHandler(gw *Gateway, hub *Hub, authn *auth.Authenticator, cfg config.Config, gatherer prometheus.Gatherer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")
	origins := NewOriginPolicy(cfg.AllowedOrigins, logger)

	h := &Handler{
		gateway: gw,
		hub:     hub,
		auth:    authn,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		logger: logger,
	}
	if gatherer != nil {
		h.metrics = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	return h
}

// WebSocket handles WebSocket upgrade requests. A valid token binds the
// session to its user; without one the session is accepted but every event
// it sends is rejected as unauthenticated.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	user, err := h.auth.Identify(r.Context(), bearerToken(r))
	if err != nil {
		h.logger.Debug("websocket without valid identity", zap.String("addr", r.RemoteAddr), zap.Error(err))
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Info("WebSocket upgrade failed", zap.Error(err))
		return
	}

	session := NewSession(conn, h.hub, h.gateway, user, r.RemoteAddr, h.cfg)

	// Register the session with the hub; the hub will launch the pump goroutines.
	if err := h.hub.Register(session); err != nil {
		h.logger.Info("rejecting session during shutdown", zap.Error(err))
		_ = conn.Close()
	}
}

// Health provides a simple health check endpoint that returns server status.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "OfficeChat server is running!")
}

// Metrics serves the Prometheus exposition.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.NotFound(w, r)
		return
	}
	h.metrics.ServeHTTP(w, r)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string           `json:"token"`
	User  presence.Profile `json:"user"`
}

// Login exchanges credentials for a bearer token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", common.ErrMalformedEvent, err))
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)
		return
	case errors.Is(err, common.ErrNotApproved):
		writeError(w, http.StatusForbidden, err)
		return
	case err != nil:
		h.logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: profileOf(user)})
}

// OnlineUsers lists users currently connected.
func (h *Handler) OnlineUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, events.OnlineUsers{Users: h.gateway.OnlineUsers()})
}

type messageView struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	SenderID  int64  `json:"sender_id"`
	Sender    string `json:"sender"`
	Room      string `json:"room"`
	Timestamp string `json:"timestamp"`
}

// Messages returns the history of a room.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.gateway.History(r.Context(), UserFrom(r.Context()), r.PathValue("room"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			ID:        m.ID,
			Content:   m.Content,
			SenderID:  m.SenderID,
			Sender:    m.SenderEmail,
			Room:      m.Room,
			Timestamp: m.Timestamp.Format(events.TimestampLayout),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type postMessageRequest struct {
	Message string `json:"message"`
}

// PostMessage persists a message and broadcasts it to the room.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", common.ErrMalformedEvent, err))
		return
	}

	user := UserFrom(r.Context())
	msg, err := h.gateway.PostMessage(r.Context(), user, r.PathValue("room"), req.Message)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageView{
		ID:        msg.ID,
		Content:   msg.Content,
		SenderID:  msg.SenderID,
		Sender:    user.Email,
		Room:      msg.Room,
		Timestamp: msg.Timestamp.Format(events.TimestampLayout),
	})
}

type permissionsView struct {
	FileID   int64 `json:"file_id"`
	CanView  bool  `json:"can_view"`
	CanEdit  bool  `json:"can_edit"`
	Editors  int   `json:"editors"`
	Capacity int   `json:"capacity"`
}

// FilePermissions reports the caller's rights on a shared file.
func (h *Handler) FilePermissions(w http.ResponseWriter, r *http.Request) {
	fileID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || fileID <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid file id", common.ErrMalformedEvent))
		return
	}

	canView, canEdit, err := h.gateway.FilePermissions(r.Context(), UserFrom(r.Context()), fileID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	editors, capacity := h.gateway.Occupancy(fileID)
	writeJSON(w, http.StatusOK, permissionsView{
		FileID:   fileID,
		CanView:  canView,
		CanEdit:  canEdit,
		Editors:  editors,
		Capacity: capacity,
	})
}

// ApproveUser lets an administrator approve a pending account.
func (h *Handler) ApproveUser(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Approve(r.Context(), UserFrom(r.Context()), r.PathValue("email")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrMalformedEvent):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrEditCapacityExceeded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, events.ErrorNotice{Code: events.ErrorCode(err), Message: err.Error()})
}
