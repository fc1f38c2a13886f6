package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Tyrowin/officechat/internal/collab"
	"github.com/Tyrowin/officechat/internal/common"
	"github.com/Tyrowin/officechat/internal/events"
	"github.com/Tyrowin/officechat/internal/metrics"
	"github.com/Tyrowin/officechat/internal/presence"
	"github.com/Tyrowin/officechat/internal/store"
)

// GatewayDeps are the collaborators of a Gateway.
type GatewayDeps struct {
	Hub         *Hub
	Presence    *presence.Registry
	Coordinator *collab.Coordinator
	Documents   store.DocumentStore
	Users       store.IdentityStore
	Clock       clock.Clock
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Gateway turns session lifecycle and inbound events into calls on the
// presence registry, the hub, the edit coordinator and the document store.
// It also serves the synchronous HTTP API with the same rules.
type Gateway struct {
	hub      *Hub
	presence *presence.Registry
	coord    *collab.Coordinator
	docs     store.DocumentStore
	users    store.IdentityStore
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewGateway builds a Gateway.
func NewGateway(d GatewayDeps) *Gateway {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Gateway{
		hub:      d.Hub,
		presence: d.Presence,
		coord:    d.Coordinator,
		docs:     d.Documents,
		users:    d.Users,
		clock:    d.Clock,
		logger:   d.Logger.Named("gateway"),
		metrics:  d.Metrics,
	}
}

// Connect marks an authenticated session's user online and tells everyone.
func (g *Gateway) Connect(_ context.Context, s *Session) {
	if !s.Authenticated() {
		s.logger.Info("unauthenticated session connected")
		return
	}
	g.presence.Register(profileOf(s.user), s.id)
	s.logger.Info("user online")
	g.publishPresence()
}

// Disconnect releases everything the session held. Edit sessions are
// released before the session leaves the hub so co-editors see the leave.
func (g *Gateway) Disconnect(ctx context.Context, s *Session) {
	g.coord.ReleaseSession(ctx, s.id)
	g.hub.Unregister(s)
	if !s.Authenticated() {
		return
	}
	if g.presence.UnregisterSession(s.user.ID, s.id) {
		s.logger.Info("user offline")
		g.hub.BroadcastAll(events.System("", s.user.Email+" offline"))
		g.publishPresence()
	}
}

func (g *Gateway) publishPresence() {
	snapshot := g.presence.Snapshot()
	g.metrics.SetOnlineUsers(len(snapshot))
	g.hub.BroadcastAll(events.OnlineUsersUpdate(snapshot))
}

// Handle decodes one inbound frame and applies it. Failures are reported
// only to the originating session.
func (g *Gateway) Handle(ctx context.Context, s *Session, raw []byte) {
	kind := "unknown"
	ev, err := events.Decode(raw)
	if err == nil {
		kind = ev.Kind()
	}
	switch {
	case !s.Authenticated():
		err = common.ErrUnauthenticated
	case err == nil:
		err = g.dispatch(ctx, s, ev)
	}

	if err != nil {
		code := events.ErrorCode(err)
		g.metrics.Event(kind, code)
		if code == "internal" || code == "persistence_failure" {
			s.logger.Warn("event failed", zap.String("type", kind), zap.Error(err))
		} else {
			s.logger.Debug("event rejected", zap.String("type", kind), zap.Error(err))
		}
		g.hub.Send(s.id, events.Error(err))
		return
	}
	g.metrics.Event(kind, "ok")
}

func (g *Gateway) dispatch(ctx context.Context, s *Session, ev events.Inbound) error {
	switch e := ev.(type) {
	case *events.JoinRoom:
		return g.joinRoom(ctx, s, e.Room)
	case *events.LeaveRoom:
		return g.leaveRoom(s, e.Room)
	case *events.SendMessage:
		if !g.hub.IsMember(s.id, e.Room) {
			return fmt.Errorf("send to %s: %w", e.Room, common.ErrPermissionDenied)
		}
		_, err := g.PostMessage(ctx, s.user, e.Room, e.Message)
		return err
	case *events.JoinEdit:
		return g.coord.RequestJoin(ctx, e.FileID, editorOf(s))
	case *events.LeaveEdit:
		return g.coord.RequestLeave(ctx, e.FileID, editorOf(s))
	case *events.TextChange:
		return g.coord.RelayChange(ctx, e.FileID, editorOf(s), e.Content)
	case *events.GetOnlineUsers:
		g.hub.Send(s.id, events.OnlineUsersReply(g.presence.Snapshot()))
		return nil
	default:
		return fmt.Errorf("%w: unsupported event %s", common.ErrMalformedEvent, ev.Kind())
	}
}

func (g *Gateway) joinRoom(ctx context.Context, s *Session, room string) error {
	if err := g.CheckRoomAccess(ctx, s.user, room); err != nil {
		return err
	}
	added, err := g.hub.Join(s.id, room)
	if err != nil {
		return err
	}
	if added {
		g.hub.Broadcast(room, events.System(room, s.user.Email+" joined"), "")
	}
	return nil
}

func (g *Gateway) leaveRoom(s *Session, room string) error {
	if !isChatRoom(room) {
		return fmt.Errorf("room %s: %w", room, common.ErrNotFound)
	}
	if g.hub.Leave(s.id, room) {
		g.hub.Broadcast(room, events.System(room, s.user.Email+" left"), "")
	}
	return nil
}

func isChatRoom(room string) bool {
	if room == GlobalRoom {
		return true
	}
	_, ok := ParsePrivateRoom(room)
	return ok
}

// CheckRoomAccess reports whether user may read and write room. Private
// rooms are limited to their participants; unknown names are not found.
func (g *Gateway) CheckRoomAccess(ctx context.Context, user *store.User, room string) error {
	if user == nil {
		return common.ErrUnauthenticated
	}
	if room == GlobalRoom {
		return nil
	}
	ids, ok := ParsePrivateRoom(room)
	if !ok {
		return fmt.Errorf("room %s: %w", room, common.ErrNotFound)
	}
	if !slices.Contains(ids, user.ID) {
		return fmt.Errorf("room %s: %w", room, common.ErrPermissionDenied)
	}
	for _, id := range ids {
		if id == user.ID {
			continue
		}
		if _, err := g.users.UserByID(ctx, id); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("room %s: %w", room, err)
			}
			return fmt.Errorf("%w: room %s: %w", common.ErrPersistenceFailure, room, err)
		}
	}
	return nil
}

// PostMessage persists a chat message and fans it out to the room.
func (g *Gateway) PostMessage(ctx context.Context, user *store.User, room, content string) (*store.ChatMessage, error) {
	if err := g.CheckRoomAccess(ctx, user, room); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: message is empty", common.ErrMalformedEvent)
	}

	msg, err := g.docs.AppendMessage(ctx, room, user.ID, content, g.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: append message: %w", common.ErrPersistenceFailure, err)
	}
	msg.SenderEmail = user.Email
	g.hub.Broadcast(room, events.NewMessage(msg.ID, room, user.ID, user.Email, content, msg.Timestamp), "")
	return msg, nil
}

// History returns the messages of room, oldest first.
func (g *Gateway) History(ctx context.Context, user *store.User, room string) ([]*store.ChatMessage, error) {
	if err := g.CheckRoomAccess(ctx, user, room); err != nil {
		return nil, err
	}
	msgs, err := g.docs.ListMessages(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %w", common.ErrPersistenceFailure, err)
	}
	return msgs, nil
}

// FilePermissions reports what user may do with a shared file.
func (g *Gateway) FilePermissions(ctx context.Context, user *store.User, fileID int64) (canView, canEdit bool, err error) {
	f, err := g.docs.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, false, err
		}
		return false, false, fmt.Errorf("%w: get file: %w", common.ErrPersistenceFailure, err)
	}
	return f.CanView(user.ID), f.CanEdit(user.ID), nil
}

// Occupancy reports the live editors of fileID and the per-file limit.
func (g *Gateway) Occupancy(fileID int64) (editors, capacity int) {
	return g.coord.EditorCount(fileID), g.coord.Capacity()
}

// OnlineUsers returns the current presence snapshot.
func (g *Gateway) OnlineUsers() []presence.Profile {
	return g.presence.Snapshot()
}

func profileOf(u *store.User) presence.Profile {
	return presence.Profile{
		UserID:     u.ID,
		Email:      u.Email,
		Factory:    u.Factory,
		Department: u.Department,
	}
}

func editorOf(s *Session) collab.Editor {
	return collab.Editor{SessionID: s.id, UserID: s.user.ID, Email: s.user.Email}
}
