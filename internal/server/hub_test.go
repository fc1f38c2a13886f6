package server

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/officechat/internal/common"
	"github.com/Tyrowin/officechat/internal/config"
	"github.com/Tyrowin/officechat/internal/events"
	"github.com/Tyrowin/officechat/internal/store"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t), nil)
	go hub.Run()
	t.Cleanup(func() {
		assert.NoError(t, hub.Shutdown(time.Second))
	})
	return hub
}

// detachedSession has no connection, so the hub never starts pumps for it and
// tests read its send channel directly.
func detachedSession(t *testing.T, hub *Hub, userID int64, buffer int) *Session {
	t.Helper()
	cfg := config.Default()
	cfg.SendBufferSize = buffer
	user := &store.User{ID: userID, Email: fmt.Sprintf("user%d@example.com", userID)}
	s := NewSession(nil, hub, nil, user, "test", cfg)
	require.NoError(t, hub.Register(s))
	return s
}

func drain(s *Session) []events.Outbound {
	var out []events.Outbound
	for {
		select {
		case raw, ok := <-s.send:
			if !ok {
				return out
			}
			var frame events.Outbound
			if err := json.Unmarshal(raw, &frame); err == nil {
				out = append(out, frame)
			}
		default:
			return out
		}
	}
}

func TestHub_BroadcastReachesMembersOnly(t *testing.T) {
	hub := startHub(t)
	const n = 4
	members := make([]*Session, n)
	for i := range members {
		members[i] = detachedSession(t, hub, int64(i+1), 16)
		added, err := hub.Join(members[i].id, "private_1_2")
		require.NoError(t, err)
		assert.True(t, added)
	}
	outsider := detachedSession(t, hub, 99, 16)

	hub.Broadcast("private_1_2", events.System("private_1_2", "hello"), "")
	hub.sessionCount() // flush

	for _, s := range members {
		got := drain(s)
		require.Len(t, got, 1)
		assert.Equal(t, events.TypeSystem, got[0].Type)
	}
	assert.Empty(t, drain(outsider))
}

func TestHub_BroadcastExclude(t *testing.T) {
	hub := startHub(t)
	a := detachedSession(t, hub, 1, 4)
	b := detachedSession(t, hub, 2, 4)
	require.True(t, hub.JoinRoom(a.id, "edit_1"))
	require.True(t, hub.JoinRoom(b.id, "edit_1"))

	hub.Broadcast("edit_1", []byte(`{"type":"text_change","data":{}}`), a.id)
	hub.sessionCount()

	assert.Empty(t, drain(a))
	assert.Len(t, drain(b), 1)
}

func TestHub_JoinLeaveIdempotentAndReclaim(t *testing.T) {
	hub := startHub(t)
	s := detachedSession(t, hub, 1, 4)

	added, err := hub.Join(s.id, "edit_7")
	require.NoError(t, err)
	assert.True(t, added)
	added, err = hub.Join(s.id, "edit_7")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{s.id}, hub.members("edit_7"))

	assert.True(t, hub.Leave(s.id, "edit_7"))
	assert.False(t, hub.Leave(s.id, "edit_7"))
	assert.False(t, hub.hasRoom("edit_7"))

	require.True(t, hub.JoinRoom(s.id, GlobalRoom))
	hub.LeaveRoom(s.id, GlobalRoom)
	assert.True(t, hub.hasRoom(GlobalRoom))
}

func TestHub_JoinUnknownSession(t *testing.T) {
	hub := startHub(t)
	_, err := hub.Join("missing", GlobalRoom)
	assert.ErrorIs(t, err, common.ErrSessionClosed)
	assert.False(t, hub.JoinRoom("missing", GlobalRoom))
}

func TestHub_UnregisterLeavesRooms(t *testing.T) {
	hub := startHub(t)
	s := detachedSession(t, hub, 1, 4)
	require.True(t, hub.JoinRoom(s.id, "private_1_2"))

	hub.Unregister(s)
	assert.Equal(t, 0, hub.sessionCount())
	assert.False(t, hub.hasRoom("private_1_2"))

	_, ok := <-s.send
	assert.False(t, ok, "send channel closed")
}

func TestHub_SlowSessionDropped(t *testing.T) {
	hub := startHub(t)
	slow := detachedSession(t, hub, 1, 1)
	fast := detachedSession(t, hub, 2, 8)
	require.True(t, hub.JoinRoom(slow.id, GlobalRoom))
	require.True(t, hub.JoinRoom(fast.id, GlobalRoom))

	for i := 0; i < 3; i++ {
		hub.Broadcast(GlobalRoom, events.System(GlobalRoom, fmt.Sprint(i)), "")
	}

	assert.Equal(t, 1, hub.sessionCount())
	assert.Equal(t, []string{fast.id}, hub.members(GlobalRoom))
	assert.Len(t, drain(fast), 3)
	assert.Len(t, drain(slow), 1)
}

func TestHub_BroadcastAllAndSend(t *testing.T) {
	hub := startHub(t)
	a := detachedSession(t, hub, 1, 4)
	b := detachedSession(t, hub, 2, 4)

	hub.BroadcastAll(events.System("", "everyone"))
	hub.Send(b.id, events.System("", "just b"))
	hub.Send("missing", events.System("", "nobody"))
	hub.sessionCount()

	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 2)
}

func TestHub_BroadcastAllSkipsAnonymousSessions(t *testing.T) {
	hub := startHub(t)
	user := detachedSession(t, hub, 1, 4)
	anon := NewSession(nil, hub, nil, nil, "test", config.Default())
	require.NoError(t, hub.Register(anon))

	hub.BroadcastAll(events.System("", "user1@example.com offline"))
	hub.Send(anon.id, events.System("", "direct"))
	hub.sessionCount()

	assert.Len(t, drain(user), 1)
	got := drain(anon)
	require.Len(t, got, 1)
	var notice events.SystemNotice
	require.NoError(t, json.Unmarshal(got[0].Data, &notice))
	assert.Equal(t, "direct", notice.Message)
}

func TestHub_ShutdownWithoutRun(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)

	start := time.Now()
	err := hub.Shutdown(50 * time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHub_OrderPreservedPerRoom(t *testing.T) {
	hub := startHub(t)
	s := detachedSession(t, hub, 1, 64)
	require.True(t, hub.JoinRoom(s.id, GlobalRoom))

	for i := 0; i < 50; i++ {
		hub.Broadcast(GlobalRoom, events.System(GlobalRoom, fmt.Sprint(i)), "")
	}
	hub.sessionCount()

	got := drain(s)
	require.Len(t, got, 50)
	for i, frame := range got {
		var notice events.SystemNotice
		require.NoError(t, json.Unmarshal(frame.Data, &notice))
		assert.Equal(t, fmt.Sprint(i), notice.Message)
	}
}

func TestHub_OperationsAfterShutdown(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)
	go hub.Run()
	require.NoError(t, hub.Shutdown(time.Second))

	assert.ErrorIs(t, hub.Register(&Session{id: "x", send: make(chan []byte, 1)}), common.ErrSessionClosed)
	assert.False(t, hub.JoinRoom("x", GlobalRoom))
	assert.NotPanics(t, func() {
		hub.Broadcast(GlobalRoom, []byte("{}"), "")
		hub.Unregister(&Session{id: "x"})
	})
}
