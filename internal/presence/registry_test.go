package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(id int64) Profile {
	return Profile{UserID: id, Email: fmt.Sprintf("user%d@oa.com", id), Factory: "F1", Department: "QA"}
}

func TestRegistry_ReconnectReplacesEntry(t *testing.T) {
	r := NewRegistry()

	r.Register(profile(1), "s1")
	r.Unregister(1)
	r.Register(profile(1), "s2")

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].UserID)

	sid, ok := r.sessionOf(1)
	require.True(t, ok)
	assert.Equal(t, "s2", sid)
}

func TestRegistry_RegisterTwiceKeepsSingleEntry(t *testing.T) {
	r := NewRegistry()

	r.Register(profile(7), "a")
	r.Register(profile(7), "b")

	assert.Equal(t, 1, r.size())
	sid, _ := r.sessionOf(7)
	assert.Equal(t, "b", sid)
}

func TestRegistry_StaleSessionDoesNotEvictFreshEntry(t *testing.T) {
	r := NewRegistry()

	r.Register(profile(1), "old")
	r.Register(profile(1), "new")

	assert.False(t, r.UnregisterSession(1, "old"))
	assert.Equal(t, 1, r.size())

	assert.True(t, r.UnregisterSession(1, "new"))
	assert.Equal(t, 0, r.size())
}

func TestRegistry_UnregisterAbsentIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Unregister(42)
	assert.False(t, r.UnregisterSession(42, "x"))
	assert.Empty(t, r.Snapshot())
	assert.NotNil(t, r.Snapshot())
}

func TestRegistry_SnapshotOrderedByUserID(t *testing.T) {
	r := NewRegistry()
	for _, id := range []int64{5, 2, 9, 1} {
		r.Register(profile(id), fmt.Sprint(id))
	}

	var ids []int64
	for _, p := range r.Snapshot() {
		ids = append(ids, p.UserID)
	}
	assert.Equal(t, []int64{1, 2, 5, 9}, ids)
}

func TestRegistry_ConcurrentConnectDisconnect(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			sid := fmt.Sprintf("s%d", id)
			r.Register(profile(id%10), sid)
			_ = r.Snapshot()
			r.UnregisterSession(id%10, sid)
		}(int64(i))
	}
	wg.Wait()

	seen := map[int64]bool{}
	for _, p := range r.Snapshot() {
		assert.False(t, seen[p.UserID], "user %d listed twice", p.UserID)
		seen[p.UserID] = true
	}
}
