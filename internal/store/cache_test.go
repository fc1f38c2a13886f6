package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/officechat/internal/common"
)

type countingIdentity struct {
	users map[int64]User
	calls int
}

func (c *countingIdentity) UserByID(_ context.Context, id int64) (*User, error) {
	c.calls++
	u, ok := c.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, common.ErrNotFound)
	}
	return &u, nil
}

func (c *countingIdentity) UserByEmail(_ context.Context, email string) (*User, error) {
	c.calls++
	for _, u := range c.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, common.ErrNotFound
}

func (c *countingIdentity) ApproveUser(_ context.Context, email string) error {
	for id, u := range c.users {
		if u.Email == email {
			u.IsApproved = true
			c.users[id] = u
			return nil
		}
	}
	return common.ErrNotFound
}

func TestCachedIdentity(t *testing.T) {
	ctx := context.Background()
	next := &countingIdentity{users: map[int64]User{1: {ID: 1, Email: "a@x"}}}
	c := NewCachedIdentity(next, 8, time.Minute)

	u, err := c.UserByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a@x", u.Email)
	_, err = c.UserByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1, c.size())

	c.Invalidate(1)
	_, err = c.UserByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	_, err = c.UserByID(ctx, 2)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 1, c.size())
}

func TestCachedIdentity_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	next := &countingIdentity{users: map[int64]User{1: {ID: 1, Email: "a@x"}}}
	c := NewCachedIdentity(next, 8, time.Minute)

	u, err := c.UserByEmail(ctx, "a@x")
	require.NoError(t, err)
	u.Email = "mutated"

	again, err := c.UserByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "a@x", again.Email)
}

func TestCachedIdentity_ApproveUserRefreshesEntry(t *testing.T) {
	ctx := context.Background()
	next := &countingIdentity{users: map[int64]User{1: {ID: 1, Email: "a@x"}}}
	c := NewCachedIdentity(next, 8, time.Minute)

	u, err := c.UserByID(ctx, 1)
	require.NoError(t, err)
	require.False(t, u.IsApproved)

	require.NoError(t, c.ApproveUser(ctx, "a@x"))
	u, err = c.UserByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, u.IsApproved)

	assert.ErrorIs(t, c.ApproveUser(ctx, "ghost@x"), common.ErrNotFound)
}
