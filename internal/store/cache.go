package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedIdentity fronts an IdentityStore with an expiring LRU keyed by user
// id. Every WebSocket connect and bearer-authenticated request resolves the
// caller by id, so hits avoid a database round trip.
type CachedIdentity struct {
	next IdentityStore
	byID *expirable.LRU[int64, User]
}

// NewCachedIdentity wraps next with a cache of the given size and TTL.
func NewCachedIdentity(next IdentityStore, size int, ttl time.Duration) *CachedIdentity {
	if size <= 0 {
		size = 1024
	}
	return &CachedIdentity{
		next: next,
		byID: expirable.NewLRU[int64, User](size, nil, ttl),
	}
}

// UserByID serves from cache when possible.
func (c *CachedIdentity) UserByID(ctx context.Context, id int64) (*User, error) {
	if u, ok := c.byID.Get(id); ok {
		return &u, nil
	}
	u, err := c.next.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.byID.Add(u.ID, *u)
	return u, nil
}

// UserByEmail always reads through and refreshes the id entry.
func (c *CachedIdentity) UserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := c.next.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	c.byID.Add(u.ID, *u)
	return u, nil
}

// ApproveUser approves the account and drops its cached entry, so sessions
// and requests resolved afterwards see the approval at once.
func (c *CachedIdentity) ApproveUser(ctx context.Context, email string) error {
	if err := c.next.ApproveUser(ctx, email); err != nil {
		return err
	}
	u, err := c.next.UserByEmail(ctx, email)
	if err != nil {
		return err
	}
	c.Invalidate(u.ID)
	return nil
}

// Invalidate drops a cached user.
func (c *CachedIdentity) Invalidate(id int64) {
	c.byID.Remove(id)
}

func (c *CachedIdentity) size() int {
	return c.byID.Len()
}
