// Package presence tracks which users currently hold a live connection.
//
// The Registry keeps one entry per user id. A reconnecting user replaces the
// entry left by the previous session, and a late disconnect of that previous
// session does not evict the fresh entry.
package presence

import (
	"sort"
	"sync"
)

// Profile is the public presence information broadcast to connected clients.
type Profile struct {
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	Factory    string `json:"factory"`
	Department string `json:"department"`
}

type entry struct {
	profile   Profile
	sessionID string
}

// Registry maps connected user ids to their profile and owning session.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]entry)}
}

// Register records the profile as online for the given session, replacing any
// existing entry for the same user.
func (r *Registry) Register(profile Profile, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[profile.UserID] = entry{profile: profile, sessionID: sessionID}
}

// Unregister removes the user regardless of which session registered it.
func (r *Registry) Unregister(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// UnregisterSession removes the user only while the entry still belongs to
// sessionID. It reports whether an entry was removed.
func (r *Registry) UnregisterSession(userID int64, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[userID]
	if !ok || e.sessionID != sessionID {
		return false
	}
	delete(r.entries, userID)
	return true
}

// sessionOf returns the session currently owning the user's entry.
func (r *Registry) sessionOf(userID int64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	return e.sessionID, ok
}

// size returns the number of online users.
func (r *Registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns the online profiles ordered by user id. The result is never
// nil so it encodes as an empty JSON array.
func (r *Registry) Snapshot() []Profile {
	r.mu.RLock()
	profiles := make([]Profile, 0, len(r.entries))
	for _, e := range r.entries {
		profiles = append(profiles, e.profile)
	}
	r.mu.RUnlock()

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].UserID < profiles[j].UserID })
	return profiles
}
