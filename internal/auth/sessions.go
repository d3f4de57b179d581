package auth

import (
	"context"
	"sync"
	"time"
)

// SessionRegistry tracks live session ids so the portal can report how many
// sessions are active. An entry lives until its refresh token expires or the
// session logs out.
type SessionRegistry struct {
	mu      sync.Mutex
	entries map[string]sessionEntry
	now     func() time.Time
}

type sessionEntry struct {
	userID    string
	expiresAt time.Time
}

// NewSessionRegistry creates an empty registry. A nil now uses time.Now.
func NewSessionRegistry(now func() time.Time) *SessionRegistry {
	if now == nil {
		now = time.Now
	}
	return &SessionRegistry{
		entries: make(map[string]sessionEntry),
		now:     now,
	}
}

// Track records a session until expiresAt. Tracking a known id extends it.
func (r *SessionRegistry) Track(sessionID, userID string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sessionID] = sessionEntry{userID: userID, expiresAt: expiresAt}
}

// Remove forgets a session. It reports whether the session was tracked.
func (r *SessionRegistry) Remove(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	return ok
}

// Active returns the number of unexpired sessions.
func (r *SessionRegistry) Active() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// ActiveForUser returns the unexpired session ids belonging to userID.
func (r *SessionRegistry) ActiveForUser(userID string) []string {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for sid, e := range r.entries {
		if e.userID == userID && now.Before(e.expiresAt) {
			ids = append(ids, sid)
		}
	}
	return ids
}

// Cleanup drops expired entries and returns how many were removed.
func (r *SessionRegistry) Cleanup() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for sid, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, sid)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until the context is cancelled.
func (r *SessionRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Cleanup()
		}
	}
}
