// Package session keeps authenticated principals keyed by opaque token with
// a sliding expiration window.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chat/backend/internal/metrics"
)

// Session is a single authenticated login.
type Session struct {
	ID          string
	PrincipalID int64
	ExpiresAt   time.Time
}

// Registry owns every live session. All access goes through mu.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]Session
	window   time.Duration
	now      func() time.Time
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry returns an empty registry whose sessions stay valid for window
// after their last use.
func NewRegistry(window time.Duration, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]Session),
		window:   window,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Window reports the sliding expiration window.
func (r *Registry) Window() time.Duration {
	return r.window
}

// Create starts a session for principalID and returns its token.
// The session expires one window from now unless it is used again.
func (r *Registry) Create(principalID int64) string {
	token := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[token] = Session{
		ID:          token,
		PrincipalID: principalID,
		ExpiresAt:   r.now().Add(r.window),
	}
	r.reportLocked()
	return token
}

// Validate reports the principal behind token and pushes its expiry one
// window forward. Check and extension happen under the same lock, so a
// concurrent sweep sees either the old session (and keeps it) or nothing.
func (r *Registry) Validate(token string) (int64, bool) {
	if token == "" {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[token]
	if !ok {
		return 0, false
	}

	now := r.now()
	if !s.ExpiresAt.After(now) {
		// Expired sessions never come back, even if the clock steps back.
		delete(r.sessions, token)
		r.reportLocked()
		return 0, false
	}

	s.ExpiresAt = now.Add(r.window)
	r.sessions[token] = s
	return s.PrincipalID, true
}

// Revoke drops the session unconditionally.
func (r *Registry) Revoke(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, token)
	r.reportLocked()
}

// Sweep removes every session whose expiry has passed and returns how many
// were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for token, s := range r.sessions {
		if !s.ExpiresAt.After(now) {
			delete(r.sessions, token)
			removed++
		}
	}
	r.reportLocked()
	return removed
}

// Clear drops every session.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.sessions)
	r.reportLocked()
}

// reportLocked publishes the session count. The caller holds mu, so gauge
// updates land in the same order as the map changes.
func (r *Registry) reportLocked() {
	metrics.SessionsActive.Set(float64(len(r.sessions)))
}

// Len returns the number of sessions held, expired or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Run sweeps expired sessions once per window until ctx is cancelled, then
// clears the registry and returns.
func (r *Registry) Run(ctx context.Context) error {
	return r.run(ctx, r.window)
}

func (r *Registry) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Clear()
			log.Info().Msg("session sweeper stopped, sessions cleared")
			return nil
		case <-ticker.C:
			if removed := r.Sweep(); removed > 0 {
				log.Debug().Int("removed", removed).Msg("expired sessions swept")
			}
		}
	}
}
