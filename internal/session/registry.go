package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry owns every live session, keyed by session ID. A background
// sweeper expires sessions whose deadline has passed and notifies
// registered callbacks so turn engines can drop their per-match state
// and the presentation layer can disable stale messages.
type Registry struct {
	sessions map[string]*Session
	onExpire []func(*Session)
	mu       sync.RWMutex
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

// AddIfIdle registers the session only when neither participant is part of
// another live session. Check and add happen under one write lock, so two
// concurrent proposals for the same player cannot both get in.
func (r *Registry) AddIfIdle(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sessions {
		if existing.View().State.Terminal() {
			continue
		}
		if existing.IsParticipant(s.Initiator().ID) || existing.IsParticipant(s.Target().ID) {
			return false
		}
	}
	r.sessions[s.ID] = s
	return true
}

// Get retrieves a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session from the registry. Terminal sessions are never
// resumed, so removal is final.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ActiveFor reports whether the player is already part of a non-terminal
// session. Used to keep a player out of two matches at once.
func (r *Registry) ActiveFor(playerID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.IsParticipant(playerID) && !s.View().State.Terminal() {
			return true
		}
	}
	return false
}

// OnExpire registers a callback invoked for every session the sweeper
// expires. Callbacks run outside the registry lock.
func (r *Registry) OnExpire(fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = append(r.onExpire, fn)
}

// Start runs the expiry sweeper until ctx is cancelled.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.Sweep(now)
			}
		}
	}()
}

// Sweep expires every session whose deadline has passed and removes
// terminal sessions from the registry. Sessions that a late action already
// pushed into the expired state are announced here too, so engines drop
// their per-match state and the presentation layer disables the stale
// message no matter which side won the race. Exposed so tests can drive
// the sweeper deterministically.
func (r *Registry) Sweep(now time.Time) {
	r.mu.RLock()
	candidates := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	callbacks := r.onExpire
	r.mu.RUnlock()

	for _, s := range candidates {
		s.ExpireIfDue(now)
		if s.ClaimExpiryNotice() {
			log.Info().
				Str("session_id", s.ID).
				Str("game_type", s.GameType).
				Msg("Session expired")
			for _, fn := range callbacks {
				fn(s)
			}
		}
		if s.View().State.Terminal() {
			r.Remove(s.ID)
		}
	}
}
