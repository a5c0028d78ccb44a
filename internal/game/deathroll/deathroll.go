// Package deathroll implements the deathroll turn engine. Players
// alternate rolling a random number from 1 to the current ceiling; each
// roll becomes the next ceiling, and the player who rolls a 1 loses the
// wager.
package deathroll

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"wager-game-bot/internal/session"
)

// Errors for deathroll actions.
var (
	// ErrNotYourTurn is returned when a participant rolls out of turn.
	ErrNotYourTurn = errors.New("it is not your turn to roll")
)

// Settler applies the wager transfer once a session completes.
type Settler interface {
	Settle(ctx context.Context, sess *session.Session) error
}

// Config holds deathroll engine settings.
type Config struct {
	// StartingRoll is the initial ceiling. Zero means the ceiling starts
	// at the wager amount, so bigger stakes mean longer games.
	StartingRoll int64

	// TurnTimeout is how long each player has to take their turn.
	TurnTimeout time.Duration
}

// match is the engine's private per-session state.
type match struct {
	sess    *session.Session
	ceiling int64
}

// Engine drives all live deathroll matches.
type Engine struct {
	registry *session.Registry
	settler  Settler
	cfg      Config

	matches map[string]*match
	mu      sync.Mutex

	roll func(ceiling int64) int64
	now  func() time.Time
}

// NewEngine creates a deathroll engine and registers its expiry cleanup
// with the session registry.
func NewEngine(registry *session.Registry, settler Settler, cfg Config) *Engine {
	e := &Engine{
		registry: registry,
		settler:  settler,
		cfg:      cfg,
		matches:  make(map[string]*match),
		roll: func(ceiling int64) int64 {
			return rand.Int63n(ceiling) + 1
		},
		now: time.Now,
	}
	registry.OnExpire(func(s *session.Session) {
		if s.GameType == session.GameTypeDeathroll {
			e.dropMatch(s.ID)
		}
	})
	return e
}

// SetRollFunc overrides the roll source (for testing).
func (e *Engine) SetRollFunc(roll func(ceiling int64) int64) {
	e.roll = roll
}

// SetClock overrides the engine's clock (for testing).
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Start begins play on an accepted session. The initiator rolls first
// against a ceiling of the wager amount (or the configured override).
func (e *Engine) Start(sess *session.Session) error {
	ceiling := e.cfg.StartingRoll
	if ceiling <= 0 {
		ceiling = sess.Wager
	}
	// Degenerate ceilings would make the first roll an instant loss
	if ceiling < 2 {
		ceiling = 2
	}

	err := sess.Update(e.now(), func() error {
		if sess.State != session.StateInProgress {
			return session.ErrSessionTerminated
		}
		sess.CurrentTurn = sess.Initiator().ID
		sess.Deadline = e.now().Add(e.cfg.TurnTimeout)
		return nil
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.matches[sess.ID] = &match{sess: sess, ceiling: ceiling}
	e.mu.Unlock()

	log.Info().
		Str("session_id", sess.ID).
		Int64("ceiling", ceiling).
		Int64("first_turn", sess.Initiator().ID).
		Msg("Deathroll started")

	return nil
}

// RollResult describes a single roll.
type RollResult struct {
	PlayerID int64
	Roll     int64
	Ceiling  int64 // ceiling for the next roll
	Round    int
	Finished bool
	WinnerID int64
	LoserID  int64
}

// Ceiling returns the current ceiling for a live match, for rendering.
func (e *Engine) Ceiling(sessionID string) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches[sessionID]
	if !ok {
		return 0, false
	}
	return m.ceiling, true
}

// Roll takes the acting player's turn. Rolling a 1 loses the match and
// triggers settlement; any other roll becomes the opponent's ceiling.
func (e *Engine) Roll(ctx context.Context, sessionID string, playerID int64) (*RollResult, error) {
	sess, ok := e.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionTerminated
	}

	e.mu.Lock()
	m, ok := e.matches[sessionID]
	e.mu.Unlock()
	if !ok {
		return nil, session.ErrSessionTerminated
	}

	var result RollResult
	err := sess.Update(e.now(), func() error {
		if sess.State != session.StateInProgress {
			return session.ErrSessionTerminated
		}
		if !sess.IsParticipant(playerID) {
			return session.ErrNotAParticipant
		}
		if sess.CurrentTurn != playerID {
			return ErrNotYourTurn
		}

		// Ceiling reads for rendering race against this mutation, so the
		// engine lock is taken inside the session lock, same order as rps.
		e.mu.Lock()
		defer e.mu.Unlock()

		rolled := e.roll(m.ceiling)
		result = RollResult{
			PlayerID: playerID,
			Roll:     rolled,
			Round:    sess.Round,
		}

		if rolled == 1 {
			opponent := sess.Opponent(playerID)
			sess.State = session.StateCompleted
			sess.Outcome = &session.Outcome{
				WinnerID: opponent.ID,
				LoserID:  playerID,
				Amount:   sess.Wager,
			}
			result.Finished = true
			result.WinnerID = opponent.ID
			result.LoserID = playerID
			return nil
		}

		m.ceiling = rolled
		sess.CurrentTurn = sess.Opponent(playerID).ID
		sess.Round++
		sess.Deadline = e.now().Add(e.cfg.TurnTimeout)
		result.Ceiling = rolled
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Finished {
		e.dropMatch(sessionID)
		if err := e.settler.Settle(ctx, sess); err != nil {
			log.Error().Err(err).
				Str("session_id", sessionID).
				Msg("Deathroll settlement failed")
		}
	}

	return &result, nil
}

func (e *Engine) dropMatch(sessionID string) {
	e.mu.Lock()
	delete(e.matches, sessionID)
	e.mu.Unlock()
}
