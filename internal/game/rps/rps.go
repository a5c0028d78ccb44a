// Package rps implements the rock-paper-scissors turn engine. Both players
// pick a symbol each round in secret; the round winner scores a point,
// draws replay the round, and the first player to the configured number of
// wins takes the wager.
package rps

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"wager-game-bot/internal/session"
)

// Errors for rock-paper-scissors actions.
var (
	// ErrAlreadyChosen is returned when a player tries to change their
	// symbol for the current round.
	ErrAlreadyChosen = errors.New("you already picked for this round")

	// ErrUnknownSymbol is returned for a symbol outside rock/paper/scissors.
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// Symbol is one of the three throwable hands.
type Symbol int

const (
	Rock Symbol = iota
	Paper
	Scissors
)

// String returns the symbol name.
func (s Symbol) String() string {
	switch s {
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	default:
		return "unknown"
	}
}

// Beats reports whether s wins against other.
func (s Symbol) Beats(other Symbol) bool {
	return (s == Rock && other == Scissors) ||
		(s == Paper && other == Rock) ||
		(s == Scissors && other == Paper)
}

// ParseSymbol converts a symbol name to a Symbol.
func ParseSymbol(name string) (Symbol, error) {
	switch name {
	case "rock":
		return Rock, nil
	case "paper":
		return Paper, nil
	case "scissors":
		return Scissors, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, name)
	}
}

// Settler applies the wager transfer once a session completes.
type Settler interface {
	Settle(ctx context.Context, sess *session.Session) error
}

// Config holds rock-paper-scissors engine settings.
type Config struct {
	// WinsToTakeMatch is the score that ends the match (first to N).
	WinsToTakeMatch int

	// TurnTimeout is how long a round may wait for both picks.
	TurnTimeout time.Duration
}

// match is the engine's private per-session state.
type match struct {
	sess    *session.Session
	choices map[int64]Symbol
	wins    map[int64]int
	draws   int
}

// Engine drives all live rock-paper-scissors matches.
type Engine struct {
	registry *session.Registry
	settler  Settler
	cfg      Config

	matches map[string]*match
	mu      sync.Mutex

	now func() time.Time
}

// NewEngine creates an rps engine and registers its expiry cleanup with
// the session registry.
func NewEngine(registry *session.Registry, settler Settler, cfg Config) *Engine {
	e := &Engine{
		registry: registry,
		settler:  settler,
		cfg:      cfg,
		matches:  make(map[string]*match),
		now:      time.Now,
	}
	registry.OnExpire(func(s *session.Session) {
		if s.GameType == session.GameTypeRPS {
			e.dropMatch(s.ID)
		}
	})
	return e
}

// SetClock overrides the engine's clock (for testing).
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Start begins play on an accepted session.
func (e *Engine) Start(sess *session.Session) error {
	err := sess.Update(e.now(), func() error {
		if sess.State != session.StateInProgress {
			return session.ErrSessionTerminated
		}
		sess.Deadline = e.now().Add(e.cfg.TurnTimeout)
		return nil
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.matches[sess.ID] = &match{
		sess:    sess,
		choices: make(map[int64]Symbol),
		wins:    make(map[int64]int),
	}
	e.mu.Unlock()

	log.Info().
		Str("session_id", sess.ID).
		Int("wins_to_take", e.cfg.WinsToTakeMatch).
		Msg("Rock-paper-scissors started")

	return nil
}

// ChoiceResult describes the state after a pick.
type ChoiceResult struct {
	PlayerID int64
	Symbol   Symbol
	Round    int

	// Resolved is true when this pick was the round's second and the
	// round has an outcome.
	Resolved      bool
	Draw          bool
	RoundWinnerID int64
	Picks         map[int64]Symbol // both picks, set only when Resolved

	Wins  map[int64]int
	Draws int // drawn rounds so far this match

	Finished bool
	WinnerID int64
	LoserID  int64
}

// Score returns the current win counts for a live match, for rendering.
func (e *Engine) Score(sessionID string) (map[int64]int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches[sessionID]
	if !ok {
		return nil, false
	}
	wins := make(map[int64]int, len(m.wins))
	for id, w := range m.wins {
		wins[id] = w
	}
	return wins, true
}

// HasChosen reports whether a player has already picked this round.
func (e *Engine) HasChosen(sessionID string, playerID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.matches[sessionID]
	if !ok {
		return false
	}
	_, chosen := m.choices[playerID]
	return chosen
}

// Choose records the acting player's symbol for the current round. When
// both players have picked, the round resolves: the winner scores, draws
// replay the round, and reaching the win target completes the match and
// triggers settlement.
func (e *Engine) Choose(ctx context.Context, sessionID string, playerID int64, sym Symbol) (*ChoiceResult, error) {
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

	var result ChoiceResult
	err := sess.Update(e.now(), func() error {
		if sess.State != session.StateInProgress {
			return session.ErrSessionTerminated
		}
		if !sess.IsParticipant(playerID) {
			return session.ErrNotAParticipant
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		if _, chosen := m.choices[playerID]; chosen {
			return ErrAlreadyChosen
		}
		m.choices[playerID] = sym

		result = ChoiceResult{
			PlayerID: playerID,
			Symbol:   sym,
			Round:    sess.Round,
		}

		if len(m.choices) < 2 {
			return nil
		}

		// Both picks are in, resolve the round
		result.Resolved = true
		result.Picks = m.choices

		a, b := sess.Participants[0], sess.Participants[1]
		symA, symB := m.choices[a.ID], m.choices[b.ID]
		m.choices = make(map[int64]Symbol)

		switch {
		case symA == symB:
			// Draws replay the round with no score change
			m.draws++
			result.Draw = true
		case symA.Beats(symB):
			m.wins[a.ID]++
			result.RoundWinnerID = a.ID
		default:
			m.wins[b.ID]++
			result.RoundWinnerID = b.ID
		}

		result.Wins = map[int64]int{a.ID: m.wins[a.ID], b.ID: m.wins[b.ID]}
		result.Draws = m.draws
		sess.Round++
		sess.Deadline = e.now().Add(e.cfg.TurnTimeout)

		if !result.Draw && m.wins[result.RoundWinnerID] >= e.cfg.WinsToTakeMatch {
			winner := result.RoundWinnerID
			loser := sess.Opponent(winner).ID
			sess.State = session.StateCompleted
			sess.Outcome = &session.Outcome{
				WinnerID: winner,
				LoserID:  loser,
				Amount:   sess.Wager,
			}
			result.Finished = true
			result.WinnerID = winner
			result.LoserID = loser
		}
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
				Msg("Rock-paper-scissors settlement failed")
		}
	}

	return &result, nil
}

func (e *Engine) dropMatch(sessionID string) {
	e.mu.Lock()
	delete(e.matches, sessionID)
	e.mu.Unlock()
}
