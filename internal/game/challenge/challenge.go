// Package challenge implements the propose/accept/decline handshake that
// starts every two-player wagering match. A challenge is a session in the
// awaiting-acceptance state; accepting it hands the session to the game's
// turn engine, declining or timing out ends it with no balance changes.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"wager-game-bot/internal/ledger"
	"wager-game-bot/internal/session"
)

// Errors for the challenge handshake.
var (
	// ErrInvalidWager is returned when the wager is zero, negative, or
	// below the configured minimum.
	ErrInvalidWager = errors.New("invalid wager amount")

	// ErrSelfChallenge is returned when a player challenges themselves.
	ErrSelfChallenge = errors.New("you cannot challenge yourself")

	// ErrUnauthorizedActor is returned when someone other than the
	// challenged player tries to accept or decline.
	ErrUnauthorizedActor = errors.New("only the challenged player can respond")

	// ErrAlreadyInMatch is returned when either player is already part
	// of a live session.
	ErrAlreadyInMatch = errors.New("player is already in a match")

	// ErrInsufficientFunds is returned when either player's balance
	// cannot cover the wager.
	ErrInsufficientFunds = errors.New("insufficient funds to cover the wager")
)

// Config holds challenge handshake settings.
type Config struct {
	MinWager int64
	Timeout  time.Duration
}

// Coordinator validates and tracks challenges. It owns the transition from
// awaiting-acceptance into the hands of a turn engine.
type Coordinator struct {
	registry *session.Registry
	ledger   ledger.Ledger
	cfg      Config

	now func() time.Time
}

// NewCoordinator creates a challenge coordinator.
func NewCoordinator(registry *session.Registry, l ledger.Ledger, cfg Config) *Coordinator {
	return &Coordinator{
		registry: registry,
		ledger:   l,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock overrides the coordinator's clock (for testing).
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Propose validates a new challenge and registers it as a session awaiting
// acceptance. Both players must be able to cover the wager at this point;
// balances are checked but not debited, funds only move at settlement.
func (c *Coordinator) Propose(ctx context.Context, gameType string, initiator, target session.Player, wager, chatID int64) (*session.Session, error) {
	if wager <= 0 || wager < c.cfg.MinWager {
		return nil, fmt.Errorf("%w: minimum is %d", ErrInvalidWager, c.cfg.MinWager)
	}
	if initiator.ID == target.ID {
		return nil, ErrSelfChallenge
	}
	if c.registry.ActiveFor(initiator.ID) || c.registry.ActiveFor(target.ID) {
		return nil, ErrAlreadyInMatch
	}

	for _, p := range []session.Player{initiator, target} {
		bal, err := c.ledger.GetBalance(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check balance for %d: %w", p.ID, err)
		}
		if bal < wager {
			return nil, fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, p.Name, bal, wager)
		}
	}

	deadline := c.now().Add(c.cfg.Timeout)
	sess := session.New(gameType, initiator, target, wager, chatID, deadline)
	if !c.registry.AddIfIdle(sess) {
		return nil, ErrAlreadyInMatch
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("game_type", gameType).
		Int64("initiator", initiator.ID).
		Int64("target", target.ID).
		Int64("wager", wager).
		Msg("Challenge proposed")

	return sess, nil
}

// Accept moves a challenge into the in-progress state. Only the challenged
// player may accept, and their balance is re-checked because it may have
// changed since the proposal.
func (c *Coordinator) Accept(ctx context.Context, sessionID string, actorID int64) (*session.Session, error) {
	sess, ok := c.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionTerminated
	}

	// Balance check happens outside the session lock; the authoritative
	// check is still settlement's atomic transfer.
	bal, err := c.ledger.GetBalance(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check balance: %w", err)
	}

	err = sess.Update(c.now(), func() error {
		if sess.State != session.StateAwaitingAcceptance {
			return session.ErrSessionTerminated
		}
		if !sess.IsParticipant(actorID) {
			return session.ErrNotAParticipant
		}
		if actorID != sess.Target().ID {
			return ErrUnauthorizedActor
		}
		if bal < sess.Wager {
			return ErrInsufficientFunds
		}
		sess.State = session.StateInProgress
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("game_type", sess.GameType).
		Msg("Challenge accepted")

	return sess, nil
}

// Decline ends a pending challenge with no balance changes. Only the
// challenged player may decline.
func (c *Coordinator) Decline(ctx context.Context, sessionID string, actorID int64) (*session.Session, error) {
	sess, ok := c.registry.Get(sessionID)
	if !ok {
		return nil, session.ErrSessionTerminated
	}

	err := sess.Update(c.now(), func() error {
		if sess.State != session.StateAwaitingAcceptance {
			return session.ErrSessionTerminated
		}
		if !sess.IsParticipant(actorID) {
			return session.ErrNotAParticipant
		}
		if actorID != sess.Target().ID {
			return ErrUnauthorizedActor
		}
		sess.State = session.StateExpired
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The handler announces the decline itself; consume the expiry notice
	// so a concurrent sweep cannot report this as a timeout.
	sess.ClaimExpiryNotice()
	c.registry.Remove(sess.ID)

	log.Info().
		Str("session_id", sess.ID).
		Str("game_type", sess.GameType).
		Msg("Challenge declined")

	return sess, nil
}
