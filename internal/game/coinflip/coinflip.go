// Package coinflip implements a coin toss against the house. The player
// calls heads or tails; a correct call doubles the bet, a wrong call
// loses it.
package coinflip

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"wager-game-bot/internal/game"
)

// DefaultMaxBet is the maximum allowed bet for coinflip.
const DefaultMaxBet = 10000

// Errors for the coinflip game.
var (
	ErrInvalidBet  = errors.New("bet amount must be positive")
	ErrBetTooHigh  = errors.New("bet exceeds maximum allowed")
	ErrMissingCall = errors.New("call heads or tails")
)

// CoinflipGame implements the Game interface for a coin toss vs the house.
type CoinflipGame struct {
	maxBet int64
	flip   func() string // returns "heads" or "tails"
}

// Config holds configuration for the coinflip game.
type Config struct {
	MaxBet int64
}

// New creates a new CoinflipGame with the given configuration.
func New(cfg *Config) *CoinflipGame {
	maxBet := int64(DefaultMaxBet)
	if cfg != nil && cfg.MaxBet > 0 {
		maxBet = cfg.MaxBet
	}

	return &CoinflipGame{
		maxBet: maxBet,
		flip: func() string {
			if rand.Intn(2) == 0 {
				return "heads"
			}
			return "tails"
		},
	}
}

// SetFlipFunc overrides the coin toss source (for testing).
func (g *CoinflipGame) SetFlipFunc(flip func() string) {
	g.flip = flip
}

// Name returns the game's display name.
func (g *CoinflipGame) Name() string {
	return "Coinflip"
}

// Command returns the command that triggers this game.
func (g *CoinflipGame) Command() string {
	return "coinflip"
}

// Description returns a brief description of the game.
func (g *CoinflipGame) Description() string {
	return "Call heads or tails: a correct call doubles your bet."
}

// MaxBet returns the maximum allowed bet.
func (g *CoinflipGame) MaxBet() int64 {
	return g.maxBet
}

// ValidateBet checks if the bet amount and parameters are valid.
func (g *CoinflipGame) ValidateBet(bet int64, params map[string]any) error {
	if bet <= 0 {
		return ErrInvalidBet
	}
	if bet > g.maxBet {
		return fmt.Errorf("%w: max bet is %d", ErrBetTooHigh, g.maxBet)
	}
	if _, err := extractCall(params); err != nil {
		return err
	}
	return nil
}

// Play executes the coinflip.
func (g *CoinflipGame) Play(ctx context.Context, userID int64, bet int64, params map[string]any) (*game.Result, error) {
	if err := g.ValidateBet(bet, params); err != nil {
		return nil, err
	}

	call, err := extractCall(params)
	if err != nil {
		return nil, err
	}

	landed := g.flip()

	var payout int64
	var description string
	if call == landed {
		payout = bet
		description = fmt.Sprintf("🪙 The coin lands on %s. You called it! You won %d coins.", landed, bet)
	} else {
		payout = -bet
		description = fmt.Sprintf("🪙 The coin lands on %s. You lost %d coins.", landed, bet)
	}

	return &game.Result{
		Payout:      payout,
		Description: description,
		Details: map[string]any{
			"call":   call,
			"landed": landed,
			"bet":    bet,
		},
	}, nil
}

// extractCall pulls the heads/tails call out of params.
func extractCall(params map[string]any) (string, error) {
	if params == nil {
		return "", ErrMissingCall
	}
	v, ok := params["call"]
	if !ok {
		return "", ErrMissingCall
	}
	call, ok := v.(string)
	if !ok || (call != "heads" && call != "tails") {
		return "", ErrMissingCall
	}
	return call, nil
}
