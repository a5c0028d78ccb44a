// Package game defines the interface and registry for single-player house
// games. Two-player wagering matches (deathroll, rock-paper-scissors) run
// through the challenge coordinator and their own engines instead; this
// surface covers instant games played against the house.
package game

import "context"

// Result represents the outcome of a house game play.
type Result struct {
	Payout      int64          // Net payout (positive = win, negative = loss, 0 = push)
	Description string         // Human-readable result description
	Details     map[string]any // Additional game-specific details
}

// Game is the interface every house game implements. New games are added
// by implementing it and registering with the Registry.
type Game interface {
	// Name returns the game's display name (e.g., "Coinflip").
	Name() string

	// Command returns the command that triggers this game (e.g., "coinflip").
	Command() string

	// Description returns a brief description of the game.
	Description() string

	// Play executes the game logic for a single bet and returns the result.
	Play(ctx context.Context, userID int64, bet int64, params map[string]any) (*Result, error)

	// ValidateBet checks if the bet amount and parameters are valid.
	ValidateBet(bet int64, params map[string]any) error

	// MaxBet returns the maximum allowed bet, 0 for no maximum.
	MaxBet() int64
}
