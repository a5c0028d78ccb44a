// Package model defines the data models for the wager game bot.
package model

import "time"

// User represents a player account in the game system.
type User struct {
	TelegramID     int64     `db:"telegram_id"`
	Username       string    `db:"username"`
	Balance        int64     `db:"balance"`
	LastDailyClaim int64     `db:"last_daily_claim"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Transaction represents a balance change record.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Amount      int64     `db:"amount"`
	Type        string    `db:"type"`
	Description *string   `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

// MatchRecord is the historical record of a completed wagering match.
// Written once by settlement when a session completes.
type MatchRecord struct {
	ID        int64     `db:"id"`
	SessionID string    `db:"session_id"`
	GameType  string    `db:"game_type"`
	WinnerID  int64     `db:"winner_id"`
	LoserID   int64     `db:"loser_id"`
	Wager     int64     `db:"wager"`
	Rounds    int       `db:"rounds"`
	CreatedAt time.Time `db:"created_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeDaily       = "daily"        // Daily reward claim
	TxTypeGive        = "give"         // User-to-user gift
	TxTypeWagerWin    = "wager_win"    // Match settlement, winner side
	TxTypeWagerLoss   = "wager_loss"   // Match settlement, loser side
	TxTypeCoinflip    = "coinflip"     // Coinflip vs the house
	TxTypeAdminAdjust = "admin_adjust" // Admin balance adjustment
)
