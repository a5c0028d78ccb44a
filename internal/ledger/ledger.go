// Package ledger maintains player balances and moves currency between
// players. All wager settlements and gifts go through it so both sides of
// a transfer are applied atomically.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"wager-game-bot/internal/model"
	"wager-game-bot/internal/pkg/lock"
	"wager-game-bot/internal/repository"
)

// Common errors for ledger operations.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Ledger is the balance surface the game engines depend on.
type Ledger interface {
	// GetBalance returns a player's current balance.
	GetBalance(ctx context.Context, playerID int64) (int64, error)

	// ApplyTransfer moves amount from one player to another. Either both
	// sides are applied or neither is. Returns ErrInsufficientFunds when
	// the sender cannot cover the amount. debitType and creditType label
	// the audit rows written for each side.
	ApplyTransfer(ctx context.Context, fromID, toID, amount int64, debitType, creditType string) error
}

// balanceStore is the slice of the user repository the ledger needs.
type balanceStore interface {
	GetByID(ctx context.Context, telegramID int64) (*model.User, error)
	TransferBalance(ctx context.Context, fromID, toID, amount int64) error
}

// auditStore records balance movements after they are applied.
type auditStore interface {
	Create(ctx context.Context, tx *model.Transaction) error
}

// PostgresLedger implements Ledger on top of the user repository's
// transactional transfer, with per-player locks serializing concurrent
// transfers touching the same accounts.
type PostgresLedger struct {
	users balanceStore
	audit auditStore
	locks *lock.PlayerLock
}

// NewPostgresLedger creates a ledger backed by the given stores.
func NewPostgresLedger(users balanceStore, audit auditStore, locks *lock.PlayerLock) *PostgresLedger {
	return &PostgresLedger{
		users: users,
		audit: audit,
		locks: locks,
	}
}

// GetBalance returns the player's current balance.
func (l *PostgresLedger) GetBalance(ctx context.Context, playerID int64) (int64, error) {
	user, err := l.users.GetByID(ctx, playerID)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return user.Balance, nil
}

// ApplyTransfer moves amount from fromID to toID and records a transaction
// row for each side. The transfer itself is atomic; audit rows are written
// after it commits and a failure there is logged but does not undo the
// transfer.
func (l *PostgresLedger) ApplyTransfer(ctx context.Context, fromID, toID, amount int64, debitType, creditType string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return fmt.Errorf("cannot transfer to self")
	}

	l.locks.LockPair(fromID, toID)
	defer l.locks.UnlockPair(fromID, toID)

	if err := l.users.TransferBalance(ctx, fromID, toID, amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("failed to apply transfer: %w", err)
	}

	l.recordAudit(ctx, fromID, -amount, debitType)
	l.recordAudit(ctx, toID, amount, creditType)

	return nil
}

func (l *PostgresLedger) recordAudit(ctx context.Context, userID, amount int64, txType string) {
	tx := &model.Transaction{
		UserID: userID,
		Amount: amount,
		Type:   txType,
	}
	if err := l.audit.Create(ctx, tx); err != nil {
		log.Error().Err(err).
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("type", txType).
			Msg("failed to record ledger transaction")
	}
}
