package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"wager-game-bot/internal/ledger"
	"wager-game-bot/internal/model"
	"wager-game-bot/internal/repository"
)

// Common errors for account operations.
var (
	ErrDailyAlreadyClaimed = errors.New("daily reward already claimed")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrSelfTransfer        = errors.New("cannot transfer to self")
	ErrUserNotFound        = errors.New("user not found")
)

// AccountService handles player account operations: registration, balance
// queries, the daily reward, gifts, and admin adjustments.
type AccountService struct {
	userRepo  *repository.UserRepository
	txRepo    *repository.TransactionRepository
	matchRepo *repository.MatchRepository
	ledger    ledger.Ledger

	dailyReward int64
	cooldownHrs int
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
	matchRepo *repository.MatchRepository,
	l ledger.Ledger,
	dailyReward int64,
	cooldownHours int,
) *AccountService {
	return &AccountService{
		userRepo:    userRepo,
		txRepo:      txRepo,
		matchRepo:   matchRepo,
		ledger:      l,
		dailyReward: dailyReward,
		cooldownHrs: cooldownHours,
	}
}

// EnsureUser ensures a user exists, creating one if necessary.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, telegramID, username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	// Pick up username changes on sight
	if !created && user.Username != username && username != "" {
		if err := s.userRepo.UpdateUsername(ctx, telegramID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to update username")
		}
		user.Username = username
	}

	return user, created, nil
}

// GetBalance retrieves a user's current balance.
func (s *AccountService) GetBalance(ctx context.Context, telegramID int64) (int64, error) {
	return s.ledger.GetBalance(ctx, telegramID)
}

// GetUser retrieves a user by their Telegram ID.
func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, telegramID)
}

// Top retrieves the top users by balance for the leaderboard.
func (s *AccountService) Top(ctx context.Context, limit int) ([]*model.User, error) {
	return s.userRepo.GetTopUsers(ctx, limit)
}

// ClaimDaily attempts to claim the daily reward. On cooldown it returns
// ErrDailyAlreadyClaimed with the remaining wait baked into the message.
func (s *AccountService) ClaimDaily(ctx context.Context, telegramID int64) (*model.User, error) {
	canClaim, remaining, err := s.userRepo.CanClaimDaily(ctx, telegramID, s.cooldownHrs)
	if err != nil {
		return nil, fmt.Errorf("failed to check daily claim eligibility: %w", err)
	}

	if !canClaim {
		hours := int(remaining.Hours())
		minutes := int(remaining.Minutes()) % 60
		return nil, fmt.Errorf("%w: try again in %dh%dm", ErrDailyAlreadyClaimed, hours, minutes)
	}

	user, err := s.userRepo.UpdateBalance(ctx, telegramID, s.dailyReward)
	if err != nil {
		return nil, fmt.Errorf("failed to grant daily reward: %w", err)
	}

	now := user.UpdatedAt.Unix()
	if _, err := s.userRepo.UpdateDailyClaim(ctx, telegramID, now); err != nil {
		return nil, fmt.Errorf("failed to record daily claim: %w", err)
	}

	desc := "daily reward"
	tx := &model.Transaction{UserID: telegramID, Amount: s.dailyReward, Type: model.TxTypeDaily, Description: &desc}
	if err := s.txRepo.Create(ctx, tx); err != nil {
		log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to record daily transaction")
	}

	return user, nil
}

// Give transfers coins from one user to another as a gift. Runs through
// the ledger so both sides move atomically.
func (s *AccountService) Give(ctx context.Context, fromID, toID, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if fromID == toID {
		return ErrSelfTransfer
	}

	exists, err := s.userRepo.Exists(ctx, toID)
	if err != nil {
		return fmt.Errorf("failed to check receiver: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}

	if err := s.ledger.ApplyTransfer(ctx, fromID, toID, amount, model.TxTypeGive, model.TxTypeGive); err != nil {
		return err
	}
	return nil
}

// AdminAdjust adds amount (may be negative) to a user's balance and
// records an admin adjustment transaction.
func (s *AccountService) AdminAdjust(ctx context.Context, telegramID, amount int64, reason string) (*model.User, error) {
	user, err := s.userRepo.UpdateBalance(ctx, telegramID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}

	tx := &model.Transaction{UserID: telegramID, Amount: amount, Type: model.TxTypeAdminAdjust, Description: &reason}
	if err := s.txRepo.Create(ctx, tx); err != nil {
		log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to record admin adjustment")
	}

	return user, nil
}

// ApplyGameResult credits or debits a house game payout and records the
// transaction. The caller holds the player's lock and has verified the
// balance covers the bet.
func (s *AccountService) ApplyGameResult(ctx context.Context, telegramID, payout int64, txType string, description string) (*model.User, error) {
	user, err := s.userRepo.UpdateBalance(ctx, telegramID, payout)
	if err != nil {
		return nil, fmt.Errorf("failed to apply game result: %w", err)
	}

	tx := &model.Transaction{UserID: telegramID, Amount: payout, Type: txType, Description: &description}
	if err := s.txRepo.Create(ctx, tx); err != nil {
		log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to record game transaction")
	}

	return user, nil
}

// History retrieves a user's recent matches.
func (s *AccountService) History(ctx context.Context, telegramID int64, limit int) ([]*model.MatchRecord, error) {
	return s.matchRepo.GetByUserID(ctx, telegramID, limit)
}

// Wins returns how many recorded matches a user has won.
func (s *AccountService) Wins(ctx context.Context, telegramID int64) (int64, error) {
	return s.matchRepo.CountWins(ctx, telegramID)
}
