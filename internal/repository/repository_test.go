// Package repository provides data access layer implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"wager-game-bot/internal/model"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	err = runMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

// runMigrations applies the database schema
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 1000,
			last_daily_claim BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_history (
			id BIGSERIAL PRIMARY KEY,
			session_id VARCHAR(36) NOT NULL UNIQUE,
			game_type VARCHAR(50) NOT NULL,
			winner_id BIGINT NOT NULL,
			loser_id BIGINT NOT NULL,
			wager BIGINT NOT NULL,
			rounds INT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// ============================================================================
// UserRepository Tests
// ============================================================================

func TestUserRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, err := repo.Create(ctx, 12345, "testuser")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.TelegramID)
	assert.Equal(t, "testuser", user.Username)
	assert.Equal(t, int64(1000), user.Balance) // Initial balance should be 1000
	assert.Equal(t, int64(0), user.LastDailyClaim)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestUserRepository_GetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "testuser")
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), user.TelegramID)
	assert.Equal(t, "testuser", user.Username)

	_, err = repo.GetByID(ctx, 99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	user, created, err := repo.GetOrCreate(ctx, 12345, "testuser")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(12345), user.TelegramID)

	user, created, err = repo.GetOrCreate(ctx, 12345, "testuser")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(12345), user.TelegramID)
}

func TestUserRepository_UpdateBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "testuser")
	require.NoError(t, err)

	user, err := repo.UpdateBalance(ctx, 12345, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), user.Balance)

	user, err = repo.UpdateBalance(ctx, 12345, -300)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), user.Balance)

	_, err = repo.UpdateBalance(ctx, 99999, 100)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_TransferBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 1, "alice")
	require.NoError(t, err)
	_, err = repo.Create(ctx, 2, "bob")
	require.NoError(t, err)

	// Successful transfer moves the exact amount
	err = repo.TransferBalance(ctx, 1, 2, 400)
	require.NoError(t, err)

	alice, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(600), alice.Balance)

	bob, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1400), bob.Balance)
}

func TestUserRepository_TransferBalance_Insufficient(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 1, "alice")
	require.NoError(t, err)
	_, err = repo.Create(ctx, 2, "bob")
	require.NoError(t, err)

	err = repo.TransferBalance(ctx, 1, 2, 5000)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Neither balance changed
	alice, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), alice.Balance)

	bob, err := repo.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bob.Balance)
}

func TestUserRepository_TransferBalance_UnknownUsers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 1, "alice")
	require.NoError(t, err)

	// Missing sender
	err = repo.TransferBalance(ctx, 99999, 1, 100)
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Missing receiver rolls back the debit
	err = repo.TransferBalance(ctx, 1, 99999, 100)
	assert.ErrorIs(t, err, ErrUserNotFound)

	alice, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), alice.Balance)
}

func TestUserRepository_SetBalance(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "testuser")
	require.NoError(t, err)

	user, err := repo.SetBalance(ctx, 12345, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), user.Balance)

	_, err = repo.SetBalance(ctx, 99999, 100)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_GetTopUsers(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, _ = repo.Create(ctx, 1, "user1")
	_, _ = repo.Create(ctx, 2, "user2")
	_, _ = repo.Create(ctx, 3, "user3")

	_, _ = repo.SetBalance(ctx, 1, 3000)
	_, _ = repo.SetBalance(ctx, 2, 1000)
	_, _ = repo.SetBalance(ctx, 3, 5000)

	users, err := repo.GetTopUsers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, users, 3)

	// Descending by balance
	assert.Equal(t, int64(3), users[0].TelegramID)
	assert.Equal(t, int64(1), users[1].TelegramID)
	assert.Equal(t, int64(2), users[2].TelegramID)
}

func TestUserRepository_DailyClaim(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "testuser")
	require.NoError(t, err)

	canClaim, remaining, err := repo.CanClaimDaily(ctx, 12345, 24)
	require.NoError(t, err)
	assert.True(t, canClaim)
	assert.Equal(t, time.Duration(0), remaining)

	now := time.Now().Unix()
	_, err = repo.UpdateDailyClaim(ctx, 12345, now)
	require.NoError(t, err)

	canClaim, remaining, err = repo.CanClaimDaily(ctx, 12345, 24)
	require.NoError(t, err)
	assert.False(t, canClaim)
	assert.True(t, remaining > 0)

	oldTime := time.Now().Add(-25 * time.Hour).Unix()
	_, err = repo.UpdateDailyClaim(ctx, 12345, oldTime)
	require.NoError(t, err)

	canClaim, _, err = repo.CanClaimDaily(ctx, 12345, 24)
	require.NoError(t, err)
	assert.True(t, canClaim)
}

func TestUserRepository_UpdateUsername(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewUserRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, 12345, "oldname")
	require.NoError(t, err)

	err = repo.UpdateUsername(ctx, 12345, "newname")
	require.NoError(t, err)

	user, err := repo.GetByID(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, "newname", user.Username)

	err = repo.UpdateUsername(ctx, 99999, "name")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 12345, "testuser")
	require.NoError(t, err)

	desc := "won deathroll vs bob"
	tx := &model.Transaction{
		UserID:      12345,
		Amount:      500,
		Type:        model.TxTypeWagerWin,
		Description: &desc,
	}
	err = txRepo.Create(ctx, tx)
	require.NoError(t, err)
	assert.NotZero(t, tx.ID)
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestTransactionRepository_GetByUserID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	userRepo := NewUserRepository(pool)
	txRepo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := userRepo.Create(ctx, 12345, "testuser")
	require.NoError(t, err)

	_ = txRepo.Create(ctx, &model.Transaction{UserID: 12345, Amount: 100, Type: model.TxTypeWagerWin})
	_ = txRepo.Create(ctx, &model.Transaction{UserID: 12345, Amount: -50, Type: model.TxTypeWagerLoss})
	_ = txRepo.Create(ctx, &model.Transaction{UserID: 12345, Amount: 200, Type: model.TxTypeCoinflip})

	txs, err := txRepo.GetByUserID(ctx, 12345, 10)
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	// Newest first
	assert.Equal(t, int64(200), txs[0].Amount)
}

// ============================================================================
// MatchRepository Tests
// ============================================================================

func TestMatchRepository_Create(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	rec := &model.MatchRecord{
		SessionID: uuid.NewString(),
		GameType:  "deathroll",
		WinnerID:  1,
		LoserID:   2,
		Wager:     500,
		Rounds:    7,
	}
	err := repo.Create(ctx, rec)
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	// A second insert for the same session violates the unique constraint
	err = repo.Create(ctx, &model.MatchRecord{
		SessionID: rec.SessionID,
		GameType:  "deathroll",
		WinnerID:  1,
		LoserID:   2,
		Wager:     500,
		Rounds:    7,
	})
	assert.Error(t, err)
}

func TestMatchRepository_GetByUserID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	_ = repo.Create(ctx, &model.MatchRecord{SessionID: uuid.NewString(), GameType: "deathroll", WinnerID: 1, LoserID: 2, Wager: 100, Rounds: 3})
	_ = repo.Create(ctx, &model.MatchRecord{SessionID: uuid.NewString(), GameType: "rps", WinnerID: 2, LoserID: 1, Wager: 200, Rounds: 5})
	_ = repo.Create(ctx, &model.MatchRecord{SessionID: uuid.NewString(), GameType: "rps", WinnerID: 3, LoserID: 4, Wager: 300, Rounds: 4})

	recs, err := repo.GetByUserID(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2) // Both matches user 1 played, win or lose

	recs, err = repo.GetByUserID(ctx, 4, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestMatchRepository_CountWins(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMatchRepository(pool)
	ctx := context.Background()

	_ = repo.Create(ctx, &model.MatchRecord{SessionID: uuid.NewString(), GameType: "deathroll", WinnerID: 1, LoserID: 2, Wager: 100, Rounds: 3})
	_ = repo.Create(ctx, &model.MatchRecord{SessionID: uuid.NewString(), GameType: "rps", WinnerID: 1, LoserID: 3, Wager: 200, Rounds: 5})
	_ = repo.Create(ctx, &model.MatchRecord{SessionID: uuid.NewString(), GameType: "rps", WinnerID: 2, LoserID: 1, Wager: 300, Rounds: 4})

	wins, err := repo.CountWins(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), wins)

	wins, err = repo.CountWins(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(0), wins)
}
