// Package main is the entry point for the wager game bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wager-game-bot/internal/bot"
	"wager-game-bot/internal/config"
	"wager-game-bot/internal/game"
	"wager-game-bot/internal/game/challenge"
	"wager-game-bot/internal/game/coinflip"
	"wager-game-bot/internal/game/deathroll"
	"wager-game-bot/internal/game/rps"
	"wager-game-bot/internal/ledger"
	"wager-game-bot/internal/pkg/db"
	"wager-game-bot/internal/pkg/lock"
	"wager-game-bot/internal/repository"
	"wager-game-bot/internal/service"
	"wager-game-bot/internal/session"
)

// sweepInterval is how often the session registry checks for expired
// challenges and stalled turns.
const sweepInterval = 5 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	matchRepo := repository.NewMatchRepository(dbPool.Pool)

	// Per-player locks serialize concurrent balance operations
	playerLock := lock.NewPlayerLock()

	// The ledger is the single path for moving coins between players
	coinLedger := ledger.NewPostgresLedger(userRepo, txRepo, playerLock)

	// Services
	accountService := service.NewAccountService(
		userRepo,
		txRepo,
		matchRepo,
		coinLedger,
		cfg.Daily.Reward,
		cfg.Daily.CooldownHours,
	)
	settlementService := service.NewSettlementService(coinLedger, matchRepo)

	// Session registry with background expiry sweeper
	registry := session.NewRegistry()
	registry.Start(ctx, sweepInterval)

	// Challenge handshake and the two turn engines
	challenges := challenge.NewCoordinator(registry, coinLedger, challenge.Config{
		MinWager: cfg.Games.Challenge.MinWager,
		Timeout:  time.Duration(cfg.Games.Challenge.TimeoutSeconds) * time.Second,
	})
	deathrollEngine := deathroll.NewEngine(registry, settlementService, deathroll.Config{
		StartingRoll: cfg.Games.Deathroll.StartingRoll,
		TurnTimeout:  time.Duration(cfg.Games.Deathroll.TurnTimeoutSeconds) * time.Second,
	})
	rpsEngine := rps.NewEngine(registry, settlementService, rps.Config{
		WinsToTakeMatch: cfg.Games.RPS.WinsToTakeMatch,
		TurnTimeout:     time.Duration(cfg.Games.RPS.TurnTimeoutSeconds) * time.Second,
	})

	// House games
	houseGames := game.NewRegistry()
	coinflipGame := coinflip.New(&coinflip.Config{
		MaxBet: cfg.Games.Coinflip.MaxBet,
	})
	if err := houseGames.Register(coinflipGame); err != nil {
		log.Fatal().Err(err).Msg("Failed to register coinflip game")
	}

	log.Info().
		Int("house_game_count", houseGames.Count()).
		Msg("Games registered")

	deps := &bot.Dependencies{
		Config:          cfg,
		AccountService:  accountService,
		Challenges:      challenges,
		DeathrollEngine: deathrollEngine,
		RPSEngine:       rpsEngine,
		SessionRegistry: registry,
		HouseGames:      houseGames,
		PlayerLock:      playerLock,
	}

	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance BIGINT NOT NULL DEFAULT 1000,
			last_daily_claim BIGINT DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_transactions_type_time ON transactions(type, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: match history table
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
		);
		CREATE INDEX IF NOT EXISTS idx_match_history_winner ON match_history(winner_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_match_history_loser ON match_history(loser_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: match_history table created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
