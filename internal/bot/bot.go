// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"wager-game-bot/internal/config"
	"wager-game-bot/internal/game"
	"wager-game-bot/internal/game/challenge"
	"wager-game-bot/internal/game/deathroll"
	"wager-game-bot/internal/game/rps"
	"wager-game-bot/internal/handler"
	"wager-game-bot/internal/pkg/lock"
	"wager-game-bot/internal/service"
	"wager-game-bot/internal/session"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot      *tele.Bot
	cfg      *config.Config
	registry *session.Registry

	accountHandler *handler.AccountHandler
	adminHandler   *handler.AdminHandler
	gameHandler    *handler.GameHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config          *config.Config
	AccountService  *service.AccountService
	Challenges      *challenge.Coordinator
	DeathrollEngine *deathroll.Engine
	RPSEngine       *rps.Engine
	SessionRegistry *session.Registry
	HouseGames      *game.Registry
	PlayerLock      *lock.PlayerLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:      teleBot,
		cfg:      deps.Config,
		registry: deps.SessionRegistry,
	}

	b.accountHandler = handler.NewAccountHandler(deps.AccountService, deps.PlayerLock)
	b.adminHandler = handler.NewAdminHandler(deps.AccountService, deps.PlayerLock)
	b.gameHandler = handler.NewGameHandler(
		deps.AccountService,
		deps.Challenges,
		deps.DeathrollEngine,
		deps.RPSEngine,
		deps.SessionRegistry,
		deps.HouseGames,
		deps.PlayerLock,
	)

	b.registerMiddleware()
	b.registerHandlers()
	b.registerExpiryNotifier()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	// Account handlers
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/daily", b.accountHandler.HandleDaily)
	b.bot.Handle("/top", b.accountHandler.HandleTop)
	b.bot.Handle("/give", b.accountHandler.HandleGive)
	b.bot.Handle("/history", b.accountHandler.HandleHistory)

	// Admin handlers (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/admin_add", b.adminHandler.HandleAdminAdd)
	adminGroup.Handle("/admin_sub", b.adminHandler.HandleAdminSub)

	// Game handlers
	b.bot.Handle("/deathroll", b.gameHandler.HandleDeathroll)
	b.bot.Handle("/rps", b.gameHandler.HandleRPS)
	b.bot.Handle("/coinflip", b.gameHandler.HandleCoinflip)

	// All inline buttons route through one callback handler
	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes button callbacks by their action prefix.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	// Telebot v3 may add a \f prefix to callback data
	data := strings.TrimPrefix(callback.Data, "\f")
	log.Debug().Str("data", data).Msg("Callback received")

	switch {
	case strings.HasPrefix(data, "ch_"):
		return b.gameHandler.HandleChallengeCallback(c)
	case strings.HasPrefix(data, "dr_"):
		return b.gameHandler.HandleDeathrollCallback(c)
	case strings.HasPrefix(data, "rps_"):
		return b.gameHandler.HandleRPSCallback(c)
	}

	return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown action"})
}

// registerExpiryNotifier redraws a session's chat message when the sweeper
// expires it, so stale buttons stop inviting actions that will fail.
func (b *Bot) registerExpiryNotifier() {
	b.registry.OnExpire(func(s *session.Session) {
		v := s.View()
		if v.MessageID == 0 || v.ChatID == 0 {
			return
		}

		if v.State != session.StateExpired {
			return
		}

		var text string
		if v.ExpiredFrom == session.StateInProgress {
			text = fmt.Sprintf("⌛ The %s match between @%s and @%s timed out. No coins changed hands.",
				v.GameType, v.Participants[0].Name, v.Participants[1].Name)
		} else {
			text = fmt.Sprintf("⌛ @%s didn't respond to the %s challenge from @%s. Challenge expired.",
				v.Participants[1].Name, v.GameType, v.Participants[0].Name)
		}

		msg := tele.StoredMessage{
			MessageID: strconv.Itoa(v.MessageID),
			ChatID:    v.ChatID,
		}
		if _, err := b.bot.Edit(msg, text); err != nil {
			log.Warn().Err(err).
				Str("session_id", v.ID).
				Msg("Failed to update expired session message")
		}
	})
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
