// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"wager-game-bot/internal/pkg/lock"
	"wager-game-bot/internal/service"
)

// senderName returns a display name for a Telegram user.
func senderName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// AccountHandler handles account-related commands.
type AccountHandler struct {
	accountService *service.AccountService
	playerLock     *lock.PlayerLock
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService, playerLock *lock.PlayerLock) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		playerLock:     playerLock,
	}
}

// HandleStart handles the /start command. Creates a new account with the
// initial balance if the user doesn't exist.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	username := senderName(sender)

	h.playerLock.Lock(sender.ID)
	defer h.playerLock.Unlock(sender.ID)

	user, created, err := h.accountService.EnsureUser(ctx, sender.ID, username)
	if err != nil {
		return c.Reply("❌ Failed to create your account, try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 Welcome @%s!\n\n"+
				"Your account starts with %d coins.\n\n"+
				"Commands:\n"+
				"/balance - check your balance\n"+
				"/daily - claim the daily reward\n"+
				"/top - richest players\n"+
				"/deathroll <wager> - challenge someone (reply to them)\n"+
				"/rps <wager> - rock-paper-scissors duel (reply to them)\n"+
				"/coinflip <bet> heads|tails - flip a coin vs the house\n"+
				"/give <amount> - gift coins (reply to them)",
			username, user.Balance,
		))
	}

	return c.Reply(fmt.Sprintf("👋 Welcome back @%s! Balance: %d coins", username, user.Balance))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	balance, err := h.accountService.GetBalance(ctx, sender.ID)
	if err != nil {
		// User might not exist yet
		user, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender))
		if err != nil {
			return c.Reply("❌ Failed to fetch your balance, try again later")
		}
		balance = user.Balance
	}

	return c.Reply(fmt.Sprintf("💰 Balance: %d coins", balance))
}

// HandleDaily handles the /daily command.
func (h *AccountHandler) HandleDaily(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	h.playerLock.Lock(sender.ID)
	defer h.playerLock.Unlock(sender.ID)

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ Something went wrong, try again later")
	}

	user, err := h.accountService.ClaimDaily(ctx, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrDailyAlreadyClaimed) {
			return c.Reply("⏰ " + err.Error())
		}
		return c.Reply("❌ Failed to claim the daily reward, try again later")
	}

	return c.Reply(fmt.Sprintf("✅ Daily reward claimed! Balance: %d coins", user.Balance))
}

// HandleTop handles the /top command.
func (h *AccountHandler) HandleTop(c tele.Context) error {
	ctx := context.Background()

	users, err := h.accountService.Top(ctx, 10)
	if err != nil {
		return c.Reply("❌ Failed to fetch the leaderboard, try again later")
	}
	if len(users) == 0 {
		return c.Reply("📊 No players yet")
	}

	msg := "🏆 Richest players\n"
	medals := []string{"🥇", "🥈", "🥉"}
	for i, user := range users {
		rank := fmt.Sprintf("%d.", i+1)
		if i < 3 {
			rank = medals[i]
		}

		displayName := user.Username
		if displayName == "" {
			displayName = fmt.Sprintf("Player%d", user.TelegramID)
		}

		msg += fmt.Sprintf("%s @%s: %d\n", rank, displayName, user.Balance)
	}

	return c.Reply(msg)
}

// HandleGive handles the /give command: reply to someone with
// "/give <amount>" to gift them coins.
func (h *AccountHandler) HandleGive(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: reply to the recipient and send /give <amount>")
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || amount <= 0 {
		return c.Reply("❌ Amount must be a positive number")
	}

	reply := c.Message().ReplyTo
	if reply == nil || reply.Sender == nil {
		return c.Reply("❌ Usage: reply to the recipient and send /give <amount>")
	}
	receiver := reply.Sender

	if _, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender)); err != nil {
		return c.Reply("❌ Something went wrong, try again later")
	}
	if _, _, err := h.accountService.EnsureUser(ctx, receiver.ID, senderName(receiver)); err != nil {
		return c.Reply("❌ Recipient is not registered")
	}

	if err := h.accountService.Give(ctx, sender.ID, receiver.ID, amount); err != nil {
		switch {
		case errors.Is(err, service.ErrSelfTransfer):
			return c.Reply("❌ You cannot gift coins to yourself")
		case errors.Is(err, service.ErrInvalidAmount):
			return c.Reply("❌ Amount must be a positive number")
		default:
			return c.Reply("❌ " + err.Error())
		}
	}

	return c.Reply(fmt.Sprintf("🎁 @%s gave %d coins to @%s",
		senderName(sender), amount, senderName(receiver)))
}

// HandleHistory handles the /history command showing recent matches.
func (h *AccountHandler) HandleHistory(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	recs, err := h.accountService.History(ctx, sender.ID, 10)
	if err != nil {
		return c.Reply("❌ Failed to fetch your match history, try again later")
	}
	if len(recs) == 0 {
		return c.Reply("📜 No matches yet")
	}

	msg := "📜 Recent matches\n"
	if wins, err := h.accountService.Wins(ctx, sender.ID); err == nil {
		msg = fmt.Sprintf("📜 Recent matches (🏅 %d wins total)\n", wins)
	}
	for _, rec := range recs {
		outcome := "won"
		if rec.LoserID == sender.ID {
			outcome = "lost"
		}
		msg += fmt.Sprintf("• %s: %s %d coins (%d rounds)\n",
			rec.GameType, outcome, rec.Wager, rec.Rounds)
	}

	return c.Reply(msg)
}
