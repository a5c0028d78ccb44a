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

// AdminHandler handles admin balance adjustment commands. The admin
// middleware has already verified the sender before these run.
type AdminHandler struct {
	accountService *service.AccountService
	playerLock     *lock.PlayerLock
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accountService *service.AccountService, playerLock *lock.PlayerLock) *AdminHandler {
	return &AdminHandler{
		accountService: accountService,
		playerLock:     playerLock,
	}
}

// HandleAdminAdd handles /admin_add: reply to a user with
// "/admin_add <amount>" to credit their account.
func (h *AdminHandler) HandleAdminAdd(c tele.Context) error {
	return h.adjust(c, 1)
}

// HandleAdminSub handles /admin_sub: reply to a user with
// "/admin_sub <amount>" to debit their account.
func (h *AdminHandler) HandleAdminSub(c tele.Context) error {
	return h.adjust(c, -1)
}

func (h *AdminHandler) adjust(c tele.Context, sign int64) error {
	ctx := context.Background()

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: reply to the target user with the amount")
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || amount <= 0 {
		return c.Reply("❌ Amount must be a positive number")
	}

	reply := c.Message().ReplyTo
	if reply == nil || reply.Sender == nil {
		return c.Reply("❌ Usage: reply to the target user with the amount")
	}
	target := reply.Sender

	h.playerLock.Lock(target.ID)
	defer h.playerLock.Unlock(target.ID)

	reason := fmt.Sprintf("admin adjustment by %d", c.Sender().ID)
	user, err := h.accountService.AdminAdjust(ctx, target.ID, sign*amount, reason)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return c.Reply("❌ Target user is not registered")
		}
		return c.Reply("❌ Adjustment failed, try again later")
	}

	return c.Reply(fmt.Sprintf("✅ @%s now has %d coins", senderName(target), user.Balance))
}
