package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"wager-game-bot/internal/game"
	"wager-game-bot/internal/game/challenge"
	"wager-game-bot/internal/game/deathroll"
	"wager-game-bot/internal/game/rps"
	"wager-game-bot/internal/ledger"
	"wager-game-bot/internal/model"
	"wager-game-bot/internal/pkg/lock"
	"wager-game-bot/internal/service"
	"wager-game-bot/internal/session"
)

// GameHandler handles wagering match commands and their button callbacks.
type GameHandler struct {
	accountService *service.AccountService
	challenges     *challenge.Coordinator
	deathroll      *deathroll.Engine
	rps            *rps.Engine
	registry       *session.Registry
	houseGames     *game.Registry
	playerLock     *lock.PlayerLock
}

// NewGameHandler creates a new GameHandler.
func NewGameHandler(
	accountService *service.AccountService,
	challenges *challenge.Coordinator,
	deathrollEngine *deathroll.Engine,
	rpsEngine *rps.Engine,
	registry *session.Registry,
	houseGames *game.Registry,
	playerLock *lock.PlayerLock,
) *GameHandler {
	return &GameHandler{
		accountService: accountService,
		challenges:     challenges,
		deathroll:      deathrollEngine,
		rps:            rpsEngine,
		registry:       registry,
		houseGames:     houseGames,
		playerLock:     playerLock,
	}
}

// gameTitle maps game types to display names.
func gameTitle(gameType string) string {
	switch gameType {
	case session.GameTypeDeathroll:
		return "Deathroll"
	case session.GameTypeRPS:
		return "Rock-Paper-Scissors"
	default:
		return gameType
	}
}

// HandleDeathroll handles /deathroll <wager>: reply to the player you want
// to challenge.
func (h *GameHandler) HandleDeathroll(c tele.Context) error {
	return h.propose(c, session.GameTypeDeathroll)
}

// HandleRPS handles /rps <wager>: reply to the player you want to challenge.
func (h *GameHandler) HandleRPS(c tele.Context) error {
	return h.propose(c, session.GameTypeRPS)
}

func (h *GameHandler) propose(c tele.Context, gameType string) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply(fmt.Sprintf("❌ Usage: reply to your opponent and send /%s <wager>", gameType))
	}
	wager, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Wager must be a number")
	}

	reply := c.Message().ReplyTo
	if reply == nil || reply.Sender == nil {
		return c.Reply(fmt.Sprintf("❌ Usage: reply to your opponent and send /%s <wager>", gameType))
	}
	target := reply.Sender
	if target.IsBot {
		return c.Reply("❌ Bots don't gamble")
	}

	initiator := session.Player{ID: sender.ID, Name: senderName(sender)}
	opponent := session.Player{ID: target.ID, Name: senderName(target)}

	// Both players need accounts before balances can be checked
	if _, _, err := h.accountService.EnsureUser(ctx, initiator.ID, initiator.Name); err != nil {
		return c.Reply("❌ Something went wrong, try again later")
	}
	if _, _, err := h.accountService.EnsureUser(ctx, opponent.ID, opponent.Name); err != nil {
		return c.Reply("❌ Your opponent is not registered")
	}

	sess, err := h.challenges.Propose(ctx, gameType, initiator, opponent, wager, chat.ID)
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	markup := &tele.ReplyMarkup{}
	btnAccept := markup.Data("✅ Accept", "ch_accept", sess.ID)
	btnDecline := markup.Data("❌ Decline", "ch_decline", sess.ID)
	markup.Inline(markup.Row(btnAccept, btnDecline))

	msg := fmt.Sprintf("⚔️ @%s challenges @%s to %s!\n\n💰 Wager: %d coins\n\nOnly @%s can accept or decline.",
		initiator.Name, opponent.Name, gameTitle(gameType), wager, opponent.Name)

	sent, err := c.Bot().Send(chat, msg, markup)
	if err != nil {
		return c.Reply("❌ Failed to send the challenge")
	}
	sess.SetMessageID(sent.ID)

	return nil
}

// HandleChallengeCallback handles the accept/decline buttons on a pending
// challenge.
func (h *GameHandler) HandleChallengeCallback(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	callback := c.Callback()
	if sender == nil || callback == nil {
		return nil
	}

	action, sessionID, ok := splitCallback(callback.Data)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}

	switch action {
	case "ch_accept":
		sess, err := h.challenges.Accept(ctx, sessionID, sender.ID)
		if err != nil {
			return respondGameError(c, err)
		}
		return h.startMatch(c, sess)

	case "ch_decline":
		sess, err := h.challenges.Decline(ctx, sessionID, sender.ID)
		if err != nil {
			return respondGameError(c, err)
		}
		_ = c.Edit(fmt.Sprintf("❌ @%s declined the %s challenge from @%s.",
			sess.Target().Name, gameTitle(sess.GameType), sess.Initiator().Name))
		return c.Respond(&tele.CallbackResponse{Text: "Challenge declined"})
	}

	return nil
}

// startMatch hands an accepted session to its turn engine and redraws the
// challenge message as the live game view.
func (h *GameHandler) startMatch(c tele.Context, sess *session.Session) error {
	switch sess.GameType {
	case session.GameTypeDeathroll:
		if err := h.deathroll.Start(sess); err != nil {
			return respondGameError(c, err)
		}
		_ = c.Edit(h.deathrollView(sess), h.deathrollMarkup(sess.ID))

	case session.GameTypeRPS:
		if err := h.rps.Start(sess); err != nil {
			return respondGameError(c, err)
		}
		_ = c.Edit(h.rpsView(sess, nil), h.rpsMarkup(sess.ID))

	default:
		log.Error().Str("game_type", sess.GameType).Msg("No engine for game type")
		return c.Respond(&tele.CallbackResponse{Text: "❌ Unknown game"})
	}

	return c.Respond(&tele.CallbackResponse{Text: "⚔️ Game on!"})
}

// HandleDeathrollCallback handles the roll button.
func (h *GameHandler) HandleDeathrollCallback(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	callback := c.Callback()
	if sender == nil || callback == nil {
		return nil
	}

	action, sessionID, ok := splitCallback(callback.Data)
	if !ok || action != "dr_roll" {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}

	sess, found := h.registry.Get(sessionID)
	if !found {
		return respondGameError(c, session.ErrSessionTerminated)
	}

	res, err := h.deathroll.Roll(ctx, sessionID, sender.ID)
	if err != nil {
		return respondGameError(c, err)
	}

	if res.Finished {
		v := sess.View()
		_ = c.Edit(fmt.Sprintf("💀 @%s rolled a 1!\n\n🏆 @%s wins %d coins from @%s.",
			playerName(v, res.LoserID), playerName(v, res.WinnerID), v.Wager, playerName(v, res.LoserID)))
		return c.Respond(&tele.CallbackResponse{Text: "You rolled a 1. Ouch."})
	}

	_ = c.Edit(h.deathrollView(sess), h.deathrollMarkup(sessionID))
	return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("🎲 You rolled %d", res.Roll)})
}

// HandleRPSCallback handles the rock/paper/scissors pick buttons.
func (h *GameHandler) HandleRPSCallback(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	callback := c.Callback()
	if sender == nil || callback == nil {
		return nil
	}

	action, sessionID, ok := splitCallback(callback.Data)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}

	sym, err := rps.ParseSymbol(strings.TrimPrefix(action, "rps_"))
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "❌ Invalid action"})
	}

	sess, found := h.registry.Get(sessionID)
	if !found {
		return respondGameError(c, session.ErrSessionTerminated)
	}

	res, err := h.rps.Choose(ctx, sessionID, sender.ID, sym)
	if err != nil {
		return respondGameError(c, err)
	}

	if res.Finished {
		v := sess.View()
		_ = c.Edit(fmt.Sprintf("🏆 @%s takes the match %d coins from @%s!\n\nFinal score after %d rounds: %s",
			playerName(v, res.WinnerID), v.Wager, playerName(v, res.LoserID), res.Round, formatScore(v, res.Wins)))
		return c.Respond(&tele.CallbackResponse{Text: "Match over!"})
	}

	if res.Resolved {
		_ = c.Edit(h.rpsView(sess, res), h.rpsMarkup(sessionID))
	}
	return c.Respond(&tele.CallbackResponse{Text: fmt.Sprintf("You picked %s", sym)})
}

// HandleCoinflip handles /coinflip <bet> heads|tails against the house.
func (h *GameHandler) HandleCoinflip(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("❌ Usage: /coinflip <bet> heads|tails")
	}
	bet, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Bet must be a number")
	}
	params := map[string]any{"call": strings.ToLower(args[1])}

	g, ok := h.houseGames.Get("coinflip")
	if !ok {
		return c.Reply("❌ Coinflip is not available")
	}
	if err := g.ValidateBet(bet, params); err != nil {
		return c.Reply("❌ " + err.Error())
	}

	h.playerLock.Lock(sender.ID)
	defer h.playerLock.Unlock(sender.ID)

	user, _, err := h.accountService.EnsureUser(ctx, sender.ID, senderName(sender))
	if err != nil {
		return c.Reply("❌ Something went wrong, try again later")
	}
	if user.Balance < bet {
		return c.Reply(fmt.Sprintf("❌ Insufficient funds: you have %d coins", user.Balance))
	}

	result, err := g.Play(ctx, sender.ID, bet, params)
	if err != nil {
		return c.Reply("❌ " + err.Error())
	}

	updated, err := h.accountService.ApplyGameResult(ctx, sender.ID, result.Payout, model.TxTypeCoinflip, result.Description)
	if err != nil {
		log.Error().Err(err).Int64("user_id", sender.ID).Msg("Failed to apply coinflip result")
		return c.Reply("❌ Something went wrong, try again later")
	}

	return c.Reply(fmt.Sprintf("%s\n\n💰 Balance: %d coins", result.Description, updated.Balance))
}

// deathrollView renders the live deathroll state.
func (h *GameHandler) deathrollView(sess *session.Session) string {
	v := sess.View()
	ceiling, _ := h.deathroll.Ceiling(v.ID)
	return fmt.Sprintf("💀 Deathroll: @%s vs @%s\n💰 Wager: %d coins\n\n"+
		"Round %d, ceiling %d.\n🎲 @%s, it's your roll. Rolling a 1 loses!",
		v.Participants[0].Name, v.Participants[1].Name, v.Wager,
		v.Round, ceiling, playerName(v, v.CurrentTurn))
}

func (h *GameHandler) deathrollMarkup(sessionID string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(markup.Data("🎲 Roll", "dr_roll", sessionID)))
	return markup
}

// rpsView renders the live rps state, optionally with the last round's
// outcome.
func (h *GameHandler) rpsView(sess *session.Session, last *rps.ChoiceResult) string {
	v := sess.View()
	wins, _ := h.rps.Score(v.ID)

	msg := fmt.Sprintf("✊✋✌️ Rock-Paper-Scissors: @%s vs @%s\n💰 Wager: %d coins\n",
		v.Participants[0].Name, v.Participants[1].Name, v.Wager)

	if last != nil && last.Resolved {
		if last.Draw {
			msg += fmt.Sprintf("\nRound %d was a draw (%d this match), play it again!\n", last.Round, last.Draws)
		} else {
			msg += fmt.Sprintf("\nRound %d goes to @%s!\n", last.Round, playerName(v, last.RoundWinnerID))
		}
	}

	msg += fmt.Sprintf("\nScore: %s\nRound %d: both players, make your pick.",
		formatScore(v, wins), v.Round)
	return msg
}

func (h *GameHandler) rpsMarkup(sessionID string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("✊ Rock", "rps_rock", sessionID),
		markup.Data("✋ Paper", "rps_paper", sessionID),
		markup.Data("✌️ Scissors", "rps_scissors", sessionID),
	))
	return markup
}

// splitCallback parses telebot callback data of the form "action|payload".
func splitCallback(data string) (action, payload string, ok bool) {
	data = strings.TrimPrefix(data, "\f")
	parts := strings.SplitN(data, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// playerName resolves a participant's display name from a session view.
func playerName(v session.View, playerID int64) string {
	for _, p := range v.Participants {
		if p.ID == playerID {
			return p.Name
		}
	}
	return strconv.FormatInt(playerID, 10)
}

// formatScore renders "alice 2 : 1 bob".
func formatScore(v session.View, wins map[int64]int) string {
	a, b := v.Participants[0], v.Participants[1]
	return fmt.Sprintf("@%s %d : %d @%s", a.Name, wins[a.ID], wins[b.ID], b.Name)
}

// respondGameError maps engine errors to callback alerts.
func respondGameError(c tele.Context, err error) error {
	var text string
	switch {
	case errors.Is(err, session.ErrSessionTerminated):
		text = "❌ This match is already over"
	case errors.Is(err, session.ErrNotAParticipant):
		text = "❌ You are not part of this match"
	case errors.Is(err, deathroll.ErrNotYourTurn):
		text = "❌ It's not your turn"
	case errors.Is(err, rps.ErrAlreadyChosen):
		text = "❌ You already picked for this round"
	case errors.Is(err, challenge.ErrUnauthorizedActor):
		text = "❌ Only the challenged player can respond"
	case errors.Is(err, challenge.ErrInsufficientFunds), errors.Is(err, ledger.ErrInsufficientFunds):
		text = "❌ Insufficient funds to cover the wager"
	default:
		text = "❌ " + err.Error()
	}
	return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
}
