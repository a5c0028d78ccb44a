// Package service provides business logic implementations.
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"wager-game-bot/internal/ledger"
	"wager-game-bot/internal/model"
	"wager-game-bot/internal/session"
)

// MatchRecorder writes completed matches to history.
type MatchRecorder interface {
	Create(ctx context.Context, rec *model.MatchRecord) error
}

// SettlementService applies exactly one wager transfer per completed
// session and records the match in history.
type SettlementService struct {
	ledger  ledger.Ledger
	matches MatchRecorder
}

// NewSettlementService creates a new SettlementService instance.
func NewSettlementService(l ledger.Ledger, matches MatchRecorder) *SettlementService {
	return &SettlementService{
		ledger:  l,
		matches: matches,
	}
}

// Settle moves the wager from the loser to the winner of a completed
// session. Calling it more than once for the same session is a no-op: the
// session's settlement mark is claimed exactly once. A failed transfer
// here means an invariant was broken upstream (balances were checked at
// propose and accept), so it is logged loudly and returned.
func (s *SettlementService) Settle(ctx context.Context, sess *session.Session) error {
	v := sess.View()
	if v.State != session.StateCompleted || v.Outcome == nil {
		return fmt.Errorf("cannot settle session %s in state %s", v.ID, v.State)
	}

	if !sess.MarkSettled() {
		log.Debug().
			Str("session_id", v.ID).
			Msg("Session already settled, skipping")
		return nil
	}

	out := v.Outcome
	err := s.ledger.ApplyTransfer(ctx, out.LoserID, out.WinnerID, out.Amount,
		model.TxTypeWagerLoss, model.TxTypeWagerWin)
	if err != nil {
		log.Error().Err(err).
			Str("session_id", v.ID).
			Int64("winner_id", out.WinnerID).
			Int64("loser_id", out.LoserID).
			Int64("amount", out.Amount).
			Msg("Wager settlement transfer failed")
		return fmt.Errorf("failed to settle session %s: %w", v.ID, err)
	}

	rec := &model.MatchRecord{
		SessionID: v.ID,
		GameType:  v.GameType,
		WinnerID:  out.WinnerID,
		LoserID:   out.LoserID,
		Wager:     out.Amount,
		Rounds:    v.Round,
	}
	if err := s.matches.Create(ctx, rec); err != nil {
		// History is best-effort; the transfer already committed
		log.Warn().Err(err).
			Str("session_id", v.ID).
			Msg("Failed to record match history")
	}

	log.Info().
		Str("session_id", v.ID).
		Str("game_type", v.GameType).
		Int64("winner_id", out.WinnerID).
		Int64("loser_id", out.LoserID).
		Int64("amount", out.Amount).
		Msg("Session settled")

	return nil
}
