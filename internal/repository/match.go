package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"wager-game-bot/internal/model"
)

// MatchRepository persists finished match results.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository creates a new MatchRepository instance.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

// Create inserts a match history record. Session IDs are unique so a
// repeated insert for the same match fails on the constraint.
func (r *MatchRepository) Create(ctx context.Context, rec *model.MatchRecord) error {
	const query = `
		INSERT INTO match_history (session_id, game_type, winner_id, loser_id, wager, rounds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		rec.SessionID, rec.GameType, rec.WinnerID, rec.LoserID, rec.Wager, rec.Rounds,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match record: %w", err)
	}
	return nil
}

// GetByUserID retrieves the most recent matches a user took part in.
func (r *MatchRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*model.MatchRecord, error) {
	const query = `
		SELECT id, session_id, game_type, winner_id, loser_id, wager, rounds, created_at
		FROM match_history
		WHERE winner_id = $1 OR loser_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	defer rows.Close()

	var recs []*model.MatchRecord
	for rows.Next() {
		var rec model.MatchRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.GameType, &rec.WinnerID, &rec.LoserID, &rec.Wager, &rec.Rounds, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match record: %w", err)
		}
		recs = append(recs, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating match records: %w", err)
	}

	return recs, nil
}

// CountWins returns how many recorded matches a user has won.
func (r *MatchRepository) CountWins(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT COUNT(*) FROM match_history WHERE winner_id = $1`

	var count int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count wins: %w", err)
	}
	return count, nil
}
