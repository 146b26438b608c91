// Package history stores finished matches in Postgres.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/match"
)

const (
	insertMatchHistory = `
INSERT INTO match_history
    (match_code, player1_id, player2_id, score1, score2, tournament_code, round, match_number, played_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (match_code) DO NOTHING`

	listMatchHistory = `
SELECT match_code, player1_id, player2_id, score1, score2, tournament_code, round, match_number, played_at
FROM match_history
WHERE player1_id = $1 OR player2_id = $1
ORDER BY played_at DESC
LIMIT $2`
)

const DefaultListLimit = 20

// Querier is the subset of *pgxpool.Pool the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Entry is one stored match.
type Entry struct {
	MatchCode      string    `json:"match_code"`
	Player1ID      int       `json:"player1_id"`
	Player2ID      int       `json:"player2_id"`
	Score1         int       `json:"score1"`
	Score2         int       `json:"score2"`
	TournamentCode *string   `json:"tournament_code,omitempty"`
	Round          *int      `json:"round,omitempty"`
	MatchNumber    *int      `json:"match_number,omitempty"`
	PlayedAt       time.Time `json:"played_at"`
}

// Repository implements match.HistoryRecorder.
type Repository struct {
	db  Querier
	now func() time.Time
}

func NewRepository(db Querier) *Repository {
	return &Repository{db: db, now: time.Now}
}

// SaveMatchToHistory inserts rec. Casual matches carry -1 for round and
// match number; those are stored as NULL.
func (r *Repository) SaveMatchToHistory(ctx context.Context, rec match.HistoryRecord) error {
	if rec.MatchCode == "" || rec.Player1ID <= 0 || rec.Player2ID <= 0 {
		return fmt.Errorf("invalid history record for match %q", rec.MatchCode)
	}

	_, err := r.db.Exec(ctx, insertMatchHistory,
		rec.MatchCode,
		rec.Player1ID,
		rec.Player2ID,
		rec.Score1,
		rec.Score2,
		nullString(rec.TournamentCode),
		nullIndex(rec.Round),
		nullIndex(rec.MatchNumber),
		r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert match history: %w", err)
	}

	log.Debug().
		Str("match_code", rec.MatchCode).
		Int("player1_id", rec.Player1ID).
		Int("player2_id", rec.Player2ID).
		Msg("match saved to history")
	return nil
}

// ListByPlayer returns the player's most recent matches, newest first.
func (r *Repository) ListByPlayer(ctx context.Context, playerID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.Query(ctx, listMatchHistory, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list match history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e          Entry
			round, num *int32
		)
		if err := row.Scan(&e.MatchCode, &e.Player1ID, &e.Player2ID, &e.Score1, &e.Score2,
			&e.TournamentCode, &round, &num, &e.PlayedAt); err != nil {
			return Entry{}, err
		}
		e.Round = fromInt32(round)
		e.MatchNumber = fromInt32(num)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan match history: %w", err)
	}
	return entries, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIndex(n int) *int32 {
	if n < 0 {
		return nil
	}
	v := int32(n)
	return &v
}

func fromInt32(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
