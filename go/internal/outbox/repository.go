package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/pongarena/go/internal/sqlutil"
)

// ErrEventNotFound is returned when an outbox row is missing or already sent.
var ErrEventNotFound = errors.New("outbox event not found or already sent")

const (
	insertOutboxEvent = `
INSERT INTO pong_outbox (id, aggregate_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`

	fetchOutboxByID = `
SELECT id, aggregate_id, event_type, payload, created_at, sent_at
FROM pong_outbox
WHERE id = $1 AND sent_at IS NULL`

	fetchUnsentOutbox = `
SELECT id, aggregate_id, event_type, payload, created_at, sent_at
FROM pong_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1`

	markOutboxSent = `
UPDATE pong_outbox SET sent_at = $2 WHERE id = $1`

	countUnsentOutbox = `
SELECT count(*) FROM pong_outbox WHERE sent_at IS NULL`
)

// Repository stores outbox rows through database/sql.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertOutboxEvent(ctx context.Context, event OutboxEvent) error {
	_, err := r.db.ExecContext(ctx, insertOutboxEvent,
		event.ID,
		event.AggregateID,
		event.EventType,
		pqtype.NullRawMessage{RawMessage: event.Payload, Valid: len(event.Payload) > 0},
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", event.EventType, err)
	}
	return nil
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	event, err := scanEvent(r.db.QueryRowContext(ctx, fetchOutboxByID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return &event, nil
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, markOutboxSent, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) CountUnsentOutbox(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countUnsentOutbox).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (OutboxEvent, error) {
	var (
		event   OutboxEvent
		payload pqtype.NullRawMessage
		sentAt  sql.NullTime
	)
	if err := row.Scan(&event.ID, &event.AggregateID, &event.EventType, &payload, &event.CreatedAt, &sentAt); err != nil {
		return OutboxEvent{}, err
	}
	if payload.Valid {
		event.Payload = payload.RawMessage
	}
	event.SentAt = sqlutil.FromSqlTime(sentAt)
	return event, nil
}
