package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/events"
)

// OutboxRepository defines what the app layer needs from the repository
type OutboxRepository interface {
	InsertOutboxEvent(ctx context.Context, event OutboxEvent) error
	FetchUnsentOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	CountUnsentOutbox(ctx context.Context) (int, error)
}

// App writes domain events to the outbox. It implements match.Notifier so
// the registry and the tournament engine can publish through it.
type App struct {
	repo  OutboxRepository
	clock clockwork.Clock
}

// NewApp creates a new outbox App
func NewApp(repo OutboxRepository, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{repo: repo, clock: clock}
}

// Notify inserts ev into the outbox.
func (a *App) Notify(ctx context.Context, ev events.Event) error {
	if ev.Type == "" {
		return errors.New("event type cannot be empty")
	}
	if ev.AggregateID == "" {
		return errors.New("event aggregate ID cannot be empty")
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", ev.Type, err)
	}
	if err := a.validateEventPayload(payload); err != nil {
		return fmt.Errorf("invalid %s payload: %w", ev.Type, err)
	}

	event := OutboxEvent{
		ID:          uuid.New(),
		AggregateID: ev.AggregateID,
		EventType:   string(ev.Type),
		Payload:     payload,
		CreatedAt:   a.clock.Now().UTC(),
	}
	if err := a.repo.InsertOutboxEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to insert %s event: %w", ev.Type, err)
	}

	log.Info().
		Str("event_id", event.ID.String()).
		Str("aggregate_id", ev.AggregateID).
		Str("event_type", string(ev.Type)).
		Msg("outbox event inserted")
	return nil
}

// validateEventPayload validates that the event payload is not empty
func (a *App) validateEventPayload(payload []byte) error {
	if len(payload) == 0 || string(payload) == "null" {
		return fmt.Errorf("event payload cannot be empty")
	}
	return nil
}
