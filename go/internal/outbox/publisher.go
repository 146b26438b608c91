package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/events"
)

// JetStreamPublisher relays outbox rows onto the event bus. The row ID is
// the message ID, so a row relayed twice inside the dedupe window is stored
// once.
type JetStreamPublisher struct {
	bus events.Bus
	nc  *nats.Conn
	js  jetstream.JetStream
}

// NewJetStreamPublisher connects to the bus and declares its stream.
func NewJetStreamPublisher(ctx context.Context, bus events.Bus) (*JetStreamPublisher, error) {
	nc, js, err := bus.Connect("pong-outbox")
	if err != nil {
		return nil, err
	}
	stream, err := js.CreateOrUpdateStream(ctx, bus.StreamConfig())
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("declare stream %s: %w", bus.Stream, err)
	}
	log.Info().
		Str("stream", stream.CachedInfo().Config.Name).
		Strs("subjects", stream.CachedInfo().Config.Subjects).
		Msg("event stream declared")

	return &JetStreamPublisher{bus: bus, nc: nc, js: js}, nil
}

func (p *JetStreamPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	msg, err := newMessage(p.bus, event, time.Now().UTC())
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.bus.Stream),
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	if ack.Duplicate {
		log.Debug().Str("event_id", event.ID.String()).Msg("bus already holds event")
		return nil
	}

	log.Debug().
		Str("event_id", event.ID.String()).
		Str("subject", msg.Subject).
		Uint64("seq", ack.Sequence).
		Msg("event relayed")
	return nil
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Drain()
	}
	return nil
}

// newMessage wraps an outbox row in the bus envelope.
func newMessage(bus events.Bus, event OutboxEvent, now time.Time) (*nats.Msg, error) {
	eventType := events.Type(event.EventType)
	data, err := json.Marshal(events.Envelope{
		EventID:     event.ID.String(),
		EventType:   eventType,
		AggregateID: event.AggregateID,
		Timestamp:   now,
		Payload:     event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	msg := nats.NewMsg(bus.Subject(eventType))
	msg.Data = data
	msg.Header.Set("Event-Type", event.EventType)
	msg.Header.Set("Aggregate-ID", event.AggregateID)
	msg.Header.Set("Event-ID", event.ID.String())
	return msg, nil
}
