package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/events"
)

// EventConsumer reads the event bus through a durable consumer and pushes
// tournament events to feed subscribers.
type EventConsumer struct {
	hub      *FeedHub
	nc       *nats.Conn
	consumer jetstream.Consumer
	durable  string
}

// NewEventConsumer binds a durable consumer to the bus stream. The stream is
// declared by the outbox publisher.
func NewEventConsumer(ctx context.Context, hub *FeedHub, bus events.Bus, cfg FeedConsumerConfig) (*EventConsumer, error) {
	nc, js, err := bus.Connect("pong-gateway")
	if err != nil {
		return nil, err
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, bus.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		Description:   "tournament feed",
		FilterSubject: bus.Wildcard(),
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    cfg.MaxDeliver,
		AckWait:       cfg.AckWait,
		MaxAckPending: cfg.MaxAckPending,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("bind consumer %s on %s: %w", cfg.Durable, bus.Stream, err)
	}

	return &EventConsumer{hub: hub, nc: nc, consumer: consumer, durable: cfg.Durable}, nil
}

// Start delivers bus messages to the hub until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	cc, err := ec.consumer.Consume(ec.handle)
	if err != nil {
		return fmt.Errorf("consume %s: %w", ec.durable, err)
	}
	log.Info().Str("consumer", ec.durable).Msg("tournament feed consumer running")

	<-ctx.Done()
	cc.Stop()
	return nil
}

func (ec *EventConsumer) handle(msg jetstream.Msg) {
	if err := ec.processMessage(msg.Data()); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping undecodable bus message")
		// Redelivery cannot fix a bad payload.
		if err := msg.Term(); err != nil {
			log.Error().Err(err).Msg("failed to terminate message")
		}
		return
	}
	if err := msg.Ack(); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to ack message")
	}
}

func (ec *EventConsumer) processMessage(data []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	ev, err := feedEventFromEnvelope(env)
	if err != nil || ev == nil {
		return err
	}
	ec.hub.Broadcast(ev)

	log.Debug().
		Str("event_id", env.EventID).
		Str("event_type", string(env.EventType)).
		Str("tournament_code", ev.TournamentCode).
		Msg("event forwarded to tournament feed")
	return nil
}

// Stop closes the bus connection.
func (ec *EventConsumer) Stop() error {
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
