package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Bus locates the JetStream stream that carries every pong event.
type Bus struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Retention     time.Duration
	// DedupeWindow bounds how long a republished outbox row is recognised
	// by its message ID.
	DedupeWindow time.Duration
}

func DefaultBus() Bus {
	return Bus{
		URL:           nats.DefaultURL,
		Stream:        "PONG_EVENTS",
		SubjectPrefix: "pong.events",
		Retention:     7 * 24 * time.Hour,
		DedupeWindow:  2 * time.Hour,
	}
}

// Subject returns the subject an event type is published on.
func (b Bus) Subject(t Type) string {
	return b.SubjectPrefix + "." + string(t)
}

// Wildcard matches every event subject of the bus.
func (b Bus) Wildcard() string {
	return b.SubjectPrefix + ".>"
}

// StreamConfig is the stream definition declared by publishers.
func (b Bus) StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        b.Stream,
		Description: "pong match and tournament events",
		Subjects:    []string{b.Wildcard()},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      b.Retention,
		MaxMsgs:     -1,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  b.DedupeWindow,
	}
}

// Connect dials the bus. Once connected the client reconnects forever.
func (b Bus) Connect(client string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(b.URL,
		nats.Name(client),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("client", client).Msg("lost bus connection")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("client", client).Str("url", nc.ConnectedUrl()).Msg("bus connection restored")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("dial bus %s: %w", b.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("open jetstream: %w", err)
	}
	return nc, js, nil
}
