package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// RelayConfig tunes how outbox rows reach the bus.
type RelayConfig struct {
	// DatabaseURL is dialled by the pq listener, separately from the pool.
	DatabaseURL string
	// Channel must match the channel used by the notify_pong_outbox trigger.
	Channel string
	// SweepInterval is how often unsent rows are swept when no NOTIFY
	// arrives.
	SweepInterval time.Duration
	SweepLimit    int
	Attempts      int
	// Backoff grows linearly: the nth retry waits n*Backoff.
	Backoff           time.Duration
	KeepaliveInterval time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Channel:           "pong_outbox_events",
		SweepInterval:     30 * time.Second,
		SweepLimit:        100,
		Attempts:          6,
		Backoff:           200 * time.Millisecond,
		KeepaliveInterval: 90 * time.Second,
	}
}

// Publisher delivers one outbox row to the bus.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Relay moves outbox rows to the publisher. Rows are relayed as their
// NOTIFY arrives and by a periodic sweep that catches anything missed.
type Relay struct {
	repo    OutboxRepository
	pub     Publisher
	pl      *pq.Listener
	metrics MetricsCollector
	clock   clockwork.Clock
	cfg     RelayConfig
}

// NewRelay subscribes to cfg.Channel.
func NewRelay(repo OutboxRepository, pub Publisher, metrics MetricsCollector, cfg RelayConfig) (*Relay, error) {
	pl := pq.NewListener(cfg.DatabaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			log.Warn().Err(err).Str("channel", cfg.Channel).Msg("outbox notifications interrupted")
		case pq.ListenerEventReconnected:
			log.Info().Str("channel", cfg.Channel).Msg("outbox notifications resumed")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Error().Err(err).Str("channel", cfg.Channel).Msg("outbox listener cannot reach database")
		}
	})
	if err := pl.Listen(cfg.Channel); err != nil {
		pl.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.Channel, err)
	}
	return newRelay(repo, pub, pl, metrics, clockwork.NewRealClock(), cfg), nil
}

func newRelay(repo OutboxRepository, pub Publisher, pl *pq.Listener, metrics MetricsCollector, clock clockwork.Clock, cfg RelayConfig) *Relay {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Relay{repo: repo, pub: pub, pl: pl, metrics: metrics, clock: clock, cfg: cfg}
}

// Start relays until ctx is cancelled, then closes the listener.
func (r *Relay) Start(ctx context.Context) error {
	log.Info().
		Str("channel", r.cfg.Channel).
		Dur("sweep_interval", r.cfg.SweepInterval).
		Msg("outbox relay running")

	// rows written while no relay was listening
	r.sweepAndLog(ctx)

	sweep := r.clock.NewTicker(r.cfg.SweepInterval)
	keepalive := r.clock.NewTicker(r.cfg.KeepaliveInterval)
	defer sweep.Stop()
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return r.Stop()
		case n := <-r.pl.Notify:
			// nil after a reconnect: NOTIFYs sent meanwhile are gone
			if n == nil {
				r.sweepAndLog(ctx)
				continue
			}
			if err := r.onNotify(ctx, n.Extra); err != nil && !errors.Is(err, ErrEventNotFound) {
				log.Error().Err(err).Str("payload", n.Extra).Msg("outbox notification not relayed")
			}
		case <-sweep.Chan():
			r.sweepAndLog(ctx)
		case <-keepalive.Chan():
			if err := r.pl.Ping(); err != nil {
				log.Warn().Err(err).Msg("outbox listener keepalive failed")
			}
		}
	}
}

func (r *Relay) Stop() error {
	if r.pl == nil {
		return nil
	}
	return r.pl.Close()
}

// onNotify relays the row whose ID is the NOTIFY payload. A row already
// relayed by a sweep yields ErrEventNotFound.
func (r *Relay) onNotify(ctx context.Context, payload string) error {
	id, err := uuid.Parse(payload)
	if err != nil {
		return fmt.Errorf("notify payload %q: %w", payload, err)
	}
	event, err := r.repo.FetchOutboxByID(ctx, id)
	if err != nil {
		return err
	}
	return r.deliver(ctx, *event)
}

func (r *Relay) sweepAndLog(ctx context.Context) {
	if err := r.sweep(ctx); err != nil {
		log.Error().Err(err).Msg("outbox sweep failed")
	}
}

// sweep relays up to SweepLimit unsent rows, oldest first. A row that
// cannot be delivered stays unsent for the next sweep.
func (r *Relay) sweep(ctx context.Context) error {
	began := r.clock.Now()
	batch, err := r.repo.FetchUnsentOutbox(ctx, r.cfg.SweepLimit)
	if err != nil {
		return fmt.Errorf("fetch unsent rows: %w", err)
	}

	delivered := 0
	for _, event := range batch {
		if err := r.deliver(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Str("event_type", event.EventType).Msg("outbox row left unsent")
			continue
		}
		delivered++
	}
	r.metrics.RecordBatchProcessed(delivered, r.clock.Since(began))

	pending, err := r.repo.CountUnsentOutbox(ctx)
	if err != nil {
		return fmt.Errorf("count unsent rows: %w", err)
	}
	r.metrics.RecordOutboxLag(pending)
	return nil
}

// deliver publishes one row, retrying with linear backoff, and marks it
// sent once the bus accepts it.
func (r *Relay) deliver(ctx context.Context, event OutboxEvent) error {
	began := r.clock.Now()
	var err error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(time.Duration(attempt-1) * r.cfg.Backoff):
			}
		}

		err = r.pub.Publish(ctx, event)
		r.metrics.RecordPublishAttempt(event.EventType, attempt, err == nil)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt).Str("event_id", event.ID.String()).Msg("bus publish failed")
	}
	if err != nil {
		r.metrics.RecordEventProcessed(event.EventType, false, r.clock.Since(began))
		return fmt.Errorf("giving up after %d attempts: %w", r.cfg.Attempts, err)
	}

	if err := r.repo.MarkOutboxSent(ctx, event.ID); err != nil {
		return fmt.Errorf("mark %s sent: %w", event.ID, err)
	}
	r.metrics.RecordEventProcessed(event.EventType, true, r.clock.Since(began))
	log.Debug().Str("event_id", event.ID.String()).Str("event_type", event.EventType).Msg("outbox row relayed")
	return nil
}
