package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/config"
	"github.com/mcdev12/pongarena/go/internal/history"
	"github.com/mcdev12/pongarena/go/internal/metrics"
	"github.com/mcdev12/pongarena/go/internal/migrations"
	"github.com/mcdev12/pongarena/go/internal/outbox"
)

// Persistence holds the Postgres and NATS side of the process. Every field
// is nil when persistence is disabled.
type Persistence struct {
	db        *sql.DB
	pool      *pgxpool.Pool
	publisher *outbox.JetStreamPublisher
	relay     *outbox.Relay

	Outbox  *outbox.App
	History *history.Repository
}

func setupPersistence(ctx context.Context, cfg *config.Config, collector *metrics.Collector) (*Persistence, error) {
	p := &Persistence{}
	if !cfg.EnablePersistence {
		log.Warn().Msg("persistence disabled, match history and events are not recorded")
		return p, nil
	}

	dsn := cfg.DB.DSN()
	db, err := setupDatabase(ctx, dsn)
	if err != nil {
		return nil, err
	}
	p.db = db
	log.Info().
		Str("host", cfg.DB.Host).
		Int("port", cfg.DB.Port).
		Str("database", cfg.DB.Database).
		Msg("connected to database")

	if err := migrations.Run(db); err != nil {
		p.Close()
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	p.pool = pool
	p.History = history.NewRepository(pool)

	repo := outbox.NewRepository(db)
	p.Outbox = outbox.NewApp(repo, clockwork.NewRealClock())

	publisher, err := outbox.NewJetStreamPublisher(ctx, cfg.Bus())
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create JetStream publisher: %w", err)
	}
	p.publisher = publisher

	relayCfg := outbox.DefaultRelayConfig()
	relayCfg.DatabaseURL = dsn
	relayCfg.SweepInterval = cfg.OutboxFallbackInterval
	relay, err := outbox.NewRelay(repo, publisher, outbox.NewPrometheusMetrics(collector.Registerer()), relayCfg)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create outbox relay: %w", err)
	}
	p.relay = relay
	return p, nil
}

func setupDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return database, nil
}

// Ready reports whether the database answers.
func (p *Persistence) Ready(ctx context.Context) error {
	if p.db == nil {
		return nil
	}
	return p.db.PingContext(ctx)
}

func (p *Persistence) Close() {
	if p.publisher != nil {
		if err := p.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}
	if p.pool != nil {
		p.pool.Close()
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}
}
