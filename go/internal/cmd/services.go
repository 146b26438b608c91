package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/pongarena/go/internal/api"
	"github.com/mcdev12/pongarena/go/internal/config"
	"github.com/mcdev12/pongarena/go/internal/gateway"
	"github.com/mcdev12/pongarena/go/internal/match"
	"github.com/mcdev12/pongarena/go/internal/metrics"
	"github.com/mcdev12/pongarena/go/internal/protocol"
	"github.com/mcdev12/pongarena/go/internal/simulation"
	"github.com/mcdev12/pongarena/go/internal/tournament"
)

type Services struct {
	Registry    *match.Registry
	Tournaments *tournament.Engine
	API         *api.Service
	Gateway     *gateway.Service
}

func setupServices(ctx context.Context, cfg *config.Config, sim simulation.Config, p *Persistence, collector *metrics.Collector) (*Services, error) {
	// Registry → tournament engine → API and gateway
	clock := clockwork.NewRealClock()

	var (
		recorder match.HistoryRecorder
		notifier match.Notifier
		reader   api.HistoryReader
	)
	if p.History != nil {
		recorder = p.History
		reader = p.History
	}
	if p.Outbox != nil {
		notifier = p.Outbox
	}

	matchCfg := cfg.MatchConfig(sim)
	registry := match.NewRegistry(matchCfg, clock, recorder, notifier, collector)
	engine := tournament.NewEngine(cfg.TournamentConfig(), registry, clock, notifier, collector)
	registry.SetTournamentHook(engine)

	gwCfg := gateway.DefaultConfig()
	gwCfg.Bus = cfg.Bus()
	gwCfg.EnableFeed = cfg.EnableFeed && cfg.EnablePersistence
	gw, err := gateway.NewService(ctx, gwCfg, registry,
		gateway.HeaderAuthenticator{AllowQuery: cfg.AllowQueryAuth},
		protocol.NewCodec(matchCfg.NetworkPrecision))
	if err != nil {
		registry.Close()
		engine.Close()
		return nil, fmt.Errorf("failed to create gateway service: %w", err)
	}

	return &Services{
		Registry:    registry,
		Tournaments: engine,
		API:         api.NewService(registry, engine, reader),
		Gateway:     gw,
	}, nil
}

func (s *Services) Close() {
	s.Tournaments.Close()
	s.Registry.Close()
}
