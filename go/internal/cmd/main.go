package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mcdev12/pongarena/go/internal/config"
	"github.com/mcdev12/pongarena/go/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("pong server exited")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.SetupLogging(); err != nil {
		return err
	}
	sim, err := config.LoadGameConfig(cfg.GameConfigPath)
	if err != nil {
		return err
	}

	collector := metrics.New()

	persistence, err := setupPersistence(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer persistence.Close()

	services, err := setupServices(ctx, cfg, sim, persistence, collector)
	if err != nil {
		return err
	}
	defer services.Close()

	server := setupServer(cfg, services, collector, persistence.Ready)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return services.Gateway.Start(gctx)
	})

	if persistence.relay != nil {
		g.Go(func() error {
			log.Info().Msg("starting outbox relay")
			return persistence.relay.Start(gctx)
		})
	}

	err = g.Wait()
	log.Info().Msg("pong server shutdown complete")
	return err
}
