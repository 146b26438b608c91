package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/protocol"
)

// Service owns the game and tournament feed sockets.
type Service struct {
	game     *GameHandler
	feed     *FeedHub
	consumer *EventConsumer
}

// NewService creates the gateway. The JetStream consumer is only created
// when the feed is enabled.
func NewService(ctx context.Context, config Config, registry MatchAttacher, auth Authenticator, codec protocol.Codec) (*Service, error) {
	s := &Service{
		game: NewGameHandler(registry, auth, codec, config.Connection),
		feed: NewFeedHub(auth, config.Connection),
	}
	if config.EnableFeed {
		consumer, err := NewEventConsumer(ctx, s.feed, config.Bus, config.Consumer)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.consumer = consumer
	}
	return s, nil
}

// Start runs the feed hub and consumer until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")

	go s.feed.Start(ctx)

	if s.consumer != nil {
		go func() {
			if err := s.consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("gateway service shutting down")
	return s.Stop()
}

// Stop releases the NATS connection.
func (s *Service) Stop() error {
	if s.consumer != nil {
		return s.consumer.Stop()
	}
	return nil
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/ws/game", s.game)
	mux.Handle("/ws/tournament", s.feed)
	mux.HandleFunc("/ws/stats", s.handleStats)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := struct {
		GameConnections int            `json:"game_connections"`
		FeedSubscribers map[string]int `json:"feed_subscribers"`
	}{
		GameConnections: s.game.ConnectionCount(),
		FeedSubscribers: s.feed.SubscriberCount(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}
