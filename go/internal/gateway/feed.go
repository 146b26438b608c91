package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/events"
)

// FeedEvent is the text frame pushed to tournament feed subscribers.
type FeedEvent struct {
	ID             string          `json:"id"`
	TournamentCode string          `json:"tournament_code"`
	Type           events.Type     `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// BroadcastMessage represents a message to broadcast to connections
type BroadcastMessage struct {
	TournamentCode string
	Event          *FeedEvent
}

// FeedHub fans tournament events out to spectators subscribed on
// /ws/tournament.
type FeedHub struct {
	// Connection pools organized by tournament code
	topics map[string]map[*Connection]bool
	mu     sync.RWMutex

	auth     Authenticator
	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// NewFeedHub creates a tournament feed hub.
func NewFeedHub(auth Authenticator, config ConnectionConfig) *FeedHub {
	return &FeedHub{
		topics: make(map[string]map[*Connection]bool),
		auth:   auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is cancelled.
func (h *FeedHub) Start(ctx context.Context) {
	log.Info().Msg("tournament feed hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("tournament feed hub shutting down")
			return
		case message := <-h.broadcastCh:
			h.handleBroadcast(message)
		}
	}
}

// ServeHTTP subscribes the caller to ?code=<tournament code>.
func (h *FeedHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	player, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("tournament_code", code).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := newConnection(ws, player.ID, code, h.config)
	conn.onClose = func() { h.unregister(conn) }
	h.register(conn)
	conn.start()

	log.Info().
		Str("connection_id", conn.ID).
		Str("tournament_code", code).
		Int("user_id", player.ID).
		Msg("tournament feed connection established")
}

// Broadcast queues an event for every subscriber of its tournament.
func (h *FeedHub) Broadcast(event *FeedEvent) {
	select {
	case h.broadcastCh <- BroadcastMessage{TournamentCode: event.TournamentCode, Event: event}:
	default:
		log.Warn().Str("tournament_code", event.TournamentCode).Msg("broadcast channel full, dropping message")
	}
}

func (h *FeedHub) register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.topics[conn.Topic] == nil {
		h.topics[conn.Topic] = make(map[*Connection]bool)
	}
	h.topics[conn.Topic][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("tournament_code", conn.Topic).
		Int("total_connections", len(h.topics[conn.Topic])).
		Msg("connection registered")
}

func (h *FeedHub) unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if connections, exists := h.topics[conn.Topic]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			if len(connections) == 0 {
				delete(h.topics, conn.Topic)
			}
			log.Info().
				Str("connection_id", conn.ID).
				Int("user_id", conn.UserID).
				Str("tournament_code", conn.Topic).
				Msg("connection unregistered")
		}
	}
}

func (h *FeedHub) handleBroadcast(message BroadcastMessage) {
	h.mu.RLock()
	connections, exists := h.topics[message.TournamentCode]
	if !exists {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if err := conn.SendText(data); err != nil {
			// Connection is slow/dead, close it
			h.unregister(conn)
			conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("tournament_code", message.TournamentCode).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

func (h *FeedHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, connections := range h.topics {
		for conn := range connections {
			conn.Close()
		}
	}
	h.topics = make(map[string]map[*Connection]bool)
}

// SubscriberCount returns the number of feed subscribers per tournament.
func (h *FeedHub) SubscriberCount() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.topics))
	for code, connections := range h.topics {
		out[code] = len(connections)
	}
	return out
}

// feedEventFromEnvelope maps a bus event to a feed event. Only tournament
// events and tournament match results reach the feed.
func feedEventFromEnvelope(env events.Envelope) (*FeedEvent, error) {
	code := env.AggregateID
	switch env.EventType {
	case events.TypeTournamentStarted, events.TypeTournamentMatchReady, events.TypeTournamentCompleted:
	case events.TypeMatchEnded:
		var p events.MatchEndedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("unmarshal match ended payload: %w", err)
		}
		if p.TournamentCode == "" {
			return nil, nil
		}
		code = p.TournamentCode
	default:
		return nil, nil
	}

	return &FeedEvent{
		ID:             env.EventID,
		TournamentCode: code,
		Type:           env.EventType,
		Timestamp:      env.Timestamp,
		Data:           env.Payload,
	}, nil
}
