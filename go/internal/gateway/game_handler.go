package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pongarena/go/internal/match"
	"github.com/mcdev12/pongarena/go/internal/protocol"
)

// MatchAttacher is the part of the match registry the game socket needs.
type MatchAttacher interface {
	Attach(ctx context.Context, code string, p match.PlayerRef, conn match.Conn) (*match.Seat, error)
}

// GameHandler upgrades /ws/game requests and binds the socket to the
// caller's side of a match.
type GameHandler struct {
	registry MatchAttacher
	auth     Authenticator
	codec    protocol.Codec
	upgrader websocket.Upgrader
	config   ConnectionConfig

	mu    sync.Mutex
	conns map[string]*Connection
}

// NewGameHandler creates a game socket handler.
func NewGameHandler(registry MatchAttacher, auth Authenticator, codec protocol.Codec, config ConnectionConfig) *GameHandler {
	return &GameHandler{
		registry: registry,
		auth:     auth,
		codec:    codec,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		conns:  make(map[string]*Connection),
	}
}

func (h *GameHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
		// Upgrade already replied to the client.
		log.Error().Err(err).Str("match_code", code).Msg("failed to upgrade WebSocket connection")
		return
	}

	conn := newConnection(ws, player.ID, code, h.config)
	// The write pump must run before Attach: starting the match queues the
	// opening frames.
	go conn.writePump()

	seat, err := h.registry.Attach(r.Context(), code, player, conn)
	if err != nil {
		log.Warn().
			Err(err).
			Str("match_code", code).
			Int("user_id", player.ID).
			Msg("rejected game connection")
		reason, _ := protocol.MarshalEvent(protocol.EventEOG, protocol.EndOfGamePayload{Reason: attachErrorReason(err)})
		conn.SendText(reason)
		conn.Close()
		return
	}

	conn.onMessage = func(messageType int, data []byte) { h.handleFrame(seat, conn, messageType, data) }
	conn.onClose = func() {
		h.unregister(conn)
		if err := seat.Leave(context.Background()); err != nil && !errors.Is(err, match.ErrSessionClosed) {
			log.Error().Err(err).Str("match_code", code).Msg("failed to report disconnect")
		}
	}
	h.register(conn)
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("match_code", code).
		Int("user_id", player.ID).
		Str("side", seat.Side().String()).
		Msg("game connection established")
}

// handleFrame decodes one client frame and hands it to the session. Text
// frames and unknown packets are ignored.
func (h *GameHandler) handleFrame(seat *match.Seat, conn *Connection, messageType int, data []byte) {
	if messageType != websocket.BinaryMessage {
		return
	}
	pkt, err := h.codec.DecodeClient(data)
	if err != nil {
		log.Debug().Err(err).Str("connection_id", conn.ID).Msg("dropping malformed client packet")
		return
	}
	if pkt == nil {
		log.Debug().Str("connection_id", conn.ID).Uint8("type", data[0]).Msg("dropping unknown client packet")
		return
	}
	if err := seat.Input(context.Background(), pkt); err != nil && !errors.Is(err, match.ErrSessionClosed) {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to forward client packet")
	}
}

func (h *GameHandler) register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
}

func (h *GameHandler) unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.ID)
}

// ConnectionCount returns the number of live game sockets.
func (h *GameHandler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func attachErrorReason(err error) string {
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		return "match_not_found"
	case errors.Is(err, match.ErrNotAParticipant):
		return "not_a_participant"
	case errors.Is(err, match.ErrAlreadyAttached):
		return "already_connected"
	}
	return "unavailable"
}
