package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrSendBufferFull   = errors.New("connection send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
)

type frame struct {
	messageType int
	data        []byte
}

// Connection represents a WebSocket connection to a client. It satisfies
// match.Conn: sends never block, and a full buffer is reported as an error
// so the session can treat the socket as gone.
type Connection struct {
	ID     string
	UserID int
	Topic  string
	Conn   *websocket.Conn

	config ConnectionConfig
	send   chan frame
	quit   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool

	// onMessage receives every data frame read from the client.
	onMessage func(messageType int, data []byte)
	// onClose runs once after the read side has stopped.
	onClose func()

	ConnectedAt time.Time
	LastPing    time.Time
}

func newConnection(ws *websocket.Conn, userID int, topic string, config ConnectionConfig) *Connection {
	now := time.Now()
	return &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		Topic:       topic,
		Conn:        ws,
		config:      config,
		send:        make(chan frame, config.SendBufferSize),
		quit:        make(chan struct{}),
		ConnectedAt: now,
		LastPing:    now,
	}
}

// SendBinary queues a binary frame.
func (c *Connection) SendBinary(data []byte) error {
	return c.enqueue(frame{messageType: websocket.BinaryMessage, data: data})
}

// SendText queues a text frame.
func (c *Connection) SendText(data []byte) error {
	return c.enqueue(frame{messageType: websocket.TextMessage, data: data})
}

func (c *Connection) enqueue(f frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Int("user_id", c.UserID).
			Msg("connection send buffer full")
		return ErrSendBufferFull
	}
}

// Close flushes queued frames, sends a close frame and closes the socket.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.quit)
	})
	return nil
}

// start runs the write pump and the read pump.
func (c *Connection) start() {
	go c.writePump()
	go c.readPump()
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				c.Close()
				return
			}

		case <-c.quit:
			c.flush()
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				c.Close()
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// flush writes whatever is still queued.
func (c *Connection) flush() {
	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) write(f frame) error {
	c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.Conn.WriteMessage(f.messageType, f.data)
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		if c.onMessage != nil {
			c.onMessage(messageType, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	}
}
