package gateway

import (
	"net/http"
	"time"

	"github.com/mcdev12/pongarena/go/internal/events"
)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  512, // largest client packet is 49 bytes
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBufferSize:  512,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// FeedConsumerConfig tunes the durable consumer behind the tournament feed.
type FeedConsumerConfig struct {
	Durable       string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

// Config holds configuration for the gateway service
type Config struct {
	Connection ConnectionConfig
	Bus        events.Bus
	Consumer   FeedConsumerConfig
	// EnableFeed turns on the tournament feed consumer. Without it
	// /ws/tournament still accepts subscribers but never pushes events.
	EnableFeed bool
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		Connection: DefaultConnectionConfig(),
		Bus:        events.DefaultBus(),
		Consumer: FeedConsumerConfig{
			Durable:       "pong-gateway",
			MaxDeliver:    5,
			AckWait:       30 * time.Second,
			MaxAckPending: 100,
		},
	}
}
