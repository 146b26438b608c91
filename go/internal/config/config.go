// Package config loads process configuration from the environment and the
// optional game tuning file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/pongarena/go/internal/dbconfig"
	"github.com/mcdev12/pongarena/go/internal/events"
	"github.com/mcdev12/pongarena/go/internal/match"
	"github.com/mcdev12/pongarena/go/internal/simulation"
	"github.com/mcdev12/pongarena/go/internal/tournament"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// Without persistence the engine runs in memory and events are dropped.
	EnablePersistence bool   `env:"ENABLE_PERSISTENCE" envDefault:"true"`
	EnableFeed        bool   `env:"ENABLE_FEED" envDefault:"true"`
	NATSURL           string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	AllowQueryAuth bool     `env:"ALLOW_QUERY_AUTH" envDefault:"false"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	JoinTimeout      time.Duration `env:"MATCH_JOIN_TIMEOUT" envDefault:"60s"`
	ConnectTimeout   time.Duration `env:"MATCH_CONNECT_TIMEOUT" envDefault:"30s"`
	NetworkPrecision float64       `env:"NETWORK_PRECISION" envDefault:"1000"`
	GameConfigPath   string        `env:"GAME_CONFIG_PATH"`

	TournamentSizes      []int         `env:"TOURNAMENT_SIZES" envDefault:"4" envSeparator:","`
	TournamentPurgeGrace time.Duration `env:"TOURNAMENT_PURGE_GRACE" envDefault:"5m"`

	OutboxFallbackInterval time.Duration `env:"OUTBOX_FALLBACK_INTERVAL" envDefault:"30s"`

	DB dbconfig.Config `envPrefix:"DB_"`
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	for _, n := range cfg.TournamentSizes {
		if !tournament.IsPowerOfTwo(n) {
			return nil, fmt.Errorf("TOURNAMENT_SIZES: %d is not a power of two", n)
		}
	}
	return &cfg, nil
}

// SetupLogging configures the global zerolog logger.
func (c *Config) SetupLogging() error {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return nil
}

// MatchConfig builds the registry configuration around sim.
func (c *Config) MatchConfig(sim simulation.Config) match.Config {
	return match.Config{
		JoinTimeout:      c.JoinTimeout,
		ConnectTimeout:   c.ConnectTimeout,
		Simulation:       sim,
		NetworkPrecision: c.NetworkPrecision,
	}
}

func (c *Config) TournamentConfig() tournament.Config {
	return tournament.Config{
		AllowedSizes: c.TournamentSizes,
		PurgeGrace:   c.TournamentPurgeGrace,
	}
}

// Bus returns the event bus location.
func (c *Config) Bus() events.Bus {
	bus := events.DefaultBus()
	bus.URL = c.NATSURL
	return bus
}

// LoadGameConfig reads simulation tuning from a YAML file. Missing fields
// keep their defaults; an empty path returns the defaults.
func LoadGameConfig(path string) (simulation.Config, error) {
	if path == "" {
		return simulation.DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return simulation.Config{}, fmt.Errorf("failed to read game config: %w", err)
	}

	var sim simulation.Config
	if err := yaml.Unmarshal(data, &sim); err != nil {
		return simulation.Config{}, fmt.Errorf("failed to parse game config: %w", err)
	}
	return sim.WithDefaults(), nil
}
