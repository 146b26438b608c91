package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pongarena/go/internal/events"
	"github.com/mcdev12/pongarena/go/internal/simulation"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.JoinTimeout)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, []int{4}, cfg.TournamentSizes)
	assert.Equal(t, 1000.0, cfg.NetworkPrecision)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MATCH_JOIN_TIMEOUT", "10s")
	t.Setenv("TOURNAMENT_SIZES", "4,8")
	t.Setenv("DB_HOST", "pg")
	t.Setenv("ENABLE_PERSISTENCE", "false")
	t.Setenv("NATS_URL", "nats://bus:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.JoinTimeout)
	assert.Equal(t, []int{4, 8}, cfg.TournamentSizes)
	assert.Equal(t, "pg", cfg.DB.Host)
	assert.Equal(t, "postgres://postgres:postgres@pg:5432/pong?sslmode=disable", cfg.DB.DSN())
	assert.False(t, cfg.EnablePersistence)

	tc := cfg.TournamentConfig()
	assert.Equal(t, []int{4, 8}, tc.AllowedSizes)

	mc := cfg.MatchConfig(simulation.DefaultConfig())
	assert.Equal(t, 10*time.Second, mc.JoinTimeout)
	assert.Equal(t, simulation.DefaultConfig(), mc.Simulation)

	bus := cfg.Bus()
	assert.Equal(t, "nats://bus:4222", bus.URL)
	assert.Equal(t, "pong.events.MatchEnded", bus.Subject(events.TypeMatchEnded))
}

func TestLoadRejectsBadTournamentSize(t *testing.T) {
	t.Setenv("TOURNAMENT_SIZES", "4,6")

	_, err := Load()
	assert.ErrorContains(t, err, "6 is not a power of two")
}

func TestSetupLogging(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	require.NoError(t, cfg.SetupLogging())
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	cfg.LogLevel = "loud"
	assert.Error(t, cfg.SetupLogging())
}

func TestLoadGameConfig(t *testing.T) {
	sim, err := LoadGameConfig("")
	require.NoError(t, err)
	assert.Equal(t, simulation.DefaultConfig(), sim)

	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_lives: 3\npad_speed: 12.5\n"), 0o600))

	sim, err = LoadGameConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, sim.MaxLives)
	assert.Equal(t, 12.5, sim.PadSpeed)
	assert.Equal(t, simulation.DefaultConfig().TPS, sim.TPS)

	require.NoError(t, os.WriteFile(path, []byte("max_lives: [\n"), 0o600))
	_, err = LoadGameConfig(path)
	assert.Error(t, err)

	_, err = LoadGameConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
