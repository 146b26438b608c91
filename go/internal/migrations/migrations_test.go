package migrations

import (
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/pongarena/go/internal/outbox"
)

func TestMigrationsAreCollected(t *testing.T) {
	goose.SetBaseFS(fs)
	t.Cleanup(func() { goose.SetBaseFS(nil) })

	migrations, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, int64(1), migrations[0].Version)
	assert.Equal(t, int64(2), migrations[1].Version)
}

func TestOutboxTriggerMatchesRelayChannel(t *testing.T) {
	data, err := fs.ReadFile("00002_pong_outbox.sql")
	require.NoError(t, err)
	channel := outbox.DefaultRelayConfig().Channel
	assert.True(t, strings.Contains(string(data), "pg_notify('"+channel+"'"))
}
