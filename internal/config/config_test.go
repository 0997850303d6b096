package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
name = "test"
min_client_version = "~1.4"

[roster]
wait_timeout = "750ms"
audit_flush_ticks = 3

[logging]
format = "json"

[diagnostics]
gops = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Server.Name)
	assert.Equal(t, "~1.4", cfg.Server.MinClientVersion)
	assert.Equal(t, 750*time.Millisecond, cfg.Roster.WaitTimeout)
	assert.Equal(t, 3, cfg.Roster.AuditFlushTicks)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Diagnostics.Gops)

	// Untouched keys keep their defaults.
	assert.Equal(t, 200*time.Millisecond, cfg.Network.TickRate)
	assert.Equal(t, 1500, cfg.Roster.SaveTicks)
	assert.Equal(t, 10000, cfg.Roster.AuditBufferMax)
	assert.NotZero(t, cfg.Server.StartTime)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "[roster]\nwait_timeout = \"0s\"\n"))
	assert.ErrorContains(t, err, "wait_timeout")

	_, err = Load(writeConfig(t, "[roster]\naudit_buffer_max = 0\n"))
	assert.ErrorContains(t, err, "audit_buffer_max")

	_, err = Load(writeConfig(t, "[logging]\nformat = \"xml\"\n"))
	assert.ErrorContains(t, err, "logging.format")

	_, err = Load(writeConfig(t, "not toml ="))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "read config")
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().validate())
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "server.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Roster, cfg.Roster)
	assert.Equal(t, 2*time.Minute, cfg.Roster.EnterWorldTimeout)
}
