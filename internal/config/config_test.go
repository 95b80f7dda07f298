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
	path := filepath.Join(t.TempDir(), "bloom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.MaxTasks)
	assert.Equal(t, 32, cfg.EventCapacity)
	assert.Equal(t, 10, cfg.NotifierDepth)
	assert.Equal(t, time.Second, cfg.TickInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.SensorInterval())
	assert.Equal(t, 500*time.Millisecond, cfg.FlipDebounce())
	assert.Equal(t, 3*time.Second, cfg.LightRevive())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
db_path: /var/lib/bloom/state.db
max_tasks: 4
tick_interval_ms: 50
midnight_check: false
timezone: UTC
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/bloom/state.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.MaxTasks)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval())
	assert.False(t, cfg.MidnightCheck)
	assert.Equal(t, "UTC", cfg.Timezone)
	// untouched keys keep defaults
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "max_taskz: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_taskz")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open config")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "max_tasks: 4\nhttp_addr: \":9000\"\n")
	t.Setenv("BLOOM_MAX_TASKS", "7")
	t.Setenv("BLOOM_DB_PATH", "env.db")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxTasks)
	assert.Equal(t, "env.db", cfg.DBPath)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("BLOOM_MAX_TASKS", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max tasks", func(c *Config) { c.MaxTasks = 0 }},
		{"max tasks over uint8", func(c *Config) { c.MaxTasks = 256 }},
		{"tiny event capacity", func(c *Config) { c.EventCapacity = 2 }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"addr without port", func(c *Config) { c.HTTPAddr = "localhost" }},
		{"inverted flip band", func(c *Config) { c.FlipLow, c.FlipHigh = 500, 100 }},
		{"equal flip band", func(c *Config) { c.FlipLow, c.FlipHigh = 0, 0 }},
		{"negative debounce", func(c *Config) { c.FlipDebounceMS = -1 }},
		{"tick too fast", func(c *Config) { c.TickIntervalMS = 1 }},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := Default()
	cfg.Timezone = "UTC"
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}
