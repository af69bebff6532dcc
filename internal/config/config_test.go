package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, time.Minute, cfg.BaseInterval)
	assert.Equal(t, 15*time.Second, cfg.MinInterval)
	assert.Equal(t, 10*time.Minute, cfg.MaxInterval)
	assert.Equal(t, 0.5, cfg.Talkative)
	assert.Equal(t, "companion", cfg.Personality)
	assert.True(t, cfg.InnerThoughts)
	assert.True(t, cfg.Curiosity)
	assert.True(t, cfg.ProactiveCare)
	assert.Equal(t, 10, cfg.WMCapacity)
	assert.Equal(t, 0.6, cfg.WMPromoteThreshold)
	assert.Equal(t, 30*time.Minute, cfg.WMRetention)
	assert.Equal(t, "file", cfg.MemoryBackend)
	assert.Equal(t, "data/memories.json", cfg.FileStorePath)
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval)
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("HEARTFLOW_LOG_LEVEL", "debug")
	t.Setenv("HEARTFLOW_BASE_INTERVAL", "45s")
	t.Setenv("HEARTFLOW_MIN_INTERVAL", "5s")
	t.Setenv("HEARTFLOW_TALKATIVE", "0.8")
	t.Setenv("HEARTFLOW_INNER_THOUGHTS", "false")
	t.Setenv("HEARTFLOW_MEMORY_BACKEND", "sqlite")
	t.Setenv("HEARTFLOW_SQLITE_PATH", "/tmp/mem.db")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.BaseInterval)
	assert.Equal(t, 5*time.Second, cfg.MinInterval)
	assert.Equal(t, 0.8, cfg.Talkative)
	assert.False(t, cfg.InnerThoughts)
	assert.Equal(t, "sqlite", cfg.MemoryBackend)
	assert.Equal(t, "/tmp/mem.db", cfg.SQLitePath)
}

func TestNewRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"unparsable duration", "HEARTFLOW_BASE_INTERVAL", "soon", "parse environment"},
		{"base below min", "HEARTFLOW_BASE_INTERVAL", "5s", "below HEARTFLOW_MIN_INTERVAL"},
		{"max below base", "HEARTFLOW_MAX_INTERVAL", "30s", "below HEARTFLOW_BASE_INTERVAL"},
		{"talkative out of range", "HEARTFLOW_TALKATIVE", "1.5", "HEARTFLOW_TALKATIVE"},
		{"zero capacity", "HEARTFLOW_WM_CAPACITY", "0", "HEARTFLOW_WM_CAPACITY"},
		{"threshold out of range", "HEARTFLOW_WM_PROMOTE_THRESHOLD", "2", "HEARTFLOW_WM_PROMOTE_THRESHOLD"},
		{"unknown backend", "HEARTFLOW_MEMORY_BACKEND", "dynamo", "unknown HEARTFLOW_MEMORY_BACKEND"},
		{"zero snapshot interval", "HEARTFLOW_SNAPSHOT_INTERVAL", "0s", "HEARTFLOW_SNAPSHOT_INTERVAL"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := New()
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestNewRequiresRedisURLForRedisBackend(t *testing.T) {
	t.Setenv("HEARTFLOW_MEMORY_BACKEND", "redis")
	_, err := New()
	require.Error(t, err)
	assert.ErrorContains(t, err, "HEARTFLOW_REDIS_URL is not set")

	t.Setenv("HEARTFLOW_REDIS_URL", "redis://localhost:6379/0")
	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.MemoryBackend)
}
