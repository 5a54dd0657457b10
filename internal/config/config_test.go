package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "ticketflow.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Batch.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Batch.RetryBackoff)
	assert.Equal(t, 300*time.Second, cfg.Batch.FileTimeout)
	assert.True(t, cfg.Batch.ContinueOnError)
	assert.Equal(t, 120, cfg.Dedupe.WindowDays)
	assert.Equal(t, "pattern", cfg.Extract.Provider)
	assert.Equal(t, "local", cfg.Source.Kind)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TICKETFLOW_STORE_DRIVER", "postgres")
	t.Setenv("TICKETFLOW_DEDUPE_WINDOW_DAYS", "90")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 90, cfg.Dedupe.WindowDays)
}

func TestConfig_Policy(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	p := cfg.Policy()
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, 2*time.Second, p.RetryBackoff)
	assert.Equal(t, 300*time.Second, p.FileTimeout)
	assert.Equal(t, 120*24*time.Hour, p.DuplicateWindow)
	assert.Positive(t, p.Concurrency)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "noisy", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
}
