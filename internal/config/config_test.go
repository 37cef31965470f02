package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/udflow/internal/feature"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"UDFLOW_DB", "UDFLOW_TICK_INTERVAL", "UDFLOW_INTAKE",
		"UDFLOW_EFFECT_BUFFER", "UDFLOW_OTEL_ENDPOINT", "UDFLOW_OTEL_ENABLED",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "udflow.db", cfg.DB)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, feature.IntakeQueue, cfg.IntakePolicy())
	assert.Equal(t, 16, cfg.EffectBuffer)
	assert.True(t, cfg.OTelEnabled)
	assert.False(t, cfg.TracingEnabled())
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("UDFLOW_DB", "/tmp/j.db")
	t.Setenv("UDFLOW_TICK_INTERVAL", "5ms")
	t.Setenv("UDFLOW_INTAKE", "latest")
	t.Setenv("UDFLOW_EFFECT_BUFFER", "0")
	t.Setenv("UDFLOW_OTEL_ENDPOINT", "http://localhost:4318")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/j.db", cfg.DB)
	assert.Equal(t, 5*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, feature.IntakeLatest, cfg.IntakePolicy())
	assert.Equal(t, 0, cfg.EffectBuffer)
	assert.True(t, cfg.TracingEnabled())

	t.Setenv("UDFLOW_OTEL_ENABLED", "false")
	cfg, err = Load()
	require.NoError(t, err)
	assert.False(t, cfg.TracingEnabled())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  string
		errMsg string
	}{
		{"unparsable interval", "UDFLOW_TICK_INTERVAL", "soon", "parse env:"},
		{"zero interval", "UDFLOW_TICK_INTERVAL", "0s", "tick interval must be positive"},
		{"negative buffer", "UDFLOW_EFFECT_BUFFER", "-1", "effect buffer must not be negative"},
		{"unknown intake", "UDFLOW_INTAKE", "stack", "stack"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
