package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigError_Error(t *testing.T) {
	err := ConfigError{Message: "test error"}
	assert.Equal(t, "test error", err.Error())
}

func TestConfig_Offline(t *testing.T) {
	assert.True(t, (&Config{Mode: ModeOffline}).Offline())
	assert.False(t, (&Config{Mode: ModeOnline}).Offline())
	assert.False(t, (&Config{}).Offline())
}

func TestConfig_JSONFieldNames(t *testing.T) {
	raw := `{
		"mode": "offline",
		"api": {"base_url": "http://bot:8000", "timeout_sec": 10, "verbose_logging": true},
		"query": {"stale_time_sec": 60, "retry_count": 3},
		"dashboard": {"live_refresh_interval_sec": 15},
		"server": {"port": 9000},
		"preferences": {"path": "data/prefs.db"},
		"tracing": {"enabled": true, "sample_rate": 0.5},
		"locale": "es-ES",
		"log_level": "debug"
	}`

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	assert.Equal(t, ModeOffline, cfg.Mode)
	assert.Equal(t, "http://bot:8000", cfg.API.BaseURL)
	assert.Equal(t, 10, cfg.API.TimeoutSec)
	assert.True(t, cfg.API.VerboseLogging)
	assert.Equal(t, 60, cfg.Query.StaleTimeSec)
	assert.Equal(t, 3, cfg.Query.RetryCount)
	assert.Equal(t, 15, cfg.Dashboard.LiveRefreshIntervalSec)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "data/prefs.db", cfg.Preferences.Path)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)
	assert.Equal(t, "es-ES", cfg.Locale)
	assert.Equal(t, "debug", cfg.LogLevel)
}
