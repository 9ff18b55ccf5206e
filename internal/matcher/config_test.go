package matcher

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Blocking)
	assert.True(t, cfg.DiscoverMaxScore)
	assert.False(t, cfg.ShowIgnored)
	assert.True(t, strings.HasPrefix(cfg.String(), "Config{Threshold: 60"))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"negative threshold", func(c *Config) { c.Threshold = -1 }, "threshold"},
		{"zero check interval", func(c *Config) { c.CheckInterval = 0 }, "check_interval"},
		{"negative progress", func(c *Config) { c.ProgressEvery = -time.Second }, "progress_every"},
		{"slow progress", func(c *Config) { c.ProgressEvery = time.Hour }, "progress_every"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"too many workers", func(c *Config) { c.Workers = 1000 }, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("FTAUDIT_MATCH_THRESHOLD", "75")
	t.Setenv("FTAUDIT_MATCH_PROGRESS_MS", "250")
	t.Setenv("FTAUDIT_MATCH_BLOCKING", "false")
	t.Setenv("FTAUDIT_MATCH_SHOW_IGNORED", "true")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Threshold)
	assert.Equal(t, 250*time.Millisecond, cfg.ProgressEvery)
	assert.False(t, cfg.Blocking)
	assert.True(t, cfg.ShowIgnored)
	assert.Equal(t, 4, cfg.Workers, "unset variables keep defaults")
}

func TestConfigFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("FTAUDIT_MATCH_WORKERS", "many")
	_, err := ConfigFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `FTAUDIT_MATCH_WORKERS="many"`)

	t.Setenv("FTAUDIT_MATCH_WORKERS", "")
	t.Setenv("FTAUDIT_MATCH_BLOCKING", "sometimes")
	_, err = ConfigFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FTAUDIT_MATCH_BLOCKING")
	t.Setenv("FTAUDIT_MATCH_BLOCKING", "")

	t.Setenv("FTAUDIT_MATCH_WORKERS", "0")
	_, err = ConfigFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration from environment")
}
