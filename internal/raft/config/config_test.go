package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 200*time.Millisecond, cfg.ElectionTimeoutMin)
	assert.Equal(t, 400*time.Millisecond, cfg.ElectionTimeoutMax)
	assert.Equal(t, 100*time.Millisecond, cfg.HeartbeatInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.CommandTimeout)
	assert.False(t, cfg.Faults.Enabled)
}

func TestLoad(t *testing.T) {
	write := func(t *testing.T, body string) string {
		path := filepath.Join(t.TempDir(), "peer.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	t.Run("overrides defaults", func(t *testing.T) {
		path := write(t, `
base_port: 9100
election_timeout_min: 300ms
election_timeout_max: 600ms
faults:
  loss_rate: 0.1
  delay: 5ms
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9100, cfg.BasePort)
		assert.Equal(t, 300*time.Millisecond, cfg.ElectionTimeoutMin)
		assert.Equal(t, 600*time.Millisecond, cfg.ElectionTimeoutMax)
		assert.Equal(t, 100*time.Millisecond, cfg.HeartbeatInterval, "unset keys keep defaults")
		assert.InDelta(t, 0.1, cfg.Faults.LossRate, 1e-9)
		assert.Equal(t, 5*time.Millisecond, cfg.Faults.Delay)
	})

	t.Run("enabled faults get leaky defaults", func(t *testing.T) {
		cfg, err := Load(write(t, "faults:\n  enabled: true\n"))
		require.NoError(t, err)
		assert.InDelta(t, DefaultLossRate, cfg.Faults.LossRate, 1e-9)
		assert.Equal(t, DefaultDelay, cfg.Faults.Delay)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		_, err := Load(write(t, "election_timeout: 1s\n"))
		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := Load(write(t, "heartbeat_interval: 500ms\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("host: 0.0.0.0\nrpc_timeout: 50ms\n"))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 50*time.Millisecond, cfg.RPCTimeout)

	_, err = Parse([]byte("base_port: -1\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty host", func(c *Config) { c.Host = "" }},
		{"port too large", func(c *Config) { c.BasePort = 70000 }},
		{"zero election min", func(c *Config) { c.ElectionTimeoutMin = 0 }},
		{"max not above min", func(c *Config) { c.ElectionTimeoutMax = c.ElectionTimeoutMin }},
		{"heartbeat too slow", func(c *Config) { c.HeartbeatInterval = c.ElectionTimeoutMin }},
		{"negative command timeout", func(c *Config) { c.CommandTimeout = -1 }},
		{"zero rpc timeout", func(c *Config) { c.RPCTimeout = 0 }},
		{"no vote attempts", func(c *Config) { c.RequestVoteRetries = 0 }},
		{"backoff above max", func(c *Config) { c.RetryBackoff = time.Second }},
		{"loss rate of one", func(c *Config) { c.Faults.LossRate = 1 }},
		{"negative delay", func(c *Config) { c.Faults.Delay = -time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestBackoff(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 10*time.Millisecond, cfg.Backoff(0))
	assert.Equal(t, 30*time.Millisecond, cfg.Backoff(2))
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff(50))
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
