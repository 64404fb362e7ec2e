// Package config holds the tunables of a Raft peer and loads them from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every error returned from Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

const (
	DefaultHost               = "127.0.0.1"
	DefaultBasePort           = 7000
	DefaultElectionTimeoutMin = 200 * time.Millisecond
	DefaultElectionTimeoutMax = 400 * time.Millisecond
	DefaultHeartbeatInterval  = 100 * time.Millisecond
	DefaultCommandTimeout     = 100 * time.Millisecond
	DefaultRPCTimeout         = 100 * time.Millisecond
	DefaultRequestVoteRetries = 1
	DefaultRetryBackoff       = 10 * time.Millisecond
	DefaultMaxRetryBackoff    = 100 * time.Millisecond

	// Loss and delay of a leaky link when fault injection is enabled without explicit values.
	DefaultLossRate = 0.05
	DefaultDelay    = 2 * time.Millisecond
)

// Faults configures the client side fault injection of the transport.
type Faults struct {
	Enabled  bool          `yaml:"enabled"`
	LossRate float64       `yaml:"loss_rate"`
	Delay    time.Duration `yaml:"delay"`
}

// Config is the configuration of one peer. Durations are written as Go duration strings ("150ms") in YAML.
type Config struct {
	// Host every peer listens on. Peer i listens on Host:BasePort+i.
	Host     string `yaml:"host"`
	BasePort int    `yaml:"base_port"`

	// The election interval is drawn uniformly from [ElectionTimeoutMin, ElectionTimeoutMax) once per peer.
	ElectionTimeoutMin time.Duration `yaml:"election_timeout_min"`
	ElectionTimeoutMax time.Duration `yaml:"election_timeout_max"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`

	// CommandTimeout bounds how long NewCommand waits for the appended entry to commit.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// RPCTimeout bounds a single outbound attempt.
	RPCTimeout         time.Duration `yaml:"rpc_timeout"`
	RequestVoteRetries int           `yaml:"request_vote_retries"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	MaxRetryBackoff    time.Duration `yaml:"max_retry_backoff"`

	Faults Faults `yaml:"faults"`
}

func Default() Config {
	return Config{
		Host:               DefaultHost,
		BasePort:           DefaultBasePort,
		ElectionTimeoutMin: DefaultElectionTimeoutMin,
		ElectionTimeoutMax: DefaultElectionTimeoutMax,
		HeartbeatInterval:  DefaultHeartbeatInterval,
		CommandTimeout:     DefaultCommandTimeout,
		RPCTimeout:         DefaultRPCTimeout,
		RequestVoteRetries: DefaultRequestVoteRetries,
		RetryBackoff:       DefaultRetryBackoff,
		MaxRetryBackoff:    DefaultMaxRetryBackoff,
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to open config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load for an in-memory document.
func Parse(data []byte) (Config, error) {
	return decode(bytes.NewReader(data))
}

func decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	// An empty document leaves the defaults untouched.
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.applyFaultDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyFaultDefaults gives an enabled but unspecified fault section the leaky link defaults.
func (c *Config) applyFaultDefaults() {
	if c.Faults.Enabled && c.Faults.LossRate == 0 && c.Faults.Delay == 0 {
		c.Faults.LossRate = DefaultLossRate
		c.Faults.Delay = DefaultDelay
	}
}

func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: host is empty", ErrInvalidConfig)
	case c.BasePort <= 0 || c.BasePort > 65535:
		return fmt.Errorf("%w: base_port %d out of range", ErrInvalidConfig, c.BasePort)
	case c.ElectionTimeoutMin <= 0:
		return fmt.Errorf("%w: election_timeout_min must be positive", ErrInvalidConfig)
	case c.ElectionTimeoutMax <= c.ElectionTimeoutMin:
		return fmt.Errorf("%w: election_timeout_max (%v) must exceed election_timeout_min (%v)",
			ErrInvalidConfig, c.ElectionTimeoutMax, c.ElectionTimeoutMin)
	case c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.ElectionTimeoutMin:
		return fmt.Errorf("%w: heartbeat_interval (%v) must be positive and below election_timeout_min",
			ErrInvalidConfig, c.HeartbeatInterval)
	case c.CommandTimeout < 0:
		return fmt.Errorf("%w: command_timeout is negative", ErrInvalidConfig)
	case c.RPCTimeout <= 0:
		return fmt.Errorf("%w: rpc_timeout must be positive", ErrInvalidConfig)
	case c.RequestVoteRetries < 1:
		return fmt.Errorf("%w: request_vote_retries must be at least 1", ErrInvalidConfig)
	case c.RetryBackoff <= 0 || c.MaxRetryBackoff < c.RetryBackoff:
		return fmt.Errorf("%w: retry_backoff must be positive and not above max_retry_backoff", ErrInvalidConfig)
	case c.Faults.LossRate < 0 || c.Faults.LossRate >= 1:
		return fmt.Errorf("%w: faults.loss_rate must be in [0, 1)", ErrInvalidConfig)
	case c.Faults.Delay < 0:
		return fmt.Errorf("%w: faults.delay is negative", ErrInvalidConfig)
	}
	return nil
}

// Backoff returns the pause before retry number attempt (0-based): linear in attempt, capped at MaxRetryBackoff.
func (c Config) Backoff(attempt int) time.Duration {
	backoff := c.RetryBackoff * time.Duration(attempt+1)
	if backoff > c.MaxRetryBackoff {
		backoff = c.MaxRetryBackoff
	}
	return backoff
}
