package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config holds all admiral configuration.
type Config struct {
	// SpaceTraders API access
	API APIConfig `yaml:"api"`

	// Shared call gate (rate limiting)
	Gate GateConfig `yaml:"gate"`

	// Procurement engine tunables
	Procure ProcureConfig `yaml:"procure"`

	// Price validation margins
	Market MarketConfig `yaml:"market"`

	// Product catalog overrides
	Goods GoodsConfig `yaml:"goods"`

	// Transaction ledger
	Ledger LedgerConfig `yaml:"ledger"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the SpaceTraders client.
type APIConfig struct {
	Token   string `yaml:"token" env:"ADMIRAL_TOKEN"`
	BaseURL string `yaml:"base_url" env:"ADMIRAL_BASE_URL"`
	Timeout string `yaml:"timeout"`
}

// GateConfig configures the shared call gate.
type GateConfig struct {
	Slots       int    `yaml:"slots"`
	MinInterval string `yaml:"min_interval"`
	BackoffBase string `yaml:"backoff_base"`
	BackoffCap  string `yaml:"backoff_cap"`
}

// ProcureConfig configures batch execution and the delivery coordinator.
type ProcureConfig struct {
	// Per-batch retry budget for transient API failures
	MaxAttempts int    `yaml:"max_attempts"`
	BaseBackoff string `yaml:"base_backoff"`
	CapBackoff  string `yaml:"cap_backoff"`

	// Source-allocate-execute rounds per contract line
	MaxPasses int `yaml:"max_passes"`

	// Units per deliver call; zero delivers a full hold at once
	DeliveryChunk int `yaml:"delivery_chunk"`

	// Stop sourcing this close to the contract deadline
	DeadlineMargin string `yaml:"deadline_margin"`
}

// MarketConfig configures the price validator's acceptance band.
type MarketConfig struct {
	LowTolerance float64 `yaml:"low_tolerance"`
	SafetyMargin float64 `yaml:"safety_margin"`
}

// GoodsConfig configures the product catalog.
type GoodsConfig struct {
	// Optional YAML override file, hot-reloaded while the bot runs
	OverridesPath string `yaml:"overrides_path" env:"ADMIRAL_GOODS_OVERRIDES"`
}

// LedgerConfig configures the SQLite transaction ledger.
type LedgerConfig struct {
	Path string `yaml:"path" env:"ADMIRAL_DB_PATH"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level" env:"ADMIRAL_LOG_LEVEL"` // debug, info, warn, error
}

// DefaultConfig returns the account-safe defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "https://api.spacetraders.io/v2",
			Timeout: "30s",
		},

		Gate: GateConfig{
			Slots:       1,
			MinInterval: "600ms",
			BackoffBase: "1s",
			BackoffCap:  "60s",
		},

		Procure: ProcureConfig{
			MaxAttempts:    4,
			BaseBackoff:    "1s",
			CapBackoff:     "60s",
			MaxPasses:      3,
			DeliveryChunk:  0,
			DeadlineMargin: "5m",
		},

		Market: MarketConfig{
			LowTolerance: 0.5,
			SafetyMargin: 1.1,
		},

		Ledger: LedgerConfig{
			Path: "admiral.db",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration: defaults, then the YAML file if it exists,
// then environment overrides. A missing file is not an error so the bot
// can run on environment variables alone.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetAPITimeout returns the HTTP client timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetGateMinInterval returns the minimum gap between dispatches.
func (c *Config) GetGateMinInterval() time.Duration {
	d, err := time.ParseDuration(c.Gate.MinInterval)
	if err != nil {
		return 600 * time.Millisecond
	}
	return d
}

// GetGateBackoffBase returns the cooldown after the first rate limit.
func (c *Config) GetGateBackoffBase() time.Duration {
	d, err := time.ParseDuration(c.Gate.BackoffBase)
	if err != nil {
		return time.Second
	}
	return d
}

// GetGateBackoffCap returns the cooldown ceiling under sustained
// rate limiting.
func (c *Config) GetGateBackoffCap() time.Duration {
	d, err := time.ParseDuration(c.Gate.BackoffCap)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetBaseBackoff returns the executor's first retry delay.
func (c *Config) GetBaseBackoff() time.Duration {
	d, err := time.ParseDuration(c.Procure.BaseBackoff)
	if err != nil {
		return time.Second
	}
	return d
}

// GetCapBackoff returns the executor's retry delay ceiling.
func (c *Config) GetCapBackoff() time.Duration {
	d, err := time.ParseDuration(c.Procure.CapBackoff)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetDeadlineMargin returns the sourcing cutoff before the deadline.
func (c *Config) GetDeadlineMargin() time.Duration {
	d, err := time.ParseDuration(c.Procure.DeadlineMargin)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// ValidLevels lists the accepted logging levels.
var ValidLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.API.Token == "" {
		return fmt.Errorf("API token not configured (set ADMIRAL_TOKEN or api.token in the config file)")
	}

	if c.Gate.Slots < 1 {
		return fmt.Errorf("gate slots must be at least 1, got %d", c.Gate.Slots)
	}

	validLevel := false
	for _, l := range ValidLevels {
		if c.Logging.Level == l {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid logging level: %s (valid: %v)", c.Logging.Level, ValidLevels)
	}

	return nil
}
