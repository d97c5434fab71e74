// Package config holds the agent process configuration.
package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// DBPath is the path to the local event database file.
	// Environment variable: OWNSPEND_DB_PATH
	DBPath string `koanf:"OWNSPEND_DB_PATH"`

	// SettingsPath is the path to the JSON sync-settings file.
	// Environment variable: OWNSPEND_SETTINGS_PATH
	SettingsPath string `koanf:"OWNSPEND_SETTINGS_PATH"`

	// BridgeAddr is the listen address of the local capture bridge.
	// Environment variable: OWNSPEND_BRIDGE_ADDR
	BridgeAddr string `koanf:"OWNSPEND_BRIDGE_ADDR"`

	// SyncIntervalMinutes is the periodic sync interval in minutes.
	// Environment variable: OWNSPEND_SYNC_INTERVAL_MINUTES
	SyncIntervalMinutes int `koanf:"OWNSPEND_SYNC_INTERVAL_MINUTES"`

	// RetryBaseDelaySeconds is the base delay for exponential pass-retry
	// backoff, in seconds.
	// Environment variable: OWNSPEND_RETRY_BASE_DELAY_SECONDS
	RetryBaseDelaySeconds int `koanf:"OWNSPEND_RETRY_BASE_DELAY_SECONDS"`

	// MaxPassRetries is the maximum number of backoff retries after a
	// totally failed pass.
	// Environment variable: OWNSPEND_MAX_PASS_RETRIES
	MaxPassRetries int `koanf:"OWNSPEND_MAX_PASS_RETRIES"`

	// RetentionDays is the number of days synced events are kept locally.
	// Environment variable: OWNSPEND_RETENTION_DAYS
	RetentionDays int `koanf:"OWNSPEND_RETENTION_DAYS"`

	// CaptureQueueSize bounds the in-memory handoff queue between the OS
	// callback and the classifier worker.
	// Environment variable: OWNSPEND_CAPTURE_QUEUE_SIZE
	CaptureQueueSize int `koanf:"OWNSPEND_CAPTURE_QUEUE_SIZE"`
}

// Load reads configuration from environment variables and applies defaults.
func Load() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "data/ownspend.db"
	}
	if c.SettingsPath == "" {
		c.SettingsPath = "data/settings.json"
	}
	if c.BridgeAddr == "" {
		c.BridgeAddr = "127.0.0.1:8765"
	}
	if c.SyncIntervalMinutes <= 0 {
		c.SyncIntervalMinutes = 15
	}
	if c.RetryBaseDelaySeconds <= 0 {
		c.RetryBaseDelaySeconds = 30
	}
	if c.MaxPassRetries <= 0 {
		c.MaxPassRetries = 5
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 7
	}
	if c.CaptureQueueSize <= 0 {
		c.CaptureQueueSize = 256
	}
}

// SyncInterval returns the periodic sync interval as a duration.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMinutes) * time.Minute
}

// RetryBaseDelay returns the backoff base delay as a duration.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySeconds) * time.Second
}

// RetentionWindow returns the retention window as a duration.
func (c Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
