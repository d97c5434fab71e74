package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.DBPath != "data/ownspend.db" {
		t.Errorf("db path: got %q", cfg.DBPath)
	}
	if cfg.SyncIntervalMinutes != 15 {
		t.Errorf("sync interval: got %d, want 15", cfg.SyncIntervalMinutes)
	}
	if cfg.RetryBaseDelaySeconds != 30 {
		t.Errorf("retry base delay: got %d, want 30", cfg.RetryBaseDelaySeconds)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("retention days: got %d, want 7", cfg.RetentionDays)
	}
	if cfg.CaptureQueueSize != 256 {
		t.Errorf("capture queue size: got %d, want 256", cfg.CaptureQueueSize)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("OWNSPEND_DB_PATH", "/tmp/test.db")
	t.Setenv("OWNSPEND_SYNC_INTERVAL_MINUTES", "5")
	t.Setenv("OWNSPEND_RETENTION_DAYS", "30")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("db path: got %q", cfg.DBPath)
	}
	if cfg.SyncInterval() != 5*time.Minute {
		t.Errorf("sync interval: got %v, want 5m", cfg.SyncInterval())
	}
	if cfg.RetentionWindow() != 30*24*time.Hour {
		t.Errorf("retention window: got %v", cfg.RetentionWindow())
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{SyncIntervalMinutes: 15, RetryBaseDelaySeconds: 30, RetentionDays: 7}

	if cfg.SyncInterval() != 15*time.Minute {
		t.Errorf("sync interval: got %v", cfg.SyncInterval())
	}
	if cfg.RetryBaseDelay() != 30*time.Second {
		t.Errorf("retry base delay: got %v", cfg.RetryBaseDelay())
	}
	if cfg.RetentionWindow() != 7*24*time.Hour {
		t.Errorf("retention window: got %v", cfg.RetentionWindow())
	}
}
