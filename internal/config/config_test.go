package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Scan.ProviderTimeout != 30*time.Second {
		t.Errorf("provider timeout = %v, want 30s", cfg.Scan.ProviderTimeout)
	}
	if cfg.Reconciler.StuckThreshold != 15*time.Minute {
		t.Errorf("stuck threshold = %v, want 15m", cfg.Reconciler.StuckThreshold)
	}
	if cfg.Reconciler.PendingThreshold != 10*time.Minute {
		t.Errorf("pending threshold = %v, want 10m", cfg.Reconciler.PendingThreshold)
	}
	if cfg.Webhooks.MaxAttempts != 5 || cfg.Webhooks.BackoffMultiplier != 2 {
		t.Errorf("webhook defaults = %+v", cfg.Webhooks)
	}
	if len(cfg.Scan.DefaultProviders) == 0 {
		t.Error("default providers empty")
	}
	if cfg.Scan.BurstLimit != 10 || cfg.Scan.BurstWindow != time.Minute {
		t.Errorf("burst defaults = %d/%v, want 10/1m", cfg.Scan.BurstLimit, cfg.Scan.BurstWindow)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9999
scan:
  daily_quota: 5
reconciler:
  stuck_threshold: 30m
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Scan.DailyQuota != 5 {
		t.Errorf("daily quota = %d, want 5", cfg.Scan.DailyQuota)
	}
	if cfg.Reconciler.StuckThreshold != 30*time.Minute {
		t.Errorf("stuck threshold = %v, want 30m", cfg.Reconciler.StuckThreshold)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q, want default", cfg.Server.Host)
	}
	if cfg.Webhooks.MaxAttempts != 5 {
		t.Errorf("webhook max attempts = %d, want default 5", cfg.Webhooks.MaxAttempts)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML should fail to load")
	}
}
