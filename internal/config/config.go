package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ScanConfig struct {
	// ProviderTimeout is the per-provider budget; each adapter gets its own.
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	// AckWait bounds how long StartScan waits for dispatch to begin before
	// answering "queued" instead of "started".
	AckWait time.Duration `yaml:"ack_wait"`
	// WaitWindow is how long the fan-out waits for all providers before
	// leaving the scan to the reconciler.
	WaitWindow time.Duration `yaml:"wait_window"`
	// DefaultProviders is the provider set used when a request names none.
	DefaultProviders []string `yaml:"default_providers"`
	// DailyQuota is the per-workspace scan allowance per 24h. 0 disables.
	DailyQuota int `yaml:"daily_quota"`
	// BurstLimit bounds submissions per workspace within BurstWindow,
	// ahead of the daily quota. 0 disables.
	BurstLimit  int           `yaml:"burst_limit"`
	BurstWindow time.Duration `yaml:"burst_window"`
}

type ReconcilerConfig struct {
	Interval time.Duration `yaml:"interval"`
	// StuckThreshold is the age past which a non-terminal scan is forced
	// to a terminal state.
	StuckThreshold time.Duration `yaml:"stuck_threshold"`
	// PendingThreshold is the narrower age for the pending-flag cleanup.
	// Deliberately a separate knob from StuckThreshold.
	PendingThreshold time.Duration `yaml:"pending_threshold"`
	BatchSize        int           `yaml:"batch_size"`
}

type WebhookConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	WorkerInterval    time.Duration `yaml:"worker_interval"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Scan       ScanConfig       `yaml:"scan"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Webhooks   WebhookConfig    `yaml:"webhooks"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path: "footprint.db",
		},
		Scan: ScanConfig{
			ProviderTimeout: 30 * time.Second,
			AckWait:         2 * time.Second,
			WaitWindow:      2 * time.Minute,
			DefaultProviders: []string{
				"social_profiles",
				"breach_directory",
				"data_broker",
				"domain_reputation",
				"phone_intel",
			},
			DailyQuota:  25,
			BurstLimit:  10,
			BurstWindow: time.Minute,
		},
		Reconciler: ReconcilerConfig{
			Interval:         time.Minute,
			StuckThreshold:   15 * time.Minute,
			PendingThreshold: 10 * time.Minute,
			BatchSize:        100,
		},
		Webhooks: WebhookConfig{
			MaxAttempts:       5,
			BackoffMultiplier: 2,
			RequestTimeout:    15 * time.Second,
			WorkerInterval:    30 * time.Second,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}
