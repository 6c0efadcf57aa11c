// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type FeedConfig struct {
	Transport string `yaml:"transport"` // websocket | nats
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`
	Admin     bool   `yaml:"admin"` // also open the admin audience

	Debounce time.Duration `yaml:"debounce"`
}

type WorkerEndpoint struct {
	Name     string `yaml:"name"`
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Mode     string `yaml:"mode"` // async | sync
}

type WorkersConfig struct {
	Generation WorkerEndpoint `yaml:"generation"`
	Revision   WorkerEndpoint `yaml:"revision"`
}

type RecoveryConfig struct {
	ScanInterval  time.Duration `yaml:"scan_interval"`
	InvokeTimeout time.Duration `yaml:"invoke_timeout"`

	NoWorkerStuckAfter time.Duration `yaml:"no_worker_stuck_after"`
	NoWorkerMaxRetries int           `yaml:"no_worker_max_retries"`
	CallbackStuckAfter time.Duration `yaml:"callback_stuck_after"`
	CallbackMaxRetries int           `yaml:"callback_max_retries"`
	CallbackFailAfter  time.Duration `yaml:"callback_fail_after"`
}

type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Token      string `yaml:"token"`
}

type SweeperConfig struct {
	Cron string `yaml:"cron"`
}

type OpsConfig struct {
	Port int `yaml:"port"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Feed     FeedConfig     `yaml:"feed"`
	Workers  WorkersConfig  `yaml:"workers"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Notify   NotifyConfig   `yaml:"notify"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Ops      OpsConfig      `yaml:"ops"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Feed.Transport == "" {
		cfg.Feed.Transport = "websocket"
	}
	if cfg.Feed.Debounce <= 0 {
		cfg.Feed.Debounce = 100 * time.Millisecond
	}
	if cfg.Recovery.ScanInterval <= 0 {
		cfg.Recovery.ScanInterval = 30 * time.Second
	}
	if cfg.Recovery.InvokeTimeout <= 0 {
		cfg.Recovery.InvokeTimeout = 5 * time.Minute
	}
	if cfg.Recovery.NoWorkerStuckAfter <= 0 {
		cfg.Recovery.NoWorkerStuckAfter = 4 * time.Minute
	}
	if cfg.Recovery.NoWorkerMaxRetries <= 0 {
		cfg.Recovery.NoWorkerMaxRetries = 2
	}
	if cfg.Recovery.CallbackStuckAfter <= 0 {
		cfg.Recovery.CallbackStuckAfter = 10 * time.Minute
	}
	if cfg.Recovery.CallbackMaxRetries <= 0 {
		cfg.Recovery.CallbackMaxRetries = 1
	}
	if cfg.Recovery.CallbackFailAfter <= 0 {
		cfg.Recovery.CallbackFailAfter = 20 * time.Minute
	}
	if cfg.Sweeper.Cron == "" {
		cfg.Sweeper.Cron = "@every 10m"
	}
	if cfg.Ops.Port == 0 {
		cfg.Ops.Port = 8090
	}
	if cfg.Workers.Generation.Mode == "" {
		cfg.Workers.Generation.Mode = "async"
	}
	if cfg.Workers.Revision.Mode == "" {
		cfg.Workers.Revision.Mode = "async"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Feed.URL == "" {
		return nil, errors.New("feed.url is required")
	}
	if cfg.Feed.Transport != "websocket" && cfg.Feed.Transport != "nats" {
		return nil, fmt.Errorf("feed.transport must be websocket or nats, got %q", cfg.Feed.Transport)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
