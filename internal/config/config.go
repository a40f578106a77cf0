// Package config loads application configuration for the terminal client.
package config

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

const (
	appDirName      = "newsterminal"
	configFileName  = "config.yaml"
	envToken        = "NEWSTERMINAL_TOKEN"
	defaultInterval = 3 * time.Minute
)

// EndpointConfig locates the upstream aggregator API.
type EndpointConfig struct {
	BaseURL string `yaml:"base_url"`
	// Token is the opaque bearer token attached to forced refreshes. The
	// NEWSTERMINAL_TOKEN environment variable overrides it.
	Token          string `yaml:"token,omitempty"`
	AttemptTimeout string `yaml:"attempt_timeout,omitempty"`
}

// StorageConfig selects the persistent-store backend.
type StorageConfig struct {
	// Backend is "file", "sqlite", or "none".
	Backend string `yaml:"backend"`
	// Path overrides the default state location.
	Path string `yaml:"path,omitempty"`
}

// SyncConfig tunes the batch coordinator and retry policy.
type SyncConfig struct {
	BatchInterval string `yaml:"batch_interval,omitempty"`
	MaxRetries    uint64 `yaml:"max_retries"`
	MaxBackoff    string `yaml:"max_backoff,omitempty"`
}

// Config is the full application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level,omitempty"`
	Endpoint EndpointConfig `yaml:"endpoint"`
	Storage  StorageConfig  `yaml:"storage"`
	Sync     SyncConfig     `yaml:"sync"`
}

// Load reads the config at path, or the user config file, or the embedded
// default, in that order of preference.
func Load(path string) (*Config, error) {
	if path != "" {
		return loadFile(path)
	}

	userPath := filepath.Join(xdg.ConfigHome, appDirName, configFileName)
	if _, err := os.Stat(userPath); err == nil {
		return loadFile(userPath)
	}

	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("load embedded config: %w", err)
	}

	return parse(data)
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Endpoint.BaseURL == "" {
		return nil, fmt.Errorf("parse config: endpoint.base_url is required")
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	switch cfg.Storage.Backend {
	case "file", "sqlite", "none":
	default:
		return nil, fmt.Errorf("parse config: unknown storage backend %q", cfg.Storage.Backend)
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 2
	}

	return &cfg, nil
}

// ResolvedToken returns the bearer token with the environment override
// applied.
func (c *Config) ResolvedToken() string {
	if env := os.Getenv(envToken); env != "" {
		return env
	}

	return c.Endpoint.Token
}

// AttemptTimeout parses the per-attempt network ceiling.
func (c *Config) AttemptTimeout() time.Duration {
	return parseDuration(c.Endpoint.AttemptTimeout, 10*time.Second)
}

// BatchInterval parses the periodic sync cadence.
func (c *Config) BatchInterval() time.Duration {
	return parseDuration(c.Sync.BatchInterval, defaultInterval)
}

// MaxBackoff parses the retry backoff ceiling.
func (c *Config) MaxBackoff() time.Duration {
	return parseDuration(c.Sync.MaxBackoff, 30*time.Second)
}

// StatePath resolves the storage location for the selected backend.
func (c *Config) StatePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	switch c.Storage.Backend {
	case "sqlite":
		return filepath.Join(xdg.StateHome, appDirName, "snapshots.db")
	default:
		return filepath.Join(xdg.StateHome, appDirName, "snapshots")
	}
}

// Level parses the configured slog level, defaulting to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}

	return level
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
