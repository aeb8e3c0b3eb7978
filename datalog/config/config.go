// Package config loads factdb settings from YAML or TOML.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/wbrown/janus-reactive/datalog/storage"
)

// ErrUnknownBackend is returned by Validate for an unrecognised storage
// backend. It is the same error storage.Open returns.
var ErrUnknownBackend = storage.ErrUnknownBackend

// Config is the complete factdb configuration.
type Config struct {
	Storage       StorageConfig      `yaml:"storage" toml:"storage"`
	Subscriptions SubscriptionConfig `yaml:"subscriptions" toml:"subscriptions"`
	Outbound      OutboundConfig     `yaml:"outbound" toml:"outbound"`
	Engine        EngineConfig       `yaml:"engine" toml:"engine"`
	Log           LogConfig          `yaml:"log" toml:"log"`
}

// StorageConfig selects the fact store.
type StorageConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // memory, badger, pebble or sqlite
	Path    string `yaml:"path" toml:"path"`       // ignored for memory
}

type SubscriptionConfig struct {
	QueryCacheSize int `yaml:"query_cache_size" toml:"query_cache_size"`
}

// OutboundConfig shapes per-peer delivery.
type OutboundConfig struct {
	BatchSize int `yaml:"batch_size" toml:"batch_size"`
	Parallel  int `yaml:"parallel" toml:"parallel"`
}

type EngineConfig struct {
	QueueSize int `yaml:"queue_size" toml:"queue_size"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn or error
	Format string `yaml:"format" toml:"format"` // text or json
}

// Default returns a config with default values.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: storage.KindMemory,
			Path:    "./data",
		},
		Subscriptions: SubscriptionConfig{QueryCacheSize: 1024},
		Outbound:      OutboundConfig{BatchSize: 64, Parallel: 1},
		Engine:        EngineConfig{QueueSize: 256},
		Log:           LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and validates the result. The decoder
// is chosen by extension: .yaml, .yml or .toml.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err = toml.Decode(string(data), cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	known := false
	for _, k := range storage.Kinds {
		if c.Storage.Backend == k {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("storage.backend: %w: %q", ErrUnknownBackend, c.Storage.Backend)
	}
	if storage.NeedsPath(c.Storage.Backend) && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
	}

	for name, n := range map[string]int{
		"subscriptions.query_cache_size": c.Subscriptions.QueryCacheSize,
		"outbound.batch_size":            c.Outbound.BatchSize,
		"outbound.parallel":              c.Outbound.Parallel,
		"engine.queue_size":              c.Engine.QueueSize,
	} {
		if n < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, n)
		}
	}

	if _, err := c.Log.level(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// OpenStore opens the configured backend.
func (c *Config) OpenStore() (storage.Store, error) {
	return storage.Open(c.Storage.Backend, c.Storage.Path)
}

// Logger builds a slog logger writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Log.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func (l LogConfig) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
