package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-reactive/datalog"
	"github.com/wbrown/janus-reactive/datalog/storage"
)

func TestLoadYAMLAndTOMLAgree(t *testing.T) {
	fromYAML, err := Load("testdata/factdb.yaml")
	require.NoError(t, err)
	fromTOML, err := Load("testdata/factdb.toml")
	require.NoError(t, err)

	assert.Equal(t, fromYAML, fromTOML)
	assert.Equal(t, StorageConfig{Backend: "pebble", Path: "/var/lib/factdb"}, fromYAML.Storage)
	assert.Equal(t, 512, fromYAML.Subscriptions.QueryCacheSize)
	assert.Equal(t, OutboundConfig{BatchSize: 32, Parallel: 2}, fromYAML.Outbound)
	assert.Equal(t, 128, fromYAML.Engine.QueueSize)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, fromYAML.Log)
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load("testdata/partial.yaml")
	require.NoError(t, err)

	want := Default()
	want.Storage = StorageConfig{Backend: "sqlite", Path: "facts.db"}
	assert.Equal(t, want, cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("testdata/bad_backend.toml")
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.ErrorIs(t, err, storage.ErrUnknownBackend)

	_, err = Load("testdata/missing.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "factdb.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"disk backend without path", func(c *Config) { c.Storage = StorageConfig{Backend: "badger"} }, false},
		{"memory without path", func(c *Config) { c.Storage = StorageConfig{Backend: "memory"} }, true},
		{"zero batch size", func(c *Config) { c.Outbound.BatchSize = 0 }, false},
		{"negative parallel", func(c *Config) { c.Outbound.Parallel = -1 }, false},
		{"zero queue", func(c *Config) { c.Engine.QueueSize = 0 }, false},
		{"zero cache", func(c *Config) { c.Subscriptions.QueryCacheSize = 0 }, false},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, false},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, false},
		{"empty backend", func(c *Config) { c.Storage.Backend = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Errorf("Validate() = nil, want error")
			}
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log = LogConfig{Level: "warn", Format: "json"}

	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "facts", 3)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"facts":3`)
}

func TestOpenStore(t *testing.T) {
	cfg := Default()
	cfg.Storage = StorageConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "facts.db")}

	store, err := cfg.OpenStore()
	require.NoError(t, err)
	defer store.Close()

	f := datalog.MustFact("a", "b", "c")
	require.NoError(t, store.SetFact(f))
}
