package codegraph

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadRepoConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".codegraph"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultConfigPath), []byte(`
database: /tmp/graph.db
workers: 2
commit_batch_size: 10
lock_policy: reject
discovery:
  ignore: [fixtures, "*.gen.ts"]
  max_file_size: 4096
query:
  default_depth: 5
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := LoadRepoConfig(root)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/graph.db", cfg.Database)
	assert.Equal(t, DefaultConfig().SearchIndex, cfg.SearchIndex)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "reject", cfg.LockPolicy)
	assert.Equal(t, []string{"fixtures", "*.gen.ts"}, cfg.Discovery.Ignore)
	assert.Equal(t, int64(4096), cfg.Discovery.MaxFileSize)
	assert.Equal(t, 5, cfg.Query.DefaultDepth)
	assert.Equal(t, 256, cfg.Query.CacheSize)
	assert.Equal(t, "json", cfg.Log.Format)

	e := New(nil, cfg.EngineOptions()...)
	assert.Equal(t, 2, e.workers)
	assert.Equal(t, 10, e.batchSize)
	assert.Equal(t, LockReject, e.policy)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2]\n"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"negative batch", func(c *Config) { c.CommitBatchSize = -5 }},
		{"lock policy", func(c *Config) { c.LockPolicy = "sometimes" }},
		{"max file size", func(c *Config) { c.Discovery.MaxFileSize = -1 }},
		{"depth", func(c *Config) { c.Query.DefaultDepth = 101 }},
		{"cache", func(c *Config) { c.Query.CacheSize = -1 }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
	lvl, err = ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestParseLockPolicy(t *testing.T) {
	p, err := ParseLockPolicy("")
	require.NoError(t, err)
	assert.Equal(t, LockQueue, p)
	_, err = ParseLockPolicy("maybe")
	assert.Error(t, err)
}
