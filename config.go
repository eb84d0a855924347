package codegraph

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where LoadConfig looks inside a repository root.
const DefaultConfigPath = ".codegraph/config.yaml"

// Config is the on-disk configuration. Zero values fall back to defaults.
type Config struct {
	Database        string          `yaml:"database"`
	SearchIndex     string          `yaml:"search_index"`
	Workers         int             `yaml:"workers"`
	CommitBatchSize int             `yaml:"commit_batch_size"`
	LockPolicy      string          `yaml:"lock_policy"`
	Discovery       DiscoveryConfig `yaml:"discovery"`
	Query           QueryConfig     `yaml:"query"`
	Log             LogConfig       `yaml:"log"`
}

type DiscoveryConfig struct {
	Ignore      []string `yaml:"ignore"`
	MaxFileSize int64    `yaml:"max_file_size"`
}

type QueryConfig struct {
	DefaultDepth int `yaml:"default_depth"`
	CacheSize    int `yaml:"cache_size"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Database:        ".codegraph/codegraph.db",
		SearchIndex:     ".codegraph/search.bleve",
		Workers:         runtime.NumCPU(),
		CommitBatchSize: 100,
		LockPolicy:      string(LockQueue),
		Discovery:       DiscoveryConfig{MaxFileSize: 1 << 20},
		Query:           QueryConfig{DefaultDepth: 3, CacheSize: 256},
		Log:             LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads path over DefaultConfig. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadRepoConfig loads DefaultConfigPath under root.
func LoadRepoConfig(root string) (Config, error) {
	return LoadConfig(filepath.Join(root, DefaultConfigPath))
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	if c.CommitBatchSize < 0 {
		errs = append(errs, fmt.Errorf("commit_batch_size must be >= 0, got %d", c.CommitBatchSize))
	}
	if _, err := ParseLockPolicy(c.LockPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.Discovery.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("discovery.max_file_size must be >= 0"))
	}
	if c.Query.DefaultDepth < 0 || c.Query.DefaultDepth > maxImpactDepth {
		errs = append(errs, fmt.Errorf("query.default_depth must be in 0..%d, got %d", maxImpactDepth, c.Query.DefaultDepth))
	}
	if c.Query.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("query.cache_size must be >= 0"))
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// EngineOptions translates the config into Engine options.
func (c Config) EngineOptions() []Option {
	policy, _ := ParseLockPolicy(c.LockPolicy)
	return []Option{
		WithWorkers(c.Workers),
		WithCommitBatchSize(c.CommitBatchSize),
		WithLockPolicy(policy),
	}
}
