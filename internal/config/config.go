// Package config loads simdex configuration: hardcoded defaults, then
// the user config, then the project config, then SIMDEX_* environment
// overrides, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, constructed once at startup
// and passed into constructors explicitly.
type Config struct {
	Version int           `yaml:"version"`
	Storage StorageConfig `yaml:"storage"`
	Compare CompareConfig `yaml:"compare"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig selects and locates the document store.
type StorageConfig struct {
	// Backend names the store implementation. Only "bleve" supports
	// the similarity analytics; other values make compare/group skip
	// cleanly.
	Backend string `yaml:"backend"`

	// DataDir holds the blocking index, the sample database, and the
	// compare run lock.
	DataDir string `yaml:"data_dir"`
}

// CompareConfig tunes the compare analytic.
type CompareConfig struct {
	// PageSize is the scroll page size for store iteration.
	PageSize int `yaml:"page_size"`

	// Workers bounds the parallel per-sample loop. 1 reproduces the
	// single-threaded reference behavior.
	Workers int `yaml:"workers"`

	// CacheSize is the sample read cache capacity (entries).
	CacheSize int `yaml:"cache_size"`

	// Comparator names the similarity scorer. Only "ssdeep" is built
	// in; an unknown name makes compare a logged no-op.
	Comparator string `yaml:"comparator"`
}

// IngestConfig tunes the ingest worker.
type IngestConfig struct {
	// Debounce is how long a watched file must stay quiet before it is
	// ingested, as a Go duration string.
	Debounce string `yaml:"debounce"`

	// DeleteAfter removes files from the drop directory once stored.
	DeleteAfter bool `yaml:"delete_after"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn, error.
	Level string `yaml:"level"`

	// File is an optional log file path. Empty means stderr only.
	File string `yaml:"file"`
}

// New returns the hardcoded defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			Backend: "bleve",
			DataDir: defaultDataDir(),
		},
		Compare: CompareConfig{
			PageSize:   1000,
			Workers:    1,
			CacheSize:  4096,
			Comparator: "ssdeep",
		},
		Ingest: IngestConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".simdex")
	}
	return filepath.Join(home, ".simdex")
}

// UserConfigPath returns the user/global configuration path, following
// XDG conventions.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "simdex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "simdex", "config.yaml")
	}
	return filepath.Join(home, ".config", "simdex", "config.yaml")
}

// Load builds the configuration for a run started in dir. Precedence,
// lowest to highest: defaults, user config, <dir>/.simdex.yaml,
// environment variables.
func Load(dir string) (*Config, error) {
	cfg := New()

	if path := UserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if path := filepath.Join(dir, ".simdex.yaml"); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile builds the configuration from an explicit file, still
// applying defaults underneath and environment overrides on top.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Storage.Backend != "" {
		c.Storage.Backend = other.Storage.Backend
	}
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Compare.PageSize != 0 {
		c.Compare.PageSize = other.Compare.PageSize
	}
	if other.Compare.Workers != 0 {
		c.Compare.Workers = other.Compare.Workers
	}
	if other.Compare.CacheSize != 0 {
		c.Compare.CacheSize = other.Compare.CacheSize
	}
	if other.Compare.Comparator != "" {
		c.Compare.Comparator = other.Compare.Comparator
	}
	if other.Ingest.Debounce != "" {
		c.Ingest.Debounce = other.Ingest.Debounce
	}
	if other.Ingest.DeleteAfter {
		c.Ingest.DeleteAfter = true
	}
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SIMDEX_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("SIMDEX_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("SIMDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Compare.Workers = n
		}
	}
	if v := os.Getenv("SIMDEX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Compare.PageSize = n
		}
	}
	if v := os.Getenv("SIMDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks shapes, not backend support: an unsupported backend
// is a clean analytic skip, not a configuration error.
func (c *Config) Validate() error {
	if c.Storage.Backend == "" {
		return fmt.Errorf("storage.backend must not be empty")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Compare.PageSize <= 0 {
		return fmt.Errorf("compare.page_size must be positive, got %d", c.Compare.PageSize)
	}
	if c.Compare.Workers <= 0 {
		return fmt.Errorf("compare.workers must be positive, got %d", c.Compare.Workers)
	}
	if c.Compare.CacheSize <= 0 {
		return fmt.Errorf("compare.cache_size must be positive, got %d", c.Compare.CacheSize)
	}
	if _, err := c.IngestDebounce(); err != nil {
		return err
	}
	return nil
}

// IngestDebounce parses the ingest debounce duration.
func (c *Config) IngestDebounce() (time.Duration, error) {
	d, err := time.ParseDuration(c.Ingest.Debounce)
	if err != nil {
		return 0, fmt.Errorf("ingest.debounce: %w", err)
	}
	return d, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
