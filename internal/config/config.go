// Package config loads engine configuration from .codesweep.yaml and
// environment variables. Precedence is flags > environment > file >
// defaults; the CLI layer applies flag overrides after calling Load.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/codesweep/codesweep/internal/scan"
)

// DefaultFileName is the config file the CLI looks for in the scan root.
const DefaultFileName = ".codesweep.yaml"

// Config is the file-level engine configuration.
type Config struct {
	// Mode is the default scan mode when --mode is not given.
	// Options: "quick" or "deep". Default: quick.
	Mode string `yaml:"mode"`

	// Tools overrides the plugin set for every scan. Empty means
	// mode-based selection.
	Tools []string `yaml:"tools"`

	// Workers is the parallel plugin execution limit.
	// Default: 4, Range: 1-64.
	Workers int `yaml:"workers"`

	// MaxAttempts is how many times a failing plugin is run before it
	// is marked failed. Default: 3, Range: 1-10.
	MaxAttempts int `yaml:"max_attempts"`

	// InitialBackoffMS is the first retry delay in milliseconds; it
	// doubles per attempt. Default: 500.
	InitialBackoffMS int `yaml:"initial_backoff_ms"`

	Cache CacheConfig `yaml:"cache"`
	LLM   LLMConfig   `yaml:"llm"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	// Path is the SQLite cache file. Empty selects ~/.codesweep/cache.db.
	Path string `yaml:"path"`

	// Disabled switches the cache off entirely; every scan recomputes.
	Disabled bool `yaml:"disabled"`
}

// LLMConfig controls the deep-mode explanation stage.
type LLMConfig struct {
	// Model names the Anthropic model; empty selects the default,
	// CODESWEEP_MODEL overrides both.
	Model string `yaml:"model"`

	// BatchSize is findings per LLM call. Default: 10, Range: 1-50.
	BatchSize int `yaml:"batch_size"`

	// MaxConcurrent is LLM batches in flight. Default: 3, Range: 1-10.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Mode:             string(scan.ModeQuick),
		Workers:          4,
		MaxAttempts:      3,
		InitialBackoffMS: 500,
		LLM: LLMConfig{
			BatchSize:     10,
			MaxConcurrent: 3,
		},
	}
}

// Load reads the configuration file at path, or DefaultFileName under
// root when path is empty. A missing file is not an error: defaults
// apply. Environment variables are applied on top.
func Load(root, path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(root, DefaultFileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// no file, defaults apply
	case err != nil:
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays CODESWEEP_* environment variables onto cfg.
//
//   - CODESWEEP_MODE: default scan mode
//   - CODESWEEP_WORKERS: parallel plugin limit
//   - CODESWEEP_CACHE_PATH: SQLite cache file
//   - CODESWEEP_NO_CACHE: disable the cache ("1" or "true")
func applyEnv(cfg *Config) error {
	if v := os.Getenv("CODESWEEP_MODE"); v != "" {
		cfg.Mode = v
	}
	if err := parseEnvInt("CODESWEEP_WORKERS", &cfg.Workers); err != nil {
		return err
	}
	if v := os.Getenv("CODESWEEP_CACHE_PATH"); v != "" {
		cfg.Cache.Path = v
	}
	if v := os.Getenv("CODESWEEP_NO_CACHE"); v == "1" || v == "true" {
		cfg.Cache.Disabled = true
	}
	return nil
}

func parseEnvInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	*target = n
	return nil
}

// Validate checks the configuration ranges.
func (c Config) Validate() error {
	if c.Mode != string(scan.ModeQuick) && c.Mode != string(scan.ModeDeep) {
		return fmt.Errorf("mode must be %q or %q (got %q)", scan.ModeQuick, scan.ModeDeep, c.Mode)
	}
	if c.Workers < 1 || c.Workers > 64 {
		return fmt.Errorf("workers must be between 1 and 64 (got %d)", c.Workers)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("max_attempts must be between 1 and 10 (got %d)", c.MaxAttempts)
	}
	if c.InitialBackoffMS < 0 {
		return fmt.Errorf("initial_backoff_ms cannot be negative (got %d)", c.InitialBackoffMS)
	}
	if c.LLM.BatchSize < 1 || c.LLM.BatchSize > 50 {
		return fmt.Errorf("llm.batch_size must be between 1 and 50 (got %d)", c.LLM.BatchSize)
	}
	if c.LLM.MaxConcurrent < 1 || c.LLM.MaxConcurrent > 10 {
		return fmt.Errorf("llm.max_concurrent must be between 1 and 10 (got %d)", c.LLM.MaxConcurrent)
	}
	return nil
}

// CachePath resolves the cache file location, creating the parent
// directory if needed.
func (c Config) CachePath() (string, error) {
	path := c.Cache.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".codesweep", "cache.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	return path, nil
}
