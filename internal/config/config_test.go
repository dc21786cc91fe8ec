package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte(content), 0o644))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
mode: deep
workers: 8
tools: [todo-scanner, secret-scanner]
cache:
  path: /tmp/sweep.db
llm:
  batch_size: 5
  model: claude-sonnet-4-5
`)

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, "deep", cfg.Mode)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, []string{"todo-scanner", "secret-scanner"}, cfg.Tools)
	assert.Equal(t, "/tmp/sweep.db", cfg.Cache.Path)
	assert.Equal(t, 5, cfg.LLM.BatchSize)
	assert.Equal(t, "claude-sonnet-4-5", cfg.LLM.Model)
	// Untouched fields keep their defaults.
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 3, cfg.LLM.MaxConcurrent)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "mode: [this is: not valid\n")

	_, err := Load(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadValidatesRanges(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad mode", "mode: exhaustive", "mode must be"},
		{"workers too high", "workers: 100", "workers must be between"},
		{"zero attempts", "max_attempts: 0", "max_attempts must be between"},
		{"batch too large", "llm:\n  batch_size: 99", "llm.batch_size must be between"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.yaml)
			_, err := Load(dir, "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "mode: quick\nworkers: 2\n")

	t.Setenv("CODESWEEP_MODE", "deep")
	t.Setenv("CODESWEEP_WORKERS", "6")
	t.Setenv("CODESWEEP_NO_CACHE", "1")

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, "deep", cfg.Mode)
	assert.Equal(t, 6, cfg.Workers)
	assert.True(t, cfg.Cache.Disabled)
}

func TestEnvRejectsNonNumericWorkers(t *testing.T) {
	t.Setenv("CODESWEEP_WORKERS", "many")
	_, err := Load(t.TempDir(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CODESWEEP_WORKERS")
}

func TestCachePathDefaultsUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := Default().CachePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".codesweep", "cache.db"), path)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCachePathExplicit(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Cache.Path = filepath.Join(dir, "nested", "cache.db")

	path, err := cfg.CachePath()
	require.NoError(t, err)
	assert.Equal(t, cfg.Cache.Path, path)
	_, err = os.Stat(filepath.Join(dir, "nested"))
	require.NoError(t, err)
}
