package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFileEmptyPathReturnsValidatedDefault(t *testing.T) {
	cfg, err := OpenFile("")
	require.NoError(t, err)
	assert.Equal(t, ":"+DefaultPort, cfg.Addr)
	assert.NotZero(t, cfg.Registry.SeedSize)
}

func TestOpenFileReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "digproxy.yaml")
	contents := "digproxy:\n  addr: \":9999\"\n  chain_base_url: \"http://chain.example\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := OpenFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "http://chain.example", cfg.ChainBaseURL)
	assert.NotZero(t, cfg.Registry.SeedSize)
}

func TestApplyEnvOverridesPortAndJobs(t *testing.T) {
	cfg := DefaultConfig
	env := map[string]string{"PORT": "5000", "CONCURRENT_JOBS": "4"}
	ApplyEnv(&cfg, func(k string) string { return env[k] })
	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, 4, cfg.ConcurrentJobs)
}

func TestApplyEnvIgnoresInvalidJobs(t *testing.T) {
	cfg := DefaultConfig
	orig := cfg.ConcurrentJobs
	env := map[string]string{"CONCURRENT_JOBS": "not-a-number"}
	ApplyEnv(&cfg, func(k string) string { return env[k] })
	assert.Equal(t, orig, cfg.ConcurrentJobs)
}
