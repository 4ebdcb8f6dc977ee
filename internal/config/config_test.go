package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Coordinator.MaxConcurrency)
	assert.Equal(t, 50, cfg.Iterator.HardIterationCap)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("coordinator:\n  max_concurrency: 8\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Coordinator.MaxConcurrency)
	assert.Equal(t, 50, cfg.Iterator.HardIterationCap) // untouched defaults survive
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nexus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("coordinator:\n  max_concurrency: 8\n"), 0o644))
	t.Setenv("NEXUS_COORDINATOR_MAX_CONCURRENCY", "12")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Coordinator.MaxConcurrency)
}

func TestValidate_RejectsSoftCapAboveHardCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Iterator.SoftIterationCap = 100
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsEmptyEscalationChannels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Escalation.Channels = nil
	require.Error(t, cfg.Validate())
}
