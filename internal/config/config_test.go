package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/id-pointer/id-pointer-pool-go/internal/pool"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Pool.Capacity)
	assert.Equal(t, 50, cfg.Pool.MaxPending)
	assert.Equal(t, "none", cfg.Pool.TimeoutMode)
	assert.True(t, cfg.Pool.ReleaseHealthCheck)
	assert.Equal(t, ":8080", cfg.Diagnostics.Listen)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "idpool.yaml")
	contents := `
pool:
  capacity: 5
  max_pending: 3
  timeout_mode: fail
  acquire_timeout: 250ms
diagnostics:
  listen: ":9999"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Pool.Capacity)
	assert.Equal(t, 3, cfg.Pool.MaxPending)
	assert.Equal(t, "fail", cfg.Pool.TimeoutMode)
	assert.Equal(t, ":9999", cfg.Diagnostics.Listen)
}

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPoolDefaultsConfig_ToPoolConfig(t *testing.T) {
	c := PoolDefaultsConfig{
		Capacity:       4,
		MaxPending:     8,
		TimeoutMode:    "new",
		SelectionOrder: "fifo",
		AcquireTimeout: 0,
	}
	got, err := c.ToPoolConfig()
	require.NoError(t, err)
	assert.Equal(t, pool.TimeoutModeNew, got.TimeoutMode)
	assert.Equal(t, pool.FIFO, got.SelectionOrder)
	assert.Equal(t, 4, got.Capacity)
}

func TestPoolDefaultsConfig_ToPoolConfigRejectsUnknownMode(t *testing.T) {
	c := PoolDefaultsConfig{Capacity: 1, MaxPending: 1, TimeoutMode: "bogus"}
	_, err := c.ToPoolConfig()
	assert.Error(t, err)
}

func TestPoolDefaultsConfig_ToPoolConfigRejectsUnknownOrder(t *testing.T) {
	c := PoolDefaultsConfig{Capacity: 1, MaxPending: 1, SelectionOrder: "bogus"}
	_, err := c.ToPoolConfig()
	assert.Error(t, err)
}
