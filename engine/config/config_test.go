package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.toml")
	content := `
app_name = "toml app"
frames_in_flight = 2
dynamic_per_frame_size = 4096
log_level = "debug"

[pools]
buffers = 16
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "toml app", cfg.AppName)
	assert.Equal(t, uint32(2), cfg.FramesInFlight)
	assert.Equal(t, uint32(4096), cfg.DynamicPerFrameSize)
	assert.Equal(t, uint32(16), cfg.Pools.Buffers)
	assert.Equal(t, "debug", cfg.LogLevel)
	// untouched keys keep their defaults
	assert.Equal(t, Default().Pools.Textures, cfg.Pools.Textures)
	assert.Equal(t, Default().Width, cfg.Width)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yml")
	content := "app_name: yaml app\nvsync: false\npools:\n  samplers: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml app", cfg.AppName)
	assert.False(t, cfg.VSync)
	assert.Equal(t, uint32(4), cfg.Pools.Samplers)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	ini := filepath.Join(dir, "device.ini")
	require.NoError(t, os.WriteFile(ini, []byte("a=b"), 0o644))
	_, err = Load(ini)
	assert.ErrorContains(t, err, "unsupported config format")

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("frames_in_flight = 1\n"), 0o644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DeviceConfig)
	}{
		{"zero width", func(c *DeviceConfig) { c.Width = 0 }},
		{"single frame", func(c *DeviceConfig) { c.FramesInFlight = 1 }},
		{"no threads", func(c *DeviceConfig) { c.MaxThreads = 0 }},
		{"no buffers per thread", func(c *DeviceConfig) { c.BuffersPerThread = 0 }},
		{"empty dynamic ring", func(c *DeviceConfig) { c.DynamicPerFrameSize = 0 }},
		{"empty deletion queue", func(c *DeviceConfig) { c.DeletionQueueSize = 0 }},
		{"timestamps without queries", func(c *DeviceConfig) { c.QueriesPerFrame = 0 }},
		{"empty pool", func(c *DeviceConfig) { c.Pools.Pipelines = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
