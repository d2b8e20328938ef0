package testbed

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func TestCheckerboard(t *testing.T) {
	pixels := checkerboard(16)
	require.Len(t, pixels, 16*16*4)
	assert.Equal(t, byte(0xe0), pixels[0])
	// the second cell of the first row is dark
	assert.Equal(t, byte(0x20), pixels[8*4])
	assert.Equal(t, byte(0xff), pixels[8*4+3])
}

func TestTestbedRunsHeadless(t *testing.T) {
	core.SetLogOutput(io.Discard)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "textures"), 0o755))
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	f, err := os.Create(filepath.Join(dir, "textures", "red.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	// any SPIR-V header will do for the in-memory backend
	spirv := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shaders"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shaders", "fullscreen.vert.spv"), spirv, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shaders", "fullscreen.frag.spv"), spirv, 0o644))

	cfg := config.Default()
	cfg.Width, cfg.Height = 256, 256
	cfg.LogLevel = "error"
	tb := NewTestGame(&engine.ApplicationConfig{Headless: true, MaxFrames: statsInterval + 1, AssetsDir: dir, Device: cfg})

	e, err := engine.New(tb.Game)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Len(t, tb.state().textures, 1)
	assert.True(t, tb.state().checker.IsValid())
	assert.True(t, tb.state().fullscreen.IsValid())
	assert.True(t, tb.state().set.IsValid())

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(statsInterval+1), tb.state().frames)
	timestamps := tb.Device.GPUTimestamps()
	require.Len(t, timestamps, 3)
	assert.Equal(t, "frame", timestamps[0].Name)
	assert.Equal(t, uint32(1), timestamps[2].Depth)

	require.NoError(t, e.Shutdown())
}
