package assets

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/spaghettifunk/anima-gpu/engine/assets/loaders"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func init() {
	core.SetLogOutput(io.Discard)
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{G: 255, A: 255})
	img.Set(0, 1, color.NRGBA{B: 255, A: 255})
	img.Set(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

func writeFile(t *testing.T, path string, encode func(f *os.File) error) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, encode(f))
	require.NoError(t, f.Close())
}

func TestLoadImageFormats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.png"), func(f *os.File) error { return png.Encode(f, testImage()) })
	writeFile(t, filepath.Join(dir, "a.bmp"), func(f *os.File) error { return bmp.Encode(f, testImage()) })

	am, err := NewAssetManager(nil)
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	defer am.Shutdown()

	for _, name := range []string{"a.png", "a.bmp"} {
		t.Run(name, func(t *testing.T) {
			img, err := am.LoadImage(name)
			require.NoError(t, err)
			assert.Equal(t, uint32(2), img.Width)
			assert.Equal(t, uint32(2), img.Height)
			require.Len(t, img.Pixels, 16)
			assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[0:4])
			assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[8:12])
		})
	}
	assert.Equal(t, 2, am.Count())
}

func TestToRGBAFlip(t *testing.T) {
	img := loaders.ToRGBA(testImage(), true)
	// the bottom row comes first
	assert.Equal(t, []byte{0, 0, 255, 255}, img.Pixels[0:4])
	assert.Equal(t, []byte{255, 0, 0, 255}, img.Pixels[8:12])
}

func TestLoadUnknownAsset(t *testing.T) {
	am, err := NewAssetManager(nil)
	require.NoError(t, err)
	_, err = am.Load(filepath.Join(t.TempDir(), "notes.txt"))
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

func TestLoadBinaryChecksMagic(t *testing.T) {
	dir := t.TempDir()
	good := make([]byte, 8)
	binary.LittleEndian.PutUint32(good, 0x07230203)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.spv"), good, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.spv"), []byte{1, 2, 3, 4}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.spv"), []byte{1, 2, 3}, 0o644))

	am, err := NewAssetManager(nil)
	require.NoError(t, err)

	code, err := am.LoadBinary(filepath.Join(dir, "good.spv"))
	require.NoError(t, err)
	assert.Len(t, code, 8)

	_, err = am.LoadBinary(filepath.Join(dir, "bad.spv"))
	assert.Error(t, err)
	_, err = am.LoadBinary(filepath.Join(dir, "short.spv"))
	assert.Error(t, err)
}

func TestShaderKind(t *testing.T) {
	tests := []struct {
		name     string
		stage    metadata.ShaderStage
		language metadata.ShaderLanguage
		err      bool
	}{
		{name: "clear.vert", stage: metadata.ShaderStageVertex, language: metadata.ShaderLanguageGLSL},
		{name: "clear.frag.glsl", stage: metadata.ShaderStageFragment, language: metadata.ShaderLanguageGLSL},
		{name: "Blit.COMP.wgsl", stage: metadata.ShaderStageCompute, language: metadata.ShaderLanguageWGSL},
		{name: "tone.frag.hlsl", stage: metadata.ShaderStageFragment, language: metadata.ShaderLanguageHLSL},
		{name: "shader.txt", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, language, err := loaders.ShaderKind(tt.name)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.stage, stage)
			assert.Equal(t, tt.language, language)
		})
	}
}

func TestLoadShader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clear.frag"), []byte("#version 450\nvoid main() {}\n"), 0o644))

	am, err := NewAssetManager(nil)
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	defer am.Shutdown()

	src, err := am.LoadShader("clear.frag")
	require.NoError(t, err)
	assert.Equal(t, metadata.ShaderStageFragment, src.Stage)
	assert.Contains(t, src.Source, "void main")

	_, err = am.LoadImage("clear.frag")
	assert.Error(t, err)
}

func TestWatcherReportsChangedAssets(t *testing.T) {
	dir := t.TempDir()
	events := core.NewEventSystem()
	changed := make(chan string, 16)
	events.Register(core.EVENT_CODE_ASSET_CHANGED, t, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		changed <- data.Data.S
		return true
	})

	am, err := NewAssetManager(events)
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	defer am.Shutdown()

	path := filepath.Join(dir, "late.png")
	writeFile(t, path, func(f *os.File) error { return png.Encode(f, testImage()) })

	select {
	case got := <-changed:
		assert.Equal(t, path, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
	_, ok := am.Info("late.png")
	assert.True(t, ok)
}
