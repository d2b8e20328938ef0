package renderer_test

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/headless"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type fixture struct {
	renderer *renderer.Renderer
	device   *gpu.Device
	backend  *headless.Backend
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Width, cfg.Height = 320, 240
	cfg.FramesInFlight = 2
	cfg.DynamicPerFrameSize = 1024

	backend := headless.New(headless.Options{})
	device, err := gpu.NewDevice(cfg, backend, headless.NewWindow(cfg.Width, cfg.Height))
	require.NoError(t, err)

	dir := t.TempDir()
	am, err := assets.NewAssetManager(nil)
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir))
	t.Cleanup(am.Shutdown)

	return &fixture{renderer: renderer.New(device, am), device: device, backend: backend, dir: dir}
}

func (f *fixture) frames(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.device.NewFrame())
		require.NoError(t, f.device.Present())
	}
}

func (f *fixture) writePNG(t *testing.T, name string, c color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(f.dir, name)
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, img))
	require.NoError(t, file.Close())
	return path
}

func texture(name string) metadata.TextureCreation {
	return metadata.TextureCreation{
		Width:     4,
		Height:    4,
		Depth:     1,
		MipLevels: 1,
		Format:    metadata.TextureFormatR8G8B8A8Unorm,
		Type:      metadata.TextureType2d,
		Name:      name,
	}
}

func TestNamedResourcesAreShared(t *testing.T) {
	f := newFixture(t)
	r := f.renderer

	a := r.CreateTexture(texture("albedo"))
	b := r.CreateTexture(texture("albedo"))
	require.True(t, a.IsValid())
	assert.Equal(t, a, b)
	assert.Equal(t, 2, r.References(metadata.ResourceKindTexture, "albedo"))

	r.Release(metadata.ResourceKindTexture, "albedo")
	got, ok := r.GetTexture("albedo")
	require.True(t, ok)
	assert.Equal(t, a, got)

	r.Release(metadata.ResourceKindTexture, "albedo")
	_, ok = r.GetTexture("albedo")
	assert.False(t, ok)

	// the device keeps the texture until the frames in flight are done with it
	assert.NotNil(t, f.device.Texture(a))
	f.frames(t, 3)
	assert.Nil(t, f.device.Texture(a))
}

func TestAnonymousResourcesAreDistinct(t *testing.T) {
	f := newFixture(t)
	creation := metadata.BufferCreation{Type: metadata.BufferTypeVertex, Usage: metadata.ResourceUsageDynamic, Size: 64}
	a := f.renderer.CreateBuffer(creation)
	b := f.renderer.CreateBuffer(creation)
	require.True(t, a.IsValid())
	require.True(t, b.IsValid())
	assert.NotEqual(t, a, b)

	f.renderer.ReleaseBuffer(a)
	f.renderer.ReleaseBuffer(b)
	f.renderer.ReleaseBuffer(b)
}

func TestCreateTextureFromFile(t *testing.T) {
	f := newFixture(t)
	path := f.writePNG(t, "red.png", color.NRGBA{R: 255, A: 255})

	h, err := f.renderer.CreateTextureFromFile(path, "")
	require.NoError(t, err)
	again, err := f.renderer.CreateTextureFromFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, h, again)
	assert.Equal(t, 2, f.renderer.References(metadata.ResourceKindTexture, "red.png"))

	desc, ok := f.device.QueryTexture(h)
	require.True(t, ok)
	assert.Equal(t, uint32(2), desc.Width)
	texels := f.backend.TextureContents(desc.NativeHandle)
	require.Len(t, texels, 16)
	assert.Equal(t, []byte{255, 0, 0, 255}, texels[:4])

	_, err = f.renderer.CreateTextureFromFile(filepath.Join(f.dir, "missing.png"), "")
	assert.Error(t, err)
}

func TestLoadTextures(t *testing.T) {
	f := newFixture(t)
	paths := []string{
		f.writePNG(t, "a.png", color.NRGBA{R: 255, A: 255}),
		f.writePNG(t, "b.png", color.NRGBA{G: 255, A: 255}),
		f.writePNG(t, "c.png", color.NRGBA{B: 255, A: 255}),
	}
	handles, err := f.renderer.LoadTextures(paths...)
	require.NoError(t, err)
	require.Len(t, handles, 3)
	assert.NotEqual(t, handles[0], handles[1])
	assert.NotEqual(t, handles[1], handles[2])

	h, ok := f.renderer.GetTexture("b.png")
	require.True(t, ok)
	assert.Equal(t, handles[1], h)

	_, err = f.renderer.LoadTextures(paths[0], filepath.Join(f.dir, "nope.png"))
	assert.Error(t, err)
}

func TestApplyReloadsKeepsHandleAndRewritesSets(t *testing.T) {
	f := newFixture(t)
	events := core.NewEventSystem()
	f.renderer.WatchAssets(events)

	path := f.writePNG(t, "swap.png", color.NRGBA{R: 255, A: 255})
	h, err := f.renderer.CreateTextureFromFile(path, "")
	require.NoError(t, err)
	oldImage := f.device.Texture(h).Native
	oldView := f.device.Texture(h).View

	var layoutCreation metadata.DescriptorSetLayoutCreation
	layoutCreation.AddBinding(metadata.DescriptorBinding{Type: metadata.DescriptorTypeCombinedImageSampler, Index: 0, Stages: metadata.ShaderStageFlagFragment})
	layout := f.device.CreateDescriptorSetLayout(layoutCreation)
	require.True(t, layout.IsValid())
	var setCreation metadata.DescriptorSetCreation
	setCreation.SetLayout(layout).Texture(h, 0)
	set := f.device.CreateDescriptorSet(setCreation)
	require.True(t, set.IsValid())

	f.writePNG(t, "swap.png", color.NRGBA{G: 255, A: 255})
	context := core.EventContext{}
	context.Data.S = path
	events.Fire(core.EVENT_CODE_ASSET_CHANGED, nil, context)

	assert.Equal(t, 1, f.renderer.ApplyReloads())
	assert.Zero(t, f.renderer.ApplyReloads())

	got, ok := f.renderer.GetTexture("swap.png")
	require.True(t, ok)
	assert.Equal(t, h, got, "callers keep a valid handle")
	texture := f.device.Texture(h)
	assert.NotEqual(t, oldView, texture.View)
	assert.Equal(t, []byte{0, 255, 0, 255}, f.backend.TextureContents(texture.Native)[:4])
	assert.Equal(t, 1, f.renderer.References(metadata.ResourceKindTexture, "swap.png"))
	assert.True(t, f.backend.IsLive(oldView), "a frame in flight may still sample the old image")

	require.NoError(t, f.device.NewFrame())
	writes := f.backend.DescriptorWrites(f.device.DescriptorSet(set).Native)
	require.Len(t, writes, 1)
	assert.Equal(t, texture.View, writes[0].ImageView)
	require.NoError(t, f.device.Present())

	f.frames(t, 2)
	assert.False(t, f.backend.IsLive(oldImage))
	assert.False(t, f.backend.IsLive(oldView))
	assert.True(t, f.backend.IsLive(writes[0].ImageView))
	assert.Zero(t, f.backend.InvalidDestroys())

	f.renderer.ReleaseTexture(h)
	assert.Zero(t, f.renderer.References(metadata.ResourceKindTexture, "swap.png"))
}

func TestReleaseUnmanagedKind(t *testing.T) {
	f := newFixture(t)
	f.renderer.Release(metadata.ResourceKindRenderPass, "anything")
	f.renderer.Release(metadata.ResourceKindTexture, "unknown")
	assert.Zero(t, f.renderer.References(metadata.ResourceKindRenderPass, "anything"))
}

func TestShutdownReleasesEverything(t *testing.T) {
	f := newFixture(t)
	f.renderer.CreateTexture(texture("one"))
	f.renderer.CreateTexture(texture("one"))
	f.renderer.CreateSampler(metadata.SamplerCreation{Name: "linear"})

	f.renderer.Shutdown()
	_, ok := f.renderer.GetTexture("one")
	assert.False(t, ok)
	_, ok = f.renderer.GetSampler("linear")
	assert.False(t, ok)
	assert.NoError(t, f.device.Shutdown())
}
