package gpu_test

import (
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/headless"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

var spirv = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type fixture struct {
	device  *gpu.Device
	backend *headless.Backend
	window  *headless.Window
}

func newFixture(t *testing.T, mutate func(*config.DeviceConfig), opts ...gpu.Option) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Width, cfg.Height = 640, 480
	cfg.FramesInFlight = 2
	cfg.DynamicPerFrameSize = 1024
	if mutate != nil {
		mutate(&cfg)
	}
	backend := headless.New(headless.Options{})
	window := headless.NewWindow(cfg.Width, cfg.Height)
	device, err := gpu.NewDevice(cfg, backend, window, opts...)
	require.NoError(t, err)
	return &fixture{device: device, backend: backend, window: window}
}

func (f *fixture) frame(t *testing.T) {
	t.Helper()
	require.NoError(t, f.device.NewFrame())
	require.NoError(t, f.device.Present())
}

func (f *fixture) renderTarget(t *testing.T, name string, width, height uint32, format metadata.TextureFormat) metadata.TextureHandle {
	t.Helper()
	h := f.device.CreateTexture(metadata.TextureCreation{
		Width:  width,
		Height: height,
		Flags:  metadata.TextureFlagRenderTarget,
		Format: format,
		Type:   metadata.TextureType2d,
		Name:   name,
	})
	require.True(t, h.IsValid())
	return h
}

func (f *fixture) pipeline(t *testing.T, layouts ...metadata.DescriptorSetLayoutHandle) metadata.PipelineHandle {
	t.Helper()
	creation := metadata.PipelineCreation{
		RenderPass:           f.device.SwapchainOutput(),
		DescriptorSetLayouts: layouts,
		PushConstantSize:     16,
		Name:                 "test_pipeline",
	}
	creation.Shaders.Name = "test_shader"
	creation.Shaders.
		AddStage(metadata.ShaderStageVertex, metadata.ShaderLanguageSPIRV, spirv, "").
		AddStage(metadata.ShaderStageFragment, metadata.ShaderLanguageSPIRV, spirv, "")
	h := f.device.CreatePipeline(creation)
	require.True(t, h.IsValid())
	return h
}

func TestNewDeviceCreatesDefaults(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, uint32(2), f.device.FramesInFlight())
	assert.True(t, f.device.DefaultTexture().IsValid())
	assert.True(t, f.device.DefaultSampler().IsValid())
	assert.True(t, f.device.SwapchainPass().IsValid())

	ring, ok := f.device.QueryBuffer(f.device.DynamicBuffer())
	require.True(t, ok)
	assert.Equal(t, uint32(2048), ring.Size)

	tex := f.device.Texture(f.device.DefaultTexture())
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, f.backend.TextureContents(tex.Native))
	assert.Equal(t, metadata.TextureLayoutShaderReadOnly, f.backend.TextureLayout(tex.Native))

	// one framebuffer per swapchain image
	assert.Equal(t, 2, f.backend.LiveObjects(headless.KindFramebuffer))
}

func TestNewDeviceRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.FramesInFlight = 1
	_, err := gpu.NewDevice(cfg, headless.New(headless.Options{}), headless.NewWindow(10, 10))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewDeviceBackendFailure(t *testing.T) {
	backend := headless.New(headless.Options{})
	backend.FailNext("CreateQueryPool", 1)
	_, err := gpu.NewDevice(config.Default(), backend, headless.NewWindow(640, 480))
	require.ErrorIs(t, err, headless.ErrInjected)
	assert.Equal(t, 0, backend.LiveObjects(headless.KindCommandPool))
	assert.Equal(t, 0, backend.LiveObjects(headless.KindImageView))
}

func TestDeferredDeletionWaitsForFramesInFlight(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.device.NewFrame())
	h := f.device.CreateBuffer(metadata.BufferCreation{
		Type:  metadata.BufferTypeVertex,
		Usage: metadata.ResourceUsageDynamic,
		Size:  64,
		Name:  "vertices",
	})
	require.True(t, h.IsValid())
	native := f.device.Buffer(h).Native

	f.device.DestroyBuffer(h)
	f.device.DestroyBuffer(h)
	require.NoError(t, f.device.Present())

	assert.NotNil(t, f.device.Buffer(h), "a frame in flight may still use the buffer")
	assert.True(t, f.backend.IsLive(native))

	// frame 1 submitted, frame 0 not waited on yet
	f.frame(t)
	assert.NotNil(t, f.device.Buffer(h))
	assert.True(t, f.backend.IsLive(native))

	require.NoError(t, f.device.NewFrame())
	assert.Nil(t, f.device.Buffer(h))
	assert.False(t, f.backend.IsLive(native))
	assert.Zero(t, f.backend.InvalidDestroys())
	require.NoError(t, f.device.Present())

	_, ok := f.device.QueryBuffer(h)
	assert.False(t, ok)
}

type recordingBackend struct {
	*headless.Backend
	events []string
}

func (b *recordingBackend) WaitForFrame(frame uint32) error {
	b.events = append(b.events, fmt.Sprintf("wait(%d)", frame))
	return b.Backend.WaitForFrame(frame)
}

func (b *recordingBackend) Submit(frame uint32, commandBuffers []metadata.NativeHandle) error {
	b.events = append(b.events, fmt.Sprintf("submit(%d)", frame))
	return b.Backend.Submit(frame, commandBuffers)
}

func (b *recordingBackend) DestroyBuffer(buffer metadata.NativeHandle) {
	b.events = append(b.events, fmt.Sprintf("destroy(%d)", buffer))
	b.Backend.DestroyBuffer(buffer)
}

func TestDeletionWaitsForTheSlotFence(t *testing.T) {
	cfg := config.Default()
	cfg.Width, cfg.Height = 640, 480
	cfg.FramesInFlight = 3
	backend := &recordingBackend{Backend: headless.New(headless.Options{})}
	device, err := gpu.NewDevice(cfg, backend, headless.NewWindow(cfg.Width, cfg.Height))
	require.NoError(t, err)
	require.Equal(t, uint32(3), device.FramesInFlight())

	require.NoError(t, device.NewFrame())
	h := device.CreateBuffer(metadata.BufferCreation{
		Type:  metadata.BufferTypeVertex,
		Usage: metadata.ResourceUsageDynamic,
		Size:  64,
		Name:  "vertices",
	})
	require.True(t, h.IsValid())
	native := device.Buffer(h).Native

	cb := device.GetCommandBuffer(metadata.QueueTypeGraphics, true)
	cb.BindVertexBuffer(h, 0, 0)
	device.QueueCommandBuffer(cb)
	device.DestroyBuffer(h)
	require.NoError(t, device.Present())

	for i := 0; i < 3; i++ {
		require.NoError(t, device.NewFrame())
		require.NoError(t, device.Present())
	}

	destroyed := -1
	for i, e := range backend.events {
		if e == fmt.Sprintf("destroy(%d)", native) {
			destroyed = i
		}
	}
	require.GreaterOrEqual(t, destroyed, 0, "buffer never released: %v", backend.events)

	// slot 0 is waited on before its first frame and again before the release
	waits := 0
	for _, e := range backend.events[:destroyed] {
		if e == "wait(0)" {
			waits++
		}
	}
	assert.Equal(t, 2, waits, "%v", backend.events)
	assert.Equal(t, "wait(0)", backend.events[destroyed-1])
	require.NoError(t, device.Shutdown())
}

func TestDeletionQueueOverflowFlushes(t *testing.T) {
	f := newFixture(t, func(cfg *config.DeviceConfig) { cfg.DeletionQueueSize = 2 })

	var samplers []metadata.SamplerHandle
	for i := 0; i < 3; i++ {
		h := f.device.CreateSampler(metadata.SamplerCreation{Name: "sampler"})
		require.True(t, h.IsValid())
		samplers = append(samplers, h)
	}
	idle := f.backend.WaitIdleCount()

	for _, h := range samplers {
		f.device.DestroySampler(h)
	}

	assert.Greater(t, f.backend.WaitIdleCount(), idle)
	assert.Nil(t, f.device.Sampler(samplers[0]))
	assert.Nil(t, f.device.Sampler(samplers[1]))
	assert.NotNil(t, f.device.Sampler(samplers[2]))
}

func TestDestroyInvalidHandles(t *testing.T) {
	f := newFixture(t, nil)

	f.device.DestroyBuffer(metadata.InvalidBuffer)
	f.device.DestroyTexture(metadata.TextureHandle(100))
	f.device.DestroyPipeline(metadata.InvalidPipeline)
	f.frame(t)
	f.frame(t)

	assert.Zero(t, f.backend.InvalidDestroys())
	_, ok := f.device.QueryTexture(metadata.InvalidTexture)
	assert.False(t, ok)
	_, ok = f.device.QueryPipeline(metadata.PipelineHandle(7))
	assert.False(t, ok)
	_, ok = f.device.QueryDescriptorSet(metadata.InvalidDescriptorSet)
	assert.False(t, ok)
}

func TestPoolExhaustionReturnsInvalidHandle(t *testing.T) {
	// the default sampler takes the first slot
	f := newFixture(t, func(cfg *config.DeviceConfig) { cfg.Pools.Samplers = 2 })

	h := f.device.CreateSampler(metadata.SamplerCreation{Name: "first"})
	assert.True(t, h.IsValid())
	h = f.device.CreateSampler(metadata.SamplerCreation{Name: "second"})
	assert.Equal(t, metadata.InvalidSampler, h)
}

func TestBackendFailureReleasesSlot(t *testing.T) {
	f := newFixture(t, nil)

	f.backend.FailNext("CreateTexture", 1)
	h := f.device.CreateTexture(metadata.TextureCreation{Width: 4, Height: 4, Format: metadata.TextureFormatR8G8B8A8Unorm})
	assert.Equal(t, metadata.InvalidTexture, h)

	h = f.device.CreateTexture(metadata.TextureCreation{Width: 4, Height: 4, Format: metadata.TextureFormatR8G8B8A8Unorm})
	assert.True(t, h.IsValid())

	h = f.device.CreateTexture(metadata.TextureCreation{Width: 0, Height: 4, Format: metadata.TextureFormatR8G8B8A8Unorm})
	assert.Equal(t, metadata.InvalidTexture, h)
}

func TestImmutableBufferUploadsThroughStaging(t *testing.T) {
	f := newFixture(t, nil)
	submits := f.backend.ImmediateSubmits()
	buffers := f.backend.LiveObjects(headless.KindBuffer)

	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	h := f.device.CreateBuffer(metadata.BufferCreation{
		Type:        metadata.BufferTypeVertex,
		Usage:       metadata.ResourceUsageImmutable,
		Size:        uint32(len(data)),
		InitialData: data,
		Name:        "quad",
	})
	require.True(t, h.IsValid())

	assert.Equal(t, data, f.backend.BufferContents(f.device.Buffer(h).Native))
	assert.Equal(t, submits+1, f.backend.ImmediateSubmits())
	assert.Equal(t, buffers+1, f.backend.LiveObjects(headless.KindBuffer), "staging buffer must be destroyed")

	assert.Nil(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: h}))
}

func TestMapHostVisibleBuffer(t *testing.T) {
	f := newFixture(t, nil)

	h := f.device.CreateBuffer(metadata.BufferCreation{
		Type:        metadata.BufferTypeStorage,
		Usage:       metadata.ResourceUsageDynamic,
		Size:        16,
		InitialData: []byte{9, 9},
		Name:        "storage",
	})
	require.True(t, h.IsValid())

	mapped := f.device.MapBuffer(metadata.MapBufferParameters{Buffer: h, Offset: 4, Size: 4})
	require.Len(t, mapped, 4)
	copy(mapped, []byte{1, 2, 3, 4})
	f.device.UnmapBuffer(metadata.MapBufferParameters{Buffer: h})

	contents := f.backend.BufferContents(f.device.Buffer(h).Native)
	assert.Equal(t, []byte{9, 9, 0, 0, 1, 2, 3, 4}, contents[:8])

	assert.Nil(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: h, Offset: 12, Size: 8}))
}

func TestMapBufferRejectsOversizedRequests(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.device.NewFrame())

	view := f.device.CreateBuffer(metadata.BufferCreation{
		Type:  metadata.BufferTypeUniform,
		Usage: metadata.ResourceUsageDynamic,
		Size:  64,
		Name:  "camera",
	})
	stream := f.device.CreateBuffer(metadata.BufferCreation{
		Type:  metadata.BufferTypeVertex,
		Usage: metadata.ResourceUsageStream,
		Size:  256,
		Name:  "particles",
	})
	require.True(t, view.IsValid())
	require.True(t, stream.IsValid())

	assert.NotPanics(t, func() {
		assert.Nil(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: view, Size: 0xfffffff0}))
		assert.Nil(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: stream, Offset: 0xffffff00, Size: 0x200}))
		assert.Nil(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: stream, Size: 512}))
	})

	// rejected requests leave the frame region untouched
	require.Len(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: view}), 64)
	assert.Equal(t, uint32(0), f.device.Buffer(view).GlobalOffset)
	require.Len(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: stream, Offset: 192, Size: 64}), 64)
	f.device.UnmapBuffer(metadata.MapBufferParameters{Buffer: stream})
	require.NoError(t, f.device.Present())
}

func TestCommandBuffersRunOutPerFrame(t *testing.T) {
	f := newFixture(t, func(c *config.DeviceConfig) { c.BuffersPerThread = 2 })

	require.NoError(t, f.device.NewFrame())
	first := f.device.GetCommandBuffer(metadata.QueueTypeGraphics, true)
	second := f.device.GetCommandBuffer(metadata.QueueTypeGraphics, true)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.Nil(t, f.device.GetCommandBuffer(metadata.QueueTypeGraphics, true))
	assert.Nil(t, f.device.GetCommandBufferForThread(0, metadata.QueueTypeGraphics, true))
	f.device.QueueCommandBuffer(first)
	f.device.QueueCommandBuffer(second)
	require.NoError(t, f.device.Present())

	// the other frame slot has its own pool
	require.NoError(t, f.device.NewFrame())
	assert.NotNil(t, f.device.GetCommandBuffer(metadata.QueueTypeGraphics, true))
	require.NoError(t, f.device.Present())
}

func TestReloadTextureInvalidHandle(t *testing.T) {
	f := newFixture(t, nil)
	err := f.device.ReloadTexture(metadata.InvalidTexture, metadata.TextureCreation{
		Width: 1, Height: 1, Format: metadata.TextureFormatR8G8B8A8Unorm, Type: metadata.TextureType2d,
	})
	assert.ErrorIs(t, err, core.ErrInvalidHandle)
}

func TestDynamicBufferOffsetsPerFrame(t *testing.T) {
	f := newFixture(t, nil)

	h := f.device.CreateBuffer(metadata.BufferCreation{
		Type:  metadata.BufferTypeUniform,
		Usage: metadata.ResourceUsageDynamic,
		Size:  64,
		Name:  "camera",
	})
	require.True(t, h.IsValid())
	desc, ok := f.device.QueryBuffer(h)
	require.True(t, ok)
	assert.Equal(t, f.device.DynamicBuffer(), desc.ParentHandle)

	require.NoError(t, f.device.NewFrame())
	mapped := f.device.MapBuffer(metadata.MapBufferParameters{Buffer: h})
	require.Len(t, mapped, 64)
	assert.Equal(t, uint32(0), f.device.Buffer(h).GlobalOffset)

	require.NotNil(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: h}))
	assert.Equal(t, uint32(256), f.device.Buffer(h).GlobalOffset)
	require.NoError(t, f.device.Present())

	require.NoError(t, f.device.NewFrame())
	mapped = f.device.MapBuffer(metadata.MapBufferParameters{Buffer: h})
	require.NotNil(t, mapped)
	assert.Equal(t, uint32(1024), f.device.Buffer(h).GlobalOffset)
	copy(mapped, []byte{0xca, 0xfe})

	ring := f.device.Buffer(f.device.DynamicBuffer())
	assert.Equal(t, []byte{0xca, 0xfe}, f.backend.BufferContents(ring.Native)[1024:1026])

	// three more aligned allocations fill the 1024 byte region
	for i := 0; i < 3; i++ {
		require.NotNil(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: h}))
	}
	assert.Nil(t, f.device.MapBuffer(metadata.MapBufferParameters{Buffer: h}))
	require.NoError(t, f.device.Present())

	f.device.DestroyBuffer(h)
	f.frame(t)
	f.frame(t)
	assert.NotNil(t, f.device.Buffer(f.device.DynamicBuffer()), "destroying a view keeps the ring")
	assert.True(t, f.backend.IsLive(ring.Native))
}

func TestBindDescriptorSetAppliesDynamicOffsets(t *testing.T) {
	f := newFixture(t, nil)

	var layoutCreation metadata.DescriptorSetLayoutCreation
	layoutCreation.
		AddBinding(metadata.DescriptorBinding{Type: metadata.DescriptorTypeUniformBuffer, Index: 2, Stages: metadata.ShaderStageFlagAll, Name: "material"}).
		AddBinding(metadata.DescriptorBinding{Type: metadata.DescriptorTypeCombinedImageSampler, Index: 1, Stages: metadata.ShaderStageFlagFragment, Name: "albedo"}).
		AddBinding(metadata.DescriptorBinding{Type: metadata.DescriptorTypeUniformBuffer, Index: 0, Stages: metadata.ShaderStageFlagVertex, Name: "camera"})
	layoutCreation.Name = "layout"
	layout := f.device.CreateDescriptorSetLayout(layoutCreation)
	require.True(t, layout.IsValid())

	camera := f.device.CreateBuffer(metadata.BufferCreation{Type: metadata.BufferTypeUniform, Usage: metadata.ResourceUsageDynamic, Size: 64, Name: "camera"})
	material := f.device.CreateBuffer(metadata.BufferCreation{Type: metadata.BufferTypeUniform, Usage: metadata.ResourceUsageImmutable, Size: 32, Name: "material"})

	var setCreation metadata.DescriptorSetCreation
	setCreation.SetLayout(layout).
		Buffer(camera, 0).
		Texture(f.device.DefaultTexture(), 1).
		Buffer(material, 2)
	set := f.device.CreateDescriptorSet(setCreation)
	require.True(t, set.IsValid())

	writes := f.backend.DescriptorWrites(f.device.DescriptorSet(set).Native)
	require.Len(t, writes, 3)
	assert.Equal(t, f.device.Buffer(f.device.DynamicBuffer()).Native, writes[0].Buffer)
	assert.Equal(t, uint32(64), writes[0].BufferRange)
	assert.Equal(t, f.device.Sampler(f.device.DefaultSampler()).Native, writes[1].Sampler)

	pipeline := f.pipeline(t, layout)

	require.NoError(t, f.device.NewFrame())
	f.device.MapBuffer(metadata.MapBufferParameters{Buffer: camera})
	f.device.MapBuffer(metadata.MapBufferParameters{Buffer: camera})

	cb := f.device.GetCommandBuffer(metadata.QueueTypeGraphics, true)
	cb.BindPass(f.device.SwapchainPass())
	cb.BindPipeline(pipeline)
	cb.BindDescriptorSet([]metadata.DescriptorSetHandle{set}, 0)
	cb.PushConstants(metadata.ShaderStageFlagVertex, 0, make([]byte, 16))
	cb.PushConstants(metadata.ShaderStageFlagVertex, 8, make([]byte, 16))
	cb.Draw(3, 1, 0, 0)

	var bind, push []headless.Command
	for _, c := range f.backend.Commands(cb.Native()) {
		switch c.Op {
		case "BindDescriptorSets":
			bind = append(bind, c)
		case "PushConstants":
			push = append(push, c)
		}
	}
	require.Len(t, bind, 1)
	// first set, then one offset per uniform binding in binding order
	assert.Equal(t, []uint32{0, 256, 0}, bind[0].Values)
	assert.Len(t, push, 1, "out of range push constants are dropped")

	f.device.QueueCommandBuffer(cb)
	require.NoError(t, f.device.Present())

	submissions := f.backend.Submissions()
	require.NotEmpty(t, submissions)
	last := submissions[len(submissions)-1]
	require.Len(t, last.Commands, 1)
	assert.Equal(t, "EndRenderPass", last.Commands[0][len(last.Commands[0])-1].Op)
}

func TestDescriptorSetUpdateRetiresOldNativeSet(t *testing.T) {
	f := newFixture(t, nil)

	var layoutCreation metadata.DescriptorSetLayoutCreation
	layoutCreation.AddBinding(metadata.DescriptorBinding{Type: metadata.DescriptorTypeCombinedImageSampler, Index: 0})
	layout := f.device.CreateDescriptorSetLayout(layoutCreation)
	require.True(t, layout.IsValid())

	var setCreation metadata.DescriptorSetCreation
	setCreation.SetLayout(layout).Texture(f.device.DefaultTexture(), 0)
	set := f.device.CreateDescriptorSet(setCreation)
	require.True(t, set.IsValid())
	oldNative := f.device.DescriptorSet(set).Native

	texture := f.device.CreateTexture(metadata.TextureCreation{Width: 2, Height: 2, Format: metadata.TextureFormatR8G8B8A8Unorm, Name: "albedo"})
	require.True(t, texture.IsValid())

	f.device.UpdateDescriptorSet(set, []metadata.ResourceHandle{metadata.ResourceHandle(texture)}, nil, []uint32{0})
	assert.Equal(t, oldNative, f.device.DescriptorSet(set).Native, "updates apply at the next frame")

	require.NoError(t, f.device.NewFrame())
	newNative := f.device.DescriptorSet(set).Native
	assert.NotEqual(t, oldNative, newNative)
	writes := f.backend.DescriptorWrites(newNative)
	require.Len(t, writes, 1)
	assert.Equal(t, f.device.Texture(texture).View, writes[0].ImageView)
	assert.True(t, f.backend.IsLive(oldNative), "old set may be bound by a frame in flight")
	require.NoError(t, f.device.Present())

	f.frame(t)
	assert.True(t, f.backend.IsLive(oldNative))
	require.NoError(t, f.device.NewFrame())
	assert.False(t, f.backend.IsLive(oldNative))
	assert.True(t, f.backend.IsLive(newNative))
	require.NoError(t, f.device.Present())

	desc, ok := f.device.QueryDescriptorSet(set)
	require.True(t, ok)
	require.Len(t, desc.Resources, 1)
	assert.Equal(t, metadata.ResourceHandle(texture), desc.Resources[0].Resource)
}

func TestRenderPassCacheByOutput(t *testing.T) {
	f := newFixture(t, nil)

	var a, b, c metadata.RenderPassOutput
	a.Color(metadata.TextureFormatR8G8B8A8Unorm).Depth(metadata.TextureFormatD32Sfloat)
	b.Color(metadata.TextureFormatR8G8B8A8Unorm).Depth(metadata.TextureFormatD32Sfloat)
	c.Color(metadata.TextureFormatR8G8B8A8Unorm).Depth(metadata.TextureFormatD24UnormS8Uint)

	first := f.device.GetNativeRenderPass(a)
	require.NotEqual(t, metadata.NullNativeHandle, first)
	assert.Equal(t, first, f.device.GetNativeRenderPass(b))
	assert.NotEqual(t, first, f.device.GetNativeRenderPass(c))
}

func TestGeometryPassesShareFramebuffers(t *testing.T) {
	f := newFixture(t, nil)
	color := f.renderTarget(t, "color", 320, 240, metadata.TextureFormatR8G8B8A8Unorm)
	depth := f.renderTarget(t, "depth", 320, 240, metadata.TextureFormatD32Sfloat)

	creation := metadata.RenderPassCreation{
		Type:                metadata.RenderPassTypeGeometry,
		OutputTextures:      []metadata.TextureHandle{color},
		DepthStencilTexture: depth,
		ColorOperation:      metadata.RenderPassOperationClear,
		DepthOperation:      metadata.RenderPassOperationClear,
		Name:                "gbuffer",
	}
	first := f.device.CreateRenderPass(creation)
	second := f.device.CreateRenderPass(creation)
	require.True(t, first.IsValid())
	require.True(t, second.IsValid())

	desc, ok := f.device.QueryRenderPass(first)
	require.True(t, ok)
	assert.Equal(t, uint32(320), desc.Width)
	assert.Equal(t, uint32(1), desc.Output.NumColorFormats)
	assert.Equal(t, metadata.TextureFormatD32Sfloat, desc.Output.DepthStencilFormat)

	assert.Equal(t, f.device.RenderPass(first).Native, f.device.RenderPass(second).Native)
	shared := f.device.RenderPass(first).Framebuffers[0]
	assert.Equal(t, shared, f.device.RenderPass(second).Framebuffers[0])
	assert.Equal(t, 3, f.backend.LiveObjects(headless.KindFramebuffer))

	f.device.DestroyRenderPass(first)
	f.frame(t)
	f.frame(t)
	assert.True(t, f.backend.IsLive(shared))

	f.device.DestroyRenderPass(second)
	f.frame(t)
	f.frame(t)
	f.frame(t)
	assert.False(t, f.backend.IsLive(shared))
	assert.Zero(t, f.backend.InvalidDestroys())
}

func TestRenderPassValidation(t *testing.T) {
	f := newFixture(t, nil)

	h := f.device.CreateRenderPass(metadata.RenderPassCreation{
		Type:                metadata.RenderPassTypeGeometry,
		DepthStencilTexture: metadata.InvalidTexture,
		Name:                "empty",
	})
	assert.Equal(t, metadata.InvalidRenderPass, h)

	h = f.device.CreateRenderPass(metadata.RenderPassCreation{
		Type:                metadata.RenderPassTypeGeometry,
		OutputTextures:      []metadata.TextureHandle{metadata.TextureHandle(99)},
		DepthStencilTexture: metadata.InvalidTexture,
		Name:                "dangling",
	})
	assert.Equal(t, metadata.InvalidRenderPass, h)
}

func TestComputePassHasNoNativePass(t *testing.T) {
	f := newFixture(t, nil)

	h := f.device.CreateRenderPass(metadata.RenderPassCreation{
		Type:                metadata.RenderPassTypeCompute,
		DepthStencilTexture: metadata.InvalidTexture,
		Name:                "particles",
	})
	require.True(t, h.IsValid())
	assert.Equal(t, metadata.NullNativeHandle, f.device.RenderPass(h).Native)

	require.NoError(t, f.device.NewFrame())
	cb := f.device.GetCommandBuffer(metadata.QueueTypeCompute, true)
	cb.BindPass(h)
	cb.Dispatch(8, 8, 1)
	for _, c := range f.backend.Commands(cb.Native()) {
		assert.NotEqual(t, "BeginRenderPass", c.Op)
	}
	f.device.QueueCommandBuffer(cb)
	require.NoError(t, f.device.Present())
}

type failingCompiler struct {
	failStage metadata.ShaderStage
}

func (c failingCompiler) Compile(stage metadata.ShaderStage, language metadata.ShaderLanguage, source, name string) ([]byte, error) {
	if stage == c.failStage {
		return nil, errors.New("syntax error")
	}
	return spirv, nil
}

func TestShaderCompileFailureDestroysModules(t *testing.T) {
	f := newFixture(t, nil, gpu.WithShaderCompiler(failingCompiler{failStage: metadata.ShaderStageFragment}))

	var creation metadata.ShaderStateCreation
	creation.Name = "broken"
	creation.
		AddStage(metadata.ShaderStageVertex, metadata.ShaderLanguageGLSL, nil, "void main() {}").
		AddStage(metadata.ShaderStageFragment, metadata.ShaderLanguageGLSL, nil, "void main() {")
	h := f.device.CreateShaderState(creation)

	assert.Equal(t, metadata.InvalidShaderState, h)
	assert.Equal(t, 0, f.backend.LiveObjects(headless.KindShaderModule))

	creation.Stages = creation.Stages[:1]
	h = f.device.CreateShaderState(creation)
	require.True(t, h.IsValid())
	desc, ok := f.device.QueryShaderState(h)
	require.True(t, ok)
	assert.True(t, desc.GraphicsStage)
	assert.Equal(t, []metadata.ShaderStage{metadata.ShaderStageVertex}, desc.Stages)
}

func TestShaderSourceWithoutCompiler(t *testing.T) {
	f := newFixture(t, nil)

	var creation metadata.ShaderStateCreation
	creation.AddStage(metadata.ShaderStageCompute, metadata.ShaderLanguageGLSL, nil, "void main() {}")
	assert.Equal(t, metadata.InvalidShaderState, f.device.CreateShaderState(creation))

	creation.Stages = nil
	creation.AddStage(metadata.ShaderStageCompute, metadata.ShaderLanguageSPIRV, []byte{1, 2, 3}, "")
	assert.Equal(t, metadata.InvalidShaderState, f.device.CreateShaderState(creation), "SPIR-V is made of words")
}

func TestDestroyPipelineReleasesShaderState(t *testing.T) {
	f := newFixture(t, nil)
	h := f.pipeline(t)
	state := f.device.Pipeline(h).ShaderState
	require.NotNil(t, f.device.ShaderState(state))
	assert.Equal(t, 2, f.backend.LiveObjects(headless.KindShaderModule))

	desc, ok := f.device.QueryPipeline(h)
	require.True(t, ok)
	assert.Equal(t, metadata.PipelineBindPointGraphics, desc.BindPoint)
	assert.Equal(t, f.device.SwapchainOutput(), desc.RenderPass)

	f.device.DestroyPipeline(h)
	f.frame(t)
	f.frame(t)
	f.frame(t)

	assert.Nil(t, f.device.Pipeline(h))
	assert.Nil(t, f.device.ShaderState(state))
	assert.Equal(t, 0, f.backend.LiveObjects(headless.KindShaderModule))
	assert.Equal(t, 0, f.backend.LiveObjects(headless.KindPipeline))
}

func TestPipelineFailureReleasesShaderState(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.FailNext("CreatePipeline", 1)

	creation := metadata.PipelineCreation{RenderPass: f.device.SwapchainOutput(), Name: "broken"}
	creation.Shaders.AddStage(metadata.ShaderStageVertex, metadata.ShaderLanguageSPIRV, spirv, "")
	assert.Equal(t, metadata.InvalidPipeline, f.device.CreatePipeline(creation))

	f.frame(t)
	f.frame(t)
	f.frame(t)
	assert.Equal(t, 0, f.backend.LiveObjects(headless.KindShaderModule))
}

func TestResizeRecreatesSwapchainAndScaledPasses(t *testing.T) {
	f := newFixture(t, nil)
	color := f.renderTarget(t, "half", 320, 240, metadata.TextureFormatR16G16B16A16Sfloat)
	pass := f.device.CreateRenderPass(metadata.RenderPassCreation{
		Type:                metadata.RenderPassTypeGeometry,
		OutputTextures:      []metadata.TextureHandle{color},
		DepthStencilTexture: metadata.InvalidTexture,
		ScaleX:              0.5,
		ScaleY:              0.5,
		Resize:              true,
		Name:                "half_res",
	})
	require.True(t, pass.IsValid())
	oldImage := f.device.Texture(color).Native

	f.device.Resize(1024, 768)
	assert.Equal(t, uint32(640), f.device.Swapchain().Width, "resize is applied at present")
	f.frame(t)

	assert.Equal(t, uint32(1024), f.device.Swapchain().Width)
	assert.Equal(t, uint32(768), f.device.Swapchain().Height)

	tex := f.device.Texture(color)
	require.NotNil(t, tex, "handles survive a resize")
	assert.Equal(t, uint32(512), tex.Width)
	assert.Equal(t, uint32(384), tex.Height)
	assert.False(t, f.backend.IsLive(oldImage))

	desc, _ := f.device.QueryRenderPass(pass)
	assert.Equal(t, uint32(512), desc.Width)
	swapchainDesc, _ := f.device.QueryRenderPass(f.device.SwapchainPass())
	assert.Equal(t, uint32(1024), swapchainDesc.Width)

	assert.Equal(t, 3, f.backend.LiveObjects(headless.KindFramebuffer))
	assert.Zero(t, f.backend.InvalidDestroys())
}

func TestWindowResizeAndOutOfDate(t *testing.T) {
	f := newFixture(t, nil)

	f.window.SetSize(800, 600)
	f.frame(t)
	assert.Equal(t, uint32(800), f.device.Swapchain().Width)
	assert.False(t, f.window.ResizeRequested())

	f.window.SetSize(300, 200)
	f.window.ClearResizeRequest()
	f.backend.QueuePresentResults(gpu.PresentSuboptimal)
	f.frame(t)
	assert.Equal(t, uint32(300), f.device.Swapchain().Width)

	f.window.SetSize(1920, 1080)
	f.window.ClearResizeRequest()
	f.backend.QueueAcquireResults(gpu.PresentOutOfDate)
	require.NoError(t, f.device.NewFrame())
	assert.Equal(t, uint32(1920), f.device.Swapchain().Width)
	require.NoError(t, f.device.Present())

	// a minimized window keeps the old swapchain
	f.window.SetSize(0, 0)
	f.frame(t)
	assert.Equal(t, uint32(1920), f.device.Swapchain().Width)
}

func TestFrameCounters(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, uint32(0), f.device.CurrentFrame())
	assert.Equal(t, uint32(1), f.device.PreviousFrame())
	for i := 0; i < 5; i++ {
		f.frame(t)
	}
	assert.Equal(t, uint64(5), f.device.AbsoluteFrame())
	assert.Equal(t, uint32(1), f.device.CurrentFrame())
	assert.Equal(t, uint32(0), f.device.PreviousFrame())
	assert.Equal(t, 5, f.backend.FrameWaits())
}

func TestFrameErrorsPropagate(t *testing.T) {
	f := newFixture(t, nil)

	f.backend.FailNext("WaitForFrame", 1)
	assert.ErrorIs(t, f.device.NewFrame(), headless.ErrInjected)

	require.NoError(t, f.device.NewFrame())
	f.backend.FailNext("Submit", 1)
	assert.ErrorIs(t, f.device.Present(), headless.ErrInjected)
}

func TestGPUTimestampsResolveAfterFramesInFlight(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.device.NewFrame())
	cb := f.device.GetCommandBuffer(metadata.QueueTypeGraphics, true)
	cb.PushMarker("frame")
	cb.PushMarker("shadows")
	cb.PopMarker()
	cb.PopMarker()

	commands := f.backend.Commands(cb.Native())
	require.NotEmpty(t, commands)
	assert.Equal(t, "ResetQueries", commands[0].Op)

	f.device.QueueCommandBuffer(cb)
	require.NoError(t, f.device.Present())
	assert.Empty(t, f.device.GPUTimestamps())

	f.frame(t)
	require.NoError(t, f.device.NewFrame())
	timestamps := f.device.GPUTimestamps()
	require.Len(t, timestamps, 2)

	assert.Equal(t, "frame", timestamps[0].Name)
	assert.Equal(t, uint32(0), timestamps[0].Depth)
	assert.Equal(t, "shadows", timestamps[1].Name)
	assert.Equal(t, uint32(1), timestamps[1].Depth)
	// the headless queue ticks 1000 per timestamp, one nanosecond each
	assert.InDelta(t, 0.003, timestamps[0].ElapsedMs, 1e-9)
	assert.InDelta(t, 0.001, timestamps[1].ElapsedMs, 1e-9)
	assert.Equal(t, uint64(0), timestamps[0].FrameIndex)
	assert.Equal(t, metadata.DebugColor("frame"), timestamps[0].Color)
	require.NoError(t, f.device.Present())
}

func TestTimestampsDisabledWithoutSupport(t *testing.T) {
	cfg := config.Default()
	backend := headless.New(headless.Options{DisableTimestamps: true})
	device, err := gpu.NewDevice(cfg, backend, headless.NewWindow(cfg.Width, cfg.Height))
	require.NoError(t, err)
	assert.Equal(t, 0, backend.LiveObjects(headless.KindQueryPool))

	require.NoError(t, device.NewFrame())
	cb := device.GetCommandBuffer(metadata.QueueTypeGraphics, true)
	cb.PushMarker("ignored")
	cb.PopMarker()
	assert.Empty(t, backend.Commands(cb.Native()))
	device.QueueCommandBuffer(cb)
	require.NoError(t, device.Present())
	require.NoError(t, device.Shutdown())
}

func TestShutdownReleasesEverything(t *testing.T) {
	f := newFixture(t, nil)
	h := f.device.CreateSampler(metadata.SamplerCreation{Name: "temporary"})
	pipeline := f.pipeline(t)
	f.device.DestroySampler(h)
	f.device.DestroyPipeline(pipeline)
	f.frame(t)

	require.NoError(t, f.device.Shutdown())
	for _, kind := range []string{
		headless.KindBuffer, headless.KindImage, headless.KindImageView, headless.KindSampler,
		headless.KindShaderModule, headless.KindRenderPass, headless.KindFramebuffer,
		headless.KindPipeline, headless.KindCommandPool, headless.KindCommandBuffer, headless.KindQueryPool,
	} {
		assert.Zero(t, f.backend.LiveObjects(kind), kind)
	}
	assert.Zero(t, f.backend.InvalidDestroys())
}

func TestShutdownReportsLeaks(t *testing.T) {
	f := newFixture(t, nil)
	f.device.CreateTexture(metadata.TextureCreation{Width: 1, Height: 1, Format: metadata.TextureFormatR8Unorm, Name: "leaked"})

	err := f.device.Shutdown()
	require.ErrorIs(t, err, core.ErrResourceLeak)
	assert.Contains(t, err.Error(), "texture pool")
}
