package gpu

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/shaderc"
)

// Device owns every GPU resource and drives the frame loop. It is not safe
// for concurrent use: all calls happen on the frame thread.
type Device struct {
	cfg      config.DeviceConfig
	backend  Backend
	window   Window
	compiler shaderc.Compiler

	info      DeviceInfo
	swapchain SwapchainInfo

	buffers              *containers.Pool[Buffer]
	textures             *containers.Pool[Texture]
	samplers             *containers.Pool[Sampler]
	shaderStates         *containers.Pool[ShaderState]
	pipelines            *containers.Pool[Pipeline]
	renderPasses         *containers.Pool[RenderPass]
	descriptorSetLayouts *containers.Pool[DescriptorSetLayout]
	descriptorSets       *containers.Pool[DescriptorSet]

	deletionQueue     *containers.RingQueue[resourceUpdate]
	pendingDeletions  map[resourceUpdate]struct{}
	descriptorUpdates *containers.RingQueue[descriptorUpdate]

	commandRing          *commandRing
	queuedCommandBuffers []*CommandBuffer

	timestamps     *TimestampManager
	queryPool      metadata.NativeHandle
	queriesReset   bool
	lastTimestamps []GPUTimestamp

	renderPassCache  map[metadata.RenderPassOutput]metadata.NativeHandle
	framebufferCache map[framebufferKey]*framebufferEntry

	swapchainPass   metadata.RenderPassHandle
	swapchainOutput metadata.RenderPassOutput

	dynamicBuffer        metadata.BufferHandle
	dynamicMapped        []byte
	dynamicPerFrameSize  uint32
	dynamicAllocatedSize uint32
	dynamicMaxPerFrame   uint32

	defaultTexture metadata.TextureHandle
	defaultSampler metadata.SamplerHandle

	framesInFlight uint32
	currentFrame   uint32
	previousFrame  uint32
	absoluteFrame  uint64
	imageIndex     uint32

	resized       bool
	pendingWidth  uint32
	pendingHeight uint32

	clock   *core.Clock
	metrics *core.Metrics
}

// NewDevice initializes the backend and every device-owned resource.
func NewDevice(cfg config.DeviceConfig, backend Backend, window Window, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	d := &Device{
		cfg:              cfg,
		backend:          backend,
		window:           window,
		pendingDeletions: make(map[resourceUpdate]struct{}),
		renderPassCache:  make(map[metadata.RenderPassOutput]metadata.NativeHandle),
		framebufferCache: make(map[framebufferKey]*framebufferEntry),
		swapchainPass:    metadata.InvalidRenderPass,
		dynamicBuffer:    metadata.InvalidBuffer,
		defaultTexture:   metadata.InvalidTexture,
		defaultSampler:   metadata.InvalidSampler,
		clock:            core.NewClock(),
		metrics:          core.NewMetrics(),
	}
	for _, opt := range opts {
		opt(d)
	}

	swapchain, err := backend.Initialize(cfg, window)
	if err != nil {
		err = fmt.Errorf("failed to initialize the graphics backend: %w", err)
		core.LogError("%s", err)
		return nil, err
	}
	d.swapchain = swapchain
	d.info = backend.DeviceInfo()
	d.framesInFlight = swapchain.ImageCount
	d.previousFrame = d.framesInFlight - 1

	p := cfg.Pools
	d.buffers = containers.NewPool[Buffer]("buffer", p.Buffers)
	d.textures = containers.NewPool[Texture]("texture", p.Textures)
	d.samplers = containers.NewPool[Sampler]("sampler", p.Samplers)
	d.shaderStates = containers.NewPool[ShaderState]("shader state", p.ShaderStates)
	d.pipelines = containers.NewPool[Pipeline]("pipeline", p.Pipelines)
	d.renderPasses = containers.NewPool[RenderPass]("render pass", p.RenderPasses)
	d.descriptorSetLayouts = containers.NewPool[DescriptorSetLayout]("descriptor set layout", p.DescriptorSetLayouts)
	d.descriptorSets = containers.NewPool[DescriptorSet]("descriptor set", p.DescriptorSets)

	d.deletionQueue = containers.NewRingQueue[resourceUpdate](int(cfg.DeletionQueueSize))
	d.descriptorUpdates = containers.NewRingQueue[descriptorUpdate](int(cfg.DescriptorUpdateQueueSize))

	if err := d.initialize(); err != nil {
		core.LogError("%s", err)
		d.Shutdown()
		return nil, err
	}

	core.LogInfo("GPU device %s initialized: %dx%d, %d frames in flight", d.info.Name, swapchain.Width, swapchain.Height, d.framesInFlight)
	return d, nil
}

func (d *Device) initialize() error {
	ring, err := newCommandRing(d, d.backend, d.framesInFlight, d.cfg.MaxThreads, d.cfg.BuffersPerThread)
	if err != nil {
		return err
	}
	d.commandRing = ring

	if d.cfg.GPUTimestamps && d.info.TimestampsSupported {
		d.timestamps = NewTimestampManager(d.cfg.QueriesPerFrame, d.framesInFlight)
		pool, err := d.backend.CreateQueryPool(d.timestamps.QueryCount())
		if err != nil {
			return fmt.Errorf("failed to create timestamp query pool: %w", err)
		}
		d.queryPool = pool
	}

	// every frame slot starts on an aligned offset of the ring
	d.dynamicPerFrameSize = math.AlignUp(d.cfg.DynamicPerFrameSize, d.info.UniformBufferAlignment)
	d.dynamicBuffer = d.CreateBuffer(metadata.BufferCreation{
		Type:  metadata.BufferTypeUniform | metadata.BufferTypeVertex | metadata.BufferTypeIndex,
		Usage: metadata.ResourceUsageDynamic,
		Size:  d.dynamicPerFrameSize * d.framesInFlight,
		Name:  "dynamic_persistent_buffer",
	})
	if !d.dynamicBuffer.IsValid() {
		return errors.New("failed to create the dynamic ring buffer")
	}
	mapped, err := d.backend.MapBuffer(d.buffers.Get(uint32(d.dynamicBuffer)).Native)
	if err != nil {
		return fmt.Errorf("failed to map the dynamic ring buffer: %w", err)
	}
	d.dynamicMapped = mapped
	d.dynamicMaxPerFrame = d.dynamicPerFrameSize

	d.swapchainOutput.Reset().
		Color(d.swapchain.ColorFormat).
		Depth(d.swapchain.DepthFormat).
		SetOperations(metadata.RenderPassOperationClear, metadata.RenderPassOperationClear, metadata.RenderPassOperationClear)
	d.swapchainPass = d.CreateRenderPass(metadata.RenderPassCreation{
		Type:                metadata.RenderPassTypeSwapchain,
		DepthStencilTexture: metadata.InvalidTexture,
		ColorOperation:      metadata.RenderPassOperationClear,
		DepthOperation:      metadata.RenderPassOperationClear,
		StencilOperation:    metadata.RenderPassOperationClear,
		Name:                "swapchain",
	})
	if !d.swapchainPass.IsValid() {
		return errors.New("failed to create the swapchain render pass")
	}

	d.defaultTexture = d.CreateTexture(metadata.TextureCreation{
		InitialData: []byte{0xff, 0xff, 0xff, 0xff},
		Width:       1,
		Height:      1,
		Depth:       1,
		MipLevels:   1,
		Format:      metadata.TextureFormatR8G8B8A8Unorm,
		Type:        metadata.TextureType2d,
		Name:        metadata.DEFAULT_TEXTURE_NAME,
	})
	if !d.defaultTexture.IsValid() {
		return errors.New("failed to create the default texture")
	}
	d.defaultSampler = d.CreateSampler(metadata.SamplerCreation{
		MinFilter: metadata.TextureFilterModeLinear,
		MagFilter: metadata.TextureFilterModeLinear,
		MipFilter: metadata.TextureFilterModeLinear,
		AddressU:  metadata.TextureRepeatRepeat,
		AddressV:  metadata.TextureRepeatRepeat,
		AddressW:  metadata.TextureRepeatRepeat,
		Name:      metadata.DEFAULT_SAMPLER_NAME,
	})
	if !d.defaultSampler.IsValid() {
		return errors.New("failed to create the default sampler")
	}

	d.clock.Start()
	return nil
}

// Shutdown waits for the GPU, releases every resource and reports the pool
// slots the application leaked.
func (d *Device) Shutdown() error {
	if err := d.backend.WaitIdle(); err != nil {
		core.LogError("failed to wait for the device: %s", err)
	}

	if d.buffers != nil {
		if d.defaultSampler.IsValid() {
			d.DestroySampler(d.defaultSampler)
		}
		if d.defaultTexture.IsValid() {
			d.DestroyTexture(d.defaultTexture)
		}
		if d.swapchainPass.IsValid() {
			d.DestroyRenderPass(d.swapchainPass)
		}
		if d.dynamicBuffer.IsValid() {
			if buffer := d.buffers.Get(uint32(d.dynamicBuffer)); buffer != nil {
				d.backend.UnmapBuffer(buffer.Native)
			}
			d.DestroyBuffer(d.dynamicBuffer)
		}
		d.defaultSampler = metadata.InvalidSampler
		d.defaultTexture = metadata.InvalidTexture
		d.swapchainPass = metadata.InvalidRenderPass
		d.dynamicBuffer = metadata.InvalidBuffer
		d.dynamicMapped = nil

		d.processDeletions(true)
	}

	for key, entry := range d.framebufferCache {
		d.backend.DestroyFramebuffer(entry.native)
		delete(d.framebufferCache, key)
	}
	for output, native := range d.renderPassCache {
		d.backend.DestroyRenderPass(native)
		delete(d.renderPassCache, output)
	}

	if d.queryPool != metadata.NullNativeHandle {
		d.backend.DestroyQueryPool(d.queryPool)
		d.queryPool = metadata.NullNativeHandle
	}
	if d.commandRing != nil {
		d.commandRing.shutdown()
		d.commandRing = nil
	}

	var errs []error
	if d.buffers != nil {
		errs = append(errs,
			d.buffers.Shutdown(),
			d.textures.Shutdown(),
			d.samplers.Shutdown(),
			d.shaderStates.Shutdown(),
			d.pipelines.Shutdown(),
			d.renderPasses.Shutdown(),
			d.descriptorSetLayouts.Shutdown(),
			d.descriptorSets.Shutdown(),
		)
	}

	d.backend.Shutdown()
	d.clock.Stop()

	err := errors.Join(errs...)
	if err != nil {
		core.LogError("GPU device shutdown: %s", err)
	}
	return err
}

// enqueueDeletion schedules the release of a resource once no frame in flight can use it.
func (d *Device) enqueueDeletion(update resourceUpdate) {
	if d.deletionQueue.IsFull() {
		core.LogWarn("deletion queue is full, waiting for the device to go idle")
		if err := d.backend.WaitIdle(); err != nil {
			core.LogError("failed to wait for the device: %s", err)
		}
		d.processDeletions(true)
	}
	if err := d.deletionQueue.Enqueue(update); err != nil {
		core.LogError("failed to enqueue deletion of %s %d: %s", update.Kind, update.Handle, err.Error())
		return
	}
	if update.Handle != metadata.InvalidIndex {
		d.pendingDeletions[resourceKey(update.Kind, update.Handle)] = struct{}{}
	}
}

func resourceKey(kind metadata.ResourceKind, handle uint32) resourceUpdate {
	return resourceUpdate{Kind: kind, Handle: handle}
}

// scheduleDeletion enqueues a live handle of a pool at the current frame.
func (d *Device) scheduleDeletion(kind metadata.ResourceKind, handle uint32, live bool) {
	if !live {
		core.LogWarn("trying to free invalid %s %d", kind, handle)
		return
	}
	if _, pending := d.pendingDeletions[resourceKey(kind, handle)]; pending {
		core.LogWarn("%s %d is already scheduled for deletion", kind, handle)
		return
	}
	d.enqueueDeletion(resourceUpdate{Kind: kind, Handle: handle, Frame: d.absoluteFrame})
}

// processDeletions releases the entries whose frame completed, or all of them
// when force is set. Called right after the fence of the current slot was
// waited on, which retires every frame up to absoluteFrame-framesInFlight.
func (d *Device) processDeletions(force bool) {
	for !d.deletionQueue.IsEmpty() {
		update, _ := d.deletionQueue.Peek()
		if !force && update.Frame+uint64(d.framesInFlight) > d.absoluteFrame {
			return
		}
		_, _ = d.deletionQueue.Dequeue()
		delete(d.pendingDeletions, resourceKey(update.Kind, update.Handle))
		d.release(update)
	}
}

func (d *Device) release(update resourceUpdate) {
	var err error
	switch update.Kind {
	case metadata.ResourceKindBuffer:
		if buffer := d.buffers.Get(update.Handle); buffer != nil && !buffer.IsVirtual() {
			d.backend.DestroyBuffer(buffer.Native)
		}
		err = d.buffers.Release(update.Handle)
	case metadata.ResourceKindTexture:
		if update.Handle == metadata.InvalidIndex {
			d.backend.DestroyTexture(update.Native, update.View)
			return
		}
		if texture := d.textures.Get(update.Handle); texture != nil {
			d.backend.DestroyTexture(texture.Native, texture.View)
		}
		err = d.textures.Release(update.Handle)
	case metadata.ResourceKindSampler:
		if sampler := d.samplers.Get(update.Handle); sampler != nil {
			d.backend.DestroySampler(sampler.Native)
		}
		err = d.samplers.Release(update.Handle)
	case metadata.ResourceKindShaderState:
		if state := d.shaderStates.Get(update.Handle); state != nil {
			for _, m := range state.Modules {
				d.backend.DestroyShaderModule(m.Module)
			}
		}
		err = d.shaderStates.Release(update.Handle)
	case metadata.ResourceKindPipeline:
		if pipeline := d.pipelines.Get(update.Handle); pipeline != nil {
			d.backend.DestroyPipeline(pipeline.Native, pipeline.Layout)
		}
		err = d.pipelines.Release(update.Handle)
	case metadata.ResourceKindRenderPass:
		if pass := d.renderPasses.Get(update.Handle); pass != nil {
			d.destroyFramebuffers(pass)
			// swapchain passes own their native pass, the others live in the cache
			if pass.Type == metadata.RenderPassTypeSwapchain {
				d.backend.DestroyRenderPass(pass.Native)
			}
		}
		err = d.renderPasses.Release(update.Handle)
	case metadata.ResourceKindDescriptorSetLayout:
		if layout := d.descriptorSetLayouts.Get(update.Handle); layout != nil {
			d.backend.DestroyDescriptorSetLayout(layout.Native)
		}
		err = d.descriptorSetLayouts.Release(update.Handle)
	case metadata.ResourceKindDescriptorSet:
		if update.Handle == metadata.InvalidIndex {
			d.backend.FreeDescriptorSet(update.Native)
			return
		}
		if set := d.descriptorSets.Get(update.Handle); set != nil {
			d.backend.FreeDescriptorSet(set.Native)
		}
		err = d.descriptorSets.Release(update.Handle)
	default:
		err = fmt.Errorf("unknown resource kind %d", update.Kind)
	}
	if err != nil {
		core.LogError("failed to release %s %d: %s", update.Kind, update.Handle, err.Error())
	}
}

func (d *Device) DeviceInfo() DeviceInfo         { return d.info }
func (d *Device) Swapchain() SwapchainInfo       { return d.swapchain }
func (d *Device) FramesInFlight() uint32         { return d.framesInFlight }
func (d *Device) CurrentFrame() uint32           { return d.currentFrame }
func (d *Device) PreviousFrame() uint32          { return d.previousFrame }
func (d *Device) AbsoluteFrame() uint64          { return d.absoluteFrame }
func (d *Device) ImageIndex() uint32             { return d.imageIndex }
func (d *Device) SwapchainPass() metadata.RenderPassHandle { return d.swapchainPass }
func (d *Device) DynamicBuffer() metadata.BufferHandle     { return d.dynamicBuffer }
func (d *Device) DefaultTexture() metadata.TextureHandle   { return d.defaultTexture }
func (d *Device) DefaultSampler() metadata.SamplerHandle   { return d.defaultSampler }

// SwapchainOutput is the shape of the swapchain pass, for pipelines that draw into it.
func (d *Device) SwapchainOutput() metadata.RenderPassOutput { return d.swapchainOutput }

// GPUTimestamps returns the markers of the most recently completed frame.
func (d *Device) GPUTimestamps() []GPUTimestamp { return d.lastTimestamps }

// FrameStats returns the averaged CPU frame time in milliseconds and frames per second.
func (d *Device) FrameStats() (float64, float64) {
	return d.metrics.FrameTime(), d.metrics.FPS()
}
