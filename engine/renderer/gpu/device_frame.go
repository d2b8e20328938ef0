package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// NewFrame waits for the frame slot to be free, releases the deletions its
// fence made safe, acquires the next swapchain image and prepares the slot
// for recording.
func (d *Device) NewFrame() error {
	if err := d.backend.WaitForFrame(d.currentFrame); err != nil {
		err = fmt.Errorf("failed to wait for frame %d: %w", d.currentFrame, err)
		core.LogError("%s", err)
		return err
	}

	// the slot fence covers every frame up to absoluteFrame-framesInFlight
	d.processDeletions(false)

	image, result, err := d.backend.AcquireNextImage(d.currentFrame)
	if err != nil {
		err = fmt.Errorf("failed to acquire swapchain image: %w", err)
		core.LogError("%s", err)
		return err
	}
	if result == PresentOutOfDate {
		if err := d.resizeSwapchain(); err != nil {
			return err
		}
		image, _, err = d.backend.AcquireNextImage(d.currentFrame)
		if err != nil {
			err = fmt.Errorf("failed to acquire swapchain image after resize: %w", err)
			core.LogError("%s", err)
			return err
		}
	}
	d.imageIndex = image

	d.resolveTimestamps()

	d.commandRing.resetPools(d.currentFrame)
	d.queriesReset = false

	// every frame slot owns its region of the dynamic ring
	d.dynamicAllocatedSize = d.dynamicPerFrameSize * d.currentFrame
	d.dynamicMaxPerFrame = d.dynamicAllocatedSize + d.dynamicPerFrameSize

	d.drainDescriptorUpdates()
	return nil
}

// Present submits the queued command buffers, presents the image and
// advances the frame counters.
func (d *Device) Present() error {
	natives := make([]metadata.NativeHandle, 0, len(d.queuedCommandBuffers))
	for _, cb := range d.queuedCommandBuffers {
		cb.end()
		natives = append(natives, cb.native)
	}
	d.queuedCommandBuffers = d.queuedCommandBuffers[:0]

	if err := d.backend.Submit(d.currentFrame, natives); err != nil {
		err = fmt.Errorf("failed to submit frame %d: %w", d.currentFrame, err)
		core.LogError("%s", err)
		return err
	}

	result, err := d.backend.Present(d.currentFrame, d.imageIndex)
	if err != nil {
		err = fmt.Errorf("failed to present image %d: %w", d.imageIndex, err)
		core.LogError("%s", err)
		return err
	}

	if d.timestamps != nil {
		d.timestamps.Commit(d.currentFrame)
	}

	d.previousFrame = d.currentFrame
	d.currentFrame = (d.currentFrame + 1) % d.framesInFlight
	d.absoluteFrame++

	if result != PresentOK || d.resized || d.window.ResizeRequested() {
		if err := d.resizeSwapchain(); err != nil {
			return err
		}
	}

	d.clock.Update()
	d.metrics.Update(d.clock.Elapsed())
	d.clock.Start()
	return nil
}

// Resize requests a swapchain of the given size, applied after the next Present.
func (d *Device) Resize(width, height uint32) {
	d.pendingWidth = width
	d.pendingHeight = height
	d.resized = true
}

// resizeSwapchain rebuilds the swapchain and everything sized after it. A zero
// sized surface (minimized window) keeps the old swapchain.
func (d *Device) resizeSwapchain() error {
	width, height := d.pendingWidth, d.pendingHeight
	if width == 0 || height == 0 {
		width, height = d.window.FramebufferSize()
	}
	d.resized = false
	d.pendingWidth, d.pendingHeight = 0, 0
	d.window.ClearResizeRequest()
	if width == 0 || height == 0 {
		core.LogDebug("surface has no area, skipping swapchain resize")
		return nil
	}

	if err := d.backend.WaitIdle(); err != nil {
		core.LogError("failed to wait for the device: %s", err)
	}

	// swapchain framebuffers reference the views about to be destroyed
	d.renderPasses.Each(func(index uint32, pass *RenderPass) {
		if pass.Type == metadata.RenderPassTypeSwapchain {
			d.destroyFramebuffers(pass)
		}
	})

	info, err := d.backend.RecreateSwapchain(width, height)
	if err != nil {
		err = fmt.Errorf("failed to recreate the swapchain: %w", err)
		core.LogError("%s", err)
		return err
	}
	if info.ImageCount != d.framesInFlight {
		core.LogWarn("swapchain now has %d images, keeping %d frames in flight", info.ImageCount, d.framesInFlight)
	}
	d.swapchain = info

	var resizeErr error
	d.renderPasses.Each(func(index uint32, pass *RenderPass) {
		switch {
		case pass.Type == metadata.RenderPassTypeSwapchain:
			if err := d.createSwapchainFramebuffers(pass); err != nil {
				resizeErr = err
			}
		case pass.Resize:
			if err := d.resizeRenderPass(pass); err != nil {
				resizeErr = err
			}
		}
	})
	if resizeErr != nil {
		core.LogError("failed to resize render passes: %s", resizeErr)
		return resizeErr
	}

	core.LogDebug("swapchain resized to %dx%d", info.Width, info.Height)
	return nil
}

// resizeRenderPass recreates the outputs of a pass at the scaled swapchain
// size. The device is idle, so old native objects are destroyed right away.
func (d *Device) resizeRenderPass(pass *RenderPass) error {
	width, height := d.scaledSize(pass)
	d.destroyFramebuffers(pass)

	resized := make(map[metadata.TextureHandle]bool)
	outputs := append([]metadata.TextureHandle(nil), pass.OutputTextures...)
	if pass.DepthStencilTexture.IsValid() {
		outputs = append(outputs, pass.DepthStencilTexture)
	}
	for _, h := range outputs {
		if resized[h] {
			continue
		}
		if err := d.resizeTexture(h, width, height); err != nil {
			return err
		}
		resized[h] = true
	}

	pass.Width, pass.Height = width, height
	if pass.Type == metadata.RenderPassTypeGeometry {
		return d.createPassFramebuffer(pass)
	}
	return nil
}

// resizeTexture swaps the native image of a texture for one of the new size, keeping its handle.
func (d *Device) resizeTexture(h metadata.TextureHandle, width, height uint32) error {
	texture := d.textures.Get(uint32(h))
	if texture == nil {
		return fmt.Errorf("%w: texture %d", core.ErrInvalidHandle, h)
	}
	if texture.Width == width && texture.Height == height {
		return nil
	}
	creation := metadata.TextureCreation{
		Width:     width,
		Height:    height,
		Depth:     texture.Depth,
		MipLevels: texture.MipLevels,
		Flags:     texture.Flags,
		Format:    texture.Format,
		Type:      texture.Type,
		Name:      texture.Name,
	}
	image, view, err := d.backend.CreateTexture(&creation)
	if err != nil {
		return fmt.Errorf("failed to resize texture %s: %w", texture.Name, err)
	}
	d.backend.DestroyTexture(texture.Native, texture.View)
	texture.Native = image
	texture.View = view
	texture.Width = width
	texture.Height = height
	d.refreshTextureBindings(h)
	return nil
}

// UpdateDescriptorSet replaces the contents of a set at the start of the next frame.
func (d *Device) UpdateDescriptorSet(h metadata.DescriptorSetHandle, resources []metadata.ResourceHandle, samplers []metadata.SamplerHandle, bindings []uint32) {
	if !d.descriptorSets.IsLive(uint32(h)) {
		core.LogWarn("trying to update invalid descriptor set %d", h)
		return
	}
	d.queueDescriptorUpdate(descriptorUpdate{
		Set:       h,
		Resources: append([]metadata.ResourceHandle(nil), resources...),
		Samplers:  append([]metadata.SamplerHandle(nil), samplers...),
		Bindings:  append([]uint32(nil), bindings...),
	})
}

func (d *Device) queueDescriptorUpdate(update descriptorUpdate) {
	if d.descriptorUpdates.IsFull() {
		core.LogWarn("descriptor update queue is full, applying pending updates now")
		if err := d.backend.WaitIdle(); err != nil {
			core.LogError("failed to wait for the device: %s", err)
		}
		d.drainDescriptorUpdates()
	}
	update.Frame = d.currentFrame
	_ = d.descriptorUpdates.Enqueue(update)
}

// refreshTextureBindings rewrites, at the next frame, every descriptor set
// that samples the texture, so none keeps a view that is about to go away.
func (d *Device) refreshTextureBindings(h metadata.TextureHandle) {
	var stale []metadata.DescriptorSetHandle
	d.descriptorSets.Each(func(index uint32, set *DescriptorSet) {
		layout := d.descriptorSetLayouts.Get(uint32(set.Layout))
		if layout == nil {
			return
		}
		for i, resource := range set.Resources {
			if resource != metadata.ResourceHandle(h) {
				continue
			}
			binding, ok := layout.binding(set.Bindings[i])
			if !ok {
				continue
			}
			switch binding.Type {
			case metadata.DescriptorTypeCombinedImageSampler, metadata.DescriptorTypeSampledImage, metadata.DescriptorTypeStorageImage:
				stale = append(stale, metadata.DescriptorSetHandle(index))
				return
			}
		}
	})
	for _, set := range stale {
		d.queueDescriptorUpdate(descriptorUpdate{Set: set, Refresh: true})
	}
}

// ReloadTexture replaces the image of a live texture, keeping its handle.
// The old image stays alive until no frame in flight can sample it and the
// descriptor sets using the texture are rewritten at the next frame.
func (d *Device) ReloadTexture(h metadata.TextureHandle, creation metadata.TextureCreation) error {
	texture := d.textures.Get(uint32(h))
	if texture == nil {
		return fmt.Errorf("%w: texture %d", core.ErrInvalidHandle, h)
	}
	if creation.Width == 0 || creation.Height == 0 || creation.Format == metadata.TextureFormatUndefined {
		return fmt.Errorf("invalid texture %s: %dx%d, format %d", creation.Name, creation.Width, creation.Height, creation.Format)
	}
	if creation.Depth == 0 {
		creation.Depth = 1
	}
	if creation.MipLevels == 0 {
		creation.MipLevels = 1
	}

	image, view, err := d.backend.CreateTexture(&creation)
	if err != nil {
		return fmt.Errorf("failed to reload texture %s: %w", texture.Name, err)
	}
	previous := *texture
	texture.Native = image
	texture.View = view
	texture.Width = creation.Width
	texture.Height = creation.Height
	texture.Depth = creation.Depth
	texture.MipLevels = creation.MipLevels
	texture.Format = creation.Format
	texture.Type = creation.Type
	if len(creation.InitialData) > 0 {
		if err := d.uploadTexture(texture, creation.InitialData); err != nil {
			d.backend.DestroyTexture(image, view)
			*texture = previous
			return fmt.Errorf("failed to upload texture %s: %w", texture.Name, err)
		}
	}

	d.enqueueDeletion(resourceUpdate{
		Kind:   metadata.ResourceKindTexture,
		Handle: metadata.InvalidIndex,
		Native: previous.Native,
		View:   previous.View,
		Frame:  d.absoluteFrame,
	})
	d.refreshTextureBindings(h)
	return nil
}

// drainDescriptorUpdates writes every pending update into a newly allocated
// native set. The old native set may still be bound by a frame in flight and
// is retired through the deletion queue.
func (d *Device) drainDescriptorUpdates() {
	for !d.descriptorUpdates.IsEmpty() {
		update, _ := d.descriptorUpdates.Dequeue()

		set := d.descriptorSets.Get(uint32(update.Set))
		if set == nil {
			continue
		}
		if update.Refresh {
			update.Resources = set.Resources
			update.Samplers = set.Samplers
			update.Bindings = set.Bindings
		}
		layout := d.descriptorSetLayouts.Get(uint32(set.Layout))
		if layout == nil {
			continue
		}
		writes, err := d.descriptorWrites(layout, update.Resources, update.Samplers, update.Bindings)
		if err != nil {
			core.LogError("invalid update of descriptor set %s: %s", set.Name, err.Error())
			continue
		}
		native, err := d.backend.AllocateDescriptorSet(layout.Native)
		if err != nil {
			core.LogError("failed to allocate descriptor set %s: %s", set.Name, err.Error())
			continue
		}
		if err := d.backend.WriteDescriptorSet(native, writes); err != nil {
			core.LogError("failed to write descriptor set %s: %s", set.Name, err.Error())
			d.backend.FreeDescriptorSet(native)
			continue
		}

		d.enqueueDeletion(resourceUpdate{
			Kind:   metadata.ResourceKindDescriptorSet,
			Handle: metadata.InvalidIndex,
			Native: set.Native,
			Frame:  d.absoluteFrame,
		})
		set.Native = native
		set.Resources = update.Resources
		set.Samplers = update.Samplers
		set.Bindings = update.Bindings
	}
}

// GetCommandBuffer returns a command buffer of the current frame for thread 0,
// nil when the frame already used up its buffers.
func (d *Device) GetCommandBuffer(queue metadata.QueueType, begin bool) *CommandBuffer {
	return d.GetCommandBufferForThread(0, queue, begin)
}

// GetCommandBufferForThread returns a command buffer from the pool of a
// recording thread. Each thread must only use its own index.
func (d *Device) GetCommandBufferForThread(thread uint32, queue metadata.QueueType, begin bool) *CommandBuffer {
	cb := d.commandRing.get(d.currentFrame, thread, queue, begin)
	if cb == nil {
		return nil
	}
	if begin && d.timestamps != nil && !d.queriesReset && cb.IsRecording() {
		first, count := d.timestamps.FrameQueryRange(d.currentFrame)
		d.backend.CmdResetQueries(cb.native, d.queryPool, first, count)
		d.queriesReset = true
	}
	return cb
}

// GetInstantCommandBuffer returns the begun upload buffer of the current frame,
// to be handed to SubmitImmediate.
func (d *Device) GetInstantCommandBuffer() *CommandBuffer {
	return d.commandRing.getInstant(d.currentFrame)
}

// QueueCommandBuffer adds a command buffer to the next Present submission.
func (d *Device) QueueCommandBuffer(cb *CommandBuffer) {
	d.queuedCommandBuffers = append(d.queuedCommandBuffers, cb)
}

// SubmitImmediate ends the command buffer, submits it and waits for the queue.
func (d *Device) SubmitImmediate(cb *CommandBuffer) error {
	cb.end()
	if err := d.backend.SubmitImmediate(cb.native); err != nil {
		err = fmt.Errorf("immediate submit failed: %w", err)
		core.LogError("%s", err)
		return err
	}
	return nil
}

// resolveTimestamps reads back the markers of the frame slot that just completed.
func (d *Device) resolveTimestamps() {
	if d.timestamps == nil {
		return
	}
	count := d.timestamps.Committed(d.currentFrame)
	if count == 0 {
		return
	}
	first, _ := d.timestamps.FrameQueryRange(d.currentFrame)
	results := make([]uint64, count*2)
	if err := d.backend.GetQueryResults(d.queryPool, first, count*2, results); err != nil {
		core.LogWarn("failed to read timestamps: %s", err)
		return
	}
	// the slot was last submitted framesInFlight frames ago
	frame := d.absoluteFrame - math.Min(d.absoluteFrame, uint64(d.framesInFlight))
	d.lastTimestamps = d.timestamps.Resolve(d.currentFrame, results, d.info.TimestampPeriod, frame)
}
