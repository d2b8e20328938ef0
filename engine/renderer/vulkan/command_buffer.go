package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type commandBufferState int

const (
	commandBufferStateReady commandBufferState = iota
	commandBufferStateRecording
	commandBufferStateInRenderPass
	commandBufferStateRecordingEnded
)

type commandPool struct {
	handle  vk.CommandPool
	buffers []metadata.NativeHandle
}

type commandBuffer struct {
	handle vk.CommandBuffer
	pool   metadata.NativeHandle
	state  commandBufferState
}

// CreateCommandPool creates a pool on the graphics family, every queue type
// is submitted to the graphics queue.
func (b *Backend) CreateCommandPool(queue metadata.QueueType) (metadata.NativeHandle, error) {
	device := b.context.device
	createInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.graphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	pool := &commandPool{}
	if err := check("vkCreateCommandPool", vk.CreateCommandPool(device.logical, &createInfo, b.context.allocator, &pool.handle)); err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.commandPools.add(pool), nil
}

func (b *Backend) AllocateCommandBuffer(pool metadata.NativeHandle) (metadata.NativeHandle, error) {
	p, ok := b.commandPools.get(pool)
	if !ok {
		return metadata.NullNativeHandle, fmt.Errorf("%w: command pool %d", core.ErrInvalidHandle, pool)
	}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	handles := make([]vk.CommandBuffer, 1)
	if err := check("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(b.context.device.logical, &allocateInfo, handles)); err != nil {
		return metadata.NullNativeHandle, err
	}
	h := b.commandBuffers.add(&commandBuffer{handle: handles[0], pool: pool})
	p.buffers = append(p.buffers, h)
	return h, nil
}

// ResetCommandPool recycles every buffer of the pool at once.
func (b *Backend) ResetCommandPool(pool metadata.NativeHandle) error {
	p, ok := b.commandPools.get(pool)
	if !ok {
		return fmt.Errorf("%w: command pool %d", core.ErrInvalidHandle, pool)
	}
	if err := check("vkResetCommandPool", vk.ResetCommandPool(b.context.device.logical, p.handle, 0)); err != nil {
		return err
	}
	for _, h := range p.buffers {
		if cb, ok := b.commandBuffers.get(h); ok {
			cb.state = commandBufferStateReady
		}
	}
	return nil
}

func (b *Backend) DestroyCommandPool(pool metadata.NativeHandle) {
	p, ok := b.commandPools.remove(pool)
	if !ok {
		core.LogWarn("destroying unknown command pool %d", pool)
		return
	}
	for _, h := range p.buffers {
		b.commandBuffers.remove(h)
	}
	// freeing the pool frees its buffers
	vk.DestroyCommandPool(b.context.device.logical, p.handle, b.context.allocator)
}

func (b *Backend) commandBuffer(cb metadata.NativeHandle) (*commandBuffer, bool) {
	buffer, ok := b.commandBuffers.get(cb)
	if !ok {
		core.LogWarn("recording into unknown command buffer %d", cb)
	}
	return buffer, ok
}

func (b *Backend) BeginCommandBuffer(cb metadata.NativeHandle) error {
	buffer, ok := b.commandBuffers.get(cb)
	if !ok {
		return fmt.Errorf("%w: command buffer %d", core.ErrInvalidHandle, cb)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := check("vkBeginCommandBuffer", vk.BeginCommandBuffer(buffer.handle, &beginInfo)); err != nil {
		return err
	}
	buffer.state = commandBufferStateRecording
	return nil
}

func (b *Backend) EndCommandBuffer(cb metadata.NativeHandle) error {
	buffer, ok := b.commandBuffers.get(cb)
	if !ok {
		return fmt.Errorf("%w: command buffer %d", core.ErrInvalidHandle, cb)
	}
	if err := check("vkEndCommandBuffer", vk.EndCommandBuffer(buffer.handle)); err != nil {
		return err
	}
	buffer.state = commandBufferStateRecordingEnded
	return nil
}

func (b *Backend) CmdBeginRenderPass(cb, renderPass, framebuffer metadata.NativeHandle, area metadata.Rect2D, colors []metadata.ClearColor, depth metadata.ClearDepthStencil) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	pass, ok := b.renderPasses.get(renderPass)
	if !ok {
		core.LogWarn("beginning unknown render pass %d", renderPass)
		return
	}
	fb, ok := b.framebuffers.get(framebuffer)
	if !ok {
		core.LogWarn("beginning render pass with unknown framebuffer %d", framebuffer)
		return
	}

	clearValues := make([]vk.ClearValue, 0, len(colors)+1)
	for _, c := range colors {
		var value vk.ClearValue
		value.SetColor([]float32{c.R, c.G, c.B, c.A})
		clearValues = append(clearValues, value)
	}
	if pass.hasDepth {
		var value vk.ClearValue
		value.SetDepthStencil(depth.Depth, depth.Stencil)
		clearValues = append(clearValues, value)
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass.handle,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: area.X, Y: area.Y},
			Extent: vk.Extent2D{Width: area.Width, Height: area.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(buffer.handle, &beginInfo, vk.SubpassContentsInline)
	buffer.state = commandBufferStateInRenderPass
}

func (b *Backend) CmdEndRenderPass(cb metadata.NativeHandle) {
	if buffer, ok := b.commandBuffer(cb); ok {
		vk.CmdEndRenderPass(buffer.handle)
		buffer.state = commandBufferStateRecording
	}
}

func (b *Backend) CmdBindPipeline(cb metadata.NativeHandle, bindPoint metadata.PipelineBindPoint, handle metadata.NativeHandle) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	p, ok := b.pipelines.get(handle)
	if !ok {
		core.LogWarn("binding unknown pipeline %d", handle)
		return
	}
	vk.CmdBindPipeline(buffer.handle, toVkBindPoint(bindPoint), p)
}

func (b *Backend) CmdBindVertexBuffer(cb metadata.NativeHandle, binding uint32, handle metadata.NativeHandle, offset uint32) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	vb, ok := b.buffers.get(handle)
	if !ok {
		core.LogWarn("binding unknown vertex buffer %d", handle)
		return
	}
	vk.CmdBindVertexBuffers(buffer.handle, binding, 1, []vk.Buffer{vb.handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

func (b *Backend) CmdBindIndexBuffer(cb, handle metadata.NativeHandle, offset uint32, indexType metadata.IndexType) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	ib, ok := b.buffers.get(handle)
	if !ok {
		core.LogWarn("binding unknown index buffer %d", handle)
		return
	}
	vk.CmdBindIndexBuffer(buffer.handle, ib.handle, vk.DeviceSize(offset), toVkIndexType(indexType))
}

func (b *Backend) CmdBindDescriptorSets(cb metadata.NativeHandle, bindPoint metadata.PipelineBindPoint, layout metadata.NativeHandle, firstSet uint32, sets []metadata.NativeHandle, dynamicOffsets []uint32) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	l, ok := b.pipelineLayouts.get(layout)
	if !ok {
		core.LogWarn("binding descriptor sets with unknown layout %d", layout)
		return
	}
	handles := make([]vk.DescriptorSet, len(sets))
	for i, h := range sets {
		set, ok := b.sets.get(h)
		if !ok {
			core.LogWarn("binding unknown descriptor set %d", h)
			return
		}
		handles[i] = set.handle
	}
	vk.CmdBindDescriptorSets(buffer.handle, toVkBindPoint(bindPoint), l, firstSet,
		uint32(len(handles)), handles, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (b *Backend) CmdSetViewport(cb metadata.NativeHandle, viewport metadata.Viewport) {
	if buffer, ok := b.commandBuffer(cb); ok {
		vk.CmdSetViewport(buffer.handle, 0, 1, []vk.Viewport{{
			X:        viewport.X,
			Y:        viewport.Y,
			Width:    viewport.Width,
			Height:   viewport.Height,
			MinDepth: viewport.MinDepth,
			MaxDepth: viewport.MaxDepth,
		}})
	}
}

func (b *Backend) CmdSetScissor(cb metadata.NativeHandle, scissor metadata.Rect2D) {
	if buffer, ok := b.commandBuffer(cb); ok {
		vk.CmdSetScissor(buffer.handle, 0, 1, []vk.Rect2D{{
			Offset: vk.Offset2D{X: scissor.X, Y: scissor.Y},
			Extent: vk.Extent2D{Width: scissor.Width, Height: scissor.Height},
		}})
	}
}

func (b *Backend) CmdDraw(cb metadata.NativeHandle, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if buffer, ok := b.commandBuffer(cb); ok {
		vk.CmdDraw(buffer.handle, vertexCount, instanceCount, firstVertex, firstInstance)
	}
}

func (b *Backend) CmdDrawIndexed(cb metadata.NativeHandle, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	if buffer, ok := b.commandBuffer(cb); ok {
		vk.CmdDrawIndexed(buffer.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
	}
}

func (b *Backend) CmdDrawIndirect(cb, handle metadata.NativeHandle, offset, drawCount, stride uint32) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	indirect, ok := b.buffers.get(handle)
	if !ok {
		core.LogWarn("drawing from unknown indirect buffer %d", handle)
		return
	}
	vk.CmdDrawIndirect(buffer.handle, indirect.handle, vk.DeviceSize(offset), drawCount, stride)
}

func (b *Backend) CmdDispatch(cb metadata.NativeHandle, groupX, groupY, groupZ uint32) {
	if buffer, ok := b.commandBuffer(cb); ok {
		vk.CmdDispatch(buffer.handle, groupX, groupY, groupZ)
	}
}

func (b *Backend) CmdCopyBuffer(cb, src metadata.NativeHandle, srcOffset uint32, dst metadata.NativeHandle, dstOffset, size uint32) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	from, okSrc := b.buffers.get(src)
	to, okDst := b.buffers.get(dst)
	if !okSrc || !okDst {
		core.LogWarn("copying between unknown buffers %d and %d", src, dst)
		return
	}
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(buffer.handle, from.handle, to.handle, 1, []vk.BufferCopy{region})
}

// CmdCopyBufferToTexture copies tightly packed texels into mip 0 of every layer.
func (b *Backend) CmdCopyBufferToTexture(cb, src, dst metadata.NativeHandle, width, height, depth uint32) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	from, okSrc := b.buffers.get(src)
	image, okDst := b.images.get(dst)
	if !okSrc || !okDst {
		core.LogWarn("copying from buffer %d to unknown image %d", src, dst)
		return
	}
	if depth == 0 {
		depth = 1
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     aspectMask(image.format),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     image.layers,
		},
		ImageOffset: vk.Offset3D{},
		ImageExtent: vk.Extent3D{Width: width, Height: height, Depth: depth},
	}
	vk.CmdCopyBufferToImage(buffer.handle, from.handle, image.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (b *Backend) CmdTextureBarrier(cb, handle metadata.NativeHandle, oldLayout, newLayout metadata.TextureLayout, depth bool, mipLevels uint32) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	image, ok := b.images.get(handle)
	if !ok {
		core.LogWarn("transitioning unknown image %d", handle)
		return
	}
	if mipLevels == 0 {
		mipLevels = 1
	}
	aspect := aspectMask(image.format)
	if depth && !image.format.HasDepth() {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}

	srcAccess, srcStage := layoutAccess(oldLayout)
	dstAccess, dstStage := layoutAccess(newLayout)
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           toVkImageLayout(oldLayout),
		NewLayout:           toVkImageLayout(newLayout),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     image.layers,
		},
	}
	vk.CmdPipelineBarrier(buffer.handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (b *Backend) CmdResetQueries(cb, pool metadata.NativeHandle, first, count uint32) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	if q, ok := b.queryPools.get(pool); ok {
		vk.CmdResetQueryPool(buffer.handle, q.handle, first, count)
	}
}

func (b *Backend) CmdWriteTimestamp(cb, pool metadata.NativeHandle, index uint32) {
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	if q, ok := b.queryPools.get(pool); ok {
		vk.CmdWriteTimestamp(buffer.handle, vk.PipelineStageBottomOfPipeBit, q.handle, index)
	}
}

func (b *Backend) CmdPushConstants(cb, layout metadata.NativeHandle, stages metadata.ShaderStageFlags, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	buffer, ok := b.commandBuffer(cb)
	if !ok {
		return
	}
	l, ok := b.pipelineLayouts.get(layout)
	if !ok {
		core.LogWarn("pushing constants with unknown layout %d", layout)
		return
	}
	vk.CmdPushConstants(buffer.handle, l, toVkShaderStages(stages), offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}
