package gpu

import (
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

// CommandBuffer records work for the current frame. Handles are resolved to
// native objects at record time, virtual buffers become their parent plus offset.
type CommandBuffer struct {
	device *Device
	native metadata.NativeHandle
	handle uint32
	queue  metadata.QueueType
	state  commandBufferState

	currentRenderPass metadata.RenderPassHandle
	currentPipeline   metadata.PipelineHandle

	clearColors       [metadata.MaxImageOutputs]metadata.ClearColor
	clearDepthStencil metadata.ClearDepthStencil
}

func (c *CommandBuffer) Native() metadata.NativeHandle { return c.native }

func (c *CommandBuffer) IsRecording() bool {
	return c.state == commandBufferStateRecording || c.state == commandBufferStateInRenderPass
}

func (c *CommandBuffer) reset() {
	c.state = commandBufferStateReady
	c.currentRenderPass = metadata.InvalidRenderPass
	c.currentPipeline = metadata.InvalidPipeline
	c.clearColors = [metadata.MaxImageOutputs]metadata.ClearColor{}
	c.clearDepthStencil = metadata.ClearDepthStencil{Depth: 1.0}
}

func (c *CommandBuffer) begin() {
	if c.IsRecording() {
		return
	}
	if err := c.device.backend.BeginCommandBuffer(c.native); err != nil {
		core.LogError("failed to begin command buffer %d: %s", c.handle, err.Error())
		return
	}
	c.state = commandBufferStateRecording
}

func (c *CommandBuffer) end() {
	if !c.IsRecording() {
		return
	}
	c.EndPass()
	if err := c.device.backend.EndCommandBuffer(c.native); err != nil {
		core.LogError("failed to end command buffer %d: %s", c.handle, err.Error())
	}
	c.state = commandBufferStateRecordingEnded
}

// Clear sets the clear color of a color attachment for the next BindPass.
func (c *CommandBuffer) Clear(attachment uint32, color metadata.ClearColor) {
	if attachment >= metadata.MaxImageOutputs {
		core.LogWarn("clear attachment %d out of range", attachment)
		return
	}
	c.clearColors[attachment] = color
}

func (c *CommandBuffer) ClearDepthStencil(depth float32, stencil uint32) {
	c.clearDepthStencil = metadata.ClearDepthStencil{Depth: depth, Stencil: stencil}
}

// BindPass begins a render pass, ending the one in progress if any.
func (c *CommandBuffer) BindPass(handle metadata.RenderPassHandle) {
	if handle == c.currentRenderPass {
		return
	}
	pass := c.device.renderPasses.Get(uint32(handle))
	if pass == nil {
		core.LogWarn("trying to bind invalid render pass %d", handle)
		return
	}
	c.EndPass()

	c.currentRenderPass = handle
	if pass.Type == metadata.RenderPassTypeCompute {
		return
	}

	fb := uint32(0)
	if pass.Type == metadata.RenderPassTypeSwapchain {
		fb = c.device.imageIndex
	}
	if fb >= uint32(len(pass.Framebuffers)) {
		core.LogWarn("render pass %s has no framebuffer %d", pass.Name, fb)
		c.currentRenderPass = metadata.InvalidRenderPass
		return
	}
	framebuffer := pass.Framebuffers[fb]
	colors := c.clearColors[:pass.Output.NumColorFormats]
	area := metadata.Rect2D{Width: pass.Width, Height: pass.Height}
	c.device.backend.CmdBeginRenderPass(c.native, pass.Native, framebuffer, area, colors, c.clearDepthStencil)
	c.state = commandBufferStateInRenderPass
}

// EndPass ends the render pass in progress.
func (c *CommandBuffer) EndPass() {
	if c.state == commandBufferStateInRenderPass {
		c.device.backend.CmdEndRenderPass(c.native)
		c.state = commandBufferStateRecording
	}
	c.currentRenderPass = metadata.InvalidRenderPass
}

func (c *CommandBuffer) BindPipeline(handle metadata.PipelineHandle) {
	pipeline := c.device.pipelines.Get(uint32(handle))
	if pipeline == nil {
		core.LogWarn("trying to bind invalid pipeline %d", handle)
		return
	}
	c.device.backend.CmdBindPipeline(c.native, pipeline.BindPoint, pipeline.Native)
	c.currentPipeline = handle
}

// resolveBuffer returns the native buffer and the offset to use for a handle.
func (c *CommandBuffer) resolveBuffer(handle metadata.BufferHandle, offset uint32) (metadata.NativeHandle, uint32, bool) {
	buffer := c.device.buffers.Get(uint32(handle))
	if buffer == nil {
		core.LogWarn("trying to use invalid buffer %d", handle)
		return metadata.NullNativeHandle, 0, false
	}
	if buffer.IsVirtual() {
		parent := c.device.buffers.Get(uint32(buffer.ParentBuffer))
		if parent == nil {
			return metadata.NullNativeHandle, 0, false
		}
		return parent.Native, buffer.GlobalOffset + offset, true
	}
	return buffer.Native, offset, true
}

func (c *CommandBuffer) BindVertexBuffer(handle metadata.BufferHandle, binding, offset uint32) {
	native, off, ok := c.resolveBuffer(handle, offset)
	if !ok {
		return
	}
	c.device.backend.CmdBindVertexBuffer(c.native, binding, native, off)
}

func (c *CommandBuffer) BindIndexBuffer(handle metadata.BufferHandle, offset uint32, indexType metadata.IndexType) {
	native, off, ok := c.resolveBuffer(handle, offset)
	if !ok {
		return
	}
	c.device.backend.CmdBindIndexBuffer(c.native, native, off, indexType)
}

// BindDescriptorSet binds sets starting at firstSet with the current pipeline
// layout. Every uniform binding gets a dynamic offset: the current offset of
// a virtual buffer, 0 otherwise.
func (c *CommandBuffer) BindDescriptorSet(sets []metadata.DescriptorSetHandle, firstSet uint32) {
	pipeline := c.device.pipelines.Get(uint32(c.currentPipeline))
	if pipeline == nil {
		core.LogWarn("binding descriptor sets without a pipeline")
		return
	}

	natives := make([]metadata.NativeHandle, 0, len(sets))
	var offsets []uint32
	for _, h := range sets {
		set := c.device.descriptorSets.Get(uint32(h))
		if set == nil {
			core.LogWarn("trying to bind invalid descriptor set %d", h)
			return
		}
		layout := c.device.descriptorSetLayouts.Get(uint32(set.Layout))
		if layout == nil {
			core.LogWarn("descriptor set %d has no layout", h)
			return
		}
		natives = append(natives, set.Native)

		for _, b := range layout.Bindings {
			if b.Type != metadata.DescriptorTypeUniformBuffer {
				continue
			}
			offset := uint32(0)
			for i, binding := range set.Bindings {
				if binding != b.Index {
					continue
				}
				if buffer := c.device.buffers.Get(uint32(set.Resources[i])); buffer != nil && buffer.IsVirtual() {
					offset = buffer.GlobalOffset
				}
				break
			}
			offsets = append(offsets, offset)
		}
	}
	c.device.backend.CmdBindDescriptorSets(c.native, pipeline.BindPoint, pipeline.Layout, firstSet, natives, offsets)
}

// SetViewport sets the viewport, nil covers the current render pass.
func (c *CommandBuffer) SetViewport(viewport *metadata.Viewport) {
	if viewport == nil {
		w, h := c.targetSize()
		viewport = &metadata.Viewport{Width: float32(w), Height: float32(h), MaxDepth: 1.0}
	}
	c.device.backend.CmdSetViewport(c.native, *viewport)
}

// SetScissor sets the scissor, nil covers the current render pass.
func (c *CommandBuffer) SetScissor(rect *metadata.Rect2D) {
	if rect == nil {
		w, h := c.targetSize()
		rect = &metadata.Rect2D{Width: w, Height: h}
	}
	c.device.backend.CmdSetScissor(c.native, *rect)
}

func (c *CommandBuffer) targetSize() (uint32, uint32) {
	if pass := c.device.renderPasses.Get(uint32(c.currentRenderPass)); pass != nil {
		return pass.Width, pass.Height
	}
	return c.device.swapchain.Width, c.device.swapchain.Height
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.device.backend.CmdDraw(c.native, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.device.backend.CmdDrawIndexed(c.native, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (c *CommandBuffer) DrawIndirect(handle metadata.BufferHandle, offset, drawCount, stride uint32) {
	native, off, ok := c.resolveBuffer(handle, offset)
	if !ok {
		return
	}
	c.device.backend.CmdDrawIndirect(c.native, native, off, drawCount, stride)
}

func (c *CommandBuffer) Dispatch(groupX, groupY, groupZ uint32) {
	c.device.backend.CmdDispatch(c.native, groupX, groupY, groupZ)
}

func (c *CommandBuffer) CopyBuffer(src metadata.BufferHandle, srcOffset uint32, dst metadata.BufferHandle, dstOffset, size uint32) {
	srcNative, srcOff, ok := c.resolveBuffer(src, srcOffset)
	if !ok {
		return
	}
	dstNative, dstOff, ok := c.resolveBuffer(dst, dstOffset)
	if !ok {
		return
	}
	c.device.backend.CmdCopyBuffer(c.native, srcNative, srcOff, dstNative, dstOff, size)
}

// PushConstants updates the push constant range of the bound pipeline.
func (c *CommandBuffer) PushConstants(stages metadata.ShaderStageFlags, offset uint32, data []byte) {
	pipeline := c.device.pipelines.Get(uint32(c.currentPipeline))
	if pipeline == nil {
		core.LogWarn("push constants without a pipeline")
		return
	}
	if offset+uint32(len(data)) > pipeline.PushConstantSize {
		core.LogWarn("push constants of %d bytes at %d exceed the range of pipeline %s", len(data), offset, pipeline.Name)
		return
	}
	c.device.backend.CmdPushConstants(c.native, pipeline.Layout, stages, offset, data)
}

// PushMarker opens a GPU timestamp marker.
func (c *CommandBuffer) PushMarker(name string) {
	d := c.device
	if d.timestamps == nil {
		return
	}
	query, ok := d.timestamps.Push(d.currentFrame, name)
	if !ok {
		return
	}
	d.backend.CmdWriteTimestamp(c.native, d.queryPool, query)
}

// PopMarker closes the innermost GPU timestamp marker.
func (c *CommandBuffer) PopMarker() {
	d := c.device
	if d.timestamps == nil {
		return
	}
	query, ok := d.timestamps.Pop(d.currentFrame)
	if !ok {
		return
	}
	d.backend.CmdWriteTimestamp(c.native, d.queryPool, query)
}
