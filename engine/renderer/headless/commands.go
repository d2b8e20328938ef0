package headless

import (
	"fmt"
	gomath "math"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (b *Backend) record(cb metadata.NativeHandle, op string, handles []metadata.NativeHandle, values ...uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands[cb] = append(b.commands[cb], Command{Op: op, Handles: handles, Values: values})
}

func (b *Backend) BeginCommandBuffer(cb metadata.NativeHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("BeginCommandBuffer"); err != nil {
		return err
	}
	if b.objects[cb] != KindCommandBuffer {
		return fmt.Errorf("command buffer %d is not live", cb)
	}
	if b.recording[cb] {
		return fmt.Errorf("command buffer %d is already recording", cb)
	}
	b.recording[cb] = true
	b.commands[cb] = nil
	return nil
}

func (b *Backend) EndCommandBuffer(cb metadata.NativeHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.recording[cb] {
		return fmt.Errorf("command buffer %d is not recording", cb)
	}
	b.recording[cb] = false
	return nil
}

func (b *Backend) CmdBeginRenderPass(cb, renderPass, framebuffer metadata.NativeHandle, area metadata.Rect2D, colors []metadata.ClearColor, depth metadata.ClearDepthStencil) {
	b.record(cb, "BeginRenderPass", []metadata.NativeHandle{renderPass, framebuffer},
		uint32(area.X), uint32(area.Y), area.Width, area.Height, uint32(len(colors)))
}

func (b *Backend) CmdEndRenderPass(cb metadata.NativeHandle) {
	b.record(cb, "EndRenderPass", nil)
}

func (b *Backend) CmdBindPipeline(cb metadata.NativeHandle, bindPoint metadata.PipelineBindPoint, pipeline metadata.NativeHandle) {
	b.record(cb, "BindPipeline", []metadata.NativeHandle{pipeline}, uint32(bindPoint))
}

func (b *Backend) CmdBindVertexBuffer(cb metadata.NativeHandle, binding uint32, buffer metadata.NativeHandle, offset uint32) {
	b.record(cb, "BindVertexBuffer", []metadata.NativeHandle{buffer}, binding, offset)
}

func (b *Backend) CmdBindIndexBuffer(cb, buffer metadata.NativeHandle, offset uint32, indexType metadata.IndexType) {
	b.record(cb, "BindIndexBuffer", []metadata.NativeHandle{buffer}, offset, uint32(indexType))
}

// CmdBindDescriptorSets records the sets as handles and the dynamic offsets as values.
func (b *Backend) CmdBindDescriptorSets(cb metadata.NativeHandle, bindPoint metadata.PipelineBindPoint, layout metadata.NativeHandle, firstSet uint32, sets []metadata.NativeHandle, dynamicOffsets []uint32) {
	handles := append([]metadata.NativeHandle{layout}, sets...)
	values := append([]uint32{firstSet}, dynamicOffsets...)
	b.record(cb, "BindDescriptorSets", handles, values...)
}

func (b *Backend) CmdSetViewport(cb metadata.NativeHandle, viewport metadata.Viewport) {
	b.record(cb, "SetViewport", nil,
		gomath.Float32bits(viewport.X), gomath.Float32bits(viewport.Y),
		gomath.Float32bits(viewport.Width), gomath.Float32bits(viewport.Height),
		gomath.Float32bits(viewport.MinDepth), gomath.Float32bits(viewport.MaxDepth))
}

func (b *Backend) CmdSetScissor(cb metadata.NativeHandle, scissor metadata.Rect2D) {
	b.record(cb, "SetScissor", nil, uint32(scissor.X), uint32(scissor.Y), scissor.Width, scissor.Height)
}

func (b *Backend) CmdDraw(cb metadata.NativeHandle, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	b.record(cb, "Draw", nil, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (b *Backend) CmdDrawIndexed(cb metadata.NativeHandle, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	b.record(cb, "DrawIndexed", nil, indexCount, instanceCount, firstIndex, uint32(vertexOffset), firstInstance)
}

func (b *Backend) CmdDrawIndirect(cb, buffer metadata.NativeHandle, offset, drawCount, stride uint32) {
	b.record(cb, "DrawIndirect", []metadata.NativeHandle{buffer}, offset, drawCount, stride)
}

func (b *Backend) CmdDispatch(cb metadata.NativeHandle, groupX, groupY, groupZ uint32) {
	b.record(cb, "Dispatch", nil, groupX, groupY, groupZ)
}

func (b *Backend) CmdCopyBuffer(cb, src metadata.NativeHandle, srcOffset uint32, dst metadata.NativeHandle, dstOffset, size uint32) {
	b.record(cb, "CopyBuffer", []metadata.NativeHandle{src, dst}, srcOffset, dstOffset, size)
}

func (b *Backend) CmdCopyBufferToTexture(cb, buffer, image metadata.NativeHandle, width, height, depth uint32) {
	b.record(cb, "CopyBufferToTexture", []metadata.NativeHandle{buffer, image}, width, height, depth)
}

func (b *Backend) CmdTextureBarrier(cb, image metadata.NativeHandle, oldLayout, newLayout metadata.TextureLayout, depth bool, mipLevels uint32) {
	var isDepth uint32
	if depth {
		isDepth = 1
	}
	b.record(cb, "TextureBarrier", []metadata.NativeHandle{image}, uint32(oldLayout), uint32(newLayout), isDepth, mipLevels)
}

func (b *Backend) CmdResetQueries(cb, pool metadata.NativeHandle, first, count uint32) {
	b.record(cb, "ResetQueries", []metadata.NativeHandle{pool}, first, count)
}

func (b *Backend) CmdWriteTimestamp(cb, pool metadata.NativeHandle, index uint32) {
	b.record(cb, "WriteTimestamp", []metadata.NativeHandle{pool}, index)
}

func (b *Backend) CmdPushConstants(cb, layout metadata.NativeHandle, stages metadata.ShaderStageFlags, offset uint32, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands[cb] = append(b.commands[cb], Command{
		Op:      "PushConstants",
		Handles: []metadata.NativeHandle{layout},
		Values:  []uint32{uint32(stages), offset},
		Data:    append([]byte(nil), data...),
	})
}
