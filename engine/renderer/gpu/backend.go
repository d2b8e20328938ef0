package gpu

import (
	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Window is what the device needs from the windowing layer.
type Window interface {
	// Surface creates the presentation surface for the given native instance
	// and returns a pointer to it.
	Surface(instance any) (uintptr, error)
	// RequiredExtensions lists the instance extensions needed to present.
	RequiredExtensions() []string
	FramebufferSize() (uint32, uint32)
	ResizeRequested() bool
	ClearResizeRequest()
}

// PresentResult reports whether the swapchain still matches the surface.
type PresentResult int

const (
	PresentOK PresentResult = iota
	PresentSuboptimal
	PresentOutOfDate
)

// SwapchainInfo describes the images the device renders into.
type SwapchainInfo struct {
	Width       uint32
	Height      uint32
	ImageCount  uint32
	ColorFormat metadata.TextureFormat
	DepthFormat metadata.TextureFormat
	ColorViews  []metadata.NativeHandle
	DepthView   metadata.NativeHandle
}

// DeviceInfo holds the physical device limits the orchestrator cares about.
type DeviceInfo struct {
	Name                   string
	UniformBufferAlignment uint32
	// Nanoseconds per timestamp tick.
	TimestampPeriod     float64
	TimestampsSupported bool
	DepthFormat         metadata.TextureFormat
}

// ShaderModule is one compiled stage of a shader state.
type ShaderModule struct {
	Stage  metadata.ShaderStage
	Module metadata.NativeHandle
}

// PipelineDesc is a pipeline creation with every handle already resolved to native objects.
type PipelineDesc struct {
	Creation   *metadata.PipelineCreation
	Modules    []ShaderModule
	SetLayouts []metadata.NativeHandle
	RenderPass metadata.NativeHandle
	Compute    bool
}

// DescriptorWrite is a single binding update of a native descriptor set.
type DescriptorWrite struct {
	Binding      uint32
	Type         metadata.DescriptorType
	Buffer       metadata.NativeHandle
	BufferOffset uint32
	BufferRange  uint32
	ImageView    metadata.NativeHandle
	Sampler      metadata.NativeHandle
}

// Commands records work into a native command buffer.
type Commands interface {
	BeginCommandBuffer(cb metadata.NativeHandle) error
	EndCommandBuffer(cb metadata.NativeHandle) error

	CmdBeginRenderPass(cb, renderPass, framebuffer metadata.NativeHandle, area metadata.Rect2D, colors []metadata.ClearColor, depth metadata.ClearDepthStencil)
	CmdEndRenderPass(cb metadata.NativeHandle)
	CmdBindPipeline(cb metadata.NativeHandle, bindPoint metadata.PipelineBindPoint, pipeline metadata.NativeHandle)
	CmdBindVertexBuffer(cb metadata.NativeHandle, binding uint32, buffer metadata.NativeHandle, offset uint32)
	CmdBindIndexBuffer(cb, buffer metadata.NativeHandle, offset uint32, indexType metadata.IndexType)
	// Dynamic offsets follow binding order, one per uniform binding of every set.
	CmdBindDescriptorSets(cb metadata.NativeHandle, bindPoint metadata.PipelineBindPoint, layout metadata.NativeHandle, firstSet uint32, sets []metadata.NativeHandle, dynamicOffsets []uint32)
	CmdSetViewport(cb metadata.NativeHandle, viewport metadata.Viewport)
	CmdSetScissor(cb metadata.NativeHandle, scissor metadata.Rect2D)
	CmdDraw(cb metadata.NativeHandle, vertexCount, instanceCount, firstVertex, firstInstance uint32)
	CmdDrawIndexed(cb metadata.NativeHandle, indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	CmdDrawIndirect(cb, buffer metadata.NativeHandle, offset, drawCount, stride uint32)
	CmdDispatch(cb metadata.NativeHandle, groupX, groupY, groupZ uint32)
	CmdCopyBuffer(cb, src metadata.NativeHandle, srcOffset uint32, dst metadata.NativeHandle, dstOffset, size uint32)
	CmdCopyBufferToTexture(cb, buffer, image metadata.NativeHandle, width, height, depth uint32)
	CmdTextureBarrier(cb, image metadata.NativeHandle, oldLayout, newLayout metadata.TextureLayout, depth bool, mipLevels uint32)
	CmdResetQueries(cb, pool metadata.NativeHandle, first, count uint32)
	CmdWriteTimestamp(cb, pool metadata.NativeHandle, index uint32)
	CmdPushConstants(cb, layout metadata.NativeHandle, stages metadata.ShaderStageFlags, offset uint32, data []byte)
}

// Backend is the native graphics API the device drives. Every native object
// is an opaque metadata.NativeHandle owned by the backend.
type Backend interface {
	Commands

	Initialize(cfg config.DeviceConfig, window Window) (SwapchainInfo, error)
	Shutdown()
	DeviceInfo() DeviceInfo

	RecreateSwapchain(width, height uint32) (SwapchainInfo, error)
	// WaitForFrame blocks until the last submission of the frame slot completed.
	WaitForFrame(frame uint32) error
	AcquireNextImage(frame uint32) (uint32, PresentResult, error)
	// Submit waits on the image-acquired semaphore of the slot and signals its fence.
	Submit(frame uint32, commandBuffers []metadata.NativeHandle) error
	Present(frame, image uint32) (PresentResult, error)
	// SubmitImmediate submits and blocks until the queue is idle.
	SubmitImmediate(cb metadata.NativeHandle) error
	WaitIdle() error

	CreateBuffer(size uint32, usage metadata.BufferType, hostVisible bool, name string) (metadata.NativeHandle, error)
	DestroyBuffer(buffer metadata.NativeHandle)
	// MapBuffer returns the whole host-visible memory of the buffer.
	MapBuffer(buffer metadata.NativeHandle) ([]byte, error)
	UnmapBuffer(buffer metadata.NativeHandle)

	CreateTexture(creation *metadata.TextureCreation) (image, view metadata.NativeHandle, err error)
	DestroyTexture(image, view metadata.NativeHandle)

	CreateSampler(creation *metadata.SamplerCreation) (metadata.NativeHandle, error)
	DestroySampler(sampler metadata.NativeHandle)

	CreateShaderModule(stage metadata.ShaderStage, code []byte) (metadata.NativeHandle, error)
	DestroyShaderModule(module metadata.NativeHandle)

	CreateDescriptorSetLayout(creation *metadata.DescriptorSetLayoutCreation) (metadata.NativeHandle, error)
	DestroyDescriptorSetLayout(layout metadata.NativeHandle)
	AllocateDescriptorSet(layout metadata.NativeHandle) (metadata.NativeHandle, error)
	WriteDescriptorSet(set metadata.NativeHandle, writes []DescriptorWrite) error
	FreeDescriptorSet(set metadata.NativeHandle)

	CreateRenderPass(output metadata.RenderPassOutput, passType metadata.RenderPassType) (metadata.NativeHandle, error)
	DestroyRenderPass(renderPass metadata.NativeHandle)
	CreateFramebuffer(renderPass metadata.NativeHandle, views []metadata.NativeHandle, width, height uint32) (metadata.NativeHandle, error)
	DestroyFramebuffer(framebuffer metadata.NativeHandle)

	CreatePipeline(desc *PipelineDesc) (pipeline, layout metadata.NativeHandle, err error)
	DestroyPipeline(pipeline, layout metadata.NativeHandle)

	CreateCommandPool(queue metadata.QueueType) (metadata.NativeHandle, error)
	AllocateCommandBuffer(pool metadata.NativeHandle) (metadata.NativeHandle, error)
	ResetCommandPool(pool metadata.NativeHandle) error
	DestroyCommandPool(pool metadata.NativeHandle)

	CreateQueryPool(count uint32) (metadata.NativeHandle, error)
	GetQueryResults(pool metadata.NativeHandle, first, count uint32, results []uint64) error
	DestroyQueryPool(pool metadata.NativeHandle)
}
