package vulkan

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

var _ gpu.Backend = (*Backend)(nil)

// Backend drives a Vulkan device through goki/vulkan. Native handles given to
// the device are keys into per-kind tables.
type Backend struct {
	cfg     config.DeviceConfig
	window  gpu.Window
	context *vulkanContext
	locks   *lockPool

	swapchain *vulkanSwapchain
	frames    []*frameSync

	descriptorPool vk.DescriptorPool

	buffers         *handleTable[*vulkanBuffer]
	images          *handleTable[*vulkanImage]
	views           *handleTable[vk.ImageView]
	samplers        *handleTable[vk.Sampler]
	shaders         *handleTable[shaderModule]
	setLayouts      *handleTable[*descriptorSetLayout]
	sets            *handleTable[*descriptorSet]
	renderPasses    *handleTable[*renderPass]
	framebuffers    *handleTable[vk.Framebuffer]
	pipelines       *handleTable[vk.Pipeline]
	pipelineLayouts *handleTable[vk.PipelineLayout]
	commandPools    *handleTable[*commandPool]
	commandBuffers  *handleTable[*commandBuffer]
	queryPools      *handleTable[*queryPool]
}

func New() *Backend {
	return &Backend{
		context:         &vulkanContext{},
		locks:           newLockPool(),
		buffers:         newHandleTable[*vulkanBuffer](),
		images:          newHandleTable[*vulkanImage](),
		views:           newHandleTable[vk.ImageView](),
		samplers:        newHandleTable[vk.Sampler](),
		shaders:         newHandleTable[shaderModule](),
		setLayouts:      newHandleTable[*descriptorSetLayout](),
		sets:            newHandleTable[*descriptorSet](),
		renderPasses:    newHandleTable[*renderPass](),
		framebuffers:    newHandleTable[vk.Framebuffer](),
		pipelines:       newHandleTable[vk.Pipeline](),
		pipelineLayouts: newHandleTable[vk.PipelineLayout](),
		commandPools:    newHandleTable[*commandPool](),
		commandBuffers:  newHandleTable[*commandBuffer](),
		queryPools:      newHandleTable[*queryPool](),
	}
}

func (b *Backend) Initialize(cfg config.DeviceConfig, window gpu.Window) (gpu.SwapchainInfo, error) {
	b.cfg = cfg
	b.window = window

	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return gpu.SwapchainInfo{}, fmt.Errorf("vulkan loader not found: %w", core.ErrNotInitialized)
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return gpu.SwapchainInfo{}, fmt.Errorf("failed to initialize vulkan: %w", err)
	}

	if err := b.createInstance(cfg); err != nil {
		return gpu.SwapchainInfo{}, err
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.Surface(b.context.instance)
	if err != nil || surface == 0 {
		return gpu.SwapchainInfo{}, fmt.Errorf("failed to create the window surface: %v", err)
	}
	b.context.surface = vk.SurfaceFromPointer(surface)

	device, err := createDevice(b.context)
	if err != nil {
		return gpu.SwapchainInfo{}, fmt.Errorf("failed to create device: %w", err)
	}
	b.context.device = device

	width, height := window.FramebufferSize()
	if width == 0 || height == 0 {
		width, height = cfg.Width, cfg.Height
	}
	swapchain, err := b.createSwapchain(width, height, vk.NullSwapchain)
	if err != nil {
		return gpu.SwapchainInfo{}, err
	}
	b.swapchain = swapchain

	// one slot per swapchain image, the count stays fixed after this
	for range swapchain.images {
		sync, err := newFrameSync(b.context)
		if err != nil {
			return gpu.SwapchainInfo{}, err
		}
		b.frames = append(b.frames, sync)
	}

	if err := b.createDescriptorPool(cfg.Pools.DescriptorSets * 2); err != nil {
		return gpu.SwapchainInfo{}, err
	}

	core.LogInfo("Vulkan backend initialized successfully.")
	return swapchain.info(), nil
}

func (b *Backend) createInstance(cfg config.DeviceConfig) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   safeString(cfg.AppName),
		PEngineName:        safeString("Anima GPU"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{"VK_KHR_surface"}
	extensions = append(extensions, b.window.RequiredExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}

	var layers []string
	if cfg.Validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if !hasInstanceLayer(validationLayer) {
			return fmt.Errorf("required validation layer is missing: %s", validationLayer)
		}
		layers = append(layers, validationLayer)
		core.LogInfo("Validation layers enabled.")
	}
	for _, extension := range extensions {
		core.LogDebug("Required extension: %s", extension)
	}

	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = safeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = safeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, b.context.allocator, &b.context.instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(b.context.instance); err != nil {
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if cfg.Validation {
		debugInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReport,
		}
		if err := check("vkCreateDebugReportCallbackEXT",
			vk.CreateDebugReportCallback(b.context.instance, &debugInfo, b.context.allocator, &b.context.debugCallback)); err != nil {
			return err
		}
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

// Shutdown destroys what is left in reverse creation order. Objects still in
// the tables were leaked by the device and are destroyed with a warning.
func (b *Backend) Shutdown() {
	if b.context.device == nil || b.context.device.logical == nil {
		b.destroyInstance()
		return
	}
	logical := b.context.device.logical
	vk.DeviceWaitIdle(logical)

	leaked := 0
	b.queryPools.drain(func(_ metadata.NativeHandle, q *queryPool) {
		leaked++
		vk.DestroyQueryPool(logical, q.handle, b.context.allocator)
	})
	b.commandBuffers.drain(func(metadata.NativeHandle, *commandBuffer) {})
	b.commandPools.drain(func(_ metadata.NativeHandle, p *commandPool) {
		leaked++
		vk.DestroyCommandPool(logical, p.handle, b.context.allocator)
	})
	b.pipelines.drain(func(_ metadata.NativeHandle, p vk.Pipeline) {
		leaked++
		vk.DestroyPipeline(logical, p, b.context.allocator)
	})
	b.pipelineLayouts.drain(func(_ metadata.NativeHandle, l vk.PipelineLayout) {
		vk.DestroyPipelineLayout(logical, l, b.context.allocator)
	})
	b.framebuffers.drain(func(_ metadata.NativeHandle, f vk.Framebuffer) {
		leaked++
		vk.DestroyFramebuffer(logical, f, b.context.allocator)
	})
	b.renderPasses.drain(func(_ metadata.NativeHandle, p *renderPass) {
		leaked++
		vk.DestroyRenderPass(logical, p.handle, b.context.allocator)
	})
	b.sets.drain(func(metadata.NativeHandle, *descriptorSet) {})
	if b.descriptorPool != nil {
		vk.DestroyDescriptorPool(logical, b.descriptorPool, b.context.allocator)
		b.descriptorPool = nil
	}
	b.setLayouts.drain(func(_ metadata.NativeHandle, l *descriptorSetLayout) {
		leaked++
		vk.DestroyDescriptorSetLayout(logical, l.handle, b.context.allocator)
	})
	b.shaders.drain(func(_ metadata.NativeHandle, m shaderModule) {
		leaked++
		vk.DestroyShaderModule(logical, m.handle, b.context.allocator)
	})
	b.samplers.drain(func(_ metadata.NativeHandle, s vk.Sampler) {
		leaked++
		vk.DestroySampler(logical, s, b.context.allocator)
	})

	for _, sync := range b.frames {
		sync.destroy(b.context)
	}
	b.frames = nil
	if b.swapchain != nil {
		b.swapchain.destroy(b)
		b.swapchain = nil
	}

	// views of textures go with their images
	b.views.drain(func(metadata.NativeHandle, vk.ImageView) {})
	b.images.drain(func(_ metadata.NativeHandle, img *vulkanImage) {
		leaked++
		img.destroy(b.context)
	})
	b.buffers.drain(func(_ metadata.NativeHandle, buf *vulkanBuffer) {
		leaked++
		buf.destroy(b.context)
	})
	if leaked > 0 {
		core.LogWarn("vulkan backend destroyed %d objects the device did not release", leaked)
	}

	b.context.device.destroy(b.context)
	b.destroyInstance()
}

func (b *Backend) destroyInstance() {
	if b.context.instance == nil {
		return
	}
	if b.context.surface != vk.NullSurface {
		vk.DestroySurface(b.context.instance, b.context.surface, b.context.allocator)
		b.context.surface = vk.NullSurface
	}
	if b.context.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(b.context.instance, b.context.debugCallback, b.context.allocator)
		b.context.debugCallback = vk.NullDebugReportCallback
	}
	core.LogDebug("Destroying Vulkan instance...")
	vk.DestroyInstance(b.context.instance, b.context.allocator)
	b.context.instance = nil
}

func (b *Backend) DeviceInfo() gpu.DeviceInfo {
	device := b.context.device
	return gpu.DeviceInfo{
		Name:                   cString(device.properties.DeviceName[:]),
		UniformBufferAlignment: uint32(device.limits.MinUniformBufferOffsetAlignment),
		TimestampPeriod:        float64(device.limits.TimestampPeriod),
		TimestampsSupported:    device.timestampBits > 0,
		DepthFormat:            fromVkFormat(device.depthFormat),
	}
}

// RecreateSwapchain builds a swapchain of the new size and retires the old one.
func (b *Backend) RecreateSwapchain(width, height uint32) (gpu.SwapchainInfo, error) {
	if err := b.WaitIdle(); err != nil {
		return gpu.SwapchainInfo{}, err
	}
	old := b.swapchain
	swapchain, err := b.createSwapchain(width, height, old.handle)
	if err != nil {
		return gpu.SwapchainInfo{}, err
	}
	old.destroy(b)
	b.swapchain = swapchain
	return swapchain.info(), nil
}

func (b *Backend) frame(frame uint32) (*frameSync, error) {
	if int(frame) >= len(b.frames) {
		return nil, fmt.Errorf("frame slot %d out of range", frame)
	}
	return b.frames[frame], nil
}

// WaitForFrame blocks until the last submission of the slot completed.
func (b *Backend) WaitForFrame(frame uint32) error {
	sync, err := b.frame(frame)
	if err != nil {
		return err
	}
	return sync.inFlight.wait(b.context, math.MaxUint64)
}

func (b *Backend) AcquireNextImage(frame uint32) (uint32, gpu.PresentResult, error) {
	sync, err := b.frame(frame)
	if err != nil {
		return 0, gpu.PresentOK, err
	}
	var index uint32
	result := vk.AcquireNextImage(b.context.device.logical, b.swapchain.handle, math.MaxUint64, sync.imageAvailable, vk.NullFence, &index)
	switch result {
	case vk.Success:
		return index, gpu.PresentOK, nil
	case vk.Suboptimal:
		return index, gpu.PresentSuboptimal, nil
	case vk.ErrorOutOfDate:
		return 0, gpu.PresentOutOfDate, nil
	}
	return 0, gpu.PresentOK, check("vkAcquireNextImageKHR", result)
}

// Submit resets the fence of the slot right before the queue signals it.
func (b *Backend) Submit(frame uint32, commandBuffers []metadata.NativeHandle) error {
	sync, err := b.frame(frame)
	if err != nil {
		return err
	}
	handles := make([]vk.CommandBuffer, 0, len(commandBuffers))
	for _, h := range commandBuffers {
		cb, ok := b.commandBuffers.get(h)
		if !ok {
			return fmt.Errorf("%w: command buffer %d", core.ErrInvalidHandle, h)
		}
		if cb.state != commandBufferStateRecordingEnded {
			return fmt.Errorf("command buffer %d is not ready to submit", h)
		}
		handles = append(handles, cb.handle)
	}

	if err := sync.inFlight.reset(b.context); err != nil {
		return err
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{sync.imageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   uint32(len(handles)),
		PCommandBuffers:      handles,
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{sync.renderComplete},
	}
	return b.locks.safeCall(queueSubmission, func() error {
		return check("vkQueueSubmit", vk.QueueSubmit(b.context.device.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, sync.inFlight.handle))
	})
}

func (b *Backend) Present(frame, image uint32) (gpu.PresentResult, error) {
	sync, err := b.frame(frame)
	if err != nil {
		return gpu.PresentOK, err
	}
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sync.renderComplete},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{b.swapchain.handle},
		PImageIndices:      []uint32{image},
	}
	var result vk.Result
	_ = b.locks.safeCall(queueSubmission, func() error {
		result = vk.QueuePresent(b.context.device.presentQueue, &presentInfo)
		return nil
	})
	switch result {
	case vk.Success:
		return gpu.PresentOK, nil
	case vk.Suboptimal:
		return gpu.PresentSuboptimal, nil
	case vk.ErrorOutOfDate:
		return gpu.PresentOutOfDate, nil
	}
	return gpu.PresentOK, check("vkQueuePresentKHR", result)
}

func (b *Backend) SubmitImmediate(cb metadata.NativeHandle) error {
	buffer, ok := b.commandBuffers.get(cb)
	if !ok {
		return fmt.Errorf("%w: command buffer %d", core.ErrInvalidHandle, cb)
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{buffer.handle},
	}
	queue := b.context.device.graphicsQueue
	return b.locks.safeCall(queueSubmission, func() error {
		if err := check("vkQueueSubmit", vk.QueueSubmit(queue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence)); err != nil {
			return err
		}
		return check("vkQueueWaitIdle", vk.QueueWaitIdle(queue))
	})
}

func (b *Backend) WaitIdle() error {
	return check("vkDeviceWaitIdle", vk.DeviceWaitIdle(b.context.device.logical))
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64,
	messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
