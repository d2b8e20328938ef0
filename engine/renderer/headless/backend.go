package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

var ErrInjected = errors.New("injected failure")

var _ gpu.Backend = (*Backend)(nil)

// Object kinds tracked by the backend.
const (
	KindBuffer              = "buffer"
	KindImage               = "image"
	KindImageView           = "image_view"
	KindSampler             = "sampler"
	KindShaderModule        = "shader_module"
	KindDescriptorSetLayout = "descriptor_set_layout"
	KindDescriptorSet       = "descriptor_set"
	KindRenderPass          = "render_pass"
	KindFramebuffer         = "framebuffer"
	KindPipeline            = "pipeline"
	KindPipelineLayout      = "pipeline_layout"
	KindCommandPool         = "command_pool"
	KindCommandBuffer       = "command_buffer"
	KindQueryPool           = "query_pool"
)

type Options struct {
	// ImageCount overrides the frames in flight of the device config.
	ImageCount             uint32
	UniformBufferAlignment uint32
	TimestampPeriod        float64
	DisableTimestamps      bool
	ColorFormat            metadata.TextureFormat
	DepthFormat            metadata.TextureFormat
}

// Command is a recorded command. Handles and Values hold the arguments in call order.
type Command struct {
	Op      string
	Handles []metadata.NativeHandle
	Values  []uint32
	Data    []byte
}

// Submission is what a Submit call handed to the queue.
type Submission struct {
	Frame    uint32
	Commands [][]Command
}

// Backend is an in-memory gpu.Backend. It keeps track of every native object,
// executes copies and timestamp writes on submit and can be told to fail.
type Backend struct {
	mu   sync.Mutex
	opts Options

	next    metadata.NativeHandle
	objects map[metadata.NativeHandle]string

	memory      map[metadata.NativeHandle][]byte
	hostVisible map[metadata.NativeHandle]bool
	mapped      map[metadata.NativeHandle]bool

	textures map[metadata.NativeHandle]metadata.TextureCreation
	views    map[metadata.NativeHandle]metadata.NativeHandle
	texels   map[metadata.NativeHandle][]byte
	layouts  map[metadata.NativeHandle]metadata.TextureLayout

	setLayouts map[metadata.NativeHandle][]metadata.DescriptorBinding
	setWrites  map[metadata.NativeHandle][]gpu.DescriptorWrite

	renderPassTypes map[metadata.NativeHandle]metadata.RenderPassType
	pipelines       map[metadata.NativeHandle]gpu.PipelineDesc

	poolBuffers map[metadata.NativeHandle][]metadata.NativeHandle
	commands    map[metadata.NativeHandle][]Command
	recording   map[metadata.NativeHandle]bool

	queries map[metadata.NativeHandle][]uint64
	tick    uint64

	swapchain      gpu.SwapchainInfo
	nextImage      uint32
	acquireResults []gpu.PresentResult
	presentResults []gpu.PresentResult

	failures map[string]int

	submissions      []Submission
	immediateSubmits int
	waitIdleCount    int
	frameWaits       int
	invalidDestroys  int
	initialized      bool
}

func New(opts Options) *Backend {
	if opts.UniformBufferAlignment == 0 {
		opts.UniformBufferAlignment = 256
	}
	if opts.TimestampPeriod == 0 {
		opts.TimestampPeriod = 1.0
	}
	if opts.ColorFormat == metadata.TextureFormatUndefined {
		opts.ColorFormat = metadata.TextureFormatB8G8R8A8Unorm
	}
	if opts.DepthFormat == metadata.TextureFormatUndefined {
		opts.DepthFormat = metadata.TextureFormatD32Sfloat
	}
	return &Backend{
		opts:            opts,
		objects:         make(map[metadata.NativeHandle]string),
		memory:          make(map[metadata.NativeHandle][]byte),
		hostVisible:     make(map[metadata.NativeHandle]bool),
		mapped:          make(map[metadata.NativeHandle]bool),
		textures:        make(map[metadata.NativeHandle]metadata.TextureCreation),
		views:           make(map[metadata.NativeHandle]metadata.NativeHandle),
		texels:          make(map[metadata.NativeHandle][]byte),
		layouts:         make(map[metadata.NativeHandle]metadata.TextureLayout),
		setLayouts:      make(map[metadata.NativeHandle][]metadata.DescriptorBinding),
		setWrites:       make(map[metadata.NativeHandle][]gpu.DescriptorWrite),
		renderPassTypes: make(map[metadata.NativeHandle]metadata.RenderPassType),
		pipelines:       make(map[metadata.NativeHandle]gpu.PipelineDesc),
		poolBuffers:     make(map[metadata.NativeHandle][]metadata.NativeHandle),
		commands:        make(map[metadata.NativeHandle][]Command),
		recording:       make(map[metadata.NativeHandle]bool),
		queries:         make(map[metadata.NativeHandle][]uint64),
		failures:        make(map[string]int),
	}
}

func (b *Backend) create(kind string) metadata.NativeHandle {
	b.next++
	b.objects[b.next] = kind
	return b.next
}

func (b *Backend) destroy(kind string, h metadata.NativeHandle) bool {
	if b.objects[h] != kind {
		b.invalidDestroys++
		core.LogWarn("headless: destroying %s %d which is not a live %s", b.objects[h], h, kind)
		return false
	}
	delete(b.objects, h)
	return true
}

// fail consumes an injected failure of op.
func (b *Backend) fail(op string) error {
	if b.failures[op] > 0 {
		b.failures[op]--
		return fmt.Errorf("%s: %w", op, ErrInjected)
	}
	return nil
}

// FailNext makes the next n calls of the named Backend method fail.
func (b *Backend) FailNext(op string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] += n
}

// QueueAcquireResults sets the results of the next AcquireNextImage calls.
func (b *Backend) QueueAcquireResults(results ...gpu.PresentResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acquireResults = append(b.acquireResults, results...)
}

// QueuePresentResults sets the results of the next Present calls.
func (b *Backend) QueuePresentResults(results ...gpu.PresentResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentResults = append(b.presentResults, results...)
}

func (b *Backend) Initialize(cfg config.DeviceConfig, window gpu.Window) (gpu.SwapchainInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("Initialize"); err != nil {
		return gpu.SwapchainInfo{}, err
	}
	imageCount := b.opts.ImageCount
	if imageCount == 0 {
		imageCount = cfg.FramesInFlight
	}
	width, height := cfg.Width, cfg.Height
	if window != nil {
		if w, h := window.FramebufferSize(); w != 0 && h != 0 {
			width, height = w, h
		}
	}
	b.swapchain = gpu.SwapchainInfo{
		ImageCount:  imageCount,
		ColorFormat: b.opts.ColorFormat,
		DepthFormat: b.opts.DepthFormat,
	}
	b.buildSwapchain(width, height)
	b.initialized = true
	return b.copySwapchain(), nil
}

func (b *Backend) buildSwapchain(width, height uint32) {
	b.swapchain.Width = width
	b.swapchain.Height = height
	b.swapchain.ColorViews = make([]metadata.NativeHandle, b.swapchain.ImageCount)
	for i := range b.swapchain.ColorViews {
		b.swapchain.ColorViews[i] = b.create(KindImageView)
	}
	b.swapchain.DepthView = b.create(KindImageView)
	b.nextImage = 0
}

func (b *Backend) copySwapchain() gpu.SwapchainInfo {
	info := b.swapchain
	info.ColorViews = append([]metadata.NativeHandle(nil), b.swapchain.ColorViews...)
	return info
}

func (b *Backend) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range b.swapchain.ColorViews {
		b.destroy(KindImageView, v)
	}
	if b.swapchain.DepthView != metadata.NullNativeHandle {
		b.destroy(KindImageView, b.swapchain.DepthView)
	}
	b.swapchain.ColorViews = nil
	b.swapchain.DepthView = metadata.NullNativeHandle
	b.initialized = false
}

func (b *Backend) DeviceInfo() gpu.DeviceInfo {
	return gpu.DeviceInfo{
		Name:                   "headless",
		UniformBufferAlignment: b.opts.UniformBufferAlignment,
		TimestampPeriod:        b.opts.TimestampPeriod,
		TimestampsSupported:    !b.opts.DisableTimestamps,
		DepthFormat:            b.opts.DepthFormat,
	}
}

func (b *Backend) RecreateSwapchain(width, height uint32) (gpu.SwapchainInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("RecreateSwapchain"); err != nil {
		return gpu.SwapchainInfo{}, err
	}
	for _, v := range b.swapchain.ColorViews {
		b.destroy(KindImageView, v)
	}
	b.destroy(KindImageView, b.swapchain.DepthView)
	b.buildSwapchain(width, height)
	return b.copySwapchain(), nil
}

func (b *Backend) WaitForFrame(frame uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameWaits++
	return b.fail("WaitForFrame")
}

func (b *Backend) AcquireNextImage(frame uint32) (uint32, gpu.PresentResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("AcquireNextImage"); err != nil {
		return 0, gpu.PresentOK, err
	}
	result := gpu.PresentOK
	if len(b.acquireResults) > 0 {
		result = b.acquireResults[0]
		b.acquireResults = b.acquireResults[1:]
	}
	image := b.nextImage
	b.nextImage = (b.nextImage + 1) % b.swapchain.ImageCount
	return image, result, nil
}

func (b *Backend) Submit(frame uint32, commandBuffers []metadata.NativeHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("Submit"); err != nil {
		return err
	}
	s := Submission{Frame: frame}
	for _, cb := range commandBuffers {
		if b.recording[cb] {
			return fmt.Errorf("command buffer %d submitted while recording", cb)
		}
		cmds := append([]Command(nil), b.commands[cb]...)
		b.execute(cmds)
		s.Commands = append(s.Commands, cmds)
	}
	b.submissions = append(b.submissions, s)
	return nil
}

func (b *Backend) Present(frame, image uint32) (gpu.PresentResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("Present"); err != nil {
		return gpu.PresentOK, err
	}
	if len(b.presentResults) > 0 {
		result := b.presentResults[0]
		b.presentResults = b.presentResults[1:]
		return result, nil
	}
	return gpu.PresentOK, nil
}

func (b *Backend) SubmitImmediate(cb metadata.NativeHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("SubmitImmediate"); err != nil {
		return err
	}
	b.immediateSubmits++
	b.execute(b.commands[cb])
	return nil
}

func (b *Backend) WaitIdle() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waitIdleCount++
	return nil
}

// execute applies the commands with visible effects: copies, layout changes and timestamps.
func (b *Backend) execute(cmds []Command) {
	for _, c := range cmds {
		switch c.Op {
		case "CopyBuffer":
			src, dst := b.memory[c.Handles[0]], b.memory[c.Handles[1]]
			srcOff, dstOff, size := c.Values[0], c.Values[1], c.Values[2]
			if src != nil && dst != nil && srcOff+size <= uint32(len(src)) && dstOff+size <= uint32(len(dst)) {
				copy(dst[dstOff:dstOff+size], src[srcOff:srcOff+size])
			}
		case "CopyBufferToTexture":
			src := b.memory[c.Handles[0]]
			b.texels[c.Handles[1]] = append([]byte(nil), src...)
		case "TextureBarrier":
			b.layouts[c.Handles[0]] = metadata.TextureLayout(c.Values[1])
		case "WriteTimestamp":
			b.tick += 1000
			if q := b.queries[c.Handles[0]]; int(c.Values[0]) < len(q) {
				q[c.Values[0]] = b.tick
			}
		}
	}
}

func (b *Backend) CreateBuffer(size uint32, usage metadata.BufferType, hostVisible bool, name string) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreateBuffer"); err != nil {
		return metadata.NullNativeHandle, err
	}
	h := b.create(KindBuffer)
	b.memory[h] = make([]byte, size)
	b.hostVisible[h] = hostVisible
	return h, nil
}

func (b *Backend) DestroyBuffer(buffer metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroy(KindBuffer, buffer) {
		delete(b.memory, buffer)
		delete(b.hostVisible, buffer)
		delete(b.mapped, buffer)
	}
}

func (b *Backend) MapBuffer(buffer metadata.NativeHandle) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("MapBuffer"); err != nil {
		return nil, err
	}
	if b.objects[buffer] != KindBuffer {
		return nil, fmt.Errorf("buffer %d is not live", buffer)
	}
	if !b.hostVisible[buffer] {
		return nil, fmt.Errorf("buffer %d is not host visible", buffer)
	}
	b.mapped[buffer] = true
	return b.memory[buffer], nil
}

func (b *Backend) UnmapBuffer(buffer metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.mapped, buffer)
}

func (b *Backend) CreateTexture(creation *metadata.TextureCreation) (metadata.NativeHandle, metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreateTexture"); err != nil {
		return metadata.NullNativeHandle, metadata.NullNativeHandle, err
	}
	image := b.create(KindImage)
	view := b.create(KindImageView)
	c := *creation
	c.InitialData = nil
	b.textures[image] = c
	b.views[image] = view
	b.layouts[image] = metadata.TextureLayoutUndefined
	return image, view, nil
}

func (b *Backend) DestroyTexture(image, view metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(KindImageView, view)
	if b.destroy(KindImage, image) {
		delete(b.textures, image)
		delete(b.views, image)
		delete(b.texels, image)
		delete(b.layouts, image)
	}
}

func (b *Backend) CreateSampler(creation *metadata.SamplerCreation) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreateSampler"); err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.create(KindSampler), nil
}

func (b *Backend) DestroySampler(sampler metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(KindSampler, sampler)
}

func (b *Backend) CreateShaderModule(stage metadata.ShaderStage, code []byte) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreateShaderModule"); err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.create(KindShaderModule), nil
}

func (b *Backend) DestroyShaderModule(module metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(KindShaderModule, module)
}

func (b *Backend) CreateDescriptorSetLayout(creation *metadata.DescriptorSetLayoutCreation) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreateDescriptorSetLayout"); err != nil {
		return metadata.NullNativeHandle, err
	}
	h := b.create(KindDescriptorSetLayout)
	b.setLayouts[h] = append([]metadata.DescriptorBinding(nil), creation.Bindings...)
	return h, nil
}

func (b *Backend) DestroyDescriptorSetLayout(layout metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroy(KindDescriptorSetLayout, layout) {
		delete(b.setLayouts, layout)
	}
}

func (b *Backend) AllocateDescriptorSet(layout metadata.NativeHandle) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("AllocateDescriptorSet"); err != nil {
		return metadata.NullNativeHandle, err
	}
	if b.objects[layout] != KindDescriptorSetLayout {
		return metadata.NullNativeHandle, fmt.Errorf("descriptor set layout %d is not live", layout)
	}
	return b.create(KindDescriptorSet), nil
}

func (b *Backend) WriteDescriptorSet(set metadata.NativeHandle, writes []gpu.DescriptorWrite) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("WriteDescriptorSet"); err != nil {
		return err
	}
	b.setWrites[set] = append([]gpu.DescriptorWrite(nil), writes...)
	return nil
}

func (b *Backend) FreeDescriptorSet(set metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroy(KindDescriptorSet, set) {
		delete(b.setWrites, set)
	}
}

func (b *Backend) CreateRenderPass(output metadata.RenderPassOutput, passType metadata.RenderPassType) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreateRenderPass"); err != nil {
		return metadata.NullNativeHandle, err
	}
	h := b.create(KindRenderPass)
	b.renderPassTypes[h] = passType
	return h, nil
}

func (b *Backend) DestroyRenderPass(renderPass metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroy(KindRenderPass, renderPass) {
		delete(b.renderPassTypes, renderPass)
	}
}

func (b *Backend) CreateFramebuffer(renderPass metadata.NativeHandle, views []metadata.NativeHandle, width, height uint32) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreateFramebuffer"); err != nil {
		return metadata.NullNativeHandle, err
	}
	if b.objects[renderPass] != KindRenderPass {
		return metadata.NullNativeHandle, fmt.Errorf("render pass %d is not live", renderPass)
	}
	for _, v := range views {
		if b.objects[v] != KindImageView {
			return metadata.NullNativeHandle, fmt.Errorf("image view %d is not live", v)
		}
	}
	return b.create(KindFramebuffer), nil
}

func (b *Backend) DestroyFramebuffer(framebuffer metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(KindFramebuffer, framebuffer)
}

func (b *Backend) CreatePipeline(desc *gpu.PipelineDesc) (metadata.NativeHandle, metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreatePipeline"); err != nil {
		return metadata.NullNativeHandle, metadata.NullNativeHandle, err
	}
	if !desc.Compute && b.objects[desc.RenderPass] != KindRenderPass {
		return metadata.NullNativeHandle, metadata.NullNativeHandle, fmt.Errorf("render pass %d is not live", desc.RenderPass)
	}
	pipeline := b.create(KindPipeline)
	layout := b.create(KindPipelineLayout)
	b.pipelines[pipeline] = *desc
	return pipeline, layout, nil
}

func (b *Backend) DestroyPipeline(pipeline, layout metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroy(KindPipelineLayout, layout)
	if b.destroy(KindPipeline, pipeline) {
		delete(b.pipelines, pipeline)
	}
}

func (b *Backend) CreateCommandPool(queue metadata.QueueType) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreateCommandPool"); err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.create(KindCommandPool), nil
}

func (b *Backend) AllocateCommandBuffer(pool metadata.NativeHandle) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("AllocateCommandBuffer"); err != nil {
		return metadata.NullNativeHandle, err
	}
	cb := b.create(KindCommandBuffer)
	b.poolBuffers[pool] = append(b.poolBuffers[pool], cb)
	return cb, nil
}

func (b *Backend) ResetCommandPool(pool metadata.NativeHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cb := range b.poolBuffers[pool] {
		delete(b.commands, cb)
		b.recording[cb] = false
	}
	return nil
}

func (b *Backend) DestroyCommandPool(pool metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cb := range b.poolBuffers[pool] {
		b.destroy(KindCommandBuffer, cb)
		delete(b.commands, cb)
		delete(b.recording, cb)
	}
	delete(b.poolBuffers, pool)
	b.destroy(KindCommandPool, pool)
}

func (b *Backend) CreateQueryPool(count uint32) (metadata.NativeHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("CreateQueryPool"); err != nil {
		return metadata.NullNativeHandle, err
	}
	h := b.create(KindQueryPool)
	b.queries[h] = make([]uint64, count)
	return h, nil
}

func (b *Backend) GetQueryResults(pool metadata.NativeHandle, first, count uint32, results []uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail("GetQueryResults"); err != nil {
		return err
	}
	q := b.queries[pool]
	if first+count > uint32(len(q)) {
		return fmt.Errorf("queries [%d, %d) out of range", first, first+count)
	}
	copy(results, q[first:first+count])
	return nil
}

func (b *Backend) DestroyQueryPool(pool metadata.NativeHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroy(KindQueryPool, pool) {
		delete(b.queries, pool)
	}
}
