package gpu

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/anima-gpu/engine/containers"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// CreateBuffer returns InvalidBuffer when the pool is exhausted or the native
// buffer cannot be created. Dynamic uniform buffers are views into the
// per-frame ring and get their memory on every MapBuffer.
func (d *Device) CreateBuffer(creation metadata.BufferCreation) metadata.BufferHandle {
	index, buffer := d.buffers.Obtain()
	if index == containers.InvalidIndex {
		return metadata.InvalidBuffer
	}
	handle := metadata.BufferHandle(index)

	buffer.Type = creation.Type
	buffer.Usage = creation.Usage
	buffer.Size = creation.Size
	buffer.Name = creation.Name
	buffer.Handle = handle
	buffer.GlobalOffset = 0
	buffer.ParentBuffer = metadata.InvalidBuffer

	if creation.Usage == metadata.ResourceUsageDynamic && creation.Type.Has(metadata.BufferTypeUniform) && d.dynamicBuffer.IsValid() {
		buffer.ParentBuffer = d.dynamicBuffer
		return handle
	}

	hostVisible := creation.Usage != metadata.ResourceUsageImmutable
	usage := creation.Type
	if !hostVisible && len(creation.InitialData) > 0 {
		usage |= metadata.BufferTypeTransferDst
	}
	native, err := d.backend.CreateBuffer(creation.Size, usage, hostVisible, creation.Name)
	if err != nil {
		core.LogError("failed to create buffer %s: %s", creation.Name, err.Error())
		_ = d.buffers.Release(index)
		return metadata.InvalidBuffer
	}
	buffer.Native = native

	if len(creation.InitialData) > 0 {
		if err := d.uploadBuffer(native, creation.InitialData, creation.Size, hostVisible, creation.Name); err != nil {
			core.LogError("failed to upload buffer %s: %s", creation.Name, err.Error())
			d.backend.DestroyBuffer(native)
			_ = d.buffers.Release(index)
			return metadata.InvalidBuffer
		}
	}
	return handle
}

func (d *Device) uploadBuffer(native metadata.NativeHandle, data []byte, size uint32, hostVisible bool, name string) error {
	if uint32(len(data)) > size {
		data = data[:size]
	}
	if hostVisible {
		mapped, err := d.backend.MapBuffer(native)
		if err != nil {
			return err
		}
		copy(mapped, data)
		d.backend.UnmapBuffer(native)
		return nil
	}

	staging, err := d.createStaging(data, name)
	if err != nil {
		return err
	}
	defer d.backend.DestroyBuffer(staging)

	cb := d.GetInstantCommandBuffer()
	d.backend.CmdCopyBuffer(cb.native, staging, 0, native, 0, uint32(len(data)))
	return d.SubmitImmediate(cb)
}

func (d *Device) createStaging(data []byte, name string) (metadata.NativeHandle, error) {
	staging, err := d.backend.CreateBuffer(uint32(len(data)), metadata.BufferTypeTransferSrc, true, name+"_staging")
	if err != nil {
		return metadata.NullNativeHandle, err
	}
	mapped, err := d.backend.MapBuffer(staging)
	if err != nil {
		d.backend.DestroyBuffer(staging)
		return metadata.NullNativeHandle, err
	}
	copy(mapped, data)
	d.backend.UnmapBuffer(staging)
	return staging, nil
}

// CreateTexture creates the image and its view. InitialData is uploaded through
// a staging buffer and left in the shader read layout.
func (d *Device) CreateTexture(creation metadata.TextureCreation) metadata.TextureHandle {
	if creation.Width == 0 || creation.Height == 0 || creation.Format == metadata.TextureFormatUndefined {
		core.LogError("invalid texture %s: %dx%d, format %d", creation.Name, creation.Width, creation.Height, creation.Format)
		return metadata.InvalidTexture
	}
	if creation.Depth == 0 {
		creation.Depth = 1
	}
	if creation.MipLevels == 0 {
		creation.MipLevels = 1
	}

	index, texture := d.textures.Obtain()
	if index == containers.InvalidIndex {
		return metadata.InvalidTexture
	}
	handle := metadata.TextureHandle(index)

	texture.Width = creation.Width
	texture.Height = creation.Height
	texture.Depth = creation.Depth
	texture.MipLevels = creation.MipLevels
	texture.Flags = creation.Flags
	texture.Format = creation.Format
	texture.Type = creation.Type
	texture.Handle = handle
	texture.Name = creation.Name

	image, view, err := d.backend.CreateTexture(&creation)
	if err != nil {
		core.LogError("failed to create texture %s: %s", creation.Name, err.Error())
		_ = d.textures.Release(index)
		return metadata.InvalidTexture
	}
	texture.Native = image
	texture.View = view

	if len(creation.InitialData) > 0 {
		if err := d.uploadTexture(texture, creation.InitialData); err != nil {
			core.LogError("failed to upload texture %s: %s", creation.Name, err.Error())
			d.backend.DestroyTexture(image, view)
			_ = d.textures.Release(index)
			return metadata.InvalidTexture
		}
	}
	return handle
}

func (d *Device) uploadTexture(texture *Texture, data []byte) error {
	size := texture.Width * texture.Height * texture.Depth * texture.Format.BytesPerPixel()
	if size == 0 {
		return fmt.Errorf("format %d has no texel size", texture.Format)
	}
	if uint32(len(data)) < size {
		return fmt.Errorf("initial data holds %d bytes, %d needed", len(data), size)
	}

	staging, err := d.createStaging(data[:size], texture.Name)
	if err != nil {
		return err
	}
	defer d.backend.DestroyBuffer(staging)

	depth := texture.Format.HasDepth()
	cb := d.GetInstantCommandBuffer()
	d.backend.CmdTextureBarrier(cb.native, texture.Native, metadata.TextureLayoutUndefined, metadata.TextureLayoutTransferDst, depth, texture.MipLevels)
	d.backend.CmdCopyBufferToTexture(cb.native, staging, texture.Native, texture.Width, texture.Height, texture.Depth)
	d.backend.CmdTextureBarrier(cb.native, texture.Native, metadata.TextureLayoutTransferDst, metadata.TextureLayoutShaderReadOnly, depth, texture.MipLevels)
	return d.SubmitImmediate(cb)
}

func (d *Device) CreateSampler(creation metadata.SamplerCreation) metadata.SamplerHandle {
	index, sampler := d.samplers.Obtain()
	if index == containers.InvalidIndex {
		return metadata.InvalidSampler
	}

	native, err := d.backend.CreateSampler(&creation)
	if err != nil {
		core.LogError("failed to create sampler %s: %s", creation.Name, err.Error())
		_ = d.samplers.Release(index)
		return metadata.InvalidSampler
	}
	sampler.Native = native
	sampler.MinFilter = creation.MinFilter
	sampler.MagFilter = creation.MagFilter
	sampler.MipFilter = creation.MipFilter
	sampler.AddressU = creation.AddressU
	sampler.AddressV = creation.AddressV
	sampler.AddressW = creation.AddressW
	sampler.Name = creation.Name
	return metadata.SamplerHandle(index)
}

// CreateShaderState compiles every source stage and creates the shader modules.
// A failed stage dumps the source of every stage and fails the whole state.
func (d *Device) CreateShaderState(creation metadata.ShaderStateCreation) metadata.ShaderStateHandle {
	if len(creation.Stages) == 0 {
		core.LogError("shader state %s has no stages", creation.Name)
		return metadata.InvalidShaderState
	}
	if len(creation.Stages) > metadata.MaxShaderStages {
		core.LogError("shader state %s has %d stages, max is %d", creation.Name, len(creation.Stages), metadata.MaxShaderStages)
		return metadata.InvalidShaderState
	}

	index, state := d.shaderStates.Obtain()
	if index == containers.InvalidIndex {
		return metadata.InvalidShaderState
	}
	state.Name = creation.Name
	state.GraphicsPipeline = !creation.IsCompute()

	for _, stage := range creation.Stages {
		module, err := d.createShaderModule(stage, creation.Name)
		if err != nil {
			core.LogError("error in creation of shader %s: %s. Dumping all shader informations.", creation.Name, err.Error())
			for _, s := range creation.Stages {
				core.LogError("%s (%s):\n%s", s.Stage, s.Language, s.Source)
			}
			for _, m := range state.Modules {
				d.backend.DestroyShaderModule(m.Module)
			}
			_ = d.shaderStates.Release(index)
			return metadata.InvalidShaderState
		}
		state.Modules = append(state.Modules, ShaderModule{Stage: stage.Stage, Module: module})
	}
	return metadata.ShaderStateHandle(index)
}

func (d *Device) createShaderModule(stage metadata.ShaderStageCreation, name string) (metadata.NativeHandle, error) {
	code := stage.Code
	if stage.Language != metadata.ShaderLanguageSPIRV {
		if d.compiler == nil {
			return metadata.NullNativeHandle, fmt.Errorf("%w: no compiler for %s", core.ErrShaderCompilation, stage.Language)
		}
		compiled, err := d.compiler.Compile(stage.Stage, stage.Language, stage.Source, name)
		if err != nil {
			return metadata.NullNativeHandle, fmt.Errorf("%w: %s", core.ErrShaderCompilation, err.Error())
		}
		code = compiled
	}
	if len(code) == 0 || len(code)%4 != 0 {
		return metadata.NullNativeHandle, fmt.Errorf("%w: %s stage has %d bytes of SPIR-V", core.ErrShaderCompilation, stage.Stage, len(code))
	}
	return d.backend.CreateShaderModule(stage.Stage, code)
}

// CreatePipeline creates the shader state it owns, then the native pipeline.
// Graphics pipelines resolve their render pass output through the cache.
func (d *Device) CreatePipeline(creation metadata.PipelineCreation) metadata.PipelineHandle {
	shaderState := d.CreateShaderState(creation.Shaders)
	if !shaderState.IsValid() {
		core.LogError("failed to create shader state for pipeline %s", creation.Name)
		return metadata.InvalidPipeline
	}
	if len(creation.DescriptorSetLayouts) > metadata.MaxDescriptorSetLayouts {
		core.LogError("pipeline %s uses %d descriptor set layouts, max is %d", creation.Name, len(creation.DescriptorSetLayouts), metadata.MaxDescriptorSetLayouts)
		d.DestroyShaderState(shaderState)
		return metadata.InvalidPipeline
	}

	setLayouts := make([]metadata.NativeHandle, 0, len(creation.DescriptorSetLayouts))
	for _, h := range creation.DescriptorSetLayouts {
		layout := d.descriptorSetLayouts.Get(uint32(h))
		if layout == nil {
			core.LogError("pipeline %s uses invalid descriptor set layout %d", creation.Name, h)
			d.DestroyShaderState(shaderState)
			return metadata.InvalidPipeline
		}
		setLayouts = append(setLayouts, layout.Native)
	}

	index, pipeline := d.pipelines.Obtain()
	if index == containers.InvalidIndex {
		d.DestroyShaderState(shaderState)
		return metadata.InvalidPipeline
	}

	state := d.shaderStates.Get(uint32(shaderState))
	desc := &PipelineDesc{
		Creation:   &creation,
		Modules:    state.Modules,
		SetLayouts: setLayouts,
		Compute:    !state.GraphicsPipeline,
	}
	bindPoint := metadata.PipelineBindPointCompute
	if state.GraphicsPipeline {
		bindPoint = metadata.PipelineBindPointGraphics
		desc.RenderPass = d.GetNativeRenderPass(creation.RenderPass)
		if desc.RenderPass == metadata.NullNativeHandle {
			_ = d.pipelines.Release(index)
			d.DestroyShaderState(shaderState)
			return metadata.InvalidPipeline
		}
	}

	native, layout, err := d.backend.CreatePipeline(desc)
	if err != nil {
		core.LogError("failed to create pipeline %s: %s", creation.Name, err.Error())
		_ = d.pipelines.Release(index)
		d.DestroyShaderState(shaderState)
		return metadata.InvalidPipeline
	}

	pipeline.Native = native
	pipeline.Layout = layout
	pipeline.BindPoint = bindPoint
	pipeline.ShaderState = shaderState
	pipeline.DescriptorSetLayouts = append([]metadata.DescriptorSetLayoutHandle(nil), creation.DescriptorSetLayouts...)
	pipeline.RenderPass = creation.RenderPass
	pipeline.PushConstantSize = creation.PushConstantSize
	pipeline.Handle = metadata.PipelineHandle(index)
	pipeline.Name = creation.Name
	return pipeline.Handle
}

// CreateRenderPass builds a render pass and its framebuffers. Geometry passes
// share native passes with every pass of the same output shape.
func (d *Device) CreateRenderPass(creation metadata.RenderPassCreation) metadata.RenderPassHandle {
	for _, h := range creation.OutputTextures {
		if d.textures.Get(uint32(h)) == nil {
			core.LogError("render pass %s uses invalid output texture %d", creation.Name, h)
			return metadata.InvalidRenderPass
		}
	}
	if len(creation.OutputTextures) > metadata.MaxImageOutputs {
		core.LogError("render pass %s has %d outputs, max is %d", creation.Name, len(creation.OutputTextures), metadata.MaxImageOutputs)
		return metadata.InvalidRenderPass
	}
	if creation.DepthStencilTexture.IsValid() && d.textures.Get(uint32(creation.DepthStencilTexture)) == nil {
		core.LogError("render pass %s uses invalid depth texture %d", creation.Name, creation.DepthStencilTexture)
		return metadata.InvalidRenderPass
	}
	if creation.Type == metadata.RenderPassTypeGeometry && len(creation.OutputTextures) == 0 && !creation.DepthStencilTexture.IsValid() {
		core.LogError("geometry render pass %s has no attachments", creation.Name)
		return metadata.InvalidRenderPass
	}

	index, pass := d.renderPasses.Obtain()
	if index == containers.InvalidIndex {
		return metadata.InvalidRenderPass
	}

	pass.Type = creation.Type
	pass.Name = creation.Name
	pass.Handle = metadata.RenderPassHandle(index)
	pass.ScaleX = scaleOrOne(creation.ScaleX)
	pass.ScaleY = scaleOrOne(creation.ScaleY)
	pass.Resize = creation.Resize
	pass.OutputTextures = append([]metadata.TextureHandle(nil), creation.OutputTextures...)
	pass.DepthStencilTexture = creation.DepthStencilTexture
	pass.Output = d.renderPassOutput(&creation)

	var err error
	switch creation.Type {
	case metadata.RenderPassTypeSwapchain:
		err = d.createSwapchainPass(pass)
	case metadata.RenderPassTypeCompute:
		pass.Width, pass.Height = d.passSize(pass)
	case metadata.RenderPassTypeGeometry:
		pass.Width, pass.Height = d.passSize(pass)
		pass.Native = d.GetNativeRenderPass(pass.Output)
		if pass.Native == metadata.NullNativeHandle {
			err = fmt.Errorf("no native render pass")
			break
		}
		err = d.createPassFramebuffer(pass)
	default:
		err = fmt.Errorf("unknown render pass type %d", creation.Type)
	}
	if err != nil {
		core.LogError("failed to create render pass %s: %s", creation.Name, err.Error())
		_ = d.renderPasses.Release(index)
		return metadata.InvalidRenderPass
	}
	return pass.Handle
}

func scaleOrOne(s float32) float32 {
	if s <= 0 {
		return 1.0
	}
	return s
}

// renderPassOutput describes the attachments of a creation, one color
// attachment per output texture.
func (d *Device) renderPassOutput(creation *metadata.RenderPassCreation) metadata.RenderPassOutput {
	if creation.Type == metadata.RenderPassTypeSwapchain {
		return d.swapchainOutput
	}
	var output metadata.RenderPassOutput
	for _, h := range creation.OutputTextures {
		output.Color(d.textures.Get(uint32(h)).Format)
	}
	if creation.DepthStencilTexture.IsValid() {
		output.Depth(d.textures.Get(uint32(creation.DepthStencilTexture)).Format)
	}
	output.SetOperations(creation.ColorOperation, creation.DepthOperation, creation.StencilOperation)
	return output
}

// passSize is the size of the first attachment, or the swapchain for passes without any.
func (d *Device) passSize(pass *RenderPass) (uint32, uint32) {
	if len(pass.OutputTextures) > 0 {
		t := d.textures.Get(uint32(pass.OutputTextures[0]))
		return t.Width, t.Height
	}
	if pass.DepthStencilTexture.IsValid() {
		t := d.textures.Get(uint32(pass.DepthStencilTexture))
		return t.Width, t.Height
	}
	return d.swapchain.Width, d.swapchain.Height
}

func (d *Device) createSwapchainPass(pass *RenderPass) error {
	native, err := d.backend.CreateRenderPass(pass.Output, metadata.RenderPassTypeSwapchain)
	if err != nil {
		return err
	}
	pass.Native = native
	if err := d.createSwapchainFramebuffers(pass); err != nil {
		d.backend.DestroyRenderPass(native)
		return err
	}
	return nil
}

func (d *Device) createSwapchainFramebuffers(pass *RenderPass) error {
	pass.Width = d.swapchain.Width
	pass.Height = d.swapchain.Height
	pass.Framebuffers = make([]metadata.NativeHandle, 0, len(d.swapchain.ColorViews))
	for i, view := range d.swapchain.ColorViews {
		views := []metadata.NativeHandle{view}
		if d.swapchain.DepthView != metadata.NullNativeHandle {
			views = append(views, d.swapchain.DepthView)
		}
		framebuffer, err := d.backend.CreateFramebuffer(pass.Native, views, pass.Width, pass.Height)
		if err != nil {
			d.destroyFramebuffers(pass)
			return fmt.Errorf("failed to create swapchain framebuffer %d: %w", i, err)
		}
		pass.Framebuffers = append(pass.Framebuffers, framebuffer)
	}
	return nil
}

// createPassFramebuffer resolves the framebuffer of a geometry pass through the cache.
func (d *Device) createPassFramebuffer(pass *RenderPass) error {
	key := framebufferKey{renderPass: pass.Native, width: pass.Width, height: pass.Height}
	for _, h := range pass.OutputTextures {
		key.views[key.numViews] = d.textures.Get(uint32(h)).View
		key.numViews++
	}
	if pass.DepthStencilTexture.IsValid() {
		key.views[key.numViews] = d.textures.Get(uint32(pass.DepthStencilTexture)).View
		key.numViews++
	}

	framebuffer, err := d.acquireFramebuffer(key)
	if err != nil {
		return err
	}
	pass.Framebuffers = []metadata.NativeHandle{framebuffer}
	pass.framebufferKeys = []framebufferKey{key}
	return nil
}

func (d *Device) CreateDescriptorSetLayout(creation metadata.DescriptorSetLayoutCreation) metadata.DescriptorSetLayoutHandle {
	if len(creation.Bindings) > metadata.MaxDescriptorsPerSet {
		core.LogError("descriptor set layout %s has %d bindings, max is %d", creation.Name, len(creation.Bindings), metadata.MaxDescriptorsPerSet)
		return metadata.InvalidDescriptorSetLayout
	}

	bindings := make([]metadata.DescriptorBinding, len(creation.Bindings))
	copy(bindings, creation.Bindings)
	for i := range bindings {
		if bindings[i].Count == 0 {
			bindings[i].Count = 1
		}
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].Index < bindings[j].Index })
	for i := 1; i < len(bindings); i++ {
		if bindings[i].Index == bindings[i-1].Index {
			core.LogError("descriptor set layout %s binds index %d twice", creation.Name, bindings[i].Index)
			return metadata.InvalidDescriptorSetLayout
		}
	}

	index, layout := d.descriptorSetLayouts.Obtain()
	if index == containers.InvalidIndex {
		return metadata.InvalidDescriptorSetLayout
	}

	creation.Bindings = bindings
	native, err := d.backend.CreateDescriptorSetLayout(&creation)
	if err != nil {
		core.LogError("failed to create descriptor set layout %s: %s", creation.Name, err.Error())
		_ = d.descriptorSetLayouts.Release(index)
		return metadata.InvalidDescriptorSetLayout
	}
	layout.Native = native
	layout.Bindings = bindings
	layout.SetIndex = creation.SetIndex
	layout.Handle = metadata.DescriptorSetLayoutHandle(index)
	layout.Name = creation.Name
	return layout.Handle
}

func (d *Device) CreateDescriptorSet(creation metadata.DescriptorSetCreation) metadata.DescriptorSetHandle {
	layout := d.descriptorSetLayouts.Get(uint32(creation.Layout))
	if layout == nil {
		core.LogError("descriptor set %s uses invalid layout %d", creation.Name, creation.Layout)
		return metadata.InvalidDescriptorSet
	}
	writes, err := d.descriptorWrites(layout, creation.Resources, creation.Samplers, creation.Bindings)
	if err != nil {
		core.LogError("invalid descriptor set %s: %s", creation.Name, err.Error())
		return metadata.InvalidDescriptorSet
	}

	index, set := d.descriptorSets.Obtain()
	if index == containers.InvalidIndex {
		return metadata.InvalidDescriptorSet
	}

	native, err := d.backend.AllocateDescriptorSet(layout.Native)
	if err != nil {
		core.LogError("failed to allocate descriptor set %s: %s", creation.Name, err.Error())
		_ = d.descriptorSets.Release(index)
		return metadata.InvalidDescriptorSet
	}
	if err := d.backend.WriteDescriptorSet(native, writes); err != nil {
		core.LogError("failed to write descriptor set %s: %s", creation.Name, err.Error())
		d.backend.FreeDescriptorSet(native)
		_ = d.descriptorSets.Release(index)
		return metadata.InvalidDescriptorSet
	}

	set.Native = native
	set.Resources = append([]metadata.ResourceHandle(nil), creation.Resources...)
	set.Samplers = append([]metadata.SamplerHandle(nil), creation.Samplers...)
	set.Bindings = append([]uint32(nil), creation.Bindings...)
	set.Layout = creation.Layout
	set.Name = creation.Name
	return metadata.DescriptorSetHandle(index)
}

// descriptorWrites resolves the handles of a descriptor set to native writes.
// Uniform buffers of the dynamic ring are written with offset 0, the frame
// offset is applied at bind time.
func (d *Device) descriptorWrites(layout *DescriptorSetLayout, resources []metadata.ResourceHandle, samplers []metadata.SamplerHandle, bindings []uint32) ([]DescriptorWrite, error) {
	if len(resources) != len(bindings) {
		return nil, fmt.Errorf("%d resources for %d bindings", len(resources), len(bindings))
	}
	if len(samplers) != 0 && len(samplers) != len(resources) {
		return nil, fmt.Errorf("%d samplers for %d resources", len(samplers), len(resources))
	}

	writes := make([]DescriptorWrite, 0, len(resources))
	for i, resource := range resources {
		binding, ok := layout.binding(bindings[i])
		if !ok {
			return nil, fmt.Errorf("binding %d is not part of layout %s", bindings[i], layout.Name)
		}
		write := DescriptorWrite{Binding: binding.Index, Type: binding.Type}

		switch binding.Type {
		case metadata.DescriptorTypeCombinedImageSampler, metadata.DescriptorTypeSampledImage, metadata.DescriptorTypeStorageImage:
			texture := d.textures.Get(uint32(resource))
			if texture == nil {
				return nil, fmt.Errorf("%w: texture %d at binding %d", core.ErrInvalidHandle, resource, binding.Index)
			}
			write.ImageView = texture.View
			if binding.Type == metadata.DescriptorTypeCombinedImageSampler {
				samplerHandle := d.defaultSampler
				if len(samplers) > 0 && samplers[i].IsValid() {
					samplerHandle = samplers[i]
				}
				sampler := d.samplers.Get(uint32(samplerHandle))
				if sampler == nil {
					return nil, fmt.Errorf("%w: sampler %d at binding %d", core.ErrInvalidHandle, samplerHandle, binding.Index)
				}
				write.Sampler = sampler.Native
			}
		case metadata.DescriptorTypeSampler:
			sampler := d.samplers.Get(uint32(resource))
			if sampler == nil {
				return nil, fmt.Errorf("%w: sampler %d at binding %d", core.ErrInvalidHandle, resource, binding.Index)
			}
			write.Sampler = sampler.Native
		case metadata.DescriptorTypeUniformBuffer, metadata.DescriptorTypeStorageBuffer:
			buffer := d.buffers.Get(uint32(resource))
			if buffer == nil {
				return nil, fmt.Errorf("%w: buffer %d at binding %d", core.ErrInvalidHandle, resource, binding.Index)
			}
			write.Buffer = buffer.Native
			if buffer.IsVirtual() {
				write.Buffer = d.buffers.Get(uint32(buffer.ParentBuffer)).Native
			}
			write.BufferRange = buffer.Size
		default:
			return nil, fmt.Errorf("unknown descriptor type %d at binding %d", binding.Type, binding.Index)
		}
		writes = append(writes, write)
	}
	return writes, nil
}

// GetNativeRenderPass returns the native render pass for an output shape,
// creating it on the first request.
func (d *Device) GetNativeRenderPass(output metadata.RenderPassOutput) metadata.NativeHandle {
	if native, ok := d.renderPassCache[output]; ok {
		return native
	}
	native, err := d.backend.CreateRenderPass(output, metadata.RenderPassTypeGeometry)
	if err != nil {
		core.LogError("failed to create native render pass: %s", err)
		return metadata.NullNativeHandle
	}
	d.renderPassCache[output] = native
	return native
}

func (d *Device) acquireFramebuffer(key framebufferKey) (metadata.NativeHandle, error) {
	if entry, ok := d.framebufferCache[key]; ok {
		entry.refs++
		return entry.native, nil
	}
	native, err := d.backend.CreateFramebuffer(key.renderPass, key.views[:key.numViews], key.width, key.height)
	if err != nil {
		return metadata.NullNativeHandle, err
	}
	d.framebufferCache[key] = &framebufferEntry{native: native, refs: 1}
	return native, nil
}

func (d *Device) releaseFramebuffer(key framebufferKey) {
	entry, ok := d.framebufferCache[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		d.backend.DestroyFramebuffer(entry.native)
		delete(d.framebufferCache, key)
	}
}

// destroyFramebuffers drops the framebuffers of a pass, cached or owned.
func (d *Device) destroyFramebuffers(pass *RenderPass) {
	if pass.Type == metadata.RenderPassTypeSwapchain {
		for _, fb := range pass.Framebuffers {
			d.backend.DestroyFramebuffer(fb)
		}
	} else {
		for _, key := range pass.framebufferKeys {
			d.releaseFramebuffer(key)
		}
	}
	pass.Framebuffers = nil
	pass.framebufferKeys = nil
}

// scaledSize applies the pass scale to the swapchain size.
func (d *Device) scaledSize(pass *RenderPass) (uint32, uint32) {
	return math.Scale(d.swapchain.Width, pass.ScaleX), math.Scale(d.swapchain.Height, pass.ScaleY)
}
