package gpu

import (
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Buffer returns the live record of a handle, nil otherwise. The same goes for
// every accessor below.
func (d *Device) Buffer(h metadata.BufferHandle) *Buffer {
	return d.buffers.Get(uint32(h))
}

func (d *Device) Texture(h metadata.TextureHandle) *Texture {
	return d.textures.Get(uint32(h))
}

func (d *Device) Sampler(h metadata.SamplerHandle) *Sampler {
	return d.samplers.Get(uint32(h))
}

func (d *Device) ShaderState(h metadata.ShaderStateHandle) *ShaderState {
	return d.shaderStates.Get(uint32(h))
}

func (d *Device) Pipeline(h metadata.PipelineHandle) *Pipeline {
	return d.pipelines.Get(uint32(h))
}

func (d *Device) RenderPass(h metadata.RenderPassHandle) *RenderPass {
	return d.renderPasses.Get(uint32(h))
}

func (d *Device) DescriptorSetLayout(h metadata.DescriptorSetLayoutHandle) *DescriptorSetLayout {
	return d.descriptorSetLayouts.Get(uint32(h))
}

func (d *Device) DescriptorSet(h metadata.DescriptorSetHandle) *DescriptorSet {
	return d.descriptorSets.Get(uint32(h))
}

func (d *Device) QueryBuffer(h metadata.BufferHandle) (metadata.BufferDescription, bool) {
	b := d.buffers.Get(uint32(h))
	if b == nil {
		return metadata.BufferDescription{}, false
	}
	return metadata.BufferDescription{
		NativeHandle: b.Native,
		Name:         b.Name,
		Type:         b.Type,
		Usage:        b.Usage,
		Size:         b.Size,
		ParentHandle: b.ParentBuffer,
		GlobalOffset: b.GlobalOffset,
	}, true
}

func (d *Device) QueryTexture(h metadata.TextureHandle) (metadata.TextureDescription, bool) {
	t := d.textures.Get(uint32(h))
	if t == nil {
		return metadata.TextureDescription{}, false
	}
	return metadata.TextureDescription{
		NativeHandle:  t.Native,
		Name:          t.Name,
		Width:         t.Width,
		Height:        t.Height,
		Depth:         t.Depth,
		MipLevels:     t.MipLevels,
		RenderTarget:  t.Flags&metadata.TextureFlagRenderTarget != 0,
		ComputeAccess: t.Flags&metadata.TextureFlagCompute != 0,
		Format:        t.Format,
		Type:          t.Type,
	}, true
}

func (d *Device) QuerySampler(h metadata.SamplerHandle) (metadata.SamplerDescription, bool) {
	s := d.samplers.Get(uint32(h))
	if s == nil {
		return metadata.SamplerDescription{}, false
	}
	return metadata.SamplerDescription{
		Name:      s.Name,
		MinFilter: s.MinFilter,
		MagFilter: s.MagFilter,
		MipFilter: s.MipFilter,
		AddressU:  s.AddressU,
		AddressV:  s.AddressV,
		AddressW:  s.AddressW,
	}, true
}

func (d *Device) QueryShaderState(h metadata.ShaderStateHandle) (metadata.ShaderStateDescription, bool) {
	s := d.shaderStates.Get(uint32(h))
	if s == nil {
		return metadata.ShaderStateDescription{}, false
	}
	desc := metadata.ShaderStateDescription{Name: s.Name, GraphicsStage: s.GraphicsPipeline}
	for _, m := range s.Modules {
		desc.Stages = append(desc.Stages, m.Stage)
		desc.NativeModules = append(desc.NativeModules, m.Module)
	}
	return desc, true
}

func (d *Device) QueryPipeline(h metadata.PipelineHandle) (metadata.PipelineDescription, bool) {
	p := d.pipelines.Get(uint32(h))
	if p == nil {
		return metadata.PipelineDescription{}, false
	}
	return metadata.PipelineDescription{
		NativeHandle:         p.Native,
		NativeLayout:         p.Layout,
		Name:                 p.Name,
		BindPoint:            p.BindPoint,
		ShaderState:          p.ShaderState,
		DescriptorSetLayouts: append([]metadata.DescriptorSetLayoutHandle(nil), p.DescriptorSetLayouts...),
		RenderPass:           p.RenderPass,
		PushConstantSize:     p.PushConstantSize,
	}, true
}

func (d *Device) QueryRenderPass(h metadata.RenderPassHandle) (metadata.RenderPassDescription, bool) {
	p := d.renderPasses.Get(uint32(h))
	if p == nil {
		return metadata.RenderPassDescription{}, false
	}
	return metadata.RenderPassDescription{
		NativeHandle:        p.Native,
		Name:                p.Name,
		Type:                p.Type,
		Width:               p.Width,
		Height:              p.Height,
		ScaleX:              p.ScaleX,
		ScaleY:              p.ScaleY,
		Resize:              p.Resize,
		OutputTextures:      append([]metadata.TextureHandle(nil), p.OutputTextures...),
		DepthStencilTexture: p.DepthStencilTexture,
		Output:              p.Output,
	}, true
}

func (d *Device) QueryDescriptorSetLayout(h metadata.DescriptorSetLayoutHandle) (metadata.DescriptorSetLayoutDescription, bool) {
	l := d.descriptorSetLayouts.Get(uint32(h))
	if l == nil {
		return metadata.DescriptorSetLayoutDescription{}, false
	}
	return metadata.DescriptorSetLayoutDescription{
		NativeHandle: l.Native,
		Name:         l.Name,
		SetIndex:     l.SetIndex,
		Bindings:     append([]metadata.DescriptorBinding(nil), l.Bindings...),
	}, true
}

func (d *Device) QueryDescriptorSet(h metadata.DescriptorSetHandle) (metadata.DescriptorSetDescription, bool) {
	s := d.descriptorSets.Get(uint32(h))
	if s == nil {
		return metadata.DescriptorSetDescription{}, false
	}
	desc := metadata.DescriptorSetDescription{NativeHandle: s.Native, Name: s.Name, Layout: s.Layout}
	for i, r := range s.Resources {
		data := metadata.DescriptorData{Resource: r, Sampler: metadata.InvalidSampler, Binding: s.Bindings[i]}
		if i < len(s.Samplers) {
			data.Sampler = s.Samplers[i]
		}
		desc.Resources = append(desc.Resources, data)
	}
	return desc, true
}

// MapBuffer returns host memory for a buffer. Mapping a dynamic uniform buffer
// allocates a fresh region of the current frame in the ring and moves the
// buffer's offset there. It returns nil for device-local buffers and when the
// frame region is exhausted.
func (d *Device) MapBuffer(params metadata.MapBufferParameters) []byte {
	buffer := d.buffers.Get(uint32(params.Buffer))
	if buffer == nil {
		core.LogWarn("trying to map invalid buffer %d", params.Buffer)
		return nil
	}
	size := uint64(params.Size)
	if size == 0 {
		size = uint64(buffer.Size)
	}
	if size > uint64(buffer.Size) {
		core.LogWarn("mapping %d bytes of buffer %s larger than its %d bytes", size, buffer.Name, buffer.Size)
		return nil
	}

	if buffer.IsVirtual() {
		allocated := math.AlignUp(size, uint64(d.info.UniformBufferAlignment))
		start := uint64(d.dynamicAllocatedSize)
		if start+allocated > uint64(d.dynamicMaxPerFrame) || start+size > uint64(len(d.dynamicMapped)) {
			core.LogError("dynamic allocation of %d bytes for %s overflows the frame region of %d bytes", size, buffer.Name, d.dynamicPerFrameSize)
			return nil
		}
		buffer.GlobalOffset = uint32(start)
		d.dynamicAllocatedSize = uint32(start + allocated)
		return d.dynamicMapped[start : start+size]
	}

	if buffer.Usage == metadata.ResourceUsageImmutable {
		core.LogWarn("buffer %s lives in device local memory and cannot be mapped", buffer.Name)
		return nil
	}
	offset := uint64(params.Offset)
	if offset+size > uint64(buffer.Size) {
		core.LogWarn("mapping %d bytes at %d of buffer %s overflows its %d bytes", size, offset, buffer.Name, buffer.Size)
		return nil
	}
	mapped, err := d.backend.MapBuffer(buffer.Native)
	if err != nil {
		core.LogError("failed to map buffer %s: %s", buffer.Name, err.Error())
		return nil
	}
	if offset+size > uint64(len(mapped)) {
		core.LogError("buffer %s maps %d bytes, %d expected", buffer.Name, len(mapped), buffer.Size)
		d.backend.UnmapBuffer(buffer.Native)
		return nil
	}
	return mapped[offset : offset+size]
}

// UnmapBuffer releases a mapping. Virtual buffers stay mapped through their ring.
func (d *Device) UnmapBuffer(params metadata.MapBufferParameters) {
	buffer := d.buffers.Get(uint32(params.Buffer))
	if buffer == nil {
		core.LogWarn("trying to unmap invalid buffer %d", params.Buffer)
		return
	}
	if buffer.IsVirtual() || buffer.Usage == metadata.ResourceUsageImmutable {
		return
	}
	d.backend.UnmapBuffer(buffer.Native)
}
