package gpu

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type Buffer struct {
	Native metadata.NativeHandle
	Type   metadata.BufferType
	Usage  metadata.ResourceUsageType
	Size   uint32
	// Offset inside ParentBuffer, moved on every map of a dynamic buffer.
	GlobalOffset uint32

	Handle       metadata.BufferHandle
	ParentBuffer metadata.BufferHandle
	Name         string
}

// IsVirtual reports whether the buffer is a view into a ring buffer.
func (b *Buffer) IsVirtual() bool {
	return b.ParentBuffer.IsValid()
}

type Texture struct {
	Native metadata.NativeHandle
	View   metadata.NativeHandle

	Width     uint32
	Height    uint32
	Depth     uint32
	MipLevels uint32
	Flags     metadata.TextureFlags
	Format    metadata.TextureFormat
	Type      metadata.TextureType

	Handle metadata.TextureHandle
	Name   string
}

type Sampler struct {
	Native metadata.NativeHandle

	MinFilter metadata.TextureFilter
	MagFilter metadata.TextureFilter
	MipFilter metadata.TextureFilter
	AddressU  metadata.TextureRepeat
	AddressV  metadata.TextureRepeat
	AddressW  metadata.TextureRepeat

	Name string
}

type ShaderState struct {
	Modules          []ShaderModule
	GraphicsPipeline bool
	Name             string
}

type Pipeline struct {
	Native    metadata.NativeHandle
	Layout    metadata.NativeHandle
	BindPoint metadata.PipelineBindPoint

	ShaderState          metadata.ShaderStateHandle
	DescriptorSetLayouts []metadata.DescriptorSetLayoutHandle
	RenderPass           metadata.RenderPassOutput
	PushConstantSize     uint32

	Handle metadata.PipelineHandle
	Name   string
}

type RenderPass struct {
	Native metadata.NativeHandle
	// One framebuffer per swapchain image for swapchain passes, one otherwise.
	Framebuffers []metadata.NativeHandle
	framebufferKeys []framebufferKey

	Type   metadata.RenderPassType
	Output metadata.RenderPassOutput

	Width  uint32
	Height uint32
	ScaleX float32
	ScaleY float32
	Resize bool

	OutputTextures      []metadata.TextureHandle
	DepthStencilTexture metadata.TextureHandle

	Handle metadata.RenderPassHandle
	Name   string
}

type DescriptorSetLayout struct {
	Native metadata.NativeHandle
	// Sorted by binding index.
	Bindings []metadata.DescriptorBinding
	SetIndex uint32

	Handle metadata.DescriptorSetLayoutHandle
	Name   string
}

// binding returns the layout binding with the given index.
func (l *DescriptorSetLayout) binding(index uint32) (metadata.DescriptorBinding, bool) {
	for _, b := range l.Bindings {
		if b.Index == index {
			return b, true
		}
	}
	return metadata.DescriptorBinding{}, false
}

type DescriptorSet struct {
	Native metadata.NativeHandle

	Resources []metadata.ResourceHandle
	Samplers  []metadata.SamplerHandle
	Bindings  []uint32

	Layout metadata.DescriptorSetLayoutHandle
	Name   string
}

// resourceUpdate is an entry of the deferred deletion queue. Handle is the pool
// index to release. Retired natives (an old descriptor set, the image of a
// reloaded texture) carry InvalidIndex, their Native and, for images, the View.
type resourceUpdate struct {
	Kind   metadata.ResourceKind
	Handle uint32
	Native metadata.NativeHandle
	View   metadata.NativeHandle
	Frame  uint64
}

// descriptorUpdate carries the new contents of a descriptor set until the next
// frame. Refresh rewrites the set with its contents at drain time.
type descriptorUpdate struct {
	Set       metadata.DescriptorSetHandle
	Frame     uint32
	Refresh   bool
	Resources []metadata.ResourceHandle
	Samplers  []metadata.SamplerHandle
	Bindings  []uint32
}

type framebufferKey struct {
	renderPass metadata.NativeHandle
	views      [metadata.MaxImageOutputs + 1]metadata.NativeHandle
	numViews   uint32
	width      uint32
	height     uint32
}

type framebufferEntry struct {
	native metadata.NativeHandle
	refs   int
}
