package metadata

import "math"

/** @brief The sentinel index meaning "no resource". */
const InvalidIndex uint32 = math.MaxUint32

/** @brief A generic handle into one of the device resource pools. */
type ResourceHandle uint32

/** @brief Handle of a buffer record. */
type BufferHandle uint32

/** @brief Handle of a texture record. */
type TextureHandle uint32

/** @brief Handle of a sampler record. */
type SamplerHandle uint32

/** @brief Handle of a shader state record. */
type ShaderStateHandle uint32

/** @brief Handle of a pipeline record. */
type PipelineHandle uint32

/** @brief Handle of a render pass record. */
type RenderPassHandle uint32

/** @brief Handle of a descriptor set layout record. */
type DescriptorSetLayoutHandle uint32

/** @brief Handle of a descriptor set record. */
type DescriptorSetHandle uint32

const (
	InvalidResource            = ResourceHandle(InvalidIndex)
	InvalidBuffer              = BufferHandle(InvalidIndex)
	InvalidTexture             = TextureHandle(InvalidIndex)
	InvalidSampler             = SamplerHandle(InvalidIndex)
	InvalidShaderState         = ShaderStateHandle(InvalidIndex)
	InvalidPipeline            = PipelineHandle(InvalidIndex)
	InvalidRenderPass          = RenderPassHandle(InvalidIndex)
	InvalidDescriptorSetLayout = DescriptorSetLayoutHandle(InvalidIndex)
	InvalidDescriptorSet       = DescriptorSetHandle(InvalidIndex)
)

func (h ResourceHandle) IsValid() bool            { return uint32(h) != InvalidIndex }
func (h BufferHandle) IsValid() bool              { return uint32(h) != InvalidIndex }
func (h TextureHandle) IsValid() bool             { return uint32(h) != InvalidIndex }
func (h SamplerHandle) IsValid() bool             { return uint32(h) != InvalidIndex }
func (h ShaderStateHandle) IsValid() bool         { return uint32(h) != InvalidIndex }
func (h PipelineHandle) IsValid() bool            { return uint32(h) != InvalidIndex }
func (h RenderPassHandle) IsValid() bool          { return uint32(h) != InvalidIndex }
func (h DescriptorSetLayoutHandle) IsValid() bool { return uint32(h) != InvalidIndex }
func (h DescriptorSetHandle) IsValid() bool       { return uint32(h) != InvalidIndex }

/**
 * @brief A native graphics API object. Zero is the null object. Backends map
 * these values to their own objects (Vulkan handles, in-memory records, ...).
 */
type NativeHandle uint64

const NullNativeHandle NativeHandle = 0

/** @brief The closed set of resource kinds the device manages. */
type ResourceKind int

const (
	ResourceKindBuffer ResourceKind = iota
	ResourceKindTexture
	ResourceKindSampler
	ResourceKindShaderState
	ResourceKindPipeline
	ResourceKindRenderPass
	ResourceKindDescriptorSetLayout
	ResourceKindDescriptorSet
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceKindBuffer:
		return "buffer"
	case ResourceKindTexture:
		return "texture"
	case ResourceKindSampler:
		return "sampler"
	case ResourceKindShaderState:
		return "shader_state"
	case ResourceKindPipeline:
		return "pipeline"
	case ResourceKindRenderPass:
		return "render_pass"
	case ResourceKindDescriptorSetLayout:
		return "descriptor_set_layout"
	case ResourceKindDescriptorSet:
		return "descriptor_set"
	}
	return "unknown"
}

/** @brief The queue a command buffer is recorded for. */
type QueueType int

const (
	QueueTypeGraphics QueueType = iota
	QueueTypeCompute
	QueueTypeCopyTransfer
)

/** @brief Whether a pipeline is bound for drawing or dispatching. */
type PipelineBindPoint int

const (
	PipelineBindPointGraphics PipelineBindPoint = iota
	PipelineBindPointCompute
)
