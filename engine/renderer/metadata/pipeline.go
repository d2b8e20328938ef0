package metadata

type VertexComponentFormat int

const (
	VertexComponentFloat VertexComponentFormat = iota
	VertexComponentFloat2
	VertexComponentFloat3
	VertexComponentFloat4
	VertexComponentByte
	VertexComponentByte4N
	VertexComponentUByte
	VertexComponentUByte4N
	VertexComponentShort2
	VertexComponentShort2N
	VertexComponentShort4
	VertexComponentShort4N
	VertexComponentUint
	VertexComponentUint2
	VertexComponentUint4
)

type VertexInputRate int

const (
	VertexInputRateVertex VertexInputRate = iota
	VertexInputRateInstance
)

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Offset   uint32
	Format   VertexComponentFormat
}

type VertexStream struct {
	Binding   uint32
	Stride    uint32
	InputRate VertexInputRate
}

type VertexInputCreation struct {
	Streams    []VertexStream
	Attributes []VertexAttribute
}

type CullMode int

const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
	CullModeFrontAndBack
)

type FrontFace int

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type FillMode int

const (
	FillModeSolid FillMode = iota
	FillModeWireframe
	FillModePoint
)

type RasterizationCreation struct {
	CullMode  CullMode
	FrontFace FrontFace
	Fill      FillMode
}

type ComparisonFunction int

const (
	ComparisonNever ComparisonFunction = iota
	ComparisonLess
	ComparisonEqual
	ComparisonLessEqual
	ComparisonGreater
	ComparisonNotEqual
	ComparisonGreaterEqual
	ComparisonAlways
)

type DepthStencilCreation struct {
	DepthEnable      bool
	DepthWriteEnable bool
	StencilEnable    bool
	DepthComparison  ComparisonFunction
}

type BlendFactor int

const (
	BlendFactorZero BlendFactor = iota
	BlendFactorOne
	BlendFactorSrcAlpha
	BlendFactorOneMinusSrcAlpha
	BlendFactorDstAlpha
	BlendFactorOneMinusDstAlpha
	BlendFactorSrcColor
	BlendFactorOneMinusSrcColor
)

type BlendOperation int

const (
	BlendOperationAdd BlendOperation = iota
	BlendOperationSubtract
	BlendOperationReverseSubtract
	BlendOperationMin
	BlendOperationMax
)

/** @brief Blend state of one color attachment. */
type BlendState struct {
	SourceColor      BlendFactor
	DestinationColor BlendFactor
	ColorOperation   BlendOperation

	SourceAlpha      BlendFactor
	DestinationAlpha BlendFactor
	AlphaOperation   BlendOperation

	BlendEnabled bool
	/** @brief When false the alpha factors mirror the color ones. */
	SeparateBlend bool
}

/** @brief Standard alpha blending. */
func AlphaBlend() BlendState {
	return BlendState{
		SourceColor:      BlendFactorSrcAlpha,
		DestinationColor: BlendFactorOneMinusSrcAlpha,
		ColorOperation:   BlendOperationAdd,
		BlendEnabled:     true,
	}
}

type TopologyType int

const (
	TopologyTriangleList TopologyType = iota
	TopologyTriangleStrip
	TopologyLineList
	TopologyPointList
)

/**
 * @brief Everything needed to create a pipeline. The shader state is created
 * along with the pipeline and is owned by it.
 */
type PipelineCreation struct {
	Rasterization RasterizationCreation
	DepthStencil  DepthStencilCreation
	/** @brief One entry per color attachment, empty disables blending. */
	BlendStates []BlendState
	VertexInput VertexInputCreation
	Shaders     ShaderStateCreation
	/** @brief Shape of the render pass the pipeline draws into. */
	RenderPass           RenderPassOutput
	DescriptorSetLayouts []DescriptorSetLayoutHandle
	Topology             TopologyType
	/** @brief Size in bytes of the push constant range, 0 for none. */
	PushConstantSize uint32
	/** @brief Debug name. */
	Name string
}

type PipelineDescription struct {
	NativeHandle         NativeHandle
	NativeLayout         NativeHandle
	Name                 string
	BindPoint            PipelineBindPoint
	ShaderState          ShaderStateHandle
	DescriptorSetLayouts []DescriptorSetLayoutHandle
	RenderPass           RenderPassOutput
	PushConstantSize     uint32
}
