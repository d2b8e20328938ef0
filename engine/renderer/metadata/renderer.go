package metadata

/** @brief The maximum number of color outputs of a render pass. */
const MaxImageOutputs = 8

/** @brief The kinds of render passes the device knows how to build. */
type RenderPassType int

const (
	/** @brief Renders into a set of offscreen textures. */
	RenderPassTypeGeometry RenderPassType = iota
	/** @brief Renders into the swapchain images. */
	RenderPassTypeSwapchain
	/** @brief Has no attachments, only groups compute work. */
	RenderPassTypeCompute
)

func (t RenderPassType) String() string {
	switch t {
	case RenderPassTypeGeometry:
		return "geometry"
	case RenderPassTypeSwapchain:
		return "swapchain"
	case RenderPassTypeCompute:
		return "compute"
	}
	return "unknown"
}

/** @brief What happens to an attachment when the pass begins. */
type RenderPassOperation int

const (
	RenderPassOperationDontCare RenderPassOperation = iota
	RenderPassOperationLoad
	RenderPassOperationClear
)

/**
 * @brief The shape of a render pass: attachment formats and load operations.
 *
 * The struct is comparable and is used as a map key, two outputs with the same
 * shape resolve to the same native render pass.
 */
type RenderPassOutput struct {
	ColorFormats       [MaxImageOutputs]TextureFormat
	NumColorFormats    uint32
	DepthStencilFormat TextureFormat
	ColorOperation     RenderPassOperation
	DepthOperation     RenderPassOperation
	StencilOperation   RenderPassOperation
}

/** @brief Clears the output back to an empty shape. */
func (o *RenderPassOutput) Reset() *RenderPassOutput {
	*o = RenderPassOutput{}
	return o
}

/** @brief Appends a color attachment. Formats past MaxImageOutputs are ignored. */
func (o *RenderPassOutput) Color(format TextureFormat) *RenderPassOutput {
	if o.NumColorFormats < MaxImageOutputs {
		o.ColorFormats[o.NumColorFormats] = format
		o.NumColorFormats++
	}
	return o
}

func (o *RenderPassOutput) Depth(format TextureFormat) *RenderPassOutput {
	o.DepthStencilFormat = format
	return o
}

func (o *RenderPassOutput) SetOperations(color, depth, stencil RenderPassOperation) *RenderPassOutput {
	o.ColorOperation = color
	o.DepthOperation = depth
	o.StencilOperation = stencil
	return o
}

/**
 * @brief Everything needed to create a render pass.
 */
type RenderPassCreation struct {
	Type RenderPassType
	/** @brief Color attachments, ignored by swapchain and compute passes. */
	OutputTextures []TextureHandle
	/** @brief Optional depth attachment, InvalidTexture when unused. */
	DepthStencilTexture TextureHandle

	/** @brief Output size relative to the swapchain. */
	ScaleX float32
	ScaleY float32
	/** @brief When set the outputs are recreated on swapchain resize. */
	Resize bool

	ColorOperation   RenderPassOperation
	DepthOperation   RenderPassOperation
	StencilOperation RenderPassOperation

	/** @brief Debug name. */
	Name string
}

/** @brief Read back of a live render pass. */
type RenderPassDescription struct {
	NativeHandle        NativeHandle
	Name                string
	Type                RenderPassType
	Width               uint32
	Height              uint32
	ScaleX              float32
	ScaleY              float32
	Resize              bool
	OutputTextures      []TextureHandle
	DepthStencilTexture TextureHandle
	Output              RenderPassOutput
}

/** @brief A viewport in pixels. */
type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

/** @brief A scissor rectangle in pixels. */
type Rect2D struct {
	X, Y          int32
	Width, Height uint32
}

/** @brief Clear color for a color attachment. */
type ClearColor struct {
	R, G, B, A float32
}

/** @brief Clear value for a depth/stencil attachment. */
type ClearDepthStencil struct {
	Depth   float32
	Stencil uint32
}
