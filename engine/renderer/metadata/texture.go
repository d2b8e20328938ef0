package metadata

const (
	/** @brief The default texture name. */
	DEFAULT_TEXTURE_NAME string = "default"
	/** @brief The default sampler name. */
	DEFAULT_SAMPLER_NAME string = "default_sampler"
)

/** @brief Pixel formats understood by every backend. */
type TextureFormat int

const (
	TextureFormatUndefined TextureFormat = iota
	TextureFormatR8G8B8A8Unorm
	TextureFormatR8G8B8A8Srgb
	TextureFormatB8G8R8A8Unorm
	TextureFormatB8G8R8A8Srgb
	TextureFormatR16G16B16A16Sfloat
	TextureFormatR32G32B32A32Sfloat
	TextureFormatR32Sfloat
	TextureFormatR8Unorm
	TextureFormatD16Unorm
	TextureFormatD32Sfloat
	TextureFormatD24UnormS8Uint
	TextureFormatD32SfloatS8Uint
)

/** @brief Reports whether the format carries depth. */
func (f TextureFormat) HasDepth() bool {
	switch f {
	case TextureFormatD16Unorm, TextureFormatD32Sfloat, TextureFormatD24UnormS8Uint, TextureFormatD32SfloatS8Uint:
		return true
	}
	return false
}

/** @brief Reports whether the format carries stencil. */
func (f TextureFormat) HasStencil() bool {
	return f == TextureFormatD24UnormS8Uint || f == TextureFormatD32SfloatS8Uint
}

/** @brief Size of one texel in bytes, 0 for undefined. */
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatR8Unorm:
		return 1
	case TextureFormatD16Unorm:
		return 2
	case TextureFormatR8G8B8A8Unorm, TextureFormatR8G8B8A8Srgb, TextureFormatB8G8R8A8Unorm, TextureFormatB8G8R8A8Srgb,
		TextureFormatR32Sfloat, TextureFormatD32Sfloat, TextureFormatD24UnormS8Uint:
		return 4
	case TextureFormatD32SfloatS8Uint, TextureFormatR16G16B16A16Sfloat:
		return 8
	case TextureFormatR32G32B32A32Sfloat:
		return 16
	}
	return 0
}

/**
 * @brief Represents various types of textures.
 */
type TextureType int

const (
	/** @brief A standard two-dimensional texture. */
	TextureType2d TextureType = iota
	/** @brief A volume texture. */
	TextureType3d
	/** @brief A cube texture, used for cubemaps. */
	TextureTypeCube
)

/** @brief Holds bit flags for textures. */
type TextureFlags uint8

const (
	TextureFlagDefault TextureFlags = 0x0
	/** @brief Indicates if the texture can be written (rendered) to. */
	TextureFlagRenderTarget TextureFlags = 0x1
	/** @brief Indicates if the texture is written by compute shaders. */
	TextureFlagCompute TextureFlags = 0x2
)

/** @brief The layouts a texture moves through during upload and rendering. */
type TextureLayout int

const (
	TextureLayoutUndefined TextureLayout = iota
	TextureLayoutTransferDst
	TextureLayoutShaderReadOnly
	TextureLayoutColorAttachment
	TextureLayoutDepthStencilAttachment
	TextureLayoutGeneral
	TextureLayoutPresent
)

/** @brief Represents supported texture filtering modes. */
type TextureFilter int

const (
	/** @brief Nearest-neighbor filtering. */
	TextureFilterModeNearest TextureFilter = 0x0
	/** @brief Linear (i.e. bilinear) filtering.*/
	TextureFilterModeLinear TextureFilter = 0x1
)

type TextureRepeat int

const (
	TextureRepeatRepeat         TextureRepeat = 0x1
	TextureRepeatMirroredRepeat TextureRepeat = 0x2
	TextureRepeatClampToEdge    TextureRepeat = 0x3
	TextureRepeatClampToBorder  TextureRepeat = 0x4
)

/**
 * @brief Everything needed to create a texture. InitialData, when present,
 * is uploaded before the create call returns.
 */
type TextureCreation struct {
	/** @brief Tightly packed texel data for mip 0, may be nil. */
	InitialData []byte
	Width       uint32
	Height      uint32
	/** @brief Depth for 3D textures, 1 otherwise. */
	Depth uint32
	/** @brief The number of mip levels, at least 1. */
	MipLevels uint32
	Flags     TextureFlags
	Format    TextureFormat
	Type      TextureType
	/** @brief Debug name. */
	Name string
}

/** @brief Read back of a live texture. */
type TextureDescription struct {
	NativeHandle NativeHandle
	Name         string
	Width        uint32
	Height       uint32
	Depth        uint32
	MipLevels    uint32
	RenderTarget bool
	ComputeAccess bool
	Format       TextureFormat
	Type         TextureType
}

/** @brief Everything needed to create a sampler. */
type SamplerCreation struct {
	MinFilter TextureFilter
	MagFilter TextureFilter
	MipFilter TextureFilter
	AddressU  TextureRepeat
	AddressV  TextureRepeat
	AddressW  TextureRepeat
	/** @brief Debug name. */
	Name string
}

type SamplerDescription struct {
	Name      string
	MinFilter TextureFilter
	MagFilter TextureFilter
	MipFilter TextureFilter
	AddressU  TextureRepeat
	AddressV  TextureRepeat
	AddressW  TextureRepeat
}
