package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

var textureFormats = map[metadata.TextureFormat]vk.Format{
	metadata.TextureFormatUndefined:          vk.FormatUndefined,
	metadata.TextureFormatR8G8B8A8Unorm:      vk.FormatR8g8b8a8Unorm,
	metadata.TextureFormatR8G8B8A8Srgb:       vk.FormatR8g8b8a8Srgb,
	metadata.TextureFormatB8G8R8A8Unorm:      vk.FormatB8g8r8a8Unorm,
	metadata.TextureFormatB8G8R8A8Srgb:       vk.FormatB8g8r8a8Srgb,
	metadata.TextureFormatR16G16B16A16Sfloat: vk.FormatR16g16b16a16Sfloat,
	metadata.TextureFormatR32G32B32A32Sfloat: vk.FormatR32g32b32a32Sfloat,
	metadata.TextureFormatR32Sfloat:          vk.FormatR32Sfloat,
	metadata.TextureFormatR8Unorm:            vk.FormatR8Unorm,
	metadata.TextureFormatD16Unorm:           vk.FormatD16Unorm,
	metadata.TextureFormatD32Sfloat:          vk.FormatD32Sfloat,
	metadata.TextureFormatD24UnormS8Uint:     vk.FormatD24UnormS8Uint,
	metadata.TextureFormatD32SfloatS8Uint:    vk.FormatD32SfloatS8Uint,
}

func toVkFormat(format metadata.TextureFormat) vk.Format {
	return textureFormats[format]
}

func fromVkFormat(format vk.Format) metadata.TextureFormat {
	for f, v := range textureFormats {
		if v == format {
			return f
		}
	}
	return metadata.TextureFormatUndefined
}

func aspectMask(format metadata.TextureFormat) vk.ImageAspectFlags {
	if !format.HasDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
	mask := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if format.HasStencil() {
		mask |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return mask
}

func toVkImageLayout(layout metadata.TextureLayout) vk.ImageLayout {
	switch layout {
	case metadata.TextureLayoutTransferDst:
		return vk.ImageLayoutTransferDstOptimal
	case metadata.TextureLayoutShaderReadOnly:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case metadata.TextureLayoutColorAttachment:
		return vk.ImageLayoutColorAttachmentOptimal
	case metadata.TextureLayoutDepthStencilAttachment:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case metadata.TextureLayoutGeneral:
		return vk.ImageLayoutGeneral
	case metadata.TextureLayoutPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

// layoutAccess returns the access mask and the stage that touches an image in a layout.
func layoutAccess(layout metadata.TextureLayout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch layout {
	case metadata.TextureLayoutTransferDst:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case metadata.TextureLayoutShaderReadOnly:
		return vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) | vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	case metadata.TextureLayoutColorAttachment:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case metadata.TextureLayoutDepthStencilAttachment:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit) | vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	case metadata.TextureLayoutGeneral:
		return vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	case metadata.TextureLayoutPresent:
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

func toVkFilter(filter metadata.TextureFilter) vk.Filter {
	if filter == metadata.TextureFilterModeNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func toVkMipmapMode(filter metadata.TextureFilter) vk.SamplerMipmapMode {
	if filter == metadata.TextureFilterModeNearest {
		return vk.SamplerMipmapModeNearest
	}
	return vk.SamplerMipmapModeLinear
}

func toVkAddressMode(repeat metadata.TextureRepeat) vk.SamplerAddressMode {
	switch repeat {
	case metadata.TextureRepeatMirroredRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	case metadata.TextureRepeatClampToEdge:
		return vk.SamplerAddressModeClampToEdge
	case metadata.TextureRepeatClampToBorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

func toVkBufferUsage(usage metadata.BufferType) vk.BufferUsageFlags {
	flags := vk.BufferUsageFlags(vk.BufferUsageTransferDstBit) | vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
	if usage.Has(metadata.BufferTypeVertex) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	}
	if usage.Has(metadata.BufferTypeIndex) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	if usage.Has(metadata.BufferTypeUniform) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	}
	if usage.Has(metadata.BufferTypeStorage) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	}
	if usage.Has(metadata.BufferTypeIndirect) {
		flags |= vk.BufferUsageFlags(vk.BufferUsageIndirectBufferBit)
	}
	return flags
}

func toVkDescriptorType(t metadata.DescriptorType) vk.DescriptorType {
	switch t {
	case metadata.DescriptorTypeSampler:
		return vk.DescriptorTypeSampler
	case metadata.DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case metadata.DescriptorTypeSampledImage:
		return vk.DescriptorTypeSampledImage
	case metadata.DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	case metadata.DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	}
	return vk.DescriptorTypeUniformBufferDynamic
}

func toVkShaderStage(stage metadata.ShaderStage) vk.ShaderStageFlagBits {
	switch stage {
	case metadata.ShaderStageFragment:
		return vk.ShaderStageFragmentBit
	case metadata.ShaderStageGeometry:
		return vk.ShaderStageGeometryBit
	case metadata.ShaderStageCompute:
		return vk.ShaderStageComputeBit
	}
	return vk.ShaderStageVertexBit
}

func toVkShaderStages(stages metadata.ShaderStageFlags) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlags
	for _, stage := range []metadata.ShaderStage{
		metadata.ShaderStageVertex, metadata.ShaderStageFragment,
		metadata.ShaderStageGeometry, metadata.ShaderStageCompute,
	} {
		if stages&stage.Flag() != 0 {
			flags |= vk.ShaderStageFlags(toVkShaderStage(stage))
		}
	}
	return flags
}

func toVkBindPoint(bindPoint metadata.PipelineBindPoint) vk.PipelineBindPoint {
	if bindPoint == metadata.PipelineBindPointCompute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func toVkIndexType(t metadata.IndexType) vk.IndexType {
	if t == metadata.IndexTypeUint16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

func toVkLoadOp(op metadata.RenderPassOperation) vk.AttachmentLoadOp {
	switch op {
	case metadata.RenderPassOperationLoad:
		return vk.AttachmentLoadOpLoad
	case metadata.RenderPassOperationClear:
		return vk.AttachmentLoadOpClear
	}
	return vk.AttachmentLoadOpDontCare
}

func toVkCullMode(mode metadata.CullMode) vk.CullModeFlags {
	switch mode {
	case metadata.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	case metadata.CullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func toVkFrontFace(face metadata.FrontFace) vk.FrontFace {
	if face == metadata.FrontFaceClockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func toVkPolygonMode(fill metadata.FillMode) vk.PolygonMode {
	switch fill {
	case metadata.FillModeWireframe:
		return vk.PolygonModeLine
	case metadata.FillModePoint:
		return vk.PolygonModePoint
	}
	return vk.PolygonModeFill
}

func toVkTopology(topology metadata.TopologyType) vk.PrimitiveTopology {
	switch topology {
	case metadata.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case metadata.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	case metadata.TopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func toVkCompareOp(f metadata.ComparisonFunction) vk.CompareOp {
	switch f {
	case metadata.ComparisonLess:
		return vk.CompareOpLess
	case metadata.ComparisonEqual:
		return vk.CompareOpEqual
	case metadata.ComparisonLessEqual:
		return vk.CompareOpLessOrEqual
	case metadata.ComparisonGreater:
		return vk.CompareOpGreater
	case metadata.ComparisonNotEqual:
		return vk.CompareOpNotEqual
	case metadata.ComparisonGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	case metadata.ComparisonAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpNever
}

func toVkBlendFactor(f metadata.BlendFactor) vk.BlendFactor {
	switch f {
	case metadata.BlendFactorOne:
		return vk.BlendFactorOne
	case metadata.BlendFactorSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case metadata.BlendFactorOneMinusSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case metadata.BlendFactorDstAlpha:
		return vk.BlendFactorDstAlpha
	case metadata.BlendFactorOneMinusDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	case metadata.BlendFactorSrcColor:
		return vk.BlendFactorSrcColor
	case metadata.BlendFactorOneMinusSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	}
	return vk.BlendFactorZero
}

func toVkBlendOp(op metadata.BlendOperation) vk.BlendOp {
	switch op {
	case metadata.BlendOperationSubtract:
		return vk.BlendOpSubtract
	case metadata.BlendOperationReverseSubtract:
		return vk.BlendOpReverseSubtract
	case metadata.BlendOperationMin:
		return vk.BlendOpMin
	case metadata.BlendOperationMax:
		return vk.BlendOpMax
	}
	return vk.BlendOpAdd
}

func toVkVertexFormat(format metadata.VertexComponentFormat) vk.Format {
	switch format {
	case metadata.VertexComponentFloat:
		return vk.FormatR32Sfloat
	case metadata.VertexComponentFloat2:
		return vk.FormatR32g32Sfloat
	case metadata.VertexComponentFloat3:
		return vk.FormatR32g32b32Sfloat
	case metadata.VertexComponentFloat4:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.VertexComponentByte:
		return vk.FormatR8Sint
	case metadata.VertexComponentByte4N:
		return vk.FormatR8g8b8a8Snorm
	case metadata.VertexComponentUByte:
		return vk.FormatR8Uint
	case metadata.VertexComponentUByte4N:
		return vk.FormatR8g8b8a8Unorm
	case metadata.VertexComponentShort2:
		return vk.FormatR16g16Sint
	case metadata.VertexComponentShort2N:
		return vk.FormatR16g16Snorm
	case metadata.VertexComponentShort4:
		return vk.FormatR16g16b16a16Sint
	case metadata.VertexComponentShort4N:
		return vk.FormatR16g16b16a16Snorm
	case metadata.VertexComponentUint:
		return vk.FormatR32Uint
	case metadata.VertexComponentUint2:
		return vk.FormatR32g32Uint
	case metadata.VertexComponentUint4:
		return vk.FormatR32g32b32a32Uint
	}
	return vk.FormatUndefined
}
