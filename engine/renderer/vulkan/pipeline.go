package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func (b *Backend) shaderStages(modules []gpu.ShaderModule) ([]vk.PipelineShaderStageCreateInfo, error) {
	stages := make([]vk.PipelineShaderStageCreateInfo, len(modules))
	for i, m := range modules {
		module, ok := b.shaders.get(m.Module)
		if !ok {
			return nil, fmt.Errorf("%w: shader module %d", core.ErrInvalidHandle, m.Module)
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  toVkShaderStage(m.Stage),
			Module: module.handle,
			PName:  safeString("main"),
		}
	}
	return stages, nil
}

func (b *Backend) createPipelineLayout(desc *gpu.PipelineDesc) (vk.PipelineLayout, error) {
	setLayouts := make([]vk.DescriptorSetLayout, len(desc.SetLayouts))
	for i, h := range desc.SetLayouts {
		layout, ok := b.setLayouts.get(h)
		if !ok {
			return nil, fmt.Errorf("%w: descriptor set layout %d", core.ErrInvalidHandle, h)
		}
		setLayouts[i] = layout.handle
	}
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if size := desc.Creation.PushConstantSize; size > 0 {
		stages := vk.ShaderStageFlags(vk.ShaderStageAllGraphics)
		if desc.Compute {
			stages = vk.ShaderStageFlags(vk.ShaderStageComputeBit)
		}
		createInfo.PushConstantRangeCount = 1
		createInfo.PPushConstantRanges = []vk.PushConstantRange{{StageFlags: stages, Offset: 0, Size: size}}
	}
	var layout vk.PipelineLayout
	if err := check("vkCreatePipelineLayout", vk.CreatePipelineLayout(b.context.device.logical, &createInfo, b.context.allocator, &layout)); err != nil {
		return nil, err
	}
	return layout, nil
}

func (b *Backend) CreatePipeline(desc *gpu.PipelineDesc) (metadata.NativeHandle, metadata.NativeHandle, error) {
	creation := desc.Creation
	stages, err := b.shaderStages(desc.Modules)
	if err != nil {
		return metadata.NullNativeHandle, metadata.NullNativeHandle, err
	}
	layout, err := b.createPipelineLayout(desc)
	if err != nil {
		return metadata.NullNativeHandle, metadata.NullNativeHandle, err
	}

	handles := make([]vk.Pipeline, 1)
	if desc.Compute {
		createInfo := vk.ComputePipelineCreateInfo{
			SType:             vk.StructureTypeComputePipelineCreateInfo,
			Stage:             stages[0],
			Layout:            layout,
			BasePipelineIndex: -1,
		}
		err = check("vkCreateComputePipelines", vk.CreateComputePipelines(b.context.device.logical, vk.NullPipelineCache, 1,
			[]vk.ComputePipelineCreateInfo{createInfo}, b.context.allocator, handles))
	} else {
		err = b.createGraphicsPipeline(desc, stages, layout, handles)
	}
	if err != nil {
		vk.DestroyPipelineLayout(b.context.device.logical, layout, b.context.allocator)
		return metadata.NullNativeHandle, metadata.NullNativeHandle, fmt.Errorf("failed to create pipeline %s: %w", creation.Name, err)
	}

	layoutHandle := b.pipelineLayouts.add(layout)
	core.LogDebug("pipeline %s created", creation.Name)
	return b.pipelines.add(handles[0]), layoutHandle, nil
}

func (b *Backend) createGraphicsPipeline(desc *gpu.PipelineDesc, stages []vk.PipelineShaderStageCreateInfo, layout vk.PipelineLayout, out []vk.Pipeline) error {
	creation := desc.Creation
	pass, ok := b.renderPasses.get(desc.RenderPass)
	if !ok {
		return fmt.Errorf("%w: render pass %d", core.ErrInvalidHandle, desc.RenderPass)
	}

	bindings := make([]vk.VertexInputBindingDescription, len(creation.VertexInput.Streams))
	for i, stream := range creation.VertexInput.Streams {
		inputRate := vk.VertexInputRateVertex
		if stream.InputRate == metadata.VertexInputRateInstance {
			inputRate = vk.VertexInputRateInstance
		}
		bindings[i] = vk.VertexInputBindingDescription{Binding: stream.Binding, Stride: stream.Stride, InputRate: inputRate}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(creation.VertexInput.Attributes))
	for i, attribute := range creation.VertexInput.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: attribute.Location,
			Binding:  attribute.Binding,
			Format:   toVkVertexFormat(attribute.Format),
			Offset:   attribute.Offset,
		}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               toVkTopology(creation.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	// viewport and scissor are dynamic, the counts still have to be set
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             toVkPolygonMode(creation.Rasterization.Fill),
		CullMode:                toVkCullMode(creation.Rasterization.CullMode),
		FrontFace:               toVkFrontFace(creation.Rasterization.FrontFace),
		DepthBiasEnable:         vk.False,
		LineWidth:               1.0,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		DepthCompareOp:    toVkCompareOp(creation.DepthStencil.DepthComparison),
		StencilTestEnable: vk.False,
	}
	if creation.DepthStencil.DepthEnable {
		depthStencil.DepthTestEnable = vk.True
	}
	if creation.DepthStencil.DepthWriteEnable {
		depthStencil.DepthWriteEnable = vk.True
	}
	if creation.DepthStencil.StencilEnable {
		depthStencil.StencilTestEnable = vk.True
	}

	writeMask := vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
		vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit)
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, pass.colorCount)
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{BlendEnable: vk.False, ColorWriteMask: writeMask}
		if i >= len(creation.BlendStates) || !creation.BlendStates[i].BlendEnabled {
			continue
		}
		state := creation.BlendStates[i]
		srcAlpha, dstAlpha, alphaOp := state.SourceColor, state.DestinationColor, state.ColorOperation
		if state.SeparateBlend {
			srcAlpha, dstAlpha, alphaOp = state.SourceAlpha, state.DestinationAlpha, state.AlphaOperation
		}
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:         vk.True,
			SrcColorBlendFactor: toVkBlendFactor(state.SourceColor),
			DstColorBlendFactor: toVkBlendFactor(state.DestinationColor),
			ColorBlendOp:        toVkBlendOp(state.ColorOperation),
			SrcAlphaBlendFactor: toVkBlendFactor(srcAlpha),
			DstAlphaBlendFactor: toVkBlendFactor(dstAlpha),
			AlphaBlendOp:        toVkBlendOp(alphaOp),
			ColorWriteMask:      writeMask,
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	createInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              layout,
		RenderPass:          pass.handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}
	if pass.hasDepth {
		createInfo.PDepthStencilState = &depthStencil
	}
	return check("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(b.context.device.logical, vk.NullPipelineCache, 1,
		[]vk.GraphicsPipelineCreateInfo{createInfo}, b.context.allocator, out))
}

func (b *Backend) DestroyPipeline(handle, layout metadata.NativeHandle) {
	logical := b.context.device.logical
	if p, ok := b.pipelines.remove(handle); ok {
		vk.DestroyPipeline(logical, p, b.context.allocator)
	} else {
		core.LogWarn("destroying unknown pipeline %d", handle)
	}
	if l, ok := b.pipelineLayouts.remove(layout); ok {
		vk.DestroyPipelineLayout(logical, l, b.context.allocator)
	}
}
