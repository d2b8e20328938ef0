package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type renderPass struct {
	handle     vk.RenderPass
	passType   metadata.RenderPassType
	colorCount uint32
	hasDepth   bool
}

// attachmentLayouts returns the layouts an attachment enters and leaves the pass in.
func attachmentLayouts(op metadata.RenderPassOperation, passType metadata.RenderPassType, depth bool) (vk.ImageLayout, vk.ImageLayout) {
	final := vk.ImageLayoutShaderReadOnlyOptimal
	switch {
	case depth:
		final = vk.ImageLayoutDepthStencilAttachmentOptimal
	case passType == metadata.RenderPassTypeSwapchain:
		final = vk.ImageLayoutPresentSrc
	}
	if op != metadata.RenderPassOperationLoad {
		return vk.ImageLayoutUndefined, final
	}
	return final, final
}

func (b *Backend) CreateRenderPass(output metadata.RenderPassOutput, passType metadata.RenderPassType) (metadata.NativeHandle, error) {
	if passType == metadata.RenderPassTypeCompute {
		return metadata.NullNativeHandle, fmt.Errorf("compute passes have no native render pass")
	}
	attachments := make([]vk.AttachmentDescription, 0, output.NumColorFormats+1)
	colorReferences := make([]vk.AttachmentReference, 0, output.NumColorFormats)

	for i := uint32(0); i < output.NumColorFormats; i++ {
		initial, final := attachmentLayouts(output.ColorOperation, passType, false)
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         toVkFormat(output.ColorFormats[i]),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         toVkLoadOp(output.ColorOperation),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initial,
			FinalLayout:    final,
		})
		colorReferences = append(colorReferences, vk.AttachmentReference{
			Attachment: i,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorReferences)),
		PColorAttachments:    colorReferences,
	}

	hasDepth := output.DepthStencilFormat != metadata.TextureFormatUndefined
	if hasDepth {
		initial, final := attachmentLayouts(output.DepthOperation, passType, true)
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         toVkFormat(output.DepthStencilFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         toVkLoadOp(output.DepthOperation),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  toVkLoadOp(output.StencilOperation),
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initial,
			FinalLayout:    final,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachments) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
		vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:   vk.SubpassExternal,
		DstSubpass:   0,
		SrcStageMask: stages,
		DstStageMask: stages,
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit) |
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	pass := &renderPass{passType: passType, colorCount: output.NumColorFormats, hasDepth: hasDepth}
	if err := check("vkCreateRenderPass", vk.CreateRenderPass(b.context.device.logical, &createInfo, b.context.allocator, &pass.handle)); err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.renderPasses.add(pass), nil
}

func (b *Backend) DestroyRenderPass(handle metadata.NativeHandle) {
	pass, ok := b.renderPasses.remove(handle)
	if !ok {
		core.LogWarn("destroying unknown render pass %d", handle)
		return
	}
	vk.DestroyRenderPass(b.context.device.logical, pass.handle, b.context.allocator)
}

func (b *Backend) CreateFramebuffer(handle metadata.NativeHandle, views []metadata.NativeHandle, width, height uint32) (metadata.NativeHandle, error) {
	pass, ok := b.renderPasses.get(handle)
	if !ok {
		return metadata.NullNativeHandle, fmt.Errorf("%w: render pass %d", core.ErrInvalidHandle, handle)
	}
	attachments := make([]vk.ImageView, len(views))
	for i, h := range views {
		view, ok := b.views.get(h)
		if !ok {
			return metadata.NullNativeHandle, fmt.Errorf("%w: image view %d", core.ErrInvalidHandle, h)
		}
		attachments[i] = view
	}
	createInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass.handle,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	var framebuffer vk.Framebuffer
	if err := check("vkCreateFramebuffer", vk.CreateFramebuffer(b.context.device.logical, &createInfo, b.context.allocator, &framebuffer)); err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.framebuffers.add(framebuffer), nil
}

func (b *Backend) DestroyFramebuffer(handle metadata.NativeHandle) {
	framebuffer, ok := b.framebuffers.remove(handle)
	if !ok {
		core.LogWarn("destroying unknown framebuffer %d", handle)
		return
	}
	vk.DestroyFramebuffer(b.context.device.logical, framebuffer, b.context.allocator)
}
