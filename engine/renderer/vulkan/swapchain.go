package vulkan

import (
	"fmt"
	"math"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type vulkanSwapchain struct {
	handle      vk.Swapchain
	imageFormat vk.SurfaceFormat
	extent      vk.Extent2D
	images      []vk.Image
	views       []metadata.NativeHandle

	depth     *vulkanImage
	depthView metadata.NativeHandle
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// createSwapchain builds a swapchain for the surface, retiring old when given.
func (b *Backend) createSwapchain(width, height uint32, old vk.Swapchain) (*vulkanSwapchain, error) {
	device := b.context.device
	support, err := querySwapchainSupport(device.physical, b.context.surface)
	if err != nil {
		return nil, err
	}
	device.swapchainSupport = support
	caps := support.capabilities

	swapchain := &vulkanSwapchain{imageFormat: support.formats[0]}
	for _, format := range support.formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			swapchain.imageFormat = format
			break
		}
	}

	presentMode := vk.PresentModeFifo
	if !b.cfg.VSync {
		for _, mode := range support.presentModes {
			if mode == vk.PresentModeMailbox {
				presentMode = mode
				break
			}
		}
	}

	extent := vk.Extent2D{Width: width, Height: height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	swapchain.extent = extent

	imageCount := b.cfg.FramesInFlight
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          b.context.surface,
		MinImageCount:    imageCount,
		ImageFormat:      swapchain.imageFormat.Format,
		ImageColorSpace:  swapchain.imageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	if device.graphicsQueueIndex != device.presentQueueIndex {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{device.graphicsQueueIndex, device.presentQueueIndex}
	}

	if err := check("vkCreateSwapchainKHR", vk.CreateSwapchain(device.logical, &createInfo, b.context.allocator, &swapchain.handle)); err != nil {
		return nil, err
	}

	var count uint32
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(device.logical, swapchain.handle, &count, nil)); err != nil {
		swapchain.destroy(b)
		return nil, err
	}
	swapchain.images = make([]vk.Image, count)
	if err := check("vkGetSwapchainImagesKHR", vk.GetSwapchainImages(device.logical, swapchain.handle, &count, swapchain.images)); err != nil {
		swapchain.destroy(b)
		return nil, err
	}

	colorFormat := fromVkFormat(swapchain.imageFormat.Format)
	for _, image := range swapchain.images {
		view, err := createImageView(b.context, image, vk.ImageViewType2d, colorFormat, 1, 1)
		if err != nil {
			swapchain.destroy(b)
			return nil, err
		}
		swapchain.views = append(swapchain.views, b.views.add(view))
	}

	depth, err := createImage(b.context, imageConfig{
		imageType: vk.ImageType2d,
		viewType:  vk.ImageViewType2d,
		width:     extent.Width,
		height:    extent.Height,
		depth:     1,
		layers:    1,
		mipLevels: 1,
		format:    fromVkFormat(device.depthFormat),
		usage:     vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
	})
	if err != nil {
		swapchain.destroy(b)
		return nil, fmt.Errorf("failed to create the depth attachment: %w", err)
	}
	swapchain.depth = depth
	swapchain.depthView = b.views.add(depth.view)

	core.LogInfo("Swapchain created: %dx%d, %d images.", extent.Width, extent.Height, count)
	return swapchain, nil
}

// destroy releases the views and the depth image. Swapchain images belong to the swapchain.
func (s *vulkanSwapchain) destroy(b *Backend) {
	logical := b.context.device.logical
	if s.depth != nil {
		b.views.remove(s.depthView)
		s.depth.destroy(b.context)
		s.depth = nil
	}
	for _, h := range s.views {
		if view, ok := b.views.remove(h); ok {
			vk.DestroyImageView(logical, view, b.context.allocator)
		}
	}
	s.views = nil
	if s.handle != nil {
		vk.DestroySwapchain(logical, s.handle, b.context.allocator)
		s.handle = nil
	}
}

func (s *vulkanSwapchain) info() gpu.SwapchainInfo {
	return gpu.SwapchainInfo{
		Width:       s.extent.Width,
		Height:      s.extent.Height,
		ImageCount:  uint32(len(s.images)),
		ColorFormat: fromVkFormat(s.imageFormat.Format),
		DepthFormat: s.depth.format,
		ColorViews:  append([]metadata.NativeHandle(nil), s.views...),
		DepthView:   s.depthView,
	}
}
