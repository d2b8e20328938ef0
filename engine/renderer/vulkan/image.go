package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type vulkanImage struct {
	handle    vk.Image
	memory    vk.DeviceMemory
	view      vk.ImageView
	width     uint32
	height    uint32
	depth     uint32
	layers    uint32
	mipLevels uint32
	format    metadata.TextureFormat
}

type imageConfig struct {
	imageType vk.ImageType
	viewType  vk.ImageViewType
	width     uint32
	height    uint32
	depth     uint32
	layers    uint32
	mipLevels uint32
	format    metadata.TextureFormat
	usage     vk.ImageUsageFlags
	flags     vk.ImageCreateFlags
}

// createImage allocates a device local image with its memory and a view over every mip and layer.
func createImage(context *vulkanContext, cfg imageConfig) (*vulkanImage, error) {
	logical := context.device.logical
	image := &vulkanImage{
		width:     cfg.width,
		height:    cfg.height,
		depth:     cfg.depth,
		layers:    cfg.layers,
		mipLevels: cfg.mipLevels,
		format:    cfg.format,
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     cfg.flags,
		ImageType: cfg.imageType,
		Format:    toVkFormat(cfg.format),
		Extent: vk.Extent3D{
			Width:  cfg.width,
			Height: cfg.height,
			Depth:  cfg.depth,
		},
		MipLevels:     cfg.mipLevels,
		ArrayLayers:   cfg.layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         cfg.usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if err := check("vkCreateImage", vk.CreateImage(logical, &createInfo, context.allocator, &image.handle)); err != nil {
		return nil, err
	}

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(logical, image.handle, &requirements)
	requirements.Deref()

	memoryIndex, ok := context.findMemoryIndex(requirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if !ok {
		image.destroy(context)
		return nil, fmt.Errorf("required memory type not found, image not valid")
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryIndex,
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(logical, &allocateInfo, context.allocator, &image.memory)); err != nil {
		image.destroy(context)
		return nil, err
	}
	if err := check("vkBindImageMemory", vk.BindImageMemory(logical, image.handle, image.memory, 0)); err != nil {
		image.destroy(context)
		return nil, err
	}

	view, err := createImageView(context, image.handle, cfg.viewType, cfg.format, cfg.mipLevels, cfg.layers)
	if err != nil {
		image.destroy(context)
		return nil, err
	}
	image.view = view
	return image, nil
}

func createImageView(context *vulkanContext, image vk.Image, viewType vk.ImageViewType, format metadata.TextureFormat, mipLevels, layers uint32) (vk.ImageView, error) {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: viewType,
		Format:   toVkFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectMask(format),
			BaseMipLevel:   0,
			LevelCount:     mipLevels,
			BaseArrayLayer: 0,
			LayerCount:     layers,
		},
	}
	var view vk.ImageView
	if err := check("vkCreateImageView", vk.CreateImageView(context.device.logical, &viewInfo, context.allocator, &view)); err != nil {
		return nil, err
	}
	return view, nil
}

func (img *vulkanImage) destroy(context *vulkanContext) {
	logical := context.device.logical
	if img.view != nil {
		vk.DestroyImageView(logical, img.view, context.allocator)
		img.view = nil
	}
	if img.memory != nil {
		vk.FreeMemory(logical, img.memory, context.allocator)
		img.memory = nil
	}
	if img.handle != nil {
		vk.DestroyImage(logical, img.handle, context.allocator)
		img.handle = nil
	}
}

func textureImageConfig(creation *metadata.TextureCreation) imageConfig {
	cfg := imageConfig{
		imageType: vk.ImageType2d,
		viewType:  vk.ImageViewType2d,
		width:     creation.Width,
		height:    creation.Height,
		depth:     1,
		layers:    1,
		mipLevels: creation.MipLevels,
		format:    creation.Format,
		usage:     vk.ImageUsageFlags(vk.ImageUsageSampledBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
	}
	if cfg.mipLevels == 0 {
		cfg.mipLevels = 1
	}
	switch creation.Type {
	case metadata.TextureType3d:
		cfg.imageType = vk.ImageType3d
		cfg.viewType = vk.ImageViewType3d
		cfg.depth = creation.Depth
		if cfg.depth == 0 {
			cfg.depth = 1
		}
	case metadata.TextureTypeCube:
		cfg.viewType = vk.ImageViewTypeCube
		cfg.layers = 6
		cfg.flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	if creation.Flags&metadata.TextureFlagRenderTarget != 0 {
		if creation.Format.HasDepth() {
			cfg.usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
		} else {
			cfg.usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
		}
	}
	if creation.Flags&metadata.TextureFlagCompute != 0 {
		cfg.usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	return cfg
}

func (b *Backend) CreateTexture(creation *metadata.TextureCreation) (metadata.NativeHandle, metadata.NativeHandle, error) {
	if toVkFormat(creation.Format) == vk.FormatUndefined {
		return metadata.NullNativeHandle, metadata.NullNativeHandle, fmt.Errorf("texture %s has no format", creation.Name)
	}
	image, err := createImage(b.context, textureImageConfig(creation))
	if err != nil {
		return metadata.NullNativeHandle, metadata.NullNativeHandle, fmt.Errorf("failed to create texture %s: %w", creation.Name, err)
	}
	return b.images.add(image), b.views.add(image.view), nil
}

func (b *Backend) DestroyTexture(image, view metadata.NativeHandle) {
	b.views.remove(view)
	img, ok := b.images.remove(image)
	if !ok {
		core.LogWarn("destroying unknown vulkan image %d", image)
		return
	}
	img.destroy(b.context)
}

func (b *Backend) CreateSampler(creation *metadata.SamplerCreation) (metadata.NativeHandle, error) {
	createInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               toVkFilter(creation.MagFilter),
		MinFilter:               toVkFilter(creation.MinFilter),
		MipmapMode:              toVkMipmapMode(creation.MipFilter),
		AddressModeU:            toVkAddressMode(creation.AddressU),
		AddressModeV:            toVkAddressMode(creation.AddressV),
		AddressModeW:            toVkAddressMode(creation.AddressW),
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MinLod:                  0,
		MaxLod:                  16,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
	}
	if b.context.device.features.SamplerAnisotropy == vk.True {
		createInfo.AnisotropyEnable = vk.True
		createInfo.MaxAnisotropy = b.context.device.limits.MaxSamplerAnisotropy
	}
	var sampler vk.Sampler
	if err := check("vkCreateSampler", vk.CreateSampler(b.context.device.logical, &createInfo, b.context.allocator, &sampler)); err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.samplers.add(sampler), nil
}

func (b *Backend) DestroySampler(sampler metadata.NativeHandle) {
	s, ok := b.samplers.remove(sampler)
	if !ok {
		core.LogWarn("destroying unknown vulkan sampler %d", sampler)
		return
	}
	vk.DestroySampler(b.context.device.logical, s, b.context.allocator)
}
