package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const descriptorsPerType = 4096

// createDescriptorPool creates the global pool every set is allocated from.
// Sets are freed one by one, so the pool allows it.
func (b *Backend) createDescriptorPool(maxSets uint32) error {
	types := []vk.DescriptorType{
		vk.DescriptorTypeSampler,
		vk.DescriptorTypeCombinedImageSampler,
		vk.DescriptorTypeSampledImage,
		vk.DescriptorTypeStorageImage,
		vk.DescriptorTypeUniformBufferDynamic,
		vk.DescriptorTypeStorageBuffer,
	}
	sizes := make([]vk.DescriptorPoolSize, len(types))
	for i, t := range types {
		sizes[i] = vk.DescriptorPoolSize{Type: t, DescriptorCount: descriptorsPerType}
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	return check("vkCreateDescriptorPool", vk.CreateDescriptorPool(b.context.device.logical, &createInfo, b.context.allocator, &b.descriptorPool))
}

type descriptorSetLayout struct {
	handle   vk.DescriptorSetLayout
	bindings map[uint32]vk.DescriptorType
}

func (b *Backend) CreateDescriptorSetLayout(creation *metadata.DescriptorSetLayoutCreation) (metadata.NativeHandle, error) {
	layout := &descriptorSetLayout{bindings: make(map[uint32]vk.DescriptorType, len(creation.Bindings))}
	bindings := make([]vk.DescriptorSetLayoutBinding, len(creation.Bindings))
	for i, binding := range creation.Bindings {
		count := binding.Count
		if count == 0 {
			count = 1
		}
		stages := toVkShaderStages(binding.Stages)
		if stages == 0 {
			stages = vk.ShaderStageFlags(vk.ShaderStageAll)
		}
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         binding.Index,
			DescriptorType:  toVkDescriptorType(binding.Type),
			DescriptorCount: count,
			StageFlags:      stages,
		}
		layout.bindings[binding.Index] = bindings[i].DescriptorType
	}
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if err := check("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(b.context.device.logical, &createInfo, b.context.allocator, &layout.handle)); err != nil {
		return metadata.NullNativeHandle, fmt.Errorf("failed to create descriptor set layout %s: %w", creation.Name, err)
	}
	return b.setLayouts.add(layout), nil
}

func (b *Backend) DestroyDescriptorSetLayout(layout metadata.NativeHandle) {
	l, ok := b.setLayouts.remove(layout)
	if !ok {
		core.LogWarn("destroying unknown descriptor set layout %d", layout)
		return
	}
	vk.DestroyDescriptorSetLayout(b.context.device.logical, l.handle, b.context.allocator)
}

type descriptorSet struct {
	handle vk.DescriptorSet
	layout *descriptorSetLayout
}

func (b *Backend) AllocateDescriptorSet(layout metadata.NativeHandle) (metadata.NativeHandle, error) {
	l, ok := b.setLayouts.get(layout)
	if !ok {
		return metadata.NullNativeHandle, fmt.Errorf("%w: descriptor set layout %d", core.ErrInvalidHandle, layout)
	}
	set := &descriptorSet{layout: l}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     b.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.handle},
	}
	err := b.locks.safeCall(descriptorPool, func() error {
		return check("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(b.context.device.logical, &allocateInfo, &set.handle))
	})
	if err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.sets.add(set), nil
}

func (b *Backend) WriteDescriptorSet(set metadata.NativeHandle, writes []gpu.DescriptorWrite) error {
	s, ok := b.sets.get(set)
	if !ok {
		return fmt.Errorf("%w: descriptor set %d", core.ErrInvalidHandle, set)
	}
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		descriptorType, ok := s.layout.bindings[w.Binding]
		if !ok {
			return fmt.Errorf("descriptor set has no binding %d", w.Binding)
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  descriptorType,
		}
		switch w.Type {
		case metadata.DescriptorTypeUniformBuffer, metadata.DescriptorTypeStorageBuffer:
			buffer, ok := b.buffers.get(w.Buffer)
			if !ok {
				return fmt.Errorf("%w: vulkan buffer %d", core.ErrInvalidHandle, w.Buffer)
			}
			bufferRange := vk.DeviceSize(w.BufferRange)
			if bufferRange == 0 {
				bufferRange = vk.DeviceSize(vk.WholeSize)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buffer.handle,
				Offset: vk.DeviceSize(w.BufferOffset),
				Range:  bufferRange,
			}}
		default:
			info := vk.DescriptorImageInfo{ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal}
			if w.Type == metadata.DescriptorTypeStorageImage {
				info.ImageLayout = vk.ImageLayoutGeneral
			}
			if w.ImageView != metadata.NullNativeHandle {
				view, ok := b.views.get(w.ImageView)
				if !ok {
					return fmt.Errorf("%w: image view %d", core.ErrInvalidHandle, w.ImageView)
				}
				info.ImageView = view
			}
			if w.Sampler != metadata.NullNativeHandle {
				sampler, ok := b.samplers.get(w.Sampler)
				if !ok {
					return fmt.Errorf("%w: sampler %d", core.ErrInvalidHandle, w.Sampler)
				}
				info.Sampler = sampler
			}
			write.PImageInfo = []vk.DescriptorImageInfo{info}
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(b.context.device.logical, uint32(len(vkWrites)), vkWrites, 0, nil)
	}
	return nil
}

func (b *Backend) FreeDescriptorSet(set metadata.NativeHandle) {
	s, ok := b.sets.remove(set)
	if !ok {
		core.LogWarn("freeing unknown descriptor set %d", set)
		return
	}
	_ = b.locks.safeCall(descriptorPool, func() error {
		return check("vkFreeDescriptorSets", vk.FreeDescriptorSets(b.context.device.logical, b.descriptorPool, 1, []vk.DescriptorSet{s.handle}))
	})
}
