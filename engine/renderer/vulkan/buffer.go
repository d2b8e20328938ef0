package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type vulkanBuffer struct {
	handle      vk.Buffer
	memory      vk.DeviceMemory
	size        uint32
	hostVisible bool
	mapped      unsafe.Pointer
	name        string
}

func (b *Backend) CreateBuffer(size uint32, usage metadata.BufferType, hostVisible bool, name string) (metadata.NativeHandle, error) {
	logical := b.context.device.logical
	buffer := &vulkanBuffer{size: size, hostVisible: hostVisible, name: name}

	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       toVkBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if err := check("vkCreateBuffer", vk.CreateBuffer(logical, &createInfo, b.context.allocator, &buffer.handle)); err != nil {
		return metadata.NullNativeHandle, fmt.Errorf("failed to create buffer %s: %w", name, err)
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(logical, buffer.handle, &requirements)
	requirements.Deref()

	flags := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if hostVisible {
		flags = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}
	memoryIndex, ok := b.context.findMemoryIndex(requirements.MemoryTypeBits, flags)
	if !ok {
		buffer.destroy(b.context)
		return metadata.NullNativeHandle, fmt.Errorf("no memory type for buffer %s", name)
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryIndex,
	}
	if err := check("vkAllocateMemory", vk.AllocateMemory(logical, &allocateInfo, b.context.allocator, &buffer.memory)); err != nil {
		buffer.destroy(b.context)
		return metadata.NullNativeHandle, err
	}
	if err := check("vkBindBufferMemory", vk.BindBufferMemory(logical, buffer.handle, buffer.memory, 0)); err != nil {
		buffer.destroy(b.context)
		return metadata.NullNativeHandle, err
	}
	return b.buffers.add(buffer), nil
}

func (buf *vulkanBuffer) destroy(context *vulkanContext) {
	logical := context.device.logical
	if buf.mapped != nil {
		vk.UnmapMemory(logical, buf.memory)
		buf.mapped = nil
	}
	if buf.memory != nil {
		vk.FreeMemory(logical, buf.memory, context.allocator)
		buf.memory = nil
	}
	if buf.handle != nil {
		vk.DestroyBuffer(logical, buf.handle, context.allocator)
		buf.handle = nil
	}
}

func (b *Backend) DestroyBuffer(buffer metadata.NativeHandle) {
	buf, ok := b.buffers.remove(buffer)
	if !ok {
		core.LogWarn("destroying unknown vulkan buffer %d", buffer)
		return
	}
	buf.destroy(b.context)
}

// MapBuffer maps the memory on first use and keeps it mapped until UnmapBuffer.
func (b *Backend) MapBuffer(buffer metadata.NativeHandle) ([]byte, error) {
	buf, ok := b.buffers.get(buffer)
	if !ok {
		return nil, fmt.Errorf("%w: vulkan buffer %d", core.ErrInvalidHandle, buffer)
	}
	if !buf.hostVisible {
		return nil, fmt.Errorf("buffer %s is not host visible", buf.name)
	}
	if buf.mapped == nil {
		var data unsafe.Pointer
		if err := check("vkMapMemory", vk.MapMemory(b.context.device.logical, buf.memory, 0, vk.DeviceSize(buf.size), 0, &data)); err != nil {
			return nil, err
		}
		buf.mapped = data
	}
	return unsafe.Slice((*byte)(buf.mapped), buf.size), nil
}

func (b *Backend) UnmapBuffer(buffer metadata.NativeHandle) {
	buf, ok := b.buffers.get(buffer)
	if !ok || buf.mapped == nil {
		return
	}
	vk.UnmapMemory(b.context.device.logical, buf.memory)
	buf.mapped = nil
}
