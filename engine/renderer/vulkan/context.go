package vulkan

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// handleTable maps the opaque handles given to the device to vulkan objects.
// Zero is never handed out.
type handleTable[T any] struct {
	mu    sync.RWMutex
	next  metadata.NativeHandle
	items map[metadata.NativeHandle]T
}

func newHandleTable[T any]() *handleTable[T] {
	return &handleTable[T]{items: make(map[metadata.NativeHandle]T)}
}

func (t *handleTable[T]) add(v T) metadata.NativeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *handleTable[T]) get(h metadata.NativeHandle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.items[h]
	return v, ok
}

func (t *handleTable[T]) remove(h metadata.NativeHandle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	delete(t.items, h)
	return v, ok
}

func (t *handleTable[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// drain removes every entry and hands it to fn.
func (t *handleTable[T]) drain(fn func(h metadata.NativeHandle, v T)) {
	t.mu.Lock()
	items := t.items
	t.items = make(map[metadata.NativeHandle]T)
	t.mu.Unlock()
	for h, v := range items {
		fn(h, v)
	}
}

// vulkanContext holds the instance level objects shared by every part of the backend.
type vulkanContext struct {
	instance  vk.Instance
	allocator *vk.AllocationCallbacks
	surface   vk.Surface

	debugCallback vk.DebugReportCallback

	device *vulkanDevice
}

// findMemoryIndex returns the first memory type allowed by typeFilter that has all the property flags.
func (c *vulkanContext) findMemoryIndex(typeFilter uint32, flags vk.MemoryPropertyFlags) (uint32, bool) {
	memory := c.device.memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memoryType := memory.MemoryTypes[i]
		memoryType.Deref()
		if typeFilter&(1<<i) != 0 && memoryType.PropertyFlags&flags == flags {
			return i, true
		}
	}
	core.LogWarn("unable to find a memory type for flags %#x", uint32(flags))
	return 0, false
}
