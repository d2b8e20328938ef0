package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

type fence struct {
	handle     vk.Fence
	isSignaled bool
}

func newFence(context *vulkanContext, signaled bool) (*fence, error) {
	f := &fence{isSignaled: signaled}
	createInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		createInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	if err := check("vkCreateFence", vk.CreateFence(context.device.logical, &createInfo, context.allocator, &f.handle)); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *fence) destroy(context *vulkanContext) {
	if f.handle != nil {
		vk.DestroyFence(context.device.logical, f.handle, context.allocator)
		f.handle = nil
	}
	f.isSignaled = false
}

// wait returns right away when the fence is known to be signaled.
func (f *fence) wait(context *vulkanContext, timeoutNs uint64) error {
	if f.isSignaled {
		return nil
	}
	result := vk.WaitForFences(context.device.logical, 1, []vk.Fence{f.handle}, vk.True, timeoutNs)
	switch result {
	case vk.Success:
		f.isSignaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("fence wait timed out")
		return fmt.Errorf("fence wait timed out after %dns", timeoutNs)
	}
	return check("vkWaitForFences", result)
}

func (f *fence) reset(context *vulkanContext) error {
	if !f.isSignaled {
		return nil
	}
	if err := check("vkResetFences", vk.ResetFences(context.device.logical, 1, []vk.Fence{f.handle})); err != nil {
		return err
	}
	f.isSignaled = false
	return nil
}

// frameSync holds the synchronization objects of one frame slot.
type frameSync struct {
	imageAvailable vk.Semaphore
	renderComplete vk.Semaphore
	inFlight       *fence
}

func newFrameSync(context *vulkanContext) (*frameSync, error) {
	sync := &frameSync{}
	semaphoreInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	logical := context.device.logical
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(logical, &semaphoreInfo, context.allocator, &sync.imageAvailable)); err != nil {
		return nil, err
	}
	if err := check("vkCreateSemaphore", vk.CreateSemaphore(logical, &semaphoreInfo, context.allocator, &sync.renderComplete)); err != nil {
		sync.destroy(context)
		return nil, err
	}
	// signaled, so the first wait on the slot returns at once
	f, err := newFence(context, true)
	if err != nil {
		sync.destroy(context)
		return nil, err
	}
	sync.inFlight = f
	return sync, nil
}

func (s *frameSync) destroy(context *vulkanContext) {
	logical := context.device.logical
	if s.imageAvailable != vk.NullSemaphore {
		vk.DestroySemaphore(logical, s.imageAvailable, context.allocator)
		s.imageAvailable = vk.NullSemaphore
	}
	if s.renderComplete != vk.NullSemaphore {
		vk.DestroySemaphore(logical, s.renderComplete, context.allocator)
		s.renderComplete = vk.NullSemaphore
	}
	if s.inFlight != nil {
		s.inFlight.destroy(context)
		s.inFlight = nil
	}
}
