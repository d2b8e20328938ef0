package headless

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// LiveObjects counts the live native objects of a kind.
func (b *Backend) LiveObjects(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, k := range b.objects {
		if k == kind {
			n++
		}
	}
	return n
}

// IsLive reports whether a native handle refers to a live object.
func (b *Backend) IsLive(h metadata.NativeHandle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[h]
	return ok
}

// InvalidDestroys counts destroy calls on handles that were not live.
func (b *Backend) InvalidDestroys() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.invalidDestroys
}

// Commands returns what has been recorded into a command buffer since its last reset.
func (b *Backend) Commands(cb metadata.NativeHandle) []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Command(nil), b.commands[cb]...)
}

func (b *Backend) Submissions() []Submission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Submission(nil), b.submissions...)
}

func (b *Backend) ImmediateSubmits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.immediateSubmits
}

func (b *Backend) WaitIdleCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waitIdleCount
}

func (b *Backend) FrameWaits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameWaits
}

// BufferContents returns a copy of the memory of a native buffer.
func (b *Backend) BufferContents(buffer metadata.NativeHandle) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.memory[buffer]...)
}

// TextureContents returns the texels last copied into a native image.
func (b *Backend) TextureContents(image metadata.NativeHandle) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.texels[image]...)
}

func (b *Backend) TextureLayout(image metadata.NativeHandle) metadata.TextureLayout {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.layouts[image]
}

// TextureCreation returns the description a native image was created from.
func (b *Backend) TextureCreation(image metadata.NativeHandle) (metadata.TextureCreation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.textures[image]
	return c, ok
}

func (b *Backend) DescriptorWrites(set metadata.NativeHandle) []gpu.DescriptorWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]gpu.DescriptorWrite(nil), b.setWrites[set]...)
}

func (b *Backend) RenderPassType(renderPass metadata.NativeHandle) (metadata.RenderPassType, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.renderPassTypes[renderPass]
	return t, ok
}

func (b *Backend) PipelineDesc(pipeline metadata.NativeHandle) (gpu.PipelineDesc, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	desc, ok := b.pipelines[pipeline]
	return desc, ok
}

// SwapchainInfo returns the current swapchain of the backend.
func (b *Backend) SwapchainInfo() gpu.SwapchainInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copySwapchain()
}
