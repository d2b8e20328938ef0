package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPassOutputIsComparable(t *testing.T) {
	var a, b RenderPassOutput
	a.Color(TextureFormatB8G8R8A8Srgb).Depth(TextureFormatD32Sfloat).
		SetOperations(RenderPassOperationClear, RenderPassOperationClear, RenderPassOperationDontCare)
	b.Color(TextureFormatB8G8R8A8Srgb).Depth(TextureFormatD32Sfloat).
		SetOperations(RenderPassOperationClear, RenderPassOperationClear, RenderPassOperationDontCare)
	assert.Equal(t, a, b)

	cache := map[RenderPassOutput]int{a: 1}
	assert.Equal(t, 1, cache[b])

	b.SetOperations(RenderPassOperationLoad, RenderPassOperationClear, RenderPassOperationDontCare)
	_, ok := cache[b]
	assert.False(t, ok)

	assert.Equal(t, RenderPassOutput{}, *a.Reset())
}

func TestRenderPassOutputIgnoresExtraColors(t *testing.T) {
	var o RenderPassOutput
	for i := 0; i < MaxImageOutputs+2; i++ {
		o.Color(TextureFormatR8G8B8A8Unorm)
	}
	assert.Equal(t, uint32(MaxImageOutputs), o.NumColorFormats)
}

func TestHandles(t *testing.T) {
	assert.False(t, InvalidBuffer.IsValid())
	assert.False(t, InvalidDescriptorSet.IsValid())
	assert.True(t, TextureHandle(0).IsValid())
	assert.Equal(t, "descriptor_set_layout", ResourceKindDescriptorSetLayout.String())
	assert.Equal(t, "unknown", ResourceKind(42).String())
}

func TestTextureFormats(t *testing.T) {
	tests := []struct {
		format  TextureFormat
		depth   bool
		stencil bool
		bytes   uint32
	}{
		{TextureFormatUndefined, false, false, 0},
		{TextureFormatR8Unorm, false, false, 1},
		{TextureFormatR8G8B8A8Srgb, false, false, 4},
		{TextureFormatR32G32B32A32Sfloat, false, false, 16},
		{TextureFormatD32Sfloat, true, false, 4},
		{TextureFormatD24UnormS8Uint, true, true, 4},
		{TextureFormatD32SfloatS8Uint, true, true, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.depth, tt.format.HasDepth(), "format %d", tt.format)
		assert.Equal(t, tt.stencil, tt.format.HasStencil(), "format %d", tt.format)
		assert.Equal(t, tt.bytes, tt.format.BytesPerPixel(), "format %d", tt.format)
	}
}

func TestDescriptorCreationBuilders(t *testing.T) {
	var layout DescriptorSetLayoutCreation
	layout.AddBinding(DescriptorBinding{Type: DescriptorTypeUniformBuffer, Index: 0})
	assert.Equal(t, uint32(1), layout.Bindings[0].Count)

	var set DescriptorSetCreation
	set.SetLayout(DescriptorSetLayoutHandle(3)).
		Buffer(BufferHandle(1), 0).
		TextureSampler(TextureHandle(2), SamplerHandle(5), 1)
	assert.Equal(t, []ResourceHandle{1, 2}, set.Resources)
	assert.Equal(t, []SamplerHandle{InvalidSampler, 5}, set.Samplers)
	assert.Equal(t, []uint32{0, 1}, set.Bindings)
}

func TestShaderStateCreation(t *testing.T) {
	var s ShaderStateCreation
	s.AddStage(ShaderStageVertex, ShaderLanguageSPIRV, []byte{1}, "")
	assert.False(t, s.IsCompute())
	s.AddStage(ShaderStageCompute, ShaderLanguageSPIRV, []byte{1}, "")
	assert.True(t, s.IsCompute())
	assert.Equal(t, ShaderStageFlagCompute, ShaderStageCompute.Flag())
}

func TestDebugColorIsStableAndOpaque(t *testing.T) {
	c := DebugColor("gbuffer")
	assert.Equal(t, c, DebugColor("gbuffer"))
	assert.Equal(t, uint32(0xff000000), c&0xff000000)
	assert.NotEqual(t, NameHash("a"), NameHash("b"))
}
