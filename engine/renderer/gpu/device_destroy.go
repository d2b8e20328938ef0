package gpu

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Destroy calls only schedule the release. The handle stays valid until every
// frame in flight at the time of the call has completed.

func (d *Device) DestroyBuffer(h metadata.BufferHandle) {
	d.scheduleDeletion(metadata.ResourceKindBuffer, uint32(h), d.buffers.IsLive(uint32(h)))
}

func (d *Device) DestroyTexture(h metadata.TextureHandle) {
	d.scheduleDeletion(metadata.ResourceKindTexture, uint32(h), d.textures.IsLive(uint32(h)))
}

func (d *Device) DestroySampler(h metadata.SamplerHandle) {
	d.scheduleDeletion(metadata.ResourceKindSampler, uint32(h), d.samplers.IsLive(uint32(h)))
}

func (d *Device) DestroyShaderState(h metadata.ShaderStateHandle) {
	d.scheduleDeletion(metadata.ResourceKindShaderState, uint32(h), d.shaderStates.IsLive(uint32(h)))
}

// DestroyPipeline also destroys the shader state the pipeline owns.
func (d *Device) DestroyPipeline(h metadata.PipelineHandle) {
	pipeline := d.pipelines.Get(uint32(h))
	d.scheduleDeletion(metadata.ResourceKindPipeline, uint32(h), pipeline != nil)
	if pipeline != nil {
		d.DestroyShaderState(pipeline.ShaderState)
	}
}

func (d *Device) DestroyRenderPass(h metadata.RenderPassHandle) {
	d.scheduleDeletion(metadata.ResourceKindRenderPass, uint32(h), d.renderPasses.IsLive(uint32(h)))
}

func (d *Device) DestroyDescriptorSetLayout(h metadata.DescriptorSetLayoutHandle) {
	d.scheduleDeletion(metadata.ResourceKindDescriptorSetLayout, uint32(h), d.descriptorSetLayouts.IsLive(uint32(h)))
}

func (d *Device) DestroyDescriptorSet(h metadata.DescriptorSetHandle) {
	d.scheduleDeletion(metadata.ResourceKindDescriptorSet, uint32(h), d.descriptorSets.IsLive(uint32(h)))
}
