package metadata

/** @brief The maximum number of bindings of a single descriptor set. */
const MaxDescriptorsPerSet = 16

/** @brief The maximum number of descriptor sets a pipeline can bind. */
const MaxDescriptorSetLayouts = 8

/**
 * @brief The types of resources a descriptor binding refers to.
 */
type DescriptorType int

const (
	DescriptorTypeSampler DescriptorType = iota
	DescriptorTypeCombinedImageSampler
	DescriptorTypeSampledImage
	DescriptorTypeStorageImage
	/** @brief Always backed by a dynamic uniform binding, see BindDescriptorSet. */
	DescriptorTypeUniformBuffer
	DescriptorTypeStorageBuffer
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeSampler:
		return "sampler"
	case DescriptorTypeCombinedImageSampler:
		return "combined_image_sampler"
	case DescriptorTypeSampledImage:
		return "sampled_image"
	case DescriptorTypeStorageImage:
		return "storage_image"
	case DescriptorTypeUniformBuffer:
		return "uniform_buffer"
	case DescriptorTypeStorageBuffer:
		return "storage_buffer"
	}
	return "unknown"
}

/** @brief One binding of a descriptor set layout. */
type DescriptorBinding struct {
	Type   DescriptorType
	Index  uint32
	Count  uint32
	Stages ShaderStageFlags
	Name   string
}

/**
 * @brief Everything needed to create a descriptor set layout.
 */
type DescriptorSetLayoutCreation struct {
	Bindings []DescriptorBinding
	/** @brief The set index the layout is bound to. */
	SetIndex uint32
	/** @brief Debug name. */
	Name string
}

/** @brief Appends a binding and returns the creation for chaining. */
func (c *DescriptorSetLayoutCreation) AddBinding(binding DescriptorBinding) *DescriptorSetLayoutCreation {
	if binding.Count == 0 {
		binding.Count = 1
	}
	c.Bindings = append(c.Bindings, binding)
	return c
}

/**
 * @brief Everything needed to create a descriptor set. Resources, Samplers
 * and Bindings are parallel slices, one entry per written binding.
 */
type DescriptorSetCreation struct {
	Resources []ResourceHandle
	Samplers  []SamplerHandle
	Bindings  []uint32
	Layout    DescriptorSetLayoutHandle
	/** @brief Debug name. */
	Name string
}

func (c *DescriptorSetCreation) SetLayout(layout DescriptorSetLayoutHandle) *DescriptorSetCreation {
	c.Layout = layout
	return c
}

/** @brief Binds a uniform or storage buffer. */
func (c *DescriptorSetCreation) Buffer(buffer BufferHandle, binding uint32) *DescriptorSetCreation {
	return c.add(ResourceHandle(buffer), InvalidSampler, binding)
}

/** @brief Binds a texture with the default sampler. */
func (c *DescriptorSetCreation) Texture(texture TextureHandle, binding uint32) *DescriptorSetCreation {
	return c.add(ResourceHandle(texture), InvalidSampler, binding)
}

/** @brief Binds a texture with an explicit sampler. */
func (c *DescriptorSetCreation) TextureSampler(texture TextureHandle, sampler SamplerHandle, binding uint32) *DescriptorSetCreation {
	return c.add(ResourceHandle(texture), sampler, binding)
}

func (c *DescriptorSetCreation) add(resource ResourceHandle, sampler SamplerHandle, binding uint32) *DescriptorSetCreation {
	c.Resources = append(c.Resources, resource)
	c.Samplers = append(c.Samplers, sampler)
	c.Bindings = append(c.Bindings, binding)
	return c
}

type DescriptorSetLayoutDescription struct {
	NativeHandle NativeHandle
	Name         string
	SetIndex     uint32
	Bindings     []DescriptorBinding
}

/** @brief A resource written into a descriptor set binding. */
type DescriptorData struct {
	Resource ResourceHandle
	Sampler  SamplerHandle
	Binding  uint32
}

type DescriptorSetDescription struct {
	NativeHandle NativeHandle
	Name         string
	Layout       DescriptorSetLayoutHandle
	Resources    []DescriptorData
}
