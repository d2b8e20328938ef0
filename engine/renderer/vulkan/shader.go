package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const spirvMagic = 0x07230203

// spirvWords reinterprets SPIR-V bytecode as the words the API expects.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, fmt.Errorf("spirv size %d is not a multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("invalid spirv magic %#x", words[0])
	}
	return words, nil
}

type shaderModule struct {
	handle vk.ShaderModule
	stage  metadata.ShaderStage
}

func (b *Backend) CreateShaderModule(stage metadata.ShaderStage, code []byte) (metadata.NativeHandle, error) {
	words, err := spirvWords(code)
	if err != nil {
		return metadata.NullNativeHandle, fmt.Errorf("%s stage: %w", stage, err)
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var module vk.ShaderModule
	if err := check("vkCreateShaderModule", vk.CreateShaderModule(b.context.device.logical, &createInfo, b.context.allocator, &module)); err != nil {
		return metadata.NullNativeHandle, err
	}
	return b.shaders.add(shaderModule{handle: module, stage: stage}), nil
}

func (b *Backend) DestroyShaderModule(module metadata.NativeHandle) {
	m, ok := b.shaders.remove(module)
	if !ok {
		core.LogWarn("destroying unknown shader module %d", module)
		return
	}
	vk.DestroyShaderModule(b.context.device.logical, m.handle, b.context.allocator)
}
