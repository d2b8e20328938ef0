package shaderc

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

var ErrUnsupportedLanguage = errors.New("unsupported shader language")

// Compiler turns shader source into SPIR-V bytecode.
type Compiler interface {
	Compile(stage metadata.ShaderStage, language metadata.ShaderLanguage, source, name string) ([]byte, error)
}

// Multi dispatches to a compiler per language.
type Multi map[metadata.ShaderLanguage]Compiler

func (m Multi) Compile(stage metadata.ShaderStage, language metadata.ShaderLanguage, source, name string) ([]byte, error) {
	c, ok := m[language]
	if !ok || c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	return c.Compile(stage, language, source, name)
}

// Default compiles GLSL and HLSL with the given external binary and WGSL in process.
func Default(binary, targetEnv string) Multi {
	ext := &External{Binary: binary, TargetEnv: targetEnv}
	return Multi{
		metadata.ShaderLanguageGLSL: ext,
		metadata.ShaderLanguageHLSL: ext,
		metadata.ShaderLanguageWGSL: Naga{},
	}
}
