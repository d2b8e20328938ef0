package shaderc

import (
	"fmt"

	"github.com/gogpu/naga"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Naga compiles WGSL to SPIR-V in process.
type Naga struct{}

func (Naga) Compile(stage metadata.ShaderStage, language metadata.ShaderLanguage, source, name string) ([]byte, error) {
	if language != metadata.ShaderLanguageWGSL {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}
	code, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s (%s): %w", name, stage, err)
	}
	return code, nil
}
