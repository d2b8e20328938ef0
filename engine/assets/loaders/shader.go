package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// ShaderSource is the text of one shader stage.
type ShaderSource struct {
	Name     string
	Stage    metadata.ShaderStage
	Language metadata.ShaderLanguage
	Source   string
}

type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string) (any, error) {
	stage, language, err := ShaderKind(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &ShaderSource{
		Name:     filepath.Base(path),
		Stage:    stage,
		Language: language,
		Source:   string(data),
	}, nil
}

// ShaderKind derives stage and language from names like "clear.vert",
// "clear.vert.hlsl" or "blit.comp.wgsl".
func ShaderKind(path string) (metadata.ShaderStage, metadata.ShaderLanguage, error) {
	base := strings.ToLower(filepath.Base(path))
	language := metadata.ShaderLanguageGLSL
	switch filepath.Ext(base) {
	case ".hlsl":
		language = metadata.ShaderLanguageHLSL
		base = strings.TrimSuffix(base, ".hlsl")
	case ".wgsl":
		language = metadata.ShaderLanguageWGSL
		base = strings.TrimSuffix(base, ".wgsl")
	case ".glsl":
		base = strings.TrimSuffix(base, ".glsl")
	}
	switch filepath.Ext(base) {
	case ".vert":
		return metadata.ShaderStageVertex, language, nil
	case ".frag":
		return metadata.ShaderStageFragment, language, nil
	case ".geom":
		return metadata.ShaderStageGeometry, language, nil
	case ".comp":
		return metadata.ShaderStageCompute, language, nil
	}
	return 0, 0, fmt.Errorf("cannot tell the shader stage of %s", path)
}
