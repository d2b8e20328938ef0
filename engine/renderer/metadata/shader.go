package metadata

import "fmt"

/** @brief The maximum number of stages a shader state may hold. */
const MaxShaderStages = 5

/**
 * @brief A single programmable stage.
 */
type ShaderStage int

const (
	ShaderStageVertex ShaderStage = iota
	ShaderStageFragment
	ShaderStageGeometry
	ShaderStageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case ShaderStageVertex:
		return "vert"
	case ShaderStageFragment:
		return "frag"
	case ShaderStageGeometry:
		return "geom"
	case ShaderStageCompute:
		return "comp"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

/** @brief Returns the flag bit of a single stage. */
func (s ShaderStage) Flag() ShaderStageFlags {
	return ShaderStageFlags(1 << uint(s))
}

/** @brief A set of stages, used by descriptor bindings and push constants. */
type ShaderStageFlags uint32

const (
	ShaderStageFlagVertex   ShaderStageFlags = 1 << ShaderStageVertex
	ShaderStageFlagFragment ShaderStageFlags = 1 << ShaderStageFragment
	ShaderStageFlagGeometry ShaderStageFlags = 1 << ShaderStageGeometry
	ShaderStageFlagCompute  ShaderStageFlags = 1 << ShaderStageCompute
	ShaderStageFlagAll      ShaderStageFlags = ShaderStageFlagVertex | ShaderStageFlagFragment | ShaderStageFlagGeometry | ShaderStageFlagCompute
)

/** @brief The language a stage is written in. */
type ShaderLanguage int

const (
	/** @brief Already compiled, Code holds the bytecode. */
	ShaderLanguageSPIRV ShaderLanguage = iota
	ShaderLanguageGLSL
	ShaderLanguageHLSL
	ShaderLanguageWGSL
)

func (l ShaderLanguage) String() string {
	switch l {
	case ShaderLanguageSPIRV:
		return "spirv"
	case ShaderLanguageGLSL:
		return "glsl"
	case ShaderLanguageHLSL:
		return "hlsl"
	case ShaderLanguageWGSL:
		return "wgsl"
	}
	return "unknown"
}

/**
 * @brief One stage of a shader state. Either Code (bytecode) or Source
 * (text in Language) is set.
 */
type ShaderStageCreation struct {
	Stage    ShaderStage
	Language ShaderLanguage
	Code     []byte
	Source   string
}

/**
 * @brief Everything needed to create a shader state.
 */
type ShaderStateCreation struct {
	Stages []ShaderStageCreation
	/** @brief Debug name, also used to name compiler temp files. */
	Name string
}

/** @brief Appends a stage and returns the creation for chaining. */
func (c *ShaderStateCreation) AddStage(stage ShaderStage, language ShaderLanguage, code []byte, source string) *ShaderStateCreation {
	c.Stages = append(c.Stages, ShaderStageCreation{Stage: stage, Language: language, Code: code, Source: source})
	return c
}

/** @brief Reports whether the state holds a compute stage. */
func (c *ShaderStateCreation) IsCompute() bool {
	for _, s := range c.Stages {
		if s.Stage == ShaderStageCompute {
			return true
		}
	}
	return false
}

type ShaderStateDescription struct {
	Name          string
	GraphicsStage bool
	Stages        []ShaderStage
	NativeModules []NativeHandle
}
