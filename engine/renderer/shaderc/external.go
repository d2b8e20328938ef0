package shaderc

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// External runs an offline compiler (glslangValidator or glslc) on a temp file.
type External struct {
	// Binary is a name on PATH or a full path.
	Binary string
	// TargetEnv is passed as --target-env, e.g. vulkan1.2. Empty keeps the compiler default.
	TargetEnv string
	// TempDir overrides the directory for intermediate files.
	TempDir string
}

func (e *External) Compile(stage metadata.ShaderStage, language metadata.ShaderLanguage, source, name string) ([]byte, error) {
	if language != metadata.ShaderLanguageGLSL && language != metadata.ShaderLanguageHLSL {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	dir, err := os.MkdirTemp(e.TempDir, "shaderc-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	if name == "" {
		name = "shader"
	}
	// the stage is deduced from the extension by both compilers
	input := filepath.Join(dir, fmt.Sprintf("%s.%s", sanitize(name), stage))
	output := input + ".spv"
	if err := os.WriteFile(input, []byte(source), 0o644); err != nil {
		return nil, err
	}

	args := e.arguments(language, input, output)
	var b bytes.Buffer
	cmd := exec.Command(e.Binary, args...)
	cmd.Stdout = &b
	cmd.Stderr = &b
	core.LogDebug("executing: %s %s", e.Binary, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("error executing %s on %s: %w\n%s", e.Binary, name, err, b.String())
	}

	code, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("compiler produced no output for %s: %w", name, err)
	}
	return code, nil
}

func (e *External) arguments(language metadata.ShaderLanguage, input, output string) []string {
	if strings.Contains(filepath.Base(e.Binary), "glslc") {
		args := []string{}
		if e.TargetEnv != "" {
			args = append(args, "--target-env="+e.TargetEnv)
		}
		if language == metadata.ShaderLanguageHLSL {
			args = append(args, "-x", "hlsl")
		}
		return append(args, "-o", output, input)
	}

	args := []string{"-V"}
	if e.TargetEnv != "" {
		args = append(args, "--target-env", e.TargetEnv)
	}
	if language == metadata.ShaderLanguageHLSL {
		args = append(args, "-D", "-e", "main")
	}
	return append(args, "-o", output, input)
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}
