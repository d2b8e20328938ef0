package shaderc

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeCompiler writes a script that behaves like glslangValidator: it writes
// the given payload to the file following -o.
func fakeCompiler(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), name)
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

const writeOutput = `
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then shift; out="$1"; fi
  shift
done
printf 'SPIRV' > "$out"
`

func TestExternalCompile(t *testing.T) {
	bin := fakeCompiler(t, "glslangValidator", writeOutput)
	c := &External{Binary: bin, TargetEnv: "vulkan1.2"}

	code, err := c.Compile(metadata.ShaderStageVertex, metadata.ShaderLanguageGLSL, "void main() {}", "clear pass")
	require.NoError(t, err)
	assert.Equal(t, []byte("SPIRV"), code)
}

func TestExternalCompileFailure(t *testing.T) {
	bin := fakeCompiler(t, "glslc", "echo 'ERROR: 0:1: syntax error' >&2\nexit 1\n")
	c := &External{Binary: bin}

	code, err := c.Compile(metadata.ShaderStageFragment, metadata.ShaderLanguageGLSL, "broken", "broken")
	assert.Nil(t, code)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
}

func TestExternalMissingBinary(t *testing.T) {
	c := &External{Binary: filepath.Join(t.TempDir(), "does-not-exist")}
	code, err := c.Compile(metadata.ShaderStageCompute, metadata.ShaderLanguageGLSL, "void main() {}", "missing")
	assert.Nil(t, code)
	assert.Error(t, err)
}

func TestExternalArguments(t *testing.T) {
	glslang := &External{Binary: "/usr/bin/glslangValidator", TargetEnv: "vulkan1.2"}
	assert.Equal(t,
		[]string{"-V", "--target-env", "vulkan1.2", "-D", "-e", "main", "-o", "out", "in"},
		glslang.arguments(metadata.ShaderLanguageHLSL, "in", "out"))

	glslc := &External{Binary: "glslc"}
	assert.Equal(t, []string{"-o", "out", "in"}, glslc.arguments(metadata.ShaderLanguageGLSL, "in", "out"))
}

func TestMultiDispatch(t *testing.T) {
	bin := fakeCompiler(t, "glslangValidator", writeOutput)
	m := Default(bin, "")

	code, err := m.Compile(metadata.ShaderStageVertex, metadata.ShaderLanguageGLSL, "void main() {}", "v")
	require.NoError(t, err)
	assert.Equal(t, []byte("SPIRV"), code)

	_, err = m.Compile(metadata.ShaderStageVertex, metadata.ShaderLanguageSPIRV, "", "v")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestNagaCompile(t *testing.T) {
	source := `
@compute @workgroup_size(1)
fn main() {
}
`
	code, err := Naga{}.Compile(metadata.ShaderStageCompute, metadata.ShaderLanguageWGSL, source, "noop")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(code), 20)
	assert.Equal(t, uint32(0x07230203), binary.LittleEndian.Uint32(code[:4]))

	_, err = Naga{}.Compile(metadata.ShaderStageCompute, metadata.ShaderLanguageGLSL, source, "noop")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}
