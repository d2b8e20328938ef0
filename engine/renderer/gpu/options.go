package gpu

import "github.com/spaghettifunk/anima-gpu/engine/renderer/shaderc"

type Option func(*Device)

// WithShaderCompiler sets the compiler used for stages given as source text.
func WithShaderCompiler(compiler shaderc.Compiler) Option {
	return func(d *Device) {
		d.compiler = compiler
	}
}
