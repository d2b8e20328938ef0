package engine

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
)

// Game is the set of callbacks the engine drives. Device and Renderer are set
// by the engine before FnInitialize is called.
type Game struct {
	ApplicationConfig *ApplicationConfig
	Device            *gpu.Device
	Renderer          *renderer.Renderer
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render records the command buffers of the frame, between NewFrame and Present.
type Render func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
