package engine

import "github.com/spaghettifunk/anima-gpu/engine/config"

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// Runs on the in-memory backend without opening a window.
	Headless bool
	// Stops the application after this many frames, 0 runs until the window closes.
	MaxFrames uint64
	// Directory watched for textures and shaders, skipped when empty.
	AssetsDir string
	// Device settings, the application name and starting size included.
	Device config.DeviceConfig
}
