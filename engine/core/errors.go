package core

import (
	"errors"
)

var (
	ErrSwapchainBooting   = errors.New("swapchain resized or recreated, booting")
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")
	ErrPoolExhausted      = errors.New("resource pool exhausted")
	ErrInvalidHandle      = errors.New("invalid resource handle")
	ErrDoubleRelease      = errors.New("resource handle released twice")
	ErrResourceLeak       = errors.New("resources still in use at shutdown")
	ErrShaderCompilation  = errors.New("shader compilation failed")
	ErrDeviceLost         = errors.New("device lost")
	ErrNotInitialized     = errors.New("not initialized")
	ErrUnknown            = errors.New("unknown")
)
