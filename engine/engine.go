package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/platform"
	"github.com/spaghettifunk/anima-gpu/engine/renderer"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/headless"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/shaderc"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// suspendPoll bounds how long a suspended headless engine sleeps between
// checks when no event wakes it.
const suspendPoll = 100 * time.Millisecond

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool
	isSuspended  atomic.Bool
	wakeup       chan struct{}

	events       *core.EventSystem
	platform     *platform.Platform
	window       gpu.Window
	backend      gpu.Backend
	device       *gpu.Device
	renderer     *renderer.Renderer
	assetManager *assets.AssetManager

	width    uint32
	height   uint32
	clock    *core.Clock
	lastTime float64
	frames   atomic.Uint64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("the game has no application config")
	}
	cfg := g.ApplicationConfig.Device
	e := &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		events:       core.NewEventSystem(),
		clock:        core.NewClock(),
		wakeup:       make(chan struct{}, 1),
		width:        cfg.Width,
		height:       cfg.Height,
	}
	e.isRunning.Store(true)
	return e, nil
}

func (e *Engine) Stage() Stage { return e.currentStage }

// Frames returns how many frames were presented.
func (e *Engine) Frames() uint64 { return e.frames.Load() }

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	appConfig := e.gameInstance.ApplicationConfig
	cfg := appConfig.Device
	core.SetLogLevel(core.ParseLogLevel(cfg.LogLevel))

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	if appConfig.Headless {
		e.window = headless.NewWindow(cfg.Width, cfg.Height)
		e.backend = headless.New(headless.Options{})
	} else {
		e.platform = platform.New(e.events)
		if err := e.platform.Startup(cfg.AppName, appConfig.StartPosX, appConfig.StartPosY, cfg.Width, cfg.Height); err != nil {
			return err
		}
		e.window = e.platform
		e.backend = vulkan.New()
	}

	compiler := shaderc.Default(cfg.ShaderCompiler, cfg.ShaderTargetEnv)
	device, err := gpu.NewDevice(cfg, e.backend, e.window, gpu.WithShaderCompiler(compiler))
	if err != nil {
		return err
	}
	e.device = device

	am, err := assets.NewAssetManager(e.events)
	if err != nil {
		return err
	}
	e.assetManager = am
	if dir := appConfig.AssetsDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			if err := am.Initialize(dir); err != nil {
				return err
			}
		} else {
			core.LogWarn("assets directory %s not found, hot reload disabled", dir)
		}
	}

	e.renderer = renderer.New(device, am)
	e.renderer.WatchAssets(e.events)

	e.gameInstance.Device = device
	e.gameInstance.Renderer = e.renderer

	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}
	if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
		return err
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives frames until the window closes, the frame limit is reached, a
// quit event arrives or the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine run before initialization: %w", core.ErrNotInitialized)
	}
	e.currentStage = EngineStageRunning

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	maxFrames := e.gameInstance.ApplicationConfig.MaxFrames
	for e.isRunning.Load() {
		if err := ctx.Err(); err != nil {
			core.LogInfo("stopping: %s", err)
			break
		}
		if e.platform != nil && !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		if e.isSuspended.Load() {
			e.waitWhileSuspended(ctx)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.frame(delta); err != nil {
			return err
		}
		e.lastTime = currentTime

		if maxFrames > 0 && e.frames.Load() >= maxFrames {
			e.isRunning.Store(false)
		}
	}
	return nil
}

// waitWhileSuspended blocks until something may have changed the suspended
// state: a platform event, a wake from an event handler, the context or the
// poll interval.
func (e *Engine) waitWhileSuspended(ctx context.Context) {
	if e.platform != nil {
		e.platform.WaitEvents()
		return
	}
	timer := time.NewTimer(suspendPoll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-e.wakeup:
	case <-timer.C:
	}
}

func (e *Engine) wake() {
	select {
	case e.wakeup <- struct{}{}:
	default:
	}
}

func (e *Engine) frame(delta float64) error {
	e.renderer.ApplyReloads()

	if err := e.device.NewFrame(); err != nil {
		return err
	}
	if err := e.gameInstance.FnUpdate(delta); err != nil {
		core.LogError("game update failed, shutting down: %s", err)
		return err
	}
	if err := e.gameInstance.FnRender(delta); err != nil {
		core.LogError("game render failed, shutting down: %s", err)
		return err
	}
	if err := e.device.Present(); err != nil {
		return err
	}
	e.frames.Add(1)
	return nil
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var errs []error
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	if e.renderer != nil {
		e.renderer.Shutdown()
	}
	if e.device != nil {
		errs = append(errs, e.device.Shutdown())
	}
	if e.assetManager != nil {
		e.assetManager.Shutdown()
	}
	if e.platform != nil {
		errs = append(errs, e.platform.Shutdown())
	}
	e.events.Shutdown()
	e.currentStage = EngineStageUninitialized
	return errors.Join(errs...)
}

// GetFramebufferSize returns the width and height (in this order)
// of the application Framebuffer
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Events() *core.EventSystem { return e.events }

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		e.wake()
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width, height := data.Data.U32[0], data.Data.U32[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width, e.height = width, height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended.Store(true)
		return false
	}
	if e.device != nil {
		e.device.Resize(width, height)
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError("resize callback failed: %s", err)
	}
	// resume only once the device has the new size
	if e.isSuspended.Load() {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended.Store(false)
		e.wake()
	}
	return false
}
