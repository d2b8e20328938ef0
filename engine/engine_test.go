package engine

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

type counters struct {
	updates, renders, resizes, shutdowns int
	lastWidth                           uint32
}

func headlessGame(maxFrames uint64, render func(g *Game, c *counters) error) (*Game, *counters) {
	cfg := config.Default()
	cfg.Width, cfg.Height = 320, 200
	cfg.FramesInFlight = 2
	cfg.LogLevel = "error"

	c := &counters{}
	g := &Game{
		ApplicationConfig: &ApplicationConfig{Headless: true, MaxFrames: maxFrames, Device: cfg},
	}
	g.FnInitialize = func() error { return nil }
	g.FnUpdate = func(float64) error { c.updates++; return nil }
	g.FnRender = func(float64) error {
		c.renders++
		if render != nil {
			return render(g, c)
		}
		return nil
	}
	g.FnOnResize = func(w, h uint32) error { c.resizes++; c.lastWidth = w; return nil }
	g.FnShutdown = func() error { c.shutdowns++; return nil }
	return g, c
}

func clearPass(g *Game, c *counters) error {
	cb := g.Device.GetCommandBuffer(metadata.QueueTypeGraphics, true)
	cb.PushMarker("clear")
	cb.Clear(0, metadata.ClearColor{R: 0.1, A: 1})
	cb.BindPass(g.Device.SwapchainPass())
	cb.SetViewport(nil)
	cb.SetScissor(nil)
	cb.EndPass()
	cb.PopMarker()
	g.Device.QueueCommandBuffer(cb)
	return nil
}

func TestEngineRunsHeadlessFrames(t *testing.T) {
	g, c := headlessGame(5, clearPass)
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	assert.Equal(t, EngineStageInitialized, e.Stage())
	require.NotNil(t, g.Device)
	require.NotNil(t, g.Renderer)
	assert.Equal(t, 1, c.resizes)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(5), e.Frames())
	assert.Equal(t, 5, c.updates)
	assert.Equal(t, 5, c.renders)
	assert.Equal(t, uint64(5), g.Device.AbsoluteFrame())

	require.NoError(t, e.Shutdown())
	assert.Equal(t, 1, c.shutdowns)
}

func TestEngineStopsOnQuitEvent(t *testing.T) {
	var e *Engine
	g, _ := headlessGame(0, func(g *Game, c *counters) error {
		if c.renders == 3 {
			e.Events().Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
		}
		return nil
	})
	var err error
	e, err = New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint64(3), e.Frames())
	require.NoError(t, e.Shutdown())
}

func TestEngineStopsOnCancelledContext(t *testing.T) {
	g, _ := headlessGame(0, nil)
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))
	assert.Zero(t, e.Frames())
	require.NoError(t, e.Shutdown())
}

func TestEngineResizeEvent(t *testing.T) {
	g, c := headlessGame(1, nil)
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	data := core.EventContext{}
	data.Data.U32[0], data.Data.U32[1] = 640, 480
	e.Events().Fire(core.EVENT_CODE_RESIZED, nil, data)
	assert.Equal(t, uint32(640), c.lastWidth)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, uint32(640), g.Device.Swapchain().Width)
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(640), w)
	assert.Equal(t, uint32(480), h)
	require.NoError(t, e.Shutdown())
}

func TestEngineRunBeforeInitialize(t *testing.T) {
	g, _ := headlessGame(1, nil)
	e, err := New(g)
	require.NoError(t, err)
	assert.ErrorIs(t, e.Run(context.Background()), core.ErrNotInitialized)

	_, err = New(&Game{})
	assert.Error(t, err)
}

func runAsync(t *testing.T, e *Engine, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return done
}

func TestSuspendedEngineWakesOnQuit(t *testing.T) {
	g, c := headlessGame(0, nil)
	e, err := New(g)
	require.NoError(t, err)
	g.FnRender = func(float64) error {
		c.renders++
		if c.renders == 2 {
			e.Events().Fire(core.EVENT_CODE_RESIZED, nil, core.EventContext{})
		}
		return nil
	}
	require.NoError(t, e.Initialize())

	done := runAsync(t, e, context.Background())
	require.Eventually(t, e.isSuspended.Load, time.Second, time.Millisecond)
	e.Events().Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("suspended engine did not stop after quit")
	}
	assert.Equal(t, uint64(2), e.Frames())
	require.NoError(t, e.Shutdown())
}

func TestSuspendedEngineStopsOnCancel(t *testing.T) {
	g, c := headlessGame(0, nil)
	e, err := New(g)
	require.NoError(t, err)
	g.FnRender = func(float64) error {
		c.renders++
		if c.renders == 1 {
			e.Events().Fire(core.EVENT_CODE_RESIZED, nil, core.EventContext{})
		}
		return nil
	}
	require.NoError(t, e.Initialize())

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(t, e, ctx)
	require.Eventually(t, e.isSuspended.Load, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("suspended engine did not stop after cancel")
	}
	assert.Equal(t, uint64(1), e.Frames())
	require.NoError(t, e.Shutdown())
}

func TestSuspendedEngineResumesOnRestore(t *testing.T) {
	g, c := headlessGame(0, nil)
	e, err := New(g)
	require.NoError(t, err)
	g.FnRender = func(float64) error {
		c.renders++
		switch c.renders {
		case 1:
			e.Events().Fire(core.EVENT_CODE_RESIZED, nil, core.EventContext{})
		case 3:
			e.Events().Fire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})
		}
		return nil
	}
	require.NoError(t, e.Initialize())

	done := runAsync(t, e, context.Background())
	require.Eventually(t, func() bool { return e.isSuspended.Load() && e.Frames() == 1 }, time.Second, time.Millisecond)
	var restore core.EventContext
	restore.Data.U32[0], restore.Data.U32[1] = 640, 480
	e.Events().Fire(core.EVENT_CODE_RESIZED, nil, restore)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("suspended engine did not resume after restore")
	}
	assert.Equal(t, uint64(3), e.Frames())
	assert.Equal(t, uint32(640), g.Device.Swapchain().Width)
	require.NoError(t, e.Shutdown())
}
