/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/config"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/testbed"
)

func main() {
	configPath := flag.String("config", "", "device config file (.toml or .yaml)")
	headless := flag.Bool("headless", false, "run on the in-memory backend without a window")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 runs until the window closes")
	assetsDir := flag.String("assets", "assets", "directory of textures and shaders")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			core.LogFatal("failed to load config %s: %s", *configPath, err.Error())
		}
		cfg = loaded
	}
	if *headless && *frames == 0 {
		*frames = 600
	}

	tb := testbed.NewTestGame(&engine.ApplicationConfig{
		StartPosX: 100,
		StartPosY: 100,
		Headless:  *headless,
		MaxFrames: *frames,
		AssetsDir: *assetsDir,
		Device:    cfg,
	})

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("%s", err)
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("failed to initialize the engine: %s", err)
	}

	// signal context to capture system calls
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("engine shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}
