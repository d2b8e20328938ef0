package testbed

import (
	"encoding/binary"
	stdmath "math"
	"path/filepath"

	"github.com/spaghettifunk/anima-gpu/engine"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

const statsInterval = 120

type TestGame struct {
	*engine.Game
}

type gameState struct {
	elapsed float64
	frames  uint64

	width  uint32
	height uint32

	clearColor metadata.ClearColor
	uniforms   metadata.BufferHandle
	checker    metadata.TextureHandle
	textures   []metadata.TextureHandle

	// only set when the precompiled shaders are found
	layout     metadata.DescriptorSetLayoutHandle
	set        metadata.DescriptorSetHandle
	fullscreen metadata.PipelineHandle
}

func NewTestGame(cfg *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: cfg,
			State: &gameState{
				layout:     metadata.InvalidDescriptorSetLayout,
				set:        metadata.InvalidDescriptorSet,
				fullscreen: metadata.InvalidPipeline,
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// checkerboard builds an RGBA8 checker pattern with cells of 8 texels.
func checkerboard(size uint32) []byte {
	pixels := make([]byte, size*size*4)
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			v := byte(0x20)
			if (x/8+y/8)%2 == 0 {
				v = 0xe0
			}
			i := (y*size + x) * 4
			pixels[i], pixels[i+1], pixels[i+2], pixels[i+3] = v, v, v, 0xff
		}
	}
	return pixels
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	s := g.state()

	s.uniforms = g.Renderer.CreateBuffer(metadata.BufferCreation{
		Type:  metadata.BufferTypeUniform,
		Usage: metadata.ResourceUsageDynamic,
		Size:  16,
		Name:  "testbed_clear_color",
	})
	s.checker = g.Renderer.CreateTexture(metadata.TextureCreation{
		InitialData: checkerboard(64),
		Width:       64,
		Height:      64,
		Depth:       1,
		MipLevels:   1,
		Format:      metadata.TextureFormatR8G8B8A8Unorm,
		Type:        metadata.TextureType2d,
		Name:        "checker",
	})

	if dir := g.ApplicationConfig.AssetsDir; dir != "" {
		paths, _ := filepath.Glob(filepath.Join(dir, "textures", "*.png"))
		if len(paths) > 0 {
			handles, err := g.Renderer.LoadTextures(paths...)
			if err != nil {
				core.LogWarn("testbed textures not loaded: %s", err)
			}
			s.textures = handles
		}
		g.createFullscreenPipeline(filepath.Join(dir, "shaders"))
	}
	return nil
}

// createFullscreenPipeline draws the checker texture tinted by the clear
// color over the swapchain. The shaders are built by `mage build:shaders`.
func (g *TestGame) createFullscreenPipeline(dir string) {
	s := g.state()
	am := g.Renderer.Assets()
	vert, err := am.LoadBinary(filepath.Join(dir, "fullscreen.vert.spv"))
	if err != nil {
		core.LogInfo("fullscreen pass disabled: %s", err)
		return
	}
	frag, err := am.LoadBinary(filepath.Join(dir, "fullscreen.frag.spv"))
	if err != nil {
		core.LogInfo("fullscreen pass disabled: %s", err)
		return
	}

	layout := metadata.DescriptorSetLayoutCreation{Name: "fullscreen_layout"}
	layout.AddBinding(metadata.DescriptorBinding{Type: metadata.DescriptorTypeUniformBuffer, Index: 0, Stages: metadata.ShaderStageFlagFragment, Name: "tint"}).
		AddBinding(metadata.DescriptorBinding{Type: metadata.DescriptorTypeCombinedImageSampler, Index: 1, Stages: metadata.ShaderStageFlagFragment, Name: "checker"})
	s.layout = g.Device.CreateDescriptorSetLayout(layout)
	if !s.layout.IsValid() {
		return
	}

	set := metadata.DescriptorSetCreation{Name: "fullscreen_set"}
	set.SetLayout(s.layout).Buffer(s.uniforms, 0).Texture(s.checker, 1)
	s.set = g.Device.CreateDescriptorSet(set)

	creation := metadata.PipelineCreation{
		RenderPass:           g.Device.SwapchainOutput(),
		DescriptorSetLayouts: []metadata.DescriptorSetLayoutHandle{s.layout},
		Topology:             metadata.TopologyTriangleList,
		Name:                 "fullscreen",
	}
	creation.Rasterization.CullMode = metadata.CullModeNone
	creation.Shaders.Name = "fullscreen"
	creation.Shaders.
		AddStage(metadata.ShaderStageVertex, metadata.ShaderLanguageSPIRV, vert, "").
		AddStage(metadata.ShaderStageFragment, metadata.ShaderLanguageSPIRV, frag, "")
	s.fullscreen = g.Renderer.CreatePipeline(creation)
}

func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()
	s.elapsed += deltaTime
	s.clearColor = metadata.ClearColor{
		R: float32(0.5 + 0.5*stdmath.Sin(s.elapsed)),
		G: float32(0.5 + 0.5*stdmath.Sin(s.elapsed+2.1)),
		B: float32(0.5 + 0.5*stdmath.Sin(s.elapsed+4.2)),
		A: 1.0,
	}

	// the dynamic buffer gets fresh memory in the frame ring on every map
	params := metadata.MapBufferParameters{Buffer: s.uniforms, Size: 16}
	if data := g.Device.MapBuffer(params); data != nil {
		for i, v := range []float32{s.clearColor.R, s.clearColor.G, s.clearColor.B, s.clearColor.A} {
			binary.LittleEndian.PutUint32(data[i*4:], stdmath.Float32bits(v))
		}
		g.Device.UnmapBuffer(params)
	}
	return nil
}

func (g *TestGame) Render(deltaTime float64) error {
	s := g.state()
	device := g.Device

	cb := device.GetCommandBuffer(metadata.QueueTypeGraphics, true)
	if cb == nil {
		return core.ErrPoolExhausted
	}
	cb.PushMarker("frame")
	cb.PushMarker("clear")
	cb.Clear(0, s.clearColor)
	cb.ClearDepthStencil(1.0, 0)
	cb.BindPass(device.SwapchainPass())
	cb.SetViewport(nil)
	cb.SetScissor(nil)
	cb.PopMarker()
	if s.fullscreen.IsValid() && s.set.IsValid() {
		cb.PushMarker("fullscreen")
		cb.BindPipeline(s.fullscreen)
		cb.BindDescriptorSet([]metadata.DescriptorSetHandle{s.set}, 0)
		cb.Draw(3, 1, 0, 0)
		cb.PopMarker()
	}
	cb.EndPass()
	cb.PopMarker()
	device.QueueCommandBuffer(cb)

	s.frames++
	if s.frames%statsInterval == 0 {
		frameTime, fps := device.FrameStats()
		core.LogInfo("frame %d: %.2f ms, %.0f fps", device.AbsoluteFrame(), frameTime, fps)
		for _, ts := range device.GPUTimestamps() {
			core.LogDebug("gpu %*s%s: %.3f ms", int(ts.Depth)*2, "", ts.Name, ts.ElapsedMs)
		}
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	s := g.state()
	if s.fullscreen.IsValid() {
		g.Renderer.Release(metadata.ResourceKindPipeline, "fullscreen")
	}
	if s.set.IsValid() {
		g.Device.DestroyDescriptorSet(s.set)
	}
	if s.layout.IsValid() {
		g.Device.DestroyDescriptorSetLayout(s.layout)
	}
	g.Renderer.ReleaseBuffer(s.uniforms)
	g.Renderer.ReleaseTexture(s.checker)
	for _, h := range s.textures {
		g.Renderer.ReleaseTexture(h)
	}
	return nil
}
