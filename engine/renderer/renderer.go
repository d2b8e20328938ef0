package renderer

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/anima-gpu/engine/assets"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/gpu"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Renderer hands out device resources by name. Creating a name that already
// exists adds a reference to the existing resource, the resource is destroyed
// when its last reference is released.
type Renderer struct {
	device *gpu.Device
	assets *assets.AssetManager

	mu        sync.RWMutex
	buffers   *cache[metadata.BufferHandle]
	textures  *cache[metadata.TextureHandle]
	samplers  *cache[metadata.SamplerHandle]
	pipelines *cache[metadata.PipelineHandle]

	reloadMu sync.Mutex
	reloads  map[string]struct{}
}

func New(device *gpu.Device, am *assets.AssetManager) *Renderer {
	return &Renderer{
		device:    device,
		assets:    am,
		buffers:   newCache[metadata.BufferHandle](),
		textures:  newCache[metadata.TextureHandle](),
		samplers:  newCache[metadata.SamplerHandle](),
		pipelines: newCache[metadata.PipelineHandle](),
		reloads:   make(map[string]struct{}),
	}
}

func (r *Renderer) Device() *gpu.Device { return r.device }

func (r *Renderer) Assets() *assets.AssetManager { return r.assets }

func resourceName(name string) string {
	if name == "" {
		return uuid.NewString()
	}
	return name
}

func (r *Renderer) resources(kind metadata.ResourceKind) (namedResources, bool) {
	switch kind {
	case metadata.ResourceKindBuffer:
		return r.buffers, true
	case metadata.ResourceKindTexture:
		return r.textures, true
	case metadata.ResourceKindSampler:
		return r.samplers, true
	case metadata.ResourceKindPipeline:
		return r.pipelines, true
	}
	return nil, false
}

func (r *Renderer) destroy(kind metadata.ResourceKind, h metadata.ResourceHandle) {
	switch kind {
	case metadata.ResourceKindBuffer:
		r.device.DestroyBuffer(metadata.BufferHandle(h))
	case metadata.ResourceKindTexture:
		r.device.DestroyTexture(metadata.TextureHandle(h))
	case metadata.ResourceKindSampler:
		r.device.DestroySampler(metadata.SamplerHandle(h))
	case metadata.ResourceKindPipeline:
		r.device.DestroyPipeline(metadata.PipelineHandle(h))
	}
}

func (r *Renderer) CreateBuffer(creation metadata.BufferCreation) metadata.BufferHandle {
	creation.Name = resourceName(creation.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.buffers.acquire(creation.Name); ok {
		return h
	}
	h := r.device.CreateBuffer(creation)
	if h.IsValid() {
		r.buffers.add(creation.Name, h, "")
	}
	return h
}

func (r *Renderer) CreateTexture(creation metadata.TextureCreation) metadata.TextureHandle {
	creation.Name = resourceName(creation.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.textures.acquire(creation.Name); ok {
		return h
	}
	h := r.device.CreateTexture(creation)
	if h.IsValid() {
		r.textures.add(creation.Name, h, "")
	}
	return h
}

func (r *Renderer) CreateSampler(creation metadata.SamplerCreation) metadata.SamplerHandle {
	creation.Name = resourceName(creation.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.samplers.acquire(creation.Name); ok {
		return h
	}
	h := r.device.CreateSampler(creation)
	if h.IsValid() {
		r.samplers.add(creation.Name, h, "")
	}
	return h
}

// CreatePipeline names the pipeline after its shader state when it has no name.
func (r *Renderer) CreatePipeline(creation metadata.PipelineCreation) metadata.PipelineHandle {
	if creation.Name == "" {
		creation.Name = creation.Shaders.Name
	}
	creation.Name = resourceName(creation.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.pipelines.acquire(creation.Name); ok {
		return h
	}
	h := r.device.CreatePipeline(creation)
	if h.IsValid() {
		r.pipelines.add(creation.Name, h, "")
	}
	return h
}

func imageCreation(img *assets.Image, name string) metadata.TextureCreation {
	return metadata.TextureCreation{
		InitialData: img.Pixels,
		Width:       img.Width,
		Height:      img.Height,
		Depth:       1,
		MipLevels:   1,
		Format:      metadata.TextureFormatR8G8B8A8Unorm,
		Type:        metadata.TextureType2d,
		Name:        name,
	}
}

// CreateTextureFromFile decodes an image into RGBA8 and uploads it. The
// texture is named after the file unless a name is given.
func (r *Renderer) CreateTextureFromFile(path, name string) (metadata.TextureHandle, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	r.mu.Lock()
	if h, ok := r.textures.acquire(name); ok {
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	img, err := r.assets.LoadImage(path)
	if err != nil {
		core.LogError("failed to load texture %s: %s", path, err.Error())
		return metadata.InvalidTexture, err
	}
	return r.addFileTexture(name, path, img)
}

func (r *Renderer) addFileTexture(name, path string, img *assets.Image) (metadata.TextureHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.textures.acquire(name); ok {
		return h, nil
	}
	h := r.device.CreateTexture(imageCreation(img, name))
	if !h.IsValid() {
		return metadata.InvalidTexture, fmt.Errorf("failed to create texture %s from %s", name, path)
	}
	r.textures.add(name, h, r.assets.Path(path))
	return h, nil
}

// LoadTextures decodes the files in parallel and creates their textures in
// order on the calling goroutine.
func (r *Renderer) LoadTextures(paths ...string) ([]metadata.TextureHandle, error) {
	images := make([]*assets.Image, len(paths))
	var g errgroup.Group
	for i, path := range paths {
		g.Go(func() error {
			img, err := r.assets.LoadImage(path)
			if err != nil {
				return fmt.Errorf("failed to load texture %s: %w", path, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		core.LogError("%s", err)
		return nil, err
	}

	handles := make([]metadata.TextureHandle, 0, len(paths))
	for i, path := range paths {
		h, err := r.addFileTexture(filepath.Base(path), path, images[i])
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (r *Renderer) GetBuffer(name string) (metadata.BufferHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffers.get(name)
}

func (r *Renderer) GetTexture(name string) (metadata.TextureHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textures.get(name)
}

func (r *Renderer) GetSampler(name string) (metadata.SamplerHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.samplers.get(name)
}

func (r *Renderer) GetPipeline(name string) (metadata.PipelineHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pipelines.get(name)
}

// References returns how many owners a named resource has.
func (r *Renderer) References(kind metadata.ResourceKind, name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resources, ok := r.resources(kind)
	if !ok {
		return 0
	}
	return resources.references(name)
}

// Release drops a reference to a named resource, destroying it with the last one.
func (r *Renderer) Release(kind metadata.ResourceKind, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resources, ok := r.resources(kind)
	if !ok {
		core.LogWarn("the renderer does not manage %s resources", kind)
		return
	}
	if _, ok := resources.lookup(name); !ok {
		core.LogWarn("releasing unknown %s %s", kind, name)
		return
	}
	if h, last := resources.release(name); last {
		r.destroy(kind, h)
	}
}

func (r *Renderer) ReleaseTexture(h metadata.TextureHandle) {
	r.mu.RLock()
	name, ok := r.textures.nameOf(h)
	r.mu.RUnlock()
	if !ok {
		core.LogWarn("releasing texture %d not owned by the renderer", h)
		return
	}
	r.Release(metadata.ResourceKindTexture, name)
}

func (r *Renderer) ReleaseBuffer(h metadata.BufferHandle) {
	r.mu.RLock()
	name, ok := r.buffers.nameOf(h)
	r.mu.RUnlock()
	if !ok {
		core.LogWarn("releasing buffer %d not owned by the renderer", h)
		return
	}
	r.Release(metadata.ResourceKindBuffer, name)
}

// Shutdown destroys whatever is still referenced.
func (r *Renderer) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, kind := range []metadata.ResourceKind{
		metadata.ResourceKindPipeline,
		metadata.ResourceKindSampler,
		metadata.ResourceKindTexture,
		metadata.ResourceKindBuffer,
	} {
		resources, _ := r.resources(kind)
		for _, name := range resources.names() {
			core.LogDebug("renderer releasing %s %s with %d references", kind, name, resources.references(name))
			for {
				h, last := resources.release(name)
				if last {
					r.destroy(kind, h)
					break
				}
			}
		}
	}
}
