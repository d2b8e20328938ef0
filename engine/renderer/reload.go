package renderer

import (
	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// WatchAssets queues a reload of the file textures whose file changed on disk.
// Reloads are applied by ApplyReloads on the frame goroutine.
func (r *Renderer) WatchAssets(events *core.EventSystem) {
	events.Register(core.EVENT_CODE_ASSET_CHANGED, r, r.onAssetChanged)
}

func (r *Renderer) onAssetChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	r.reloadMu.Lock()
	r.reloads[data.Data.S] = struct{}{}
	r.reloadMu.Unlock()
	// other listeners may care about the same file
	return false
}

// ApplyReloads uploads the new contents of every changed file into the
// textures loaded from it and returns how many were reloaded. Handles stay
// the same, descriptor sets sampling them are rewritten at the next frame.
func (r *Renderer) ApplyReloads() int {
	r.reloadMu.Lock()
	paths := make([]string, 0, len(r.reloads))
	for path := range r.reloads {
		paths = append(paths, path)
	}
	clear(r.reloads)
	r.reloadMu.Unlock()

	reloaded := 0
	for _, path := range paths {
		r.mu.RLock()
		names := r.textures.byPath(path)
		r.mu.RUnlock()
		if len(names) == 0 {
			continue
		}

		img, err := r.assets.LoadImage(path)
		if err != nil {
			core.LogWarn("failed to reload %s: %s", path, err.Error())
			continue
		}
		for _, name := range names {
			r.mu.RLock()
			h, ok := r.textures.get(name)
			r.mu.RUnlock()
			if !ok {
				continue
			}
			if err := r.device.ReloadTexture(h, imageCreation(img, name)); err != nil {
				core.LogWarn("failed to reload texture %s: %s", name, err.Error())
				continue
			}
			reloaded++
			core.LogDebug("reloaded texture %s from %s", name, path)
		}
	}
	return reloaded
}
