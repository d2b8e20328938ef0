package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"

	"github.com/spaghettifunk/anima-gpu/engine/assets/loaders"
	"github.com/spaghettifunk/anima-gpu/engine/core"
)

type (
	Image        = loaders.Image
	ShaderSource = loaders.ShaderSource
)

var ErrUnknownAsset = errors.New("unknown asset type")

type AssetInfo struct {
	Path       string
	Type       AssetType
	LastLoaded time.Time
}

// AssetManager indexes the files under an asset directory, loads them through
// the loader registered for their type and reports changes on disk as
// EVENT_CODE_ASSET_CHANGED events.
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[AssetType]Loader
	events  *core.EventSystem

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager(events *core.EventSystem) (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[AssetType]Loader),
		events:   events,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	am.registerLoader(AssetTypeImage, &loaders.ImageLoader{})
	am.registerLoader(AssetTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(AssetTypeBinary, &loaders.BinaryLoader{})
	return am, nil
}

// Initialize indexes and watches the asset directory and its sub-directories.
func (am *AssetManager) Initialize(assetsDir string) error {
	dir, err := homedir.Expand(assetsDir)
	if err != nil {
		return err
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return err
	}
	am.root = dir

	if err := am.watchRecursive(dir); err != nil {
		return err
	}
	go am.start()

	core.LogDebug("watching %d assets under %s", am.Count(), dir)
	return nil
}

func (am *AssetManager) Shutdown() {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return
	}
	am.isClosed = true
	am.mutex.Unlock()

	close(am.done)
	<-am.stopped
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType AssetType, loader Loader) {
	am.loaders[assetType] = loader
}

// Path resolves a name relative to the asset directory.
func (am *AssetManager) Path(name string) string {
	if filepath.IsAbs(name) || am.root == "" {
		return name
	}
	return filepath.Join(am.root, name)
}

func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

func (am *AssetManager) Info(name string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[am.Path(name)]
	return info, ok
}

// Load reads an asset with the loader of its type. Files outside the watched
// directory can be loaded too.
func (am *AssetManager) Load(name string) (any, error) {
	path := am.Path(name)
	assetType := determineAssetType(path)
	loader, ok := am.loaders[assetType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, path)
	}

	data, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Type: assetType, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return data, nil
}

// LoadImage decodes an image file into RGBA8.
func (am *AssetManager) LoadImage(name string) (*Image, error) {
	data, err := am.Load(name)
	if err != nil {
		return nil, err
	}
	img, ok := data.(*Image)
	if !ok {
		return nil, fmt.Errorf("%s is not an image", name)
	}
	return img, nil
}

func (am *AssetManager) LoadShader(name string) (*ShaderSource, error) {
	data, err := am.Load(name)
	if err != nil {
		return nil, err
	}
	src, ok := data.(*ShaderSource)
	if !ok {
		return nil, fmt.Errorf("%s is not a shader source", name)
	}
	return src, nil
}

// LoadBinary reads a precompiled SPIR-V module.
func (am *AssetManager) LoadBinary(name string) ([]byte, error) {
	data, err := am.Load(name)
	if err != nil {
		return nil, err
	}
	code, ok := data.([]byte)
	if !ok {
		return nil, fmt.Errorf("%s is not a SPIR-V module", name)
	}
	return code, nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err.Error())
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if am.handleFileEvent(e.Name) {
					am.notify(e.Name)
				}
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) notify(path string) {
	if am.events == nil {
		return
	}
	context := core.EventContext{}
	context.Data.S = path
	am.events.Fire(core.EVENT_CODE_ASSET_CHANGED, am, context)
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// handleFileEvent indexes a created or modified file, reporting whether it is an asset.
func (am *AssetManager) handleFileEvent(path string) bool {
	assetType := determineAssetType(path)
	if assetType == AssetTypeNone {
		return false
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[path]
	info.Path = path
	info.Type = assetType
	am.assets[path] = info
	return true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}
