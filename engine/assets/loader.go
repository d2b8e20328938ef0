package assets

import (
	"path/filepath"
	"strings"
)

// Loader reads one kind of asset from disk.
type Loader interface {
	Load(path string) (any, error)
}

type AssetType int

const (
	AssetTypeNone AssetType = iota
	AssetTypeImage
	AssetTypeShader
	AssetTypeBinary
)

func (t AssetType) String() string {
	switch t {
	case AssetTypeImage:
		return "image"
	case AssetTypeShader:
		return "shader"
	case AssetTypeBinary:
		return "binary"
	}
	return "none"
}

func determineAssetType(path string) AssetType {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp", ".tif", ".tiff":
		return AssetTypeImage
	case ".vert", ".frag", ".geom", ".comp", ".glsl", ".hlsl", ".wgsl":
		return AssetTypeShader
	case ".spv":
		return AssetTypeBinary
	default:
		return AssetTypeNone
	}
}
