package metadata

import (
	"hash/fnv"
)

// NameHash returns the FNV-1a hash of a debug name.
func NameHash(name string) uint64 {
	hasher := fnv.New64a()
	hasher.Write([]byte(name))
	return hasher.Sum64()
}

// DebugColor derives a stable, fully opaque ABGR color from a name, so the
// same marker keeps the same color across frames.
func DebugColor(name string) uint32 {
	h := NameHash(name)
	r := uint32(h>>16) & 0xff
	g := uint32(h>>8) & 0xff
	b := uint32(h) & 0xff
	// keep markers readable on a dark background
	r, g, b = r|0x40, g|0x40, b|0x40
	return 0xff000000 | b<<16 | g<<8 | r
}
