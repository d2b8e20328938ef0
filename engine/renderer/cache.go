package renderer

import (
	"sort"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type handle interface {
	~uint32
	IsValid() bool
}

type cached[H handle] struct {
	handle     H
	references int
	path       string
}

// namedResources is what the renderer needs from a cache regardless of the
// kind of handle it stores.
type namedResources interface {
	lookup(name string) (metadata.ResourceHandle, bool)
	references(name string) int
	// release drops a reference and returns the handle once nobody uses it.
	release(name string) (metadata.ResourceHandle, bool)
	names() []string
}

// cache maps names to handles of one kind. The renderer mutex guards it.
type cache[H handle] struct {
	entries map[string]*cached[H]
}

func newCache[H handle]() *cache[H] {
	return &cache[H]{entries: make(map[string]*cached[H])}
}

func (c *cache[H]) add(name string, h H, path string) {
	c.entries[name] = &cached[H]{handle: h, references: 1, path: path}
}

// acquire adds a reference to an existing entry.
func (c *cache[H]) acquire(name string) (H, bool) {
	e, ok := c.entries[name]
	if !ok {
		var zero H
		return zero, false
	}
	e.references++
	return e.handle, true
}

func (c *cache[H]) get(name string) (H, bool) {
	e, ok := c.entries[name]
	if !ok {
		var zero H
		return zero, false
	}
	return e.handle, true
}

// nameOf finds the entry holding a handle.
func (c *cache[H]) nameOf(h H) (string, bool) {
	for name, e := range c.entries {
		if e.handle == h {
			return name, true
		}
	}
	return "", false
}

func (c *cache[H]) lookup(name string) (metadata.ResourceHandle, bool) {
	h, ok := c.get(name)
	return metadata.ResourceHandle(h), ok
}

func (c *cache[H]) references(name string) int {
	if e, ok := c.entries[name]; ok {
		return e.references
	}
	return 0
}

func (c *cache[H]) release(name string) (metadata.ResourceHandle, bool) {
	e, ok := c.entries[name]
	if !ok {
		return metadata.InvalidResource, false
	}
	e.references--
	if e.references > 0 {
		return metadata.InvalidResource, false
	}
	delete(c.entries, name)
	return metadata.ResourceHandle(e.handle), true
}

func (c *cache[H]) names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// byPath lists the entries loaded from a file.
func (c *cache[H]) byPath(path string) []string {
	var names []string
	for name, e := range c.entries {
		if e.path == path {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
