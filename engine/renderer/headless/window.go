package headless

import "sync"

// Window is a surface without a display. Resizing it raises a resize request
// like a real window would.
type Window struct {
	mu            sync.Mutex
	width, height uint32
	resize        bool
}

func NewWindow(width, height uint32) *Window {
	return &Window{width: width, height: height}
}

func (w *Window) Surface(instance any) (uintptr, error) { return 0, nil }

func (w *Window) RequiredExtensions() []string { return nil }

func (w *Window) FramebufferSize() (uint32, uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

func (w *Window) SetSize(width, height uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.width, w.height = width, height
	w.resize = true
}

func (w *Window) ResizeRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resize
}

func (w *Window) ClearResizeRequest() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resize = false
}
