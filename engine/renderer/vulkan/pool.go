package vulkan

import "sync"

// lockGroup names an external synchronization domain of the API.
type lockGroup string

const (
	queueSubmission lockGroup = "queue_submission"
	descriptorPool  lockGroup = "descriptor_pool"
	commandPools    lockGroup = "command_pools"
)

// lockPool serializes calls on objects the API requires to be externally
// synchronized, one mutex per group.
type lockPool struct {
	mu    sync.Mutex
	locks map[lockGroup]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{locks: make(map[lockGroup]*sync.Mutex)}
}

func (p *lockPool) lock(group lockGroup) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	return l
}

func (p *lockPool) safeCall(group lockGroup, fn func() error) error {
	l := p.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}
