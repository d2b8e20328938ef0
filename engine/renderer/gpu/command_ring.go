package gpu

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// commandRing owns one command pool per (frame, thread) and a fixed set of
// command buffers per pool. The last buffer of every pool is reserved for
// blocking uploads.
type commandRing struct {
	backend Backend
	device  *Device

	frames           uint32
	threads          uint32
	buffersPerThread uint32

	pools    []metadata.NativeHandle
	buffers  []*CommandBuffer
	nextFree []uint32
}

func newCommandRing(device *Device, backend Backend, frames, threads, buffersPerThread uint32) (*commandRing, error) {
	r := &commandRing{
		backend:          backend,
		device:           device,
		frames:           frames,
		threads:          threads,
		buffersPerThread: buffersPerThread,
		pools:            make([]metadata.NativeHandle, frames*threads),
		nextFree:         make([]uint32, frames*threads),
	}
	perPool := buffersPerThread + 1
	r.buffers = make([]*CommandBuffer, 0, uint32(len(r.pools))*perPool)

	for p := range r.pools {
		pool, err := backend.CreateCommandPool(metadata.QueueTypeGraphics)
		if err != nil {
			r.shutdown()
			return nil, fmt.Errorf("failed to create command pool %d: %w", p, err)
		}
		r.pools[p] = pool

		for b := uint32(0); b < perPool; b++ {
			native, err := backend.AllocateCommandBuffer(pool)
			if err != nil {
				r.shutdown()
				return nil, fmt.Errorf("failed to allocate command buffer %d of pool %d: %w", b, p, err)
			}
			r.buffers = append(r.buffers, &CommandBuffer{
				device: device,
				native: native,
				handle: uint32(len(r.buffers)),
				queue:  metadata.QueueTypeGraphics,
			})
		}
	}
	return r, nil
}

func (r *commandRing) poolIndex(frame, thread uint32) uint32 {
	return frame*r.threads + thread
}

// resetPools makes every buffer of the frame slot available again. The slot
// fence must have been waited on.
func (r *commandRing) resetPools(frame uint32) {
	perPool := r.buffersPerThread + 1
	for thread := uint32(0); thread < r.threads; thread++ {
		p := r.poolIndex(frame, thread)
		if err := r.backend.ResetCommandPool(r.pools[p]); err != nil {
			core.LogError("failed to reset command pool %d: %s", p, err.Error())
		}
		r.nextFree[p] = 0
		for b := uint32(0); b < perPool; b++ {
			r.buffers[p*perPool+b].reset()
		}
	}
}

// get hands out the next unused regular buffer of the (frame, thread) pool,
// nil once all of them were taken since the last reset.
func (r *commandRing) get(frame, thread uint32, queue metadata.QueueType, begin bool) *CommandBuffer {
	if thread >= r.threads {
		core.LogWarn("thread %d out of range, using thread 0", thread)
		thread = 0
	}
	p := r.poolIndex(frame, thread)
	current := r.nextFree[p]
	if current >= r.buffersPerThread {
		core.LogWarn("all %d command buffers of thread %d are in use in frame %d", r.buffersPerThread, thread, frame)
		return nil
	}
	r.nextFree[p] = current + 1

	cb := r.buffers[p*(r.buffersPerThread+1)+current]
	cb.queue = queue
	if begin {
		cb.reset()
		cb.begin()
	}
	return cb
}

// getInstant returns the reserved upload buffer of the frame slot, begun.
func (r *commandRing) getInstant(frame uint32) *CommandBuffer {
	p := r.poolIndex(frame, 0)
	cb := r.buffers[p*(r.buffersPerThread+1)+r.buffersPerThread]
	cb.reset()
	cb.begin()
	return cb
}

func (r *commandRing) shutdown() {
	for _, pool := range r.pools {
		if pool != metadata.NullNativeHandle {
			r.backend.DestroyCommandPool(pool)
		}
	}
	r.pools = nil
	r.buffers = nil
}
