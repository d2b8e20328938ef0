package containers

import (
	"fmt"
	"math"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// InvalidIndex is returned by Obtain when no slot is left.
const InvalidIndex uint32 = math.MaxUint32

// SlotAllocator hands out indices into a fixed arena of equally sized records.
// Free indices live on a stack, so the most recently released index is the
// next one to be obtained. Released records are neither zeroed nor compacted.
type SlotAllocator struct {
	arena       []byte
	recordSize  uint32
	capacity    uint32
	freeIndices []uint32
	freeHead    uint32
	used        []bool
	usedCount   uint32
}

func NewSlotAllocator(capacity, recordSize uint32) *SlotAllocator {
	sa := &SlotAllocator{
		arena:       make([]byte, uint64(capacity)*uint64(recordSize)),
		recordSize:  recordSize,
		capacity:    capacity,
		freeIndices: make([]uint32, capacity),
		used:        make([]bool, capacity),
	}
	for i := uint32(0); i < capacity; i++ {
		sa.freeIndices[i] = i
	}
	return sa
}

// Obtain pops a free index, or returns InvalidIndex when the allocator is exhausted.
func (sa *SlotAllocator) Obtain() uint32 {
	if sa.freeHead >= sa.capacity {
		core.LogWarn("slot allocator exhausted, capacity %d", sa.capacity)
		return InvalidIndex
	}
	index := sa.freeIndices[sa.freeHead]
	sa.freeHead++
	sa.used[index] = true
	sa.usedCount++
	return index
}

// Release pushes index back on the free stack.
func (sa *SlotAllocator) Release(index uint32) error {
	if index >= sa.capacity {
		err := fmt.Errorf("%w: index %d out of range [0, %d)", core.ErrInvalidHandle, index, sa.capacity)
		core.LogError("%s", err)
		return err
	}
	if !sa.used[index] {
		err := fmt.Errorf("%w: index %d", core.ErrDoubleRelease, index)
		core.LogError("%s", err)
		return err
	}
	sa.used[index] = false
	sa.usedCount--
	sa.freeHead--
	sa.freeIndices[sa.freeHead] = index
	return nil
}

// Access returns the record bytes of index, nil for the sentinel or an out of range index.
func (sa *SlotAllocator) Access(index uint32) []byte {
	if index == InvalidIndex || index >= sa.capacity {
		return nil
	}
	start := uint64(index) * uint64(sa.recordSize)
	return sa.arena[start : start+uint64(sa.recordSize) : start+uint64(sa.recordSize)]
}

// IsUsed reports whether index is currently obtained.
func (sa *SlotAllocator) IsUsed(index uint32) bool {
	return index < sa.capacity && sa.used[index]
}

func (sa *SlotAllocator) UsedCount() uint32 {
	return sa.usedCount
}

func (sa *SlotAllocator) Capacity() uint32 {
	return sa.capacity
}

// Shutdown releases the arena. It reports ErrResourceLeak when slots are still in use.
func (sa *SlotAllocator) Shutdown() error {
	var err error
	if sa.usedCount != 0 {
		leaked := make([]uint32, 0, sa.usedCount)
		for i := uint32(0); i < sa.capacity; i++ {
			if sa.used[i] {
				leaked = append(leaked, i)
			}
		}
		err = fmt.Errorf("%w: %d slots, indices %v", core.ErrResourceLeak, sa.usedCount, leaked)
		core.LogError("%s", err)
	}
	sa.arena = nil
	sa.freeIndices = nil
	sa.used = nil
	sa.capacity = 0
	sa.freeHead = 0
	sa.usedCount = 0
	return err
}
