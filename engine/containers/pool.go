package containers

import (
	"fmt"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// Pool stores typed records behind SlotAllocator indices. Get only returns a
// record while its slot is live, so a stale index never reaches a recycled record.
type Pool[T any] struct {
	name    string
	slots   *SlotAllocator
	records []T
}

func NewPool[T any](name string, capacity uint32) *Pool[T] {
	return &Pool[T]{
		name:    name,
		slots:   NewSlotAllocator(capacity, 0),
		records: make([]T, capacity),
	}
}

// Obtain returns a fresh index and its zeroed record, or InvalidIndex and nil when exhausted.
func (p *Pool[T]) Obtain() (uint32, *T) {
	index := p.slots.Obtain()
	if index == InvalidIndex {
		core.LogWarn("%s pool exhausted", p.name)
		return InvalidIndex, nil
	}
	return index, &p.records[index]
}

// Get returns the live record at index, nil otherwise.
func (p *Pool[T]) Get(index uint32) *T {
	if !p.slots.IsUsed(index) {
		return nil
	}
	return &p.records[index]
}

func (p *Pool[T]) IsLive(index uint32) bool {
	return p.slots.IsUsed(index)
}

// Release zeroes the record and returns its index to the free stack.
func (p *Pool[T]) Release(index uint32) error {
	if err := p.slots.Release(index); err != nil {
		return fmt.Errorf("%s pool: %w", p.name, err)
	}
	var zero T
	p.records[index] = zero
	return nil
}

// Each visits every live record in index order.
func (p *Pool[T]) Each(fn func(index uint32, record *T)) {
	for i := uint32(0); i < uint32(len(p.records)); i++ {
		if p.slots.IsUsed(i) {
			fn(i, &p.records[i])
		}
	}
}

func (p *Pool[T]) UsedCount() uint32 {
	return p.slots.UsedCount()
}

func (p *Pool[T]) Capacity() uint32 {
	return p.slots.Capacity()
}

func (p *Pool[T]) Name() string {
	return p.name
}

func (p *Pool[T]) Shutdown() error {
	err := p.slots.Shutdown()
	p.records = nil
	if err != nil {
		return fmt.Errorf("%s pool: %w", p.name, err)
	}
	return nil
}
