package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

type record struct {
	Native uint64
	Size   uint32
}

func TestPoolLivenessAndReuse(t *testing.T) {
	p := NewPool[record]("buffers", 2)

	h, rec := p.Obtain()
	require.NotNil(t, rec)
	rec.Native = 42
	rec.Size = 128
	assert.True(t, p.IsLive(h))
	assert.Equal(t, uint64(42), p.Get(h).Native)

	require.NoError(t, p.Release(h))
	assert.Nil(t, p.Get(h))
	assert.False(t, p.IsLive(h))

	again, rec := p.Obtain()
	assert.Equal(t, h, again)
	assert.Equal(t, record{}, *rec, "recycled slot must not expose the previous record")
}

func TestPoolExhaustion(t *testing.T) {
	p := NewPool[record]("samplers", 3)
	for i := 0; i < 3; i++ {
		h, rec := p.Obtain()
		require.NotEqual(t, InvalidIndex, h)
		require.NotNil(t, rec)
	}
	h, rec := p.Obtain()
	assert.Equal(t, InvalidIndex, h)
	assert.Nil(t, rec)
	assert.Equal(t, uint32(3), p.UsedCount())
}

func TestPoolEachAndShutdown(t *testing.T) {
	p := NewPool[record]("textures", 4)
	for i := 0; i < 4; i++ {
		_, rec := p.Obtain()
		rec.Size = uint32(i)
	}
	require.NoError(t, p.Release(2))

	var visited []uint32
	p.Each(func(index uint32, rec *record) {
		visited = append(visited, index)
		assert.Equal(t, index, rec.Size)
	})
	assert.Equal(t, []uint32{0, 1, 3}, visited)

	err := p.Shutdown()
	assert.ErrorIs(t, err, core.ErrResourceLeak)
	assert.Contains(t, err.Error(), "textures pool")
}

func TestPoolReleaseErrors(t *testing.T) {
	p := NewPool[record]("pipelines", 1)
	assert.ErrorIs(t, p.Release(0), core.ErrDoubleRelease)
	assert.ErrorIs(t, p.Release(9), core.ErrInvalidHandle)
	assert.Nil(t, p.Get(InvalidIndex))
	assert.False(t, p.IsLive(1))
	assert.NoError(t, p.Shutdown())
}

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[int](3)
	assert.True(t, q.IsEmpty())

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	assert.True(t, q.IsFull())
	assert.ErrorIs(t, q.Enqueue(4), ErrQueueFull)

	v, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, _ = q.Dequeue()
	assert.Equal(t, 1, v)
	require.NoError(t, q.Enqueue(4))

	var got []int
	for !q.IsEmpty() {
		v, err := q.Dequeue()
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []int{2, 3, 4}, got)

	_, err = q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.Zero(t, q.Len())
}
