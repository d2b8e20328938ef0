package containers

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/core"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func TestSlotAllocatorScenario(t *testing.T) {
	sa := NewSlotAllocator(4, 8)

	for want := uint32(0); want < 4; want++ {
		assert.Equal(t, want, sa.Obtain())
	}
	assert.Equal(t, InvalidIndex, sa.Obtain())

	require.NoError(t, sa.Release(1))
	assert.Equal(t, uint32(1), sa.Obtain())

	require.NoError(t, sa.Release(0))
	require.NoError(t, sa.Release(1))
	require.NoError(t, sa.Release(2))

	err := sa.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrResourceLeak)
	assert.Contains(t, err.Error(), "1 slots")
}

func TestSlotAllocatorUniqueHandles(t *testing.T) {
	const capacity = 64
	sa := NewSlotAllocator(capacity, 4)

	seen := make(map[uint32]bool, capacity)
	for i := 0; i < capacity; i++ {
		h := sa.Obtain()
		require.Less(t, h, uint32(capacity))
		require.False(t, seen[h], "handle %d issued twice", h)
		seen[h] = true
	}
	assert.Equal(t, uint32(capacity), sa.UsedCount())
	assert.Equal(t, InvalidIndex, sa.Obtain())
}

func TestSlotAllocatorLIFOReuse(t *testing.T) {
	sa := NewSlotAllocator(8, 0)
	for i := 0; i < 5; i++ {
		sa.Obtain()
	}
	require.NoError(t, sa.Release(3))
	require.NoError(t, sa.Release(1))

	assert.Equal(t, uint32(1), sa.Obtain())
	assert.Equal(t, uint32(3), sa.Obtain())
	// never released indices come after the recycled ones
	assert.Equal(t, uint32(5), sa.Obtain())
}

func TestSlotAllocatorReleaseErrors(t *testing.T) {
	sa := NewSlotAllocator(2, 16)
	h := sa.Obtain()

	require.NoError(t, sa.Release(h))
	assert.ErrorIs(t, sa.Release(h), core.ErrDoubleRelease)
	assert.ErrorIs(t, sa.Release(7), core.ErrInvalidHandle)
	assert.ErrorIs(t, sa.Release(InvalidIndex), core.ErrInvalidHandle)
	assert.Zero(t, sa.UsedCount())
	assert.NoError(t, sa.Shutdown())
}

func TestSlotAllocatorAccess(t *testing.T) {
	sa := NewSlotAllocator(4, 8)
	a := sa.Obtain()
	b := sa.Obtain()

	recA := sa.Access(a)
	recB := sa.Access(b)
	require.Len(t, recA, 8)
	require.Len(t, recB, 8)

	copy(recA, []byte("aaaaaaaa"))
	copy(recB, []byte("bbbbbbbb"))
	assert.Equal(t, "aaaaaaaa", string(sa.Access(a)))
	assert.Equal(t, "bbbbbbbb", string(sa.Access(b)))

	// a record view cannot grow into its neighbour
	assert.Equal(t, 8, cap(recA))

	assert.Nil(t, sa.Access(InvalidIndex))
	assert.Nil(t, sa.Access(4))

	// released records keep their bytes
	require.NoError(t, sa.Release(a))
	assert.Equal(t, "aaaaaaaa", string(sa.Access(a)))
}
