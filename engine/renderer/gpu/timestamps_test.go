package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

func TestTimestampManagerNesting(t *testing.T) {
	m := NewTimestampManager(4, 2)
	assert.Equal(t, uint32(16), m.QueryCount())

	first, count := m.FrameQueryRange(1)
	assert.Equal(t, uint32(8), first)
	assert.Equal(t, uint32(8), count)

	outer, ok := m.Push(1, "outer")
	require.True(t, ok)
	assert.Equal(t, uint32(8), outer)
	inner, ok := m.Push(1, "inner")
	require.True(t, ok)
	assert.Equal(t, uint32(10), inner)

	end, ok := m.Pop(1)
	require.True(t, ok)
	assert.Equal(t, uint32(11), end)
	end, ok = m.Pop(1)
	require.True(t, ok)
	assert.Equal(t, uint32(9), end)

	assert.True(t, m.HasValidQueries())
	m.Commit(1)
	assert.Equal(t, uint32(2), m.Committed(1))
	assert.False(t, m.HasValidQueries(), "commit starts a new frame")

	resolved := m.Resolve(1, []uint64{100, 900, 300, 500}, 2.0, 42)
	require.Len(t, resolved, 2)
	assert.Equal(t, "outer", resolved[0].Name)
	assert.InDelta(t, 0.0016, resolved[0].ElapsedMs, 1e-12)
	assert.Equal(t, uint32(1), resolved[1].Depth)
	assert.InDelta(t, 0.0004, resolved[1].ElapsedMs, 1e-12)
	assert.Equal(t, uint64(42), resolved[1].FrameIndex)
	assert.Equal(t, metadata.DebugColor("inner"), resolved[1].Color)
	assert.Zero(t, m.Committed(1))
}

func TestTimestampManagerUnbalancedFrameCommitsNothing(t *testing.T) {
	m := NewTimestampManager(4, 2)
	_, ok := m.Push(0, "open")
	require.True(t, ok)
	assert.False(t, m.HasValidQueries())

	m.Commit(0)
	assert.Zero(t, m.Committed(0))

	_, ok = m.Pop(0)
	assert.False(t, ok, "pop without push")
}

func TestTimestampManagerOverflowDropsMarkers(t *testing.T) {
	m := NewTimestampManager(2, 2)
	_, ok := m.Push(0, "a")
	require.True(t, ok)
	_, ok = m.Push(0, "b")
	require.True(t, ok)
	_, ok = m.Push(0, "c")
	assert.False(t, ok)

	// the pop matching the dropped push is swallowed
	_, ok = m.Pop(0)
	assert.False(t, ok)
	_, ok = m.Pop(0)
	assert.True(t, ok)
	_, ok = m.Pop(0)
	assert.True(t, ok)

	assert.True(t, m.HasValidQueries())
	m.Commit(0)
	assert.Equal(t, uint32(2), m.Committed(0))
}

func TestTimestampResolveShortResults(t *testing.T) {
	m := NewTimestampManager(4, 1)
	m.Push(0, "a")
	m.Pop(0)
	m.Push(0, "b")
	m.Pop(0)
	m.Commit(0)

	resolved := m.Resolve(0, []uint64{5, 10}, 1.0, 0)
	assert.Len(t, resolved, 1)
}
