package gpu

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// GPUTimestamp is a resolved marker pair.
type GPUTimestamp struct {
	Start uint32
	End   uint32

	ElapsedMs float64

	ParentIndex uint32
	Depth       uint32

	Color      uint32
	FrameIndex uint64

	Name string
}

// TimestampManager hands out query indices for nested markers. Every frame slot
// owns queriesPerFrame markers, two queries each.
type TimestampManager struct {
	timestamps      []GPUTimestamp
	queriesPerFrame uint32
	frames          uint32

	currentQuery uint32
	parentIndex  uint32
	depth        uint32
	// pushes that did not fit in the frame, their pops are ignored
	dropped uint32

	committed []uint32
}

func NewTimestampManager(queriesPerFrame, frames uint32) *TimestampManager {
	return &TimestampManager{
		timestamps:      make([]GPUTimestamp, queriesPerFrame*frames),
		queriesPerFrame: queriesPerFrame,
		frames:          frames,
		committed:       make([]uint32, frames),
	}
}

// QueryCount is the number of native queries needed by all frames.
func (m *TimestampManager) QueryCount() uint32 {
	return m.queriesPerFrame * m.frames * 2
}

// FrameQueryRange returns the first native query and the count owned by a frame slot.
func (m *TimestampManager) FrameQueryRange(frame uint32) (uint32, uint32) {
	return frame * m.queriesPerFrame * 2, m.queriesPerFrame * 2
}

// Push opens a marker and returns the query index of its start.
func (m *TimestampManager) Push(frame uint32, name string) (uint32, bool) {
	if m.dropped > 0 || m.currentQuery >= m.queriesPerFrame {
		m.dropped++
		return metadata.InvalidIndex, false
	}

	queryIndex := frame*m.queriesPerFrame + m.currentQuery
	ts := &m.timestamps[queryIndex]
	ts.ParentIndex = m.parentIndex
	ts.Start = queryIndex * 2
	ts.End = ts.Start + 1
	ts.Name = name
	ts.Depth = m.depth
	m.depth++

	m.parentIndex = m.currentQuery
	m.currentQuery++
	return ts.Start, true
}

// Pop closes the innermost open marker and returns the query index of its end.
func (m *TimestampManager) Pop(frame uint32) (uint32, bool) {
	if m.dropped > 0 {
		m.dropped--
		return metadata.InvalidIndex, false
	}
	if m.depth == 0 {
		return metadata.InvalidIndex, false
	}

	queryIndex := frame*m.queriesPerFrame + m.parentIndex
	ts := &m.timestamps[queryIndex]
	m.parentIndex = ts.ParentIndex
	m.depth--
	return queryIndex*2 + 1, true
}

// HasValidQueries reports whether every pushed marker was popped.
func (m *TimestampManager) HasValidQueries() bool {
	return m.depth == 0 && m.dropped == 0 && m.currentQuery > 0
}

func (m *TimestampManager) Reset() {
	m.currentQuery = 0
	m.parentIndex = 0
	m.depth = 0
	m.dropped = 0
}

// Commit records how many markers the frame slot submitted and resets the
// recording state. Unbalanced frames commit nothing.
func (m *TimestampManager) Commit(frame uint32) {
	if m.HasValidQueries() {
		m.committed[frame] = m.currentQuery
	} else {
		m.committed[frame] = 0
	}
	m.Reset()
}

// Committed returns the number of markers waiting to be resolved for a frame slot.
func (m *TimestampManager) Committed(frame uint32) uint32 {
	return m.committed[frame]
}

// Resolve converts the raw query values of a completed frame slot. results
// holds two ticks per committed marker, starting at the slot's first query.
// period is in nanoseconds per tick.
func (m *TimestampManager) Resolve(frame uint32, results []uint64, period float64, absoluteFrame uint64) []GPUTimestamp {
	count := m.committed[frame]
	if uint32(len(results)) < count*2 {
		count = uint32(len(results)) / 2
	}
	out := make([]GPUTimestamp, 0, count)
	base := frame * m.queriesPerFrame
	for i := uint32(0); i < count; i++ {
		ts := m.timestamps[base+i]
		start, end := results[i*2], results[i*2+1]
		if end >= start {
			ts.ElapsedMs = float64(end-start) * period / 1e6
		}
		ts.Color = metadata.DebugColor(ts.Name)
		ts.FrameIndex = absoluteFrame
		out = append(out, ts)
	}
	m.committed[frame] = 0
	return out
}
