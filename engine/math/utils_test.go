package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		size, alignment, want uint32
	}{
		{0, 256, 0},
		{1, 256, 256},
		{256, 256, 256},
		{257, 256, 512},
		{100, 0, 100},
		{13, 4, 16},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AlignUp(tt.size, tt.alignment), "AlignUp(%d, %d)", tt.size, tt.alignment)
	}
}

func TestClampMinMaxScale(t *testing.T) {
	assert.Equal(t, uint32(10), Clamp(uint32(3), 10, 20))
	assert.Equal(t, uint32(20), Clamp(uint32(30), 10, 20))
	assert.Equal(t, 1.5, Clamp(1.5, 1.0, 2.0))
	assert.Equal(t, 4, Max(4, -1))
	assert.Equal(t, -1, Min(4, -1))
	assert.Equal(t, uint32(640), Scale(uint32(1280), 0.5))
	assert.Equal(t, uint32(1), Scale(uint32(1), 0.25))
}
