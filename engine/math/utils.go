package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// AlignUp rounds size up to the next multiple of alignment. An alignment of
// zero leaves size untouched; alignments are expected to be powers of two.
func AlignUp[T constraints.Unsigned](size, alignment T) T {
	if alignment == 0 {
		return size
	}
	mask := alignment - 1
	return (size + mask) &^ mask
}

// Scale applies a float scale to an integer dimension, never returning less than one.
func Scale[T constraints.Unsigned](value T, scale float32) T {
	scaled := T(float32(value) * scale)
	if scaled == 0 {
		return 1
	}
	return scaled
}
