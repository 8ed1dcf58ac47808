package gpu

import "golang.org/x/exp/constraints"

// AlignUp rounds value up to the next multiple of alignment. Zero alignment returns value.
func AlignUp[T constraints.Unsigned](value, alignment T) T {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) / alignment * alignment
}

func clampDimension[T constraints.Integer | constraints.Float](value T, lo T) T {
	if value < lo {
		return lo
	}
	return value
}
