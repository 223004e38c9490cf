// Package vecmath provides the block vector operations used on the hot
// numerical paths of the estimator. All operations are pure Go; callers pass
// slices of equal length and length mismatches panic, since these routines
// sit inside inner loops that have already validated their shapes.
package vecmath

// DotProduct returns the dot product of a and b: sum(a[i] * b[i]).
// Returns 0 if slices are empty or have different lengths.
// Only the minimum length of the two slices is used.
func DotProduct(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// ScaleBlockInPlace multiplies each element by a scalar in-place: dst[i] *= scale.
func ScaleBlockInPlace(dst []float64, scale float64) {
	for i := range dst {
		dst[i] *= scale
	}
}

// AddBlockInPlace performs in-place element-wise addition: dst[i] += src[i].
// Slices must have equal length. Panics if lengths differ.
func AddBlockInPlace(dst, src []float64) {
	if len(dst) != len(src) {
		panic("vecmath: slice length mismatch")
	}
	for i := range dst {
		dst[i] += src[i]
	}
}

// AxpyBlock performs dst[i] += alpha * src[i].
// Slices must have equal length. Panics if lengths differ.
func AxpyBlock(dst, src []float64, alpha float64) {
	if len(dst) != len(src) {
		panic("vecmath: slice length mismatch")
	}
	for i := range dst {
		dst[i] += alpha * src[i]
	}
}
