// Package core provides the shared buffer helpers of the estimator packages.
package core

// Zero sets all values in buf to 0.
func Zero(buf []float64) {
	for i := range buf {
		buf[i] = 0
	}
}

// CopyInto copies src into dst and returns the number of copied elements.
func CopyInto(dst, src []float64) int {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	copy(dst[:n], src[:n])
	return n
}

// ZeroC sets all values in buf to 0.
func ZeroC(buf []complex128) {
	for i := range buf {
		buf[i] = 0
	}
}

// CopyIntoC copies src into dst and returns the number of copied elements.
func CopyIntoC(dst, src []complex128) int {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	copy(dst[:n], src[:n])
	return n
}
