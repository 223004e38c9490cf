// Package embed builds the doubled imaginary-time buffers consumed by the
// spectral convolver.
//
// Fermionic correlation functions are antiperiodic in imaginary time: a time
// index wrapping past the full extent L picks up a sign. The convolution
// trick therefore works on buffers of length 2L per site, where the second
// half is either a sign-flipped mirror of the first (single-particle
// quantities) or a plain periodic copy of a pointwise product (density-like
// quantities).
//
// Inputs are real vectors laid out as site columns of length l; outputs are
// complex vectors with site columns of length 2l, ready for the FFT.
package embed

import "errors"

// Errors returned by embedding functions.
var (
	ErrColumnLength = errors.New("embed: input length not divisible by column length")
	ErrInputLength  = errors.New("embed: input length mismatch")
	ErrDstLength    = errors.New("embed: destination length mismatch")
)

// checkShapes validates that src splits into columns of length l and that
// dst holds one doubled column per input column.
func checkShapes(dstLen, srcLen, l int) error {
	if l <= 0 || srcLen == 0 || srcLen%l != 0 {
		return ErrColumnLength
	}
	if dstLen != 2*srcLen {
		return ErrDstLength
	}
	return nil
}

// AntiperiodicTo writes the antiperiodic embedding of src into dst.
// For every site column i and every tau in [0,l):
//
//	dst[2l*i+tau]   =  src[l*i+tau]
//	dst[2l*i+l+tau] = -src[l*i+tau]
func AntiperiodicTo(dst []complex128, src []float64, l int) error {
	if err := checkShapes(len(dst), len(src), l); err != nil {
		return err
	}

	cols := len(src) / l
	for i := 0; i < cols; i++ {
		in := src[i*l : (i+1)*l]
		out := dst[i*2*l : (i+1)*2*l]
		for tau, v := range in {
			out[tau] = complex(v, 0)
			out[l+tau] = complex(-v, 0)
		}
	}
	return nil
}

// AntiperiodicSumTo writes scale*(embed(x)+embed(y)) into dst in one pass.
// The orchestrator uses this with scale = 1/sqrt(2) to combine the two
// independent probe vectors into a single reduced-variance probe.
func AntiperiodicSumTo(dst []complex128, x, y []float64, l int, scale float64) error {
	if err := checkShapes(len(dst), len(x), l); err != nil {
		return err
	}
	if len(y) != len(x) {
		return ErrInputLength
	}

	cols := len(x) / l
	for i := 0; i < cols; i++ {
		xin := x[i*l : (i+1)*l]
		yin := y[i*l : (i+1)*l]
		out := dst[i*2*l : (i+1)*2*l]
		for tau := range xin {
			v := scale * (xin[tau] + yin[tau])
			out[tau] = complex(v, 0)
			out[l+tau] = complex(-v, 0)
		}
	}
	return nil
}

// PeriodicProductTo writes the periodic embedding of the pointwise product
// x*y into dst. For every site column i and every tau in [0,l):
//
//	dst[2l*i+tau] = dst[2l*i+l+tau] = x[l*i+tau]*y[l*i+tau]
//
// Density-like two-point correlators are periodic in imaginary time, so the
// mirrored half carries no sign flip.
func PeriodicProductTo(dst []complex128, x, y []float64, l int) error {
	if err := checkShapes(len(dst), len(x), l); err != nil {
		return err
	}
	if len(y) != len(x) {
		return ErrInputLength
	}

	cols := len(x) / l
	for i := 0; i < cols; i++ {
		xin := x[i*l : (i+1)*l]
		yin := y[i*l : (i+1)*l]
		out := dst[i*2*l : (i+1)*2*l]
		for tau := range xin {
			v := complex(xin[tau]*yin[tau], 0)
			out[tau] = v
			out[l+tau] = v
		}
	}
	return nil
}
