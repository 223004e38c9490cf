package solve

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-qmc/qmc/lattice"
)

// Preconditioner errors.
var (
	ErrStencilLength = errors.New("solve: stencil length mismatch")
)

// Preconditioner approximates the inverse of the solve operator. Setup is
// invoked once before each pair of solves; Apply must treat src as read-only
// and fully overwrite dst.
type Preconditioner interface {
	Setup() error
	Apply(dst, src []float64) error
}

// Identity is the trivial preconditioner.
type Identity struct{}

// Setup is a no-op.
func (Identity) Setup() error { return nil }

// Apply copies src into dst.
func (Identity) Apply(dst, src []float64) error {
	if len(dst) != len(src) {
		return ErrDimension
	}
	copy(dst, src)
	return nil
}

// Fourier approximately inverts a fermion operator by its translation-
// invariant part. The operator's action on each site's time column is
// described by a length-L stencil c with antiperiodic wrap,
//
//	(M x)[tau] = sum over s of c[s] * x[tau-s]
//
// whose eigenmodes are the antiperiodic frequencies w_n = pi*(2n+1)/L.
// Apply diagonalizes each column in that basis (a phase twist followed by a
// plain FFT), divides by the operator symbol — or its squared magnitude when
// preconditioning the normal equations — and transforms back.
type Fourier struct {
	geom    lattice.Geometry
	stencil []float64
	normal  bool // precondition M'M rather than M
	eps     float64

	plan    *algofft.Plan[complex128]
	twist   []complex128 // e^{-i pi tau / L}
	untwist []complex128
	inv     []complex128 // inverse symbol per frequency
	buf     []complex128
	fbuf    []complex128

	re, im, p2 []float64 // squared-magnitude scratch, normal mode only
}

// NewFourier builds a Fourier preconditioner for the given geometry and
// stencil. Set normal when the solve operator is M'M. The plan is created
// once here; failure is a construction error.
func NewFourier(geom lattice.Geometry, stencil []float64, normal bool) (*Fourier, error) {
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("solve: invalid geometry: %w", err)
	}
	if len(stencil) != geom.L {
		return nil, ErrStencilLength
	}

	f := &Fourier{
		geom:    geom,
		stencil: append([]float64(nil), stencil...),
		normal:  normal,
		eps:     1e-14,
		twist:   make([]complex128, geom.L),
		untwist: make([]complex128, geom.L),
		inv:     make([]complex128, geom.L),
		buf:     make([]complex128, geom.L),
		fbuf:    make([]complex128, geom.L),
	}
	if normal {
		f.re = make([]float64, geom.L)
		f.im = make([]float64, geom.L)
		f.p2 = make([]float64, geom.L)
	}

	for tau := 0; tau < geom.L; tau++ {
		theta := math.Pi * float64(tau) / float64(geom.L)
		f.twist[tau] = cmplx.Exp(complex(0, -theta))
		f.untwist[tau] = cmplx.Exp(complex(0, theta))
	}

	if geom.L > 1 {
		plan, err := algofft.NewPlan64(geom.L)
		if err != nil {
			return nil, fmt.Errorf("solve: failed to create FFT plan (size %d): %w", geom.L, err)
		}
		f.plan = plan
	}
	return f, nil
}

// Setup recomputes the inverse symbol table from the stencil.
func (f *Fourier) Setup() error {
	l := f.geom.L

	if l == 1 {
		v := complex(f.stencil[0], 0) * f.twist[0]
		if f.normal {
			v *= cmplx.Conj(v)
		}
		f.inv[0] = f.invSymbol(v)
		return nil
	}

	for s := 0; s < l; s++ {
		f.buf[s] = complex(f.stencil[s], 0) * f.twist[s]
	}
	if err := f.plan.Forward(f.fbuf, f.buf); err != nil {
		return fmt.Errorf("solve: symbol transform failed: %w", err)
	}

	if f.normal {
		// |symbol|^2 via the squared-magnitude block operation.
		for n, v := range f.fbuf {
			f.re[n] = real(v)
			f.im[n] = imag(v)
		}
		vecmath.Power(f.p2, f.re, f.im)
		for n := range f.inv {
			f.inv[n] = complex(1/(f.p2[n]+f.eps), 0)
		}
		return nil
	}

	for n, v := range f.fbuf {
		f.inv[n] = f.invSymbol(v)
	}
	return nil
}

func (f *Fourier) invSymbol(v complex128) complex128 {
	if cmplx.Abs(v) < f.eps {
		return complex(1/f.eps, 0)
	}
	return 1 / v
}

// Apply multiplies each site's time column by the inverse symbol in the
// antiperiodic frequency basis.
func (f *Fourier) Apply(dst, src []float64) error {
	l := f.geom.L
	if len(dst) != f.geom.Dim() || len(src) != f.geom.Dim() {
		return ErrDimension
	}

	if l == 1 {
		scale := real(f.inv[0])
		for i := range dst {
			dst[i] = src[i] * scale
		}
		return nil
	}

	sites := f.geom.Nsites()
	for i := 0; i < sites; i++ {
		col := src[i*l : (i+1)*l]
		out := dst[i*l : (i+1)*l]

		for tau, v := range col {
			f.buf[tau] = complex(v, 0) * f.twist[tau]
		}
		if err := f.plan.Forward(f.fbuf, f.buf); err != nil {
			return fmt.Errorf("solve: preconditioner transform failed: %w", err)
		}
		for n := range f.fbuf {
			f.fbuf[n] *= f.inv[n]
		}
		if err := f.plan.Inverse(f.buf, f.fbuf); err != nil {
			return fmt.Errorf("solve: preconditioner transform failed: %w", err)
		}
		for tau := range out {
			out[tau] = real(f.buf[tau] * f.untwist[tau])
		}
	}
	return nil
}
