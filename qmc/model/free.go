package model

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-qmc/qmc/lattice"
)

// Free is a non-interacting single-band model whose fermion operator acts on
// each site's time column as
//
//	(M x)[0]   = x[0] + b*x[L-1]
//	(M x)[tau] = x[tau] - b*x[tau-1]   for tau > 0
//
// with b = exp(dtau*mu) the single-step propagation factor. The sign flip on
// the wrapped term encodes the antiperiodic boundary condition. M is not
// symmetric, so solves go through the normal equations, and the model has
// the closed-form equal-time Green's function 1/(1+b^L) used as ground truth
// in tests.
type Free struct {
	geom lattice.Geometry
	b    float64
}

// NewFree returns a free model with propagation factor b per time step.
func NewFree(geom lattice.Geometry, b float64) (*Free, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if b <= 0 {
		return nil, fmt.Errorf("model: propagation factor must be > 0: %f", b)
	}
	return &Free{geom: geom, b: b}, nil
}

// Geometry returns the model geometry.
func (m *Free) Geometry() lattice.Geometry { return m.geom }

// Symmetric reports false: M couples each time slice to the previous one.
func (m *Free) Symmetric() bool { return false }

// ApplyM computes dst = M src.
func (m *Free) ApplyM(dst, src []float64) {
	l := m.geom.L
	for i := 0; i < m.geom.Nsites(); i++ {
		in := src[i*l : (i+1)*l]
		out := dst[i*l : (i+1)*l]
		out[0] = in[0] + m.b*in[l-1]
		for tau := 1; tau < l; tau++ {
			out[tau] = in[tau] - m.b*in[tau-1]
		}
	}
}

// ApplyMT computes dst = M' src.
func (m *Free) ApplyMT(dst, src []float64) {
	l := m.geom.L
	for i := 0; i < m.geom.Nsites(); i++ {
		in := src[i*l : (i+1)*l]
		out := dst[i*l : (i+1)*l]
		out[l-1] = in[l-1] + m.b*in[0]
		for tau := 0; tau < l-1; tau++ {
			out[tau] = in[tau] - m.b*in[tau+1]
		}
	}
}

// Stencil returns the length-L antiperiodic convolution stencil describing
// M, suitable for the Fourier preconditioner.
func (m *Free) Stencil() []float64 {
	c := make([]float64, m.geom.L)
	c[0] = 1
	if m.geom.L > 1 {
		c[1] = -m.b
	} else {
		// A single time slice folds the propagation term onto the diagonal.
		c[0] = 1 + m.b
	}
	return c
}

// EqualTimeGreens returns the exact equal-time Green's function 1/(1+b^L).
func (m *Free) EqualTimeGreens() float64 {
	return 1 / (1 + math.Pow(m.b, float64(m.geom.L)))
}
