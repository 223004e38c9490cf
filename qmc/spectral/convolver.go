// Package spectral computes translation-averaged cross-correlations of
// space-time fields via the convolution theorem.
//
// The convolver forward-transforms both input fields over the doubled time
// axis and the three spatial lattice axes (never the orbital axis), forms the
// index-inverted spectral product for every orbital pair, inverse-transforms
// the product over the same four axes, and accumulates the result into a
// correlator array. This replaces an O(V^2) double loop over space-time
// points with O(V log V) work per correlator.
package spectral

import (
	"errors"
	"fmt"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-qmc/qmc/core"
	"github.com/cwbudde/algo-qmc/qmc/lattice"
)

// Errors returned by the convolver.
var (
	ErrShape  = errors.New("spectral: buffer shape mismatch")
	ErrClosed = errors.New("spectral: convolver is closed")
)

// Convolver owns the FFT plans and scratch buffers for one fixed geometry.
//
// All scratch is write-before-read on every Convolve call; a Convolver is
// exclusively owned by a single estimator and is not safe for concurrent use.
type Convolver struct {
	geom lattice.Geometry

	// One plan per distinct axis length > 1, shared across axes.
	plans map[int]*algofft.Plan[complex128]

	fa   []complex128 // forward transform of the first field, [2L, Norb, L1, L2, L3]
	fb   []complex128 // forward transform of the second field, same shape
	prod []complex128 // spectral product, [2L, Norb, Norb, L1, L2, L3]
	line []complex128 // gather buffer for strided-axis transforms

	invNorm float64
	closed  bool
}

// NewConvolver builds the transform plans and scratch buffers for geom.
// Plan creation failures are fatal construction errors; a Convolver is tied
// to its geometry and is not resizable.
func NewConvolver(geom lattice.Geometry) (*Convolver, error) {
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("spectral: invalid geometry: %w", err)
	}

	t := 2 * geom.L
	maxAxis := t
	plans := make(map[int]*algofft.Plan[complex128])
	for _, n := range []int{t, geom.L1, geom.L2, geom.L3} {
		if n > maxAxis {
			maxAxis = n
		}
		if n == 1 {
			continue
		}
		if _, ok := plans[n]; ok {
			continue
		}
		plan, err := algofft.NewPlan64(n)
		if err != nil {
			return nil, fmt.Errorf("spectral: failed to create FFT plan (size %d): %w", n, err)
		}
		plans[n] = plan
	}

	fieldLen := t * geom.Nsites()
	return &Convolver{
		geom:    geom,
		plans:   plans,
		fa:      make([]complex128, fieldLen),
		fb:      make([]complex128, fieldLen),
		prod:    make([]complex128, fieldLen*geom.Norb),
		line:    make([]complex128, maxAxis),
		invNorm: 1 / float64(t*geom.Cells()),
	}, nil
}

// Geometry returns the geometry the convolver was built for.
func (c *Convolver) Geometry() lattice.Geometry {
	return c.geom
}

// OutLen returns the required correlator array length
// 2L * Norb * Norb * L1 * L2 * L3.
func (c *Convolver) OutLen() int {
	return 2 * c.geom.L * c.geom.Norb * c.geom.Nsites()
}

// FieldLen returns the required embedded field length 2L * Norb * L1 * L2 * L3.
func (c *Convolver) FieldLen() int {
	return 2 * c.geom.L * c.geom.Nsites()
}

// Close releases the transform plans and scratch buffers. Close is
// idempotent; Convolve on a closed Convolver returns ErrClosed.
func (c *Convolver) Close() {
	c.plans = nil
	c.fa = nil
	c.fb = nil
	c.prod = nil
	c.line = nil
	c.closed = true
}

// Convolve accumulates the translation-averaged cross-correlation of a and b
// into out:
//
//	out[dt, oA, oB, d] += (1/V) * sum over (t, x) of a[t, oA, x] * b[t+dt, oB, x+d]
//
// with V = 2*L*L1*L2*L3 and all displacements cyclic. a and b are embedded
// fields of shape [2L, Norb, L1, L2, L3] (time fastest); out has shape
// [2L, Norb, Norb, L1, L2, L3] with the a-side orbital running fastest after
// the time axis. out is accumulated into, not overwritten.
func (c *Convolver) Convolve(out, a, b []complex128) error {
	if c.closed {
		return ErrClosed
	}
	if len(a) != c.FieldLen() || len(b) != c.FieldLen() || len(out) != c.OutLen() {
		return ErrShape
	}

	core.CopyIntoC(c.fa, a)
	core.CopyIntoC(c.fb, b)
	if err := c.transformField(c.fa, false); err != nil {
		return err
	}
	if err := c.transformField(c.fb, false); err != nil {
		return err
	}

	c.spectralProduct()

	if err := c.transformProduct(true); err != nil {
		return err
	}

	for i, v := range c.prod {
		out[i] += v * complex(c.invNorm, 0)
	}
	return nil
}

// transformField applies the four axis transforms to an embedded field of
// shape [2L, Norb, L1, L2, L3] in place.
func (c *Convolver) transformField(buf []complex128, inverse bool) error {
	g := c.geom
	t := 2 * g.L
	// Strides follow from the layout: time fastest, then orbital, x1, x2, x3.
	if err := c.transformAxis(buf, t, 1, inverse); err != nil {
		return err
	}
	if err := c.transformAxis(buf, g.L1, g.Norb*t, inverse); err != nil {
		return err
	}
	if err := c.transformAxis(buf, g.L2, g.L1*g.Norb*t, inverse); err != nil {
		return err
	}
	return c.transformAxis(buf, g.L3, g.L2*g.L1*g.Norb*t, inverse)
}

// transformProduct applies the four axis transforms to the spectral product
// of shape [2L, Norb, Norb, L1, L2, L3] in place. The two orbital axes are
// never transformed.
func (c *Convolver) transformProduct(inverse bool) error {
	g := c.geom
	t := 2 * g.L
	orb2 := g.Norb * g.Norb
	if err := c.transformAxis(c.prod, t, 1, inverse); err != nil {
		return err
	}
	if err := c.transformAxis(c.prod, g.L1, orb2*t, inverse); err != nil {
		return err
	}
	if err := c.transformAxis(c.prod, g.L2, g.L1*orb2*t, inverse); err != nil {
		return err
	}
	return c.transformAxis(c.prod, g.L3, g.L2*g.L1*orb2*t, inverse)
}

// transformAxis transforms every length-n line along one axis of buf.
// Lines along an axis with stride s tile the buffer in blocks of n*s;
// axes of extent 1 are a no-op.
func (c *Convolver) transformAxis(buf []complex128, n, stride int, inverse bool) error {
	if n == 1 {
		return nil
	}
	plan := c.plans[n]

	if stride == 1 {
		for base := 0; base < len(buf); base += n {
			seg := buf[base : base+n]
			if err := c.transformLine(plan, seg, inverse); err != nil {
				return err
			}
		}
		return nil
	}

	line := c.line[:n]
	block := n * stride
	for start := 0; start < len(buf); start += block {
		for j := 0; j < stride; j++ {
			base := start + j
			for k := 0; k < n; k++ {
				line[k] = buf[base+k*stride]
			}
			if err := c.transformLine(plan, line, inverse); err != nil {
				return err
			}
			for k := 0; k < n; k++ {
				buf[base+k*stride] = line[k]
			}
		}
	}
	return nil
}

func (c *Convolver) transformLine(plan *algofft.Plan[complex128], seg []complex128, inverse bool) error {
	var err error
	if inverse {
		err = plan.Inverse(seg, seg)
	} else {
		err = plan.Forward(seg, seg)
	}
	if err != nil {
		return fmt.Errorf("spectral: transform failed: %w", err)
	}
	return nil
}

// spectralProduct fills c.prod with the index-inverted pointwise product
//
//	prod[w, oA, oB, k] = fa[-w, oA, -k] * fb[w, oB, k]
//
// where index negation is cyclic per axis. The inputs are transforms of real
// embeddings, so no complex conjugation is involved; the inversion alone
// realizes the cross-correlation identity.
func (c *Convolver) spectralProduct() {
	g := c.geom
	t := 2 * g.L

	for x3 := 0; x3 < g.L3; x3++ {
		n3 := lattice.Negate(x3, g.L3)
		for x2 := 0; x2 < g.L2; x2++ {
			n2 := lattice.Negate(x2, g.L2)
			for x1 := 0; x1 < g.L1; x1++ {
				n1 := lattice.Negate(x1, g.L1)

				cell := (x3*g.L2+x2)*g.L1 + x1
				negCell := (n3*g.L2+n2)*g.L1 + n1

				for oB := 0; oB < g.Norb; oB++ {
					baseB := (cell*g.Norb + oB) * t
					for oA := 0; oA < g.Norb; oA++ {
						baseA := (negCell*g.Norb + oA) * t
						baseP := ((cell*g.Norb+oB)*g.Norb + oA) * t

						// w = 0 maps to itself under negation.
						c.prod[baseP] = c.fa[baseA] * c.fb[baseB]
						for w := 1; w < t; w++ {
							c.prod[baseP+w] = c.fa[baseA+t-w] * c.fb[baseB+w]
						}
					}
				}
			}
		}
	}
}

// ConvolveDirect accumulates the same quantity as Convolve by direct O(V^2)
// summation. It exists as a ground-truth cross-check for small geometries and
// allocates nothing beyond loop variables.
func ConvolveDirect(out, a, b []complex128, geom lattice.Geometry) error {
	if err := geom.Validate(); err != nil {
		return fmt.Errorf("spectral: invalid geometry: %w", err)
	}
	t := 2 * geom.L
	if len(a) != t*geom.Nsites() || len(b) != t*geom.Nsites() {
		return ErrShape
	}
	if len(out) != t*geom.Norb*geom.Nsites() {
		return ErrShape
	}

	inv := 1 / float64(t*geom.Cells())

	idx := func(tau, o, x1, x2, x3 int) int {
		return (((x3*geom.L2+x2)*geom.L1+x1)*geom.Norb+o)*t + tau
	}

	for d3 := 0; d3 < geom.L3; d3++ {
		for d2 := 0; d2 < geom.L2; d2++ {
			for d1 := 0; d1 < geom.L1; d1++ {
				dcell := (d3*geom.L2+d2)*geom.L1 + d1
				for oB := 0; oB < geom.Norb; oB++ {
					for oA := 0; oA < geom.Norb; oA++ {
						baseP := ((dcell*geom.Norb+oB)*geom.Norb + oA) * t
						for dt := 0; dt < t; dt++ {
							var sum complex128
							for x3 := 0; x3 < geom.L3; x3++ {
								for x2 := 0; x2 < geom.L2; x2++ {
									for x1 := 0; x1 < geom.L1; x1++ {
										for tau := 0; tau < t; tau++ {
											av := a[idx(tau, oA, x1, x2, x3)]
											bv := b[idx(
												lattice.Wrap(tau+dt, t),
												oB,
												lattice.Wrap(x1+d1, geom.L1),
												lattice.Wrap(x2+d2, geom.L2),
												lattice.Wrap(x3+d3, geom.L3),
											)]
											sum += av * bv
										}
									}
								}
							}
							out[baseP+dt] += sum * complex(inv, 0)
						}
					}
				}
			}
		}
	}
	return nil
}
