// Package lattice describes the fixed space-time geometry of an
// electron-phonon simulation: three spatial lattice directions, an orbital
// index per unit cell, and a discretized imaginary-time axis.
//
// All correlator and field arrays in this module share a single indexing
// convention defined here: the orbital index runs fastest among the site
// coordinates, and the imaginary-time index runs fastest overall, so each
// site owns one contiguous time column.
package lattice

import "fmt"

// Geometry holds the extents of the space-time lattice. A Geometry is fixed
// for the lifetime of any estimator built from it.
type Geometry struct {
	L    int // imaginary-time slices
	L1   int // extent along the first lattice direction
	L2   int // extent along the second lattice direction
	L3   int // extent along the third lattice direction
	Norb int // orbitals per unit cell
}

// NewGeometry validates the extents and returns a Geometry.
// All extents must be at least 1.
func NewGeometry(l, l1, l2, l3, norb int) (Geometry, error) {
	g := Geometry{L: l, L1: l1, L2: l2, L3: l3, Norb: norb}
	if err := g.Validate(); err != nil {
		return Geometry{}, err
	}
	return g, nil
}

// Validate checks that every extent is at least 1.
func (g Geometry) Validate() error {
	if g.L < 1 {
		return fmt.Errorf("lattice: time slices must be >= 1: %d", g.L)
	}
	if g.L1 < 1 || g.L2 < 1 || g.L3 < 1 {
		return fmt.Errorf("lattice: spatial extents must be >= 1: %dx%dx%d", g.L1, g.L2, g.L3)
	}
	if g.Norb < 1 {
		return fmt.Errorf("lattice: orbitals must be >= 1: %d", g.Norb)
	}
	return nil
}

// Cells returns the number of unit cells L1*L2*L3.
func (g Geometry) Cells() int {
	return g.L1 * g.L2 * g.L3
}

// Nsites returns the number of site slots Norb*L1*L2*L3.
func (g Geometry) Nsites() int {
	return g.Norb * g.Cells()
}

// Dim returns the total degree-of-freedom count Nsites*L.
func (g Geometry) Dim() int {
	return g.Nsites() * g.L
}

// Site maps orbital o and unit-cell coordinates (x1,x2,x3) to a site index.
// The orbital runs fastest, then x1, x2, x3.
func (g Geometry) Site(o, x1, x2, x3 int) int {
	return ((x3*g.L2+x2)*g.L1+x1)*g.Norb + o
}

// Index maps a site and a time slice to a flat vector index. Each site owns
// the contiguous column [site*L, (site+1)*L).
func (g Geometry) Index(site, tau int) int {
	return site*g.L + tau
}

// Wrap maps any signed n to its cyclic representative in [0, period).
func Wrap(n, period int) int {
	n %= period
	if n < 0 {
		n += period
	}
	return n
}

// Negate returns the cyclic representative of -n in [0, period).
// Negate(0) is 0, and Negate(Negate(n)) == Wrap(n).
func Negate(n, period int) int {
	return Wrap(period-n, period)
}
