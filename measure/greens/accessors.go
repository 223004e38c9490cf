package greens

import "github.com/cwbudde/algo-qmc/qmc/lattice"

// slot maps a physical query to the flat index of a correlator array.
// Displacements are cyclic: time wraps with period 2L, spatial components
// with their lattice extents, so a displacement of zero maps to the first
// slot and negative or overflowing displacements wrap. o1 is the orbital at
// the displaced point, o2 the orbital at the origin.
func (e *Estimator) slot(d1, d2, d3, o1, o2, dtau int) (int, error) {
	g := e.geom
	if o1 < 0 || o1 >= g.Norb || o2 < 0 || o2 >= g.Norb {
		return 0, ErrOrbital
	}

	t := 2 * g.L
	ti := lattice.Wrap(dtau, t)
	k1 := lattice.Wrap(d1, g.L1)
	k2 := lattice.Wrap(d2, g.L2)
	k3 := lattice.Wrap(d3, g.L3)

	cell := (k3*g.L2+k2)*g.L1 + k1
	return ((cell*g.Norb+o1)*g.Norb+o2)*t + ti, nil
}

// Greens returns the current sample of the single-particle Green's function
// G(dt,0) at spatial displacement (d1,d2,d3), orbital pair (o1,o2) and time
// displacement dtau.
func (e *Estimator) Greens(d1, d2, d3, o1, o2, dtau int) (complex128, error) {
	i, err := e.slot(d1, d2, d3, o1, o2, dtau)
	if err != nil {
		return 0, err
	}
	return e.greens[i], nil
}

// GreensSquared returns the current sample of G(dt,0)*G(dt,0).
func (e *Estimator) GreensSquared(d1, d2, d3, o1, o2, dtau int) (complex128, error) {
	i, err := e.slot(d1, d2, d3, o1, o2, dtau)
	if err != nil {
		return 0, err
	}
	return e.squared[i], nil
}

// DensityProduct returns the current sample of G(dt,dt)*G(0,0).
func (e *Estimator) DensityProduct(d1, d2, d3, o1, o2, dtau int) (complex128, error) {
	i, err := e.slot(d1, d2, d3, o1, o2, dtau)
	if err != nil {
		return 0, err
	}
	return e.density[i], nil
}

// ExchangeProduct returns the current sample of G(dt,0)*G(0,dt).
func (e *Estimator) ExchangeProduct(d1, d2, d3, o1, o2, dtau int) (complex128, error) {
	i, err := e.slot(d1, d2, d3, o1, o2, dtau)
	if err != nil {
		return 0, err
	}
	return e.exchange[i], nil
}

// RawGreens returns the unconvolved point estimator
// solved[site i, tau2] * probe[site j, tau1] for the selected probe pair.
// It bypasses translation averaging and exists for point-wise validation and
// site-resolved measurements. probe must be 1 or 2.
func (e *Estimator) RawGreens(i, j, tau2, tau1, probe int) (float64, error) {
	g := e.geom
	if i < 0 || i >= g.Nsites() || j < 0 || j >= g.Nsites() {
		return 0, ErrSite
	}
	if tau2 < 0 || tau2 >= g.L || tau1 < 0 || tau1 >= g.L {
		return 0, ErrTime
	}

	switch probe {
	case 1:
		return e.m1[g.Index(i, tau2)] * e.r1[g.Index(j, tau1)], nil
	case 2:
		return e.m2[g.Index(i, tau2)] * e.r2[g.Index(j, tau1)], nil
	default:
		return 0, ErrInvalidProbe
	}
}
