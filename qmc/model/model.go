// Package model defines the fermion-operator interface the estimator solves
// against, together with two deliberately small concrete models used by
// tests and the demo binary. Full lattice-model construction lives outside
// this module; anything satisfying Model plugs in.
package model

import (
	"github.com/cwbudde/algo-qmc/qmc/core"
	"github.com/cwbudde/algo-qmc/qmc/lattice"
)

// Model exposes the fermion operator M of an electron-phonon model in the
// current phonon-field configuration.
//
// Symmetric reports whether M is symmetric positive definite, in which case
// the solver may invert it directly; otherwise the solve goes through the
// normal equations M'M and ApplyMT must implement the transpose.
//
// Apply methods must treat src as read-only and fully overwrite dst; the
// slices never alias and always have length Geometry().Dim().
type Model interface {
	Geometry() lattice.Geometry
	Symmetric() bool
	ApplyM(dst, src []float64)
	ApplyMT(dst, src []float64)
}

// Identity is the model with M = I. It exists to validate index bookkeeping:
// solved vectors equal the probe vectors exactly.
type Identity struct {
	geom lattice.Geometry
}

// NewIdentity returns the identity model on geom.
func NewIdentity(geom lattice.Geometry) (*Identity, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	return &Identity{geom: geom}, nil
}

// Geometry returns the model geometry.
func (m *Identity) Geometry() lattice.Geometry { return m.geom }

// Symmetric reports true: the identity is trivially SPD.
func (m *Identity) Symmetric() bool { return true }

// ApplyM copies src into dst.
func (m *Identity) ApplyM(dst, src []float64) { core.CopyInto(dst, src) }

// ApplyMT copies src into dst.
func (m *Identity) ApplyMT(dst, src []float64) { core.CopyInto(dst, src) }
