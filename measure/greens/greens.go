// Package greens estimates imaginary-time correlation functions of an
// electron-phonon model by stochastic trace estimation.
//
// Each Update call draws two independent Gaussian probe vectors, applies the
// inverse fermion operator to them through an iterative solve, and builds
// translation-averaged estimates of four correlators — the single-particle
// Green's function G(dt,0) and the two-particle products G(dt,0)*G(dt,0),
// G(dt,dt)*G(0,0) and G(dt,0)*G(0,dt) — over the full space-time lattice via
// FFT cross-correlation. An Update replaces the previous sample rather than
// accumulating; averaging across calls belongs to the caller, which lets the
// downstream binning layer treat every call as one independent measurement.
//
// An Estimator owns its scratch buffers and transform plans and must not be
// shared between goroutines; run one estimator per Markov-chain replica.
package greens

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-qmc/qmc/core"
	"github.com/cwbudde/algo-qmc/qmc/embed"
	"github.com/cwbudde/algo-qmc/qmc/lattice"
	"github.com/cwbudde/algo-qmc/qmc/model"
	"github.com/cwbudde/algo-qmc/qmc/solve"
	"github.com/cwbudde/algo-qmc/qmc/spectral"
)

// Errors returned by the estimator.
var (
	ErrNilModel     = errors.New("greens: nil model")
	ErrInvalidProbe = errors.New("greens: probe selector must be 1 or 2")
	ErrOrbital      = errors.New("greens: orbital index out of range")
	ErrSite         = errors.New("greens: site index out of range")
	ErrTime         = errors.New("greens: time index out of range")
)

// Diagnostics reports the two linear solves of one Update call. Convergence
// acceptance is the caller's policy; the orchestrator never rejects a solve.
type Diagnostics struct {
	First  solve.Stats
	Second solve.Stats
}

// Option configures an Estimator at construction.
type Option func(*config)

type config struct {
	tol     float64
	maxIter int
	pre     solve.Preconditioner
	rng     *rand.Rand
}

// WithTolerance sets the relative residual target of the linear solves.
func WithTolerance(tol float64) Option {
	return func(c *config) {
		if tol > 0 {
			c.tol = tol
		}
	}
}

// WithMaxIterations bounds each linear solve.
func WithMaxIterations(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxIter = n
		}
	}
}

// WithPreconditioner selects the solve preconditioner. The default is the
// identity.
func WithPreconditioner(p solve.Preconditioner) Option {
	return func(c *config) {
		if p != nil {
			c.pre = p
		}
	}
}

// WithRand injects the random engine used to draw probe vectors. The
// estimator never seeds an engine itself; reproducible runs inject a seeded
// one here.
func WithRand(rng *rand.Rand) Option {
	return func(c *config) {
		if rng != nil {
			c.rng = rng
		}
	}
}

// Estimator holds the correlator arrays, probe and solved vectors, embedded
// scratch buffers and the spectral convolver for one model instance.
type Estimator struct {
	model model.Model
	geom  lattice.Geometry

	conv *spectral.Convolver
	cg   *solve.CG
	pre  solve.Preconditioner
	rng  *rand.Rand

	opM    solve.Operator         // direct path, symmetric models only
	normal *solve.NormalEquations // M'M path
	rhs    []float64              // shared M'r scratch between the two solves

	r1, r2 []float64 // probe vectors
	m1, m2 []float64 // solved vectors, approximately M^{-1} r

	ea, eb []complex128 // embedded field pair, write-before-read

	greens   []complex128 // G(dt,0)
	squared  []complex128 // G(dt,0)*G(dt,0)
	density  []complex128 // G(dt,dt)*G(0,0)
	exchange []complex128 // G(dt,0)*G(0,dt)
}

// New builds an estimator for m. All arrays, scratch buffers and transform
// plans are sized from the model geometry, which is fixed for the lifetime
// of the estimator.
func New(m model.Model, opts ...Option) (*Estimator, error) {
	if m == nil {
		return nil, ErrNilModel
	}
	geom := m.Geometry()
	if err := geom.Validate(); err != nil {
		return nil, fmt.Errorf("greens: invalid model geometry: %w", err)
	}

	cfg := config{
		tol:     solve.DefaultTolerance,
		maxIter: solve.DefaultMaxIterations,
		pre:     solve.Identity{},
		rng:     rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	conv, err := spectral.NewConvolver(geom)
	if err != nil {
		return nil, err
	}

	dim := geom.Dim()
	cg, err := solve.NewCG(dim, cfg.tol, cfg.maxIter)
	if err != nil {
		conv.Close()
		return nil, err
	}

	e := &Estimator{
		model: m,
		geom:  geom,
		conv:  conv,
		cg:    cg,
		pre:   cfg.pre,
		rng:   cfg.rng,

		rhs: make([]float64, dim),
		r1:  make([]float64, dim),
		r2:  make([]float64, dim),
		m1:  make([]float64, dim),
		m2:  make([]float64, dim),

		ea: make([]complex128, conv.FieldLen()),
		eb: make([]complex128, conv.FieldLen()),

		greens:   make([]complex128, conv.OutLen()),
		squared:  make([]complex128, conv.OutLen()),
		density:  make([]complex128, conv.OutLen()),
		exchange: make([]complex128, conv.OutLen()),
	}

	if m.Symmetric() {
		e.opM = solve.OperatorFunc{N: dim, Fn: m.ApplyM}
	} else {
		ne, err := solve.NewNormalEquations(dim, m.ApplyM, m.ApplyMT)
		if err != nil {
			conv.Close()
			return nil, err
		}
		e.normal = ne
	}
	return e, nil
}

// Geometry returns the estimator's fixed geometry.
func (e *Estimator) Geometry() lattice.Geometry {
	return e.geom
}

// Close releases the transform plans. The estimator must not be updated
// after Close.
func (e *Estimator) Close() {
	e.conv.Close()
}

// Update produces one stochastic sample of all four correlator arrays,
// replacing any previous contents. The returned Diagnostics carry the
// iteration counts and residuals of the two solves; a residual above the
// configured tolerance does not fail the update.
func (e *Estimator) Update() (Diagnostics, error) {
	core.ZeroC(e.greens)
	core.ZeroC(e.squared)
	core.ZeroC(e.density)
	core.ZeroC(e.exchange)
	core.Zero(e.m1)
	core.Zero(e.m2)

	for i := range e.r1 {
		e.r1[i] = e.rng.NormFloat64()
		e.r2[i] = e.rng.NormFloat64()
	}

	var diag Diagnostics
	if err := e.pre.Setup(); err != nil {
		return diag, fmt.Errorf("greens: preconditioner setup failed: %w", err)
	}

	var err error
	if e.opM != nil {
		if diag.First, err = e.cg.Solve(e.m1, e.opM, e.r1, e.pre); err != nil {
			return diag, fmt.Errorf("greens: first solve failed: %w", err)
		}
		if diag.Second, err = e.cg.Solve(e.m2, e.opM, e.r2, e.pre); err != nil {
			return diag, fmt.Errorf("greens: second solve failed: %w", err)
		}
	} else {
		e.model.ApplyMT(e.rhs, e.r1)
		if diag.First, err = e.cg.Solve(e.m1, e.normal, e.rhs, e.pre); err != nil {
			return diag, fmt.Errorf("greens: first solve failed: %w", err)
		}
		e.model.ApplyMT(e.rhs, e.r2)
		if diag.Second, err = e.cg.Solve(e.m2, e.normal, e.rhs, e.pre); err != nil {
			return diag, fmt.Errorf("greens: second solve failed: %w", err)
		}
	}

	l := e.geom.L
	invSqrt2 := 1 / math.Sqrt2

	// G(dt,0): antiperiodic embeddings of the combined probes.
	if err := embed.AntiperiodicSumTo(e.ea, e.r1, e.r2, l, invSqrt2); err != nil {
		return diag, err
	}
	if err := embed.AntiperiodicSumTo(e.eb, e.m1, e.m2, l, invSqrt2); err != nil {
		return diag, err
	}
	if err := e.conv.Convolve(e.greens, e.ea, e.eb); err != nil {
		return diag, err
	}

	// G(dt,0)*G(dt,0): periodic product embeddings of cross pairs.
	if err := embed.PeriodicProductTo(e.ea, e.r1, e.r2, l); err != nil {
		return diag, err
	}
	if err := embed.PeriodicProductTo(e.eb, e.m1, e.m2, l); err != nil {
		return diag, err
	}
	if err := e.conv.Convolve(e.squared, e.ea, e.eb); err != nil {
		return diag, err
	}

	// G(dt,dt)*G(0,0).
	if err := embed.PeriodicProductTo(e.ea, e.m1, e.r1, l); err != nil {
		return diag, err
	}
	if err := embed.PeriodicProductTo(e.eb, e.m2, e.r2, l); err != nil {
		return diag, err
	}
	if err := e.conv.Convolve(e.density, e.ea, e.eb); err != nil {
		return diag, err
	}

	// G(dt,0)*G(0,dt).
	if err := embed.PeriodicProductTo(e.ea, e.m2, e.r1, l); err != nil {
		return diag, err
	}
	if err := embed.PeriodicProductTo(e.eb, e.m1, e.r2, l); err != nil {
		return diag, err
	}
	if err := e.conv.Convolve(e.exchange, e.ea, e.eb); err != nil {
		return diag, err
	}

	return diag, nil
}
