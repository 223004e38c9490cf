// Package solve provides the iterative linear solver used to apply the
// inverse fermion operator to probe vectors.
//
// The solver is a preconditioned conjugate gradient. Non-symmetric fermion
// operators are handled through the normal equations M'M x = M'b, which are
// symmetric positive definite whenever M is invertible. Non-convergence is
// not an error: the solver returns the iteration count and the relative
// residual it reached, and acceptance policy belongs to the caller.
package solve

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-qmc/internal/vecmath"
	"github.com/cwbudde/algo-qmc/qmc/core"
)

// Errors returned by the solver.
var (
	ErrNilOperator = errors.New("solve: nil operator")
	ErrDimension   = errors.New("solve: dimension mismatch")
)

// Default solver controls, used when a caller passes non-positive values.
const (
	DefaultTolerance     = 1e-10
	DefaultMaxIterations = 1000
)

// Operator applies a linear operator to a vector. Apply must treat src as
// read-only and fully overwrite dst; dst and src never alias.
type Operator interface {
	Dim() int
	Apply(dst, src []float64)
}

// OperatorFunc adapts a function to the Operator interface.
type OperatorFunc struct {
	N  int
	Fn func(dst, src []float64)
}

// Dim returns the operator dimension.
func (o OperatorFunc) Dim() int { return o.N }

// Apply invokes the wrapped function.
func (o OperatorFunc) Apply(dst, src []float64) { o.Fn(dst, src) }

// Stats reports how a solve went. Residual is relative to the right-hand
// side norm; a value above the requested tolerance means the iteration
// budget ran out before convergence.
type Stats struct {
	Iterations int
	Residual   float64
}

// CG is a reusable preconditioned conjugate-gradient solver. The scratch
// vectors are owned by the instance, so a CG must not be shared between
// goroutines.
type CG struct {
	Tol     float64
	MaxIter int

	r, z, p, q []float64
}

// NewCG creates a solver for vectors of length dim. Non-positive tol or
// maxIter select the package defaults.
func NewCG(dim int, tol float64, maxIter int) (*CG, error) {
	if dim <= 0 {
		return nil, ErrDimension
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	return &CG{
		Tol:     tol,
		MaxIter: maxIter,
		r:       make([]float64, dim),
		z:       make([]float64, dim),
		p:       make([]float64, dim),
		q:       make([]float64, dim),
	}, nil
}

// Solve runs preconditioned CG on op*x = b, using the current contents of x
// as the initial guess. pre may be nil for an unpreconditioned solve.
// The returned Stats describe the final state; a residual above Tol is not
// an error.
func (cg *CG) Solve(x []float64, op Operator, b []float64, pre Preconditioner) (Stats, error) {
	if op == nil {
		return Stats{}, ErrNilOperator
	}
	n := op.Dim()
	if n != len(cg.r) || len(x) != n || len(b) != n {
		return Stats{}, ErrDimension
	}
	if pre == nil {
		pre = Identity{}
	}

	bnorm := math.Sqrt(vecmath.DotProduct(b, b))
	if bnorm == 0 {
		core.Zero(x)
		return Stats{}, nil
	}

	// r = b - op*x
	op.Apply(cg.q, x)
	for i := range cg.r {
		cg.r[i] = b[i] - cg.q[i]
	}
	if err := pre.Apply(cg.z, cg.r); err != nil {
		return Stats{}, err
	}
	copy(cg.p, cg.z)

	rz := vecmath.DotProduct(cg.r, cg.z)
	res := math.Sqrt(vecmath.DotProduct(cg.r, cg.r)) / bnorm

	var iter int
	for iter < cg.MaxIter && res > cg.Tol {
		op.Apply(cg.q, cg.p)
		pq := vecmath.DotProduct(cg.p, cg.q)
		if pq == 0 {
			break
		}
		alpha := rz / pq
		vecmath.AxpyBlock(x, cg.p, alpha)
		vecmath.AxpyBlock(cg.r, cg.q, -alpha)

		if err := pre.Apply(cg.z, cg.r); err != nil {
			return Stats{Iterations: iter, Residual: res}, err
		}
		rzNext := vecmath.DotProduct(cg.r, cg.z)
		beta := rzNext / rz
		rz = rzNext

		// p = z + beta*p
		vecmath.ScaleBlockInPlace(cg.p, beta)
		vecmath.AddBlockInPlace(cg.p, cg.z)
		res = math.Sqrt(vecmath.DotProduct(cg.r, cg.r)) / bnorm
		iter++
	}

	return Stats{Iterations: iter, Residual: res}, nil
}

// NormalEquations wraps a non-symmetric operator M (given as forward and
// transpose applications) into the symmetric positive definite operator M'M.
type NormalEquations struct {
	dim       int
	forward   func(dst, src []float64)
	transpose func(dst, src []float64)
	tmp       []float64
}

// NewNormalEquations builds the M'M operator for vectors of length dim.
func NewNormalEquations(dim int, forward, transpose func(dst, src []float64)) (*NormalEquations, error) {
	if dim <= 0 {
		return nil, ErrDimension
	}
	if forward == nil || transpose == nil {
		return nil, ErrNilOperator
	}
	return &NormalEquations{
		dim:       dim,
		forward:   forward,
		transpose: transpose,
		tmp:       make([]float64, dim),
	}, nil
}

// Dim returns the operator dimension.
func (ne *NormalEquations) Dim() int { return ne.dim }

// Apply computes dst = M'M src.
func (ne *NormalEquations) Apply(dst, src []float64) {
	ne.forward(ne.tmp, src)
	ne.transpose(dst, ne.tmp)
}
