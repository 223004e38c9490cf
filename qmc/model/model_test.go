package model

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-qmc/qmc/lattice"
)

func testGeometry(t *testing.T, l int) lattice.Geometry {
	t.Helper()
	geom, err := lattice.NewGeometry(l, 2, 1, 1, 1)
	if err != nil {
		t.Fatalf("unexpected geometry error: %v", err)
	}
	return geom
}

func TestFreeApplyAntiperiodicWrap(t *testing.T) {
	geom := testGeometry(t, 4)
	m, err := NewFree(geom, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Impulse at tau = L-1 of the first site column: the wrapped term must
	// appear at tau = 0 with a positive sign.
	src := make([]float64, geom.Dim())
	src[geom.L-1] = 1

	dst := make([]float64, geom.Dim())
	m.ApplyM(dst, src)

	if math.Abs(dst[0]-0.5) > 1e-14 {
		t.Errorf("wrapped term = %v, expected 0.5", dst[0])
	}
	if math.Abs(dst[geom.L-1]-1) > 1e-14 {
		t.Errorf("diagonal term = %v, expected 1", dst[geom.L-1])
	}
	// Second site column untouched.
	for i := geom.L; i < 2*geom.L; i++ {
		if dst[i] != 0 {
			t.Errorf("dst[%d] = %v, expected 0", i, dst[i])
		}
	}
}

func TestFreeTransposeIsAdjoint(t *testing.T) {
	geom := testGeometry(t, 8)
	m, err := NewFree(geom, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rng := rand.New(rand.NewSource(13))
	dim := geom.Dim()
	x := make([]float64, dim)
	y := make([]float64, dim)
	for i := 0; i < dim; i++ {
		x[i] = rng.NormFloat64()
		y[i] = rng.NormFloat64()
	}

	mx := make([]float64, dim)
	mty := make([]float64, dim)
	m.ApplyM(mx, x)
	m.ApplyMT(mty, y)

	// <y, Mx> == <M'y, x>
	var lhs, rhs float64
	for i := 0; i < dim; i++ {
		lhs += y[i] * mx[i]
		rhs += mty[i] * x[i]
	}
	if math.Abs(lhs-rhs) > 1e-10 {
		t.Errorf("adjoint identity violated: %v vs %v", lhs, rhs)
	}
}

func TestFreeEqualTimeGreens(t *testing.T) {
	geom := testGeometry(t, 4)
	m, err := NewFree(geom, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := 1 / (1 + math.Pow(0.5, 4))
	if math.Abs(m.EqualTimeGreens()-expected) > 1e-14 {
		t.Errorf("EqualTimeGreens = %v, expected %v", m.EqualTimeGreens(), expected)
	}
}

func TestFreeStencilMatchesApply(t *testing.T) {
	geom := testGeometry(t, 4)
	m, err := NewFree(geom, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := m.Stencil()

	// Applying the stencil with antiperiodic wrap must reproduce ApplyM on
	// a random column.
	rng := rand.New(rand.NewSource(2))
	src := make([]float64, geom.Dim())
	for i := range src {
		src[i] = rng.NormFloat64()
	}
	dst := make([]float64, geom.Dim())
	m.ApplyM(dst, src)

	l := geom.L
	for tau := 0; tau < l; tau++ {
		var sum float64
		for s := 0; s < l; s++ {
			j := tau - s
			sign := 1.0
			if j < 0 {
				j += l
				sign = -1
			}
			sum += c[s] * sign * src[j]
		}
		if math.Abs(sum-dst[tau]) > 1e-12 {
			t.Errorf("stencil tau %d: %v, ApplyM %v", tau, sum, dst[tau])
		}
	}
}

func TestNewFreeValidation(t *testing.T) {
	geom := testGeometry(t, 4)
	if _, err := NewFree(geom, 0); err == nil {
		t.Error("expected error for zero propagation factor")
	}
	if _, err := NewFree(lattice.Geometry{}, 0.5); err == nil {
		t.Error("expected error for invalid geometry")
	}
}

func TestIdentityModel(t *testing.T) {
	geom := testGeometry(t, 2)
	m, err := NewIdentity(geom)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.Symmetric() {
		t.Error("identity must report symmetric")
	}

	src := []float64{1, 2, 3, 4}
	dst := make([]float64, 4)
	m.ApplyM(dst, src)
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("dst[%d] = %v, expected %v", i, dst[i], src[i])
		}
	}
}
