package greens

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-qmc/qmc/lattice"
	"github.com/cwbudde/algo-qmc/qmc/model"
	"github.com/cwbudde/algo-qmc/qmc/solve"
)

func mustGeometry(t *testing.T, l, l1, l2, l3, norb int) lattice.Geometry {
	t.Helper()
	g, err := lattice.NewGeometry(l, l1, l2, l3, norb)
	if err != nil {
		t.Fatalf("unexpected geometry error: %v", err)
	}
	return g
}

func newFreeEstimator(t *testing.T, geom lattice.Geometry, b float64, seed int64) (*Estimator, *model.Free) {
	t.Helper()
	m, err := model.NewFree(geom, b)
	if err != nil {
		t.Fatalf("unexpected model error: %v", err)
	}
	pre, err := solve.NewFourier(geom, m.Stencil(), true)
	if err != nil {
		t.Fatalf("unexpected preconditioner error: %v", err)
	}
	e, err := New(m,
		WithRand(rand.New(rand.NewSource(seed))),
		WithPreconditioner(pre),
		WithTolerance(1e-12),
	)
	if err != nil {
		t.Fatalf("unexpected estimator error: %v", err)
	}
	return e, m
}

func TestRawGreensIdentityModel(t *testing.T) {
	// With M = I the solved vectors equal the probes exactly, so the raw
	// point estimator is a rank-one product and must factorize.
	geom := mustGeometry(t, 4, 2, 1, 1, 1)
	m, err := model.NewIdentity(geom)
	if err != nil {
		t.Fatalf("unexpected model error: %v", err)
	}
	e, err := New(m, WithRand(rand.New(rand.NewSource(42))))
	if err != nil {
		t.Fatalf("unexpected estimator error: %v", err)
	}
	defer e.Close()

	if _, err := e.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	for probe := 1; probe <= 2; probe++ {
		// Transposing the point pair must give the identical product.
		a, err := e.RawGreens(0, 1, 2, 3, probe)
		if err != nil {
			t.Fatalf("RawGreens failed: %v", err)
		}
		b, err := e.RawGreens(1, 0, 3, 2, probe)
		if err != nil {
			t.Fatalf("RawGreens failed: %v", err)
		}
		if a != b {
			t.Errorf("probe %d: transposed raw estimator %v != %v", probe, a, b)
		}

		// Rank-one factorization across four points.
		v0123, _ := e.RawGreens(0, 1, 0, 1, probe)
		v1032, _ := e.RawGreens(1, 0, 2, 3, probe)
		v0132, _ := e.RawGreens(0, 0, 0, 3, probe)
		v1023, _ := e.RawGreens(1, 1, 2, 1, probe)
		lhs := v0123 * v1032
		rhs := v0132 * v1023
		if math.Abs(lhs-rhs) > 1e-10*(math.Abs(lhs)+1) {
			t.Errorf("probe %d: factorization violated: %v vs %v", probe, lhs, rhs)
		}

		// Self-correlation is a square.
		self, _ := e.RawGreens(1, 1, 2, 2, probe)
		if self < 0 {
			t.Errorf("probe %d: self-correlation negative: %v", probe, self)
		}
	}
}

func TestRawGreensValidation(t *testing.T) {
	geom := mustGeometry(t, 2, 1, 1, 1, 1)
	m, err := model.NewIdentity(geom)
	if err != nil {
		t.Fatalf("unexpected model error: %v", err)
	}
	e, err := New(m)
	if err != nil {
		t.Fatalf("unexpected estimator error: %v", err)
	}
	defer e.Close()

	if _, err := e.RawGreens(0, 0, 0, 0, 3); !errors.Is(err, ErrInvalidProbe) {
		t.Errorf("expected ErrInvalidProbe, got %v", err)
	}
	if _, err := e.RawGreens(0, 0, 0, 0, 0); !errors.Is(err, ErrInvalidProbe) {
		t.Errorf("expected ErrInvalidProbe, got %v", err)
	}
	if _, err := e.RawGreens(1, 0, 0, 0, 1); !errors.Is(err, ErrSite) {
		t.Errorf("expected ErrSite, got %v", err)
	}
	if _, err := e.RawGreens(0, 0, 2, 0, 1); !errors.Is(err, ErrTime) {
		t.Errorf("expected ErrTime, got %v", err)
	}
}

func TestAccessorCyclicWrap(t *testing.T) {
	geom := mustGeometry(t, 2, 2, 2, 1, 1)
	e, _ := newFreeEstimator(t, geom, 0.6, 17)
	defer e.Close()

	if _, err := e.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	accessors := []struct {
		name string
		fn   func(d1, d2, d3, o1, o2, dtau int) (complex128, error)
	}{
		{name: "Greens", fn: e.Greens},
		{name: "GreensSquared", fn: e.GreensSquared},
		{name: "DensityProduct", fn: e.DensityProduct},
		{name: "ExchangeProduct", fn: e.ExchangeProduct},
	}

	twoL := 2 * geom.L
	for _, acc := range accessors {
		for dtau := -twoL; dtau <= twoL; dtau++ {
			base, err := acc.fn(1, 0, 0, 0, 0, dtau)
			if err != nil {
				t.Fatalf("%s failed: %v", acc.name, err)
			}
			up, err := acc.fn(1, 0, 0, 0, 0, dtau+twoL)
			if err != nil {
				t.Fatalf("%s failed: %v", acc.name, err)
			}
			down, err := acc.fn(1+geom.L1, -geom.L2, 0, 0, 0, dtau-twoL)
			if err != nil {
				t.Fatalf("%s failed: %v", acc.name, err)
			}
			if base != up || base != down {
				t.Errorf("%s: wrap mismatch at dtau=%d: %v %v %v", acc.name, dtau, base, up, down)
			}
		}
	}
}

func TestAccessorValidation(t *testing.T) {
	geom := mustGeometry(t, 2, 2, 1, 1, 1)
	e, _ := newFreeEstimator(t, geom, 0.5, 1)
	defer e.Close()

	if _, err := e.Greens(0, 0, 0, 1, 0, 0); !errors.Is(err, ErrOrbital) {
		t.Errorf("expected ErrOrbital, got %v", err)
	}
	if _, err := e.DensityProduct(0, 0, 0, 0, -1, 0); !errors.Is(err, ErrOrbital) {
		t.Errorf("expected ErrOrbital, got %v", err)
	}
}

func TestGreensTimeBoundaryConditions(t *testing.T) {
	// Shifting the time displacement by L must flip the sign of the
	// single-particle correlator and leave the periodic products unchanged.
	geom := mustGeometry(t, 4, 2, 1, 1, 1)
	e, _ := newFreeEstimator(t, geom, 0.8, 23)
	defer e.Close()

	if _, err := e.Update(); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	for dtau := 0; dtau < geom.L; dtau++ {
		g0, err := e.Greens(1, 0, 0, 0, 0, dtau)
		if err != nil {
			t.Fatalf("Greens failed: %v", err)
		}
		g1, err := e.Greens(1, 0, 0, 0, 0, dtau+geom.L)
		if err != nil {
			t.Fatalf("Greens failed: %v", err)
		}
		if cmplx.Abs(g1+g0) > 1e-10 {
			t.Errorf("antiperiodicity violated at dtau=%d: %v vs %v", dtau, g0, g1)
		}

		p0, err := e.GreensSquared(1, 0, 0, 0, 0, dtau)
		if err != nil {
			t.Fatalf("GreensSquared failed: %v", err)
		}
		p1, err := e.GreensSquared(1, 0, 0, 0, 0, dtau+geom.L)
		if err != nil {
			t.Fatalf("GreensSquared failed: %v", err)
		}
		if cmplx.Abs(p1-p0) > 1e-10 {
			t.Errorf("periodicity violated at dtau=%d: %v vs %v", dtau, p0, p1)
		}
	}
}

func TestGreensConvergesToFreeModel(t *testing.T) {
	// Property check against the exact equal-time Green's function of the
	// free model, 1/(1+b^L).
	geom := mustGeometry(t, 8, 1, 1, 1, 1)
	e, m := newFreeEstimator(t, geom, 0.9, 99)
	defer e.Close()

	const updates = 4000
	var sum complex128
	for i := 0; i < updates; i++ {
		diag, err := e.Update()
		if err != nil {
			t.Fatalf("Update %d failed: %v", i, err)
		}
		if diag.First.Residual > 1e-10 || diag.Second.Residual > 1e-10 {
			t.Fatalf("update %d: solver did not converge: %+v", i, diag)
		}
		v, err := e.Greens(0, 0, 0, 0, 0, 0)
		if err != nil {
			t.Fatalf("Greens failed: %v", err)
		}
		sum += v
	}

	mean := sum / complex(float64(updates), 0)
	exact := m.EqualTimeGreens()

	if math.Abs(real(mean)-exact) > 0.05 {
		t.Errorf("equal-time Greens = %v, exact %v", real(mean), exact)
	}
	if math.Abs(imag(mean)) > 1e-9 {
		t.Errorf("imaginary part %v, expected ~0", imag(mean))
	}
}

func TestUpdateReplacesPriorSample(t *testing.T) {
	// With M = I the zero-displacement equal-time slot averages chi-squared
	// variables with mean 1. If Update accumulated instead of replacing, the
	// value after k calls would grow like k.
	geom := mustGeometry(t, 16, 1, 1, 1, 1)
	m, err := model.NewIdentity(geom)
	if err != nil {
		t.Fatalf("unexpected model error: %v", err)
	}
	e, err := New(m, WithRand(rand.New(rand.NewSource(7))))
	if err != nil {
		t.Fatalf("unexpected estimator error: %v", err)
	}
	defer e.Close()

	const updates = 30
	var last float64
	for i := 0; i < updates; i++ {
		if _, err := e.Update(); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		v, err := e.Greens(0, 0, 0, 0, 0, 0)
		if err != nil {
			t.Fatalf("Greens failed: %v", err)
		}
		last = real(v)
	}

	if last < 0.05 || last > 3 {
		t.Errorf("single-sample value %v far from 1; replace semantics broken?", last)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNilModel) {
		t.Errorf("expected ErrNilModel, got %v", err)
	}
}
