// Command greensdemo runs the stochastic Green's-function estimator on the
// free benchmark model and compares the result against the exact equal-time
// value 1/(1+b^L).
//
// Usage:
//
//	greensdemo [flags]
//
// Examples:
//
//	greensdemo -l 16 -b 0.9 -updates 2000
//	greensdemo -l 32 -l1 4 -replicas 8 -plot greens.png
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/cwbudde/algo-qmc/internal/vecmath"
	"github.com/cwbudde/algo-qmc/measure/greens"
	"github.com/cwbudde/algo-qmc/qmc/lattice"
	"github.com/cwbudde/algo-qmc/qmc/model"
	"github.com/cwbudde/algo-qmc/qmc/solve"
)

type replicaResult struct {
	equalTime float64
	curve     []float64 // averaged Re G(tau), tau in [0, L]
}

func main() {
	l := flag.Int("l", 16, "imaginary-time slices")
	l1 := flag.Int("l1", 1, "lattice extent along the first direction")
	l2 := flag.Int("l2", 1, "lattice extent along the second direction")
	l3 := flag.Int("l3", 1, "lattice extent along the third direction")
	b := flag.Float64("b", 0.9, "single-step propagation factor exp(dtau*mu)")
	updates := flag.Int("updates", 2000, "estimator updates per replica")
	replicas := flag.Int("replicas", 4, "independent estimator replicas")
	seed := flag.Int64("seed", 1, "base random seed; replica i uses seed+i")
	tol := flag.Float64("tol", 1e-10, "solver tolerance")
	plotPath := flag.String("plot", "", "write the averaged G(tau) decay to this PNG file")
	flag.Parse()

	geom, err := lattice.NewGeometry(*l, *l1, *l2, *l3, 1)
	if err != nil {
		log.Fatalf("greensdemo: %v", err)
	}

	results := make([]replicaResult, *replicas)
	var group errgroup.Group
	for i := 0; i < *replicas; i++ {
		group.Go(func() error {
			res, err := runReplica(geom, *b, *updates, *seed+int64(i), *tol)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatalf("greensdemo: %v", err)
	}

	means := make([]float64, *replicas)
	for i, r := range results {
		means[i] = r.equalTime
	}
	mean := stat.Mean(means, nil)
	stderr := 0.0
	if *replicas > 1 {
		stderr = stat.StdDev(means, nil) / math.Sqrt(float64(*replicas))
	}

	ref, err := model.NewFree(geom, *b)
	if err != nil {
		log.Fatalf("greensdemo: %v", err)
	}
	exact := ref.EqualTimeGreens()

	fmt.Printf("lattice %dx%dx%d, L = %d, b = %g\n", *l1, *l2, *l3, *l, *b)
	fmt.Printf("replicas %d x %d updates\n", *replicas, *updates)
	fmt.Printf("equal-time G: %.6f +/- %.6f (exact %.6f, deviation %.2f sigma)\n",
		mean, stderr, exact, sigma(mean-exact, stderr))

	if *plotPath != "" {
		if err := writePlot(*plotPath, results, geom.L); err != nil {
			fmt.Fprintf(os.Stderr, "greensdemo: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *plotPath)
	}
}

func sigma(dev, stderr float64) float64 {
	if stderr == 0 {
		return 0
	}
	return math.Abs(dev) / stderr
}

// runReplica owns one estimator instance end to end; replicas never share
// scratch buffers or transform plans.
func runReplica(geom lattice.Geometry, b float64, updates int, seed int64, tol float64) (replicaResult, error) {
	m, err := model.NewFree(geom, b)
	if err != nil {
		return replicaResult{}, err
	}
	pre, err := solve.NewFourier(geom, m.Stencil(), true)
	if err != nil {
		return replicaResult{}, err
	}

	e, err := greens.New(m,
		greens.WithRand(rand.New(rand.NewSource(seed))),
		greens.WithPreconditioner(pre),
		greens.WithTolerance(tol),
	)
	if err != nil {
		return replicaResult{}, err
	}
	defer e.Close()

	curve := make([]float64, geom.L+1)
	var equalTime float64

	for i := 0; i < updates; i++ {
		diag, err := e.Update()
		if err != nil {
			return replicaResult{}, err
		}
		if diag.First.Residual > tol || diag.Second.Residual > tol {
			log.Printf("seed %d update %d: residuals %.3g / %.3g above tolerance",
				seed, i, diag.First.Residual, diag.Second.Residual)
		}

		for tau := 0; tau <= geom.L; tau++ {
			v, err := e.Greens(0, 0, 0, 0, 0, tau)
			if err != nil {
				return replicaResult{}, err
			}
			curve[tau] += real(v)
		}
		v, err := e.Greens(0, 0, 0, 0, 0, 0)
		if err != nil {
			return replicaResult{}, err
		}
		equalTime += real(v)
	}

	inv := 1 / float64(updates)
	vecmath.ScaleBlockInPlace(curve, inv)
	return replicaResult{equalTime: equalTime * inv, curve: curve}, nil
}

func writePlot(path string, results []replicaResult, l int) error {
	pts := make(plotter.XYs, l+1)
	for tau := 0; tau <= l; tau++ {
		var sum float64
		for _, r := range results {
			sum += r.curve[tau]
		}
		pts[tau].X = float64(tau)
		pts[tau].Y = sum / float64(len(results))
	}

	p := plot.New()
	p.Title.Text = "Imaginary-time Green's function"
	p.X.Label.Text = "tau"
	p.Y.Label.Text = "Re G(tau)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("building line plot: %w", err)
	}
	p.Add(line, plotter.NewGrid())

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
