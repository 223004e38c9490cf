package model_test

import (
	"fmt"

	"github.com/cwbudde/algo-qmc/qmc/lattice"
	"github.com/cwbudde/algo-qmc/qmc/model"
)

func ExampleFree() {
	g, err := lattice.NewGeometry(4, 1, 1, 1, 1)
	if err != nil {
		panic(err)
	}
	m, err := model.NewFree(g, 0.5)
	if err != nil {
		panic(err)
	}

	fmt.Println(m.Stencil())
	fmt.Printf("%.4f\n", m.EqualTimeGreens())

	// Output:
	// [1 -0.5 0 0]
	// 0.9412
}
