package embed_test

import (
	"fmt"

	"github.com/cwbudde/algo-qmc/qmc/embed"
)

func ExampleAntiperiodicTo() {
	src := []float64{1, 2}
	dst := make([]complex128, 4)
	if err := embed.AntiperiodicTo(dst, src, 2); err != nil {
		panic(err)
	}

	re := make([]float64, len(dst))
	for i, v := range dst {
		re[i] = real(v)
	}
	fmt.Println(re)

	// Output:
	// [1 2 -1 -2]
}
