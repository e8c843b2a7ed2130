// Command paramsearch calibrates the Wegstein accelerator's relaxation
// and minimum-q parameters against the scalar convergence-law test maps
// of spec §8 properties 8-10, searching for the pair that minimises
// total iterations to converge across a family of linear test maps
// without ever diverging.
//
// Grounded on cmd/optimize/main.go's CMA-ES-driven parameter search
// (there: ecosystem-stability tuning; here: accelerator-parameter
// tuning), reusing the same optimize.Problem/optimize.CmaEsChol shape.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/dyssol-go/accel"
)

// testAlphas mirrors spec §8 property 9's map family g(x)=alpha*x+beta,
// alpha in (-inf,0) union (0,1).
var testAlphas = []float64{-3.0, -0.5, 0.2, 0.6, 0.9}

const testBeta = 3.0
const maxIterPerMap = 60
const absTol = 1e-9

// evaluate runs Wegstein with the given relaxation/minQ pair against
// every test map, returning the total iteration count (penalised heavily
// for any map that fails to converge within maxIterPerMap).
func evaluate(relaxation, minQ float64) float64 {
	total := 0.0
	for _, alpha := range testAlphas {
		st := accel.NewState(accel.Wegstein, relaxation, minQ, absTol)
		x := 0.0
		converged := false
		for k := 0; k < maxIterPerMap; k++ {
			g := alpha*x + testBeta
			next := st.Accelerate([]float64{x}, []float64{g})
			diff := math.Abs(next[0] - x)
			x = next[0]
			total++
			if diff <= absTol {
				converged = true
				break
			}
		}
		if !converged {
			total += 1000 // divergence/non-convergence penalty
		}
	}
	return total
}

func main() {
	maxEvals := flag.Int("max-evals", 100, "Maximum number of evaluations")
	flag.Parse()

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			relaxation := clamp(x[0], 0.05, 1.0)
			minQ := clamp(x[1], -10.0, -0.01)
			return evaluate(relaxation, minQ)
		},
	}

	settings := &optimize.Settings{FuncEvaluations: *maxEvals}
	method := &optimize.CmaEsChol{InitStepSize: 0.3, Population: 8}

	initX := []float64{1.0, -5.0}
	result, err := optimize.Minimize(problem, initX, settings, method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "paramsearch: optimization ended: %v\n", err)
	}

	bestRelax := clamp(result.X[0], 0.05, 1.0)
	bestMinQ := clamp(result.X[1], -10.0, -0.01)
	fmt.Printf("best relaxation_param: %.6f\n", bestRelax)
	fmt.Printf("best wegstein_accel:   %.6f\n", bestMinQ)
	fmt.Printf("total iterations across %d test maps: %.0f\n", len(testAlphas), result.F)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
