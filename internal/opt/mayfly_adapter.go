package opt

import (
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external mayfly library to conform to the
// Optimizer interface.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a mayfly optimizer adapter.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the mayfly optimization. The library takes scalar bounds, so
// the search runs in the unit cube and positions are mapped onto the real
// per-dimension box before evaluation. Peak parameters span wildly different
// scales (wavenumbers vs absorbance), so the mapping is not optional.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	denorm := func(u []float64) []float64 {
		out := make([]float64, dim)
		for i := range out {
			out[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return out
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 {
		return eval(denorm(u))
	}
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	// The library indexes males from the female update loop, so the female
	// population must not exceed the male one. Size both from popSize.
	config.NPop = m.popSize
	config.NPopF = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Fixed seed keeps runs reproducible.
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the box midpoint if the search itself fails.
		mid := make([]float64, dim)
		for i := range mid {
			mid[i] = 0.5
		}
		best := denorm(mid)
		return best, eval(best)
	}

	return denorm(result.GlobalBest.Position), result.GlobalBest.Cost
}
