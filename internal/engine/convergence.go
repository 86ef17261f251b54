package engine

import "math"

// convergenceTracker declares convergence once the relative cost change and
// the largest relative parameter change both stay below tolerance for a
// consecutive run of iterations.
type convergenceTracker struct {
	costTol  float64
	paramTol float64
	patience int

	lastCost   float64
	quietCount int
}

func newConvergenceTracker(cfg Config) *convergenceTracker {
	return &convergenceTracker{
		costTol:  cfg.CostTol,
		paramTol: cfg.ParamTol,
		patience: cfg.Patience,
		lastCost: math.Inf(1),
	}
}

// update records one iteration and returns true once convergence is
// declared. paramDelta is the largest relative parameter change of the
// iteration; a rejected step passes zero.
func (c *convergenceTracker) update(cost, paramDelta float64) bool {
	relChange := math.Inf(1)
	switch {
	case math.IsInf(c.lastCost, 1):
	case c.lastCost != 0:
		relChange = math.Abs(c.lastCost-cost) / math.Abs(c.lastCost)
	case cost == 0:
		relChange = 0
	}
	c.lastCost = cost

	if relChange < c.costTol && paramDelta < c.paramTol {
		c.quietCount++
	} else {
		c.quietCount = 0
	}
	return c.quietCount >= c.patience
}
