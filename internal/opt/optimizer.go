// Package opt provides the derivative-free optimizer used for global seed
// search. Levenberg–Marquardt refinement is a local method; when the
// detector's seed risks a poor local minimum, a population search over the
// bounded parameter space supplies a better starting point. Multiple
// restarts with perturbed seeds remain the documented mitigation for
// local-minima risk, not a guarantee.
package opt

// Optimizer defines a bounded global optimization algorithm.
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper] in dim dimensions and
	// returns the best parameters and their cost.
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}
