package engine

import (
	"log/slog"
	"math"

	"github.com/GuilleTCast/fittingo/internal/opt"
	"github.com/GuilleTCast/fittingo/internal/spectrum"
)

// SearchSeeds runs a bounded global search over the seed model's parameter
// space and returns the best model found. It is a pre-refinement step for
// hard multi-modal cases; Fit still performs the local polish afterwards.
func SearchSeeds(spec *spectrum.Spectrum, seed FitModel, cfg Config, optimizer opt.Optimizer) (FitModel, error) {
	cfg = cfg.withDefaults()
	if err := spec.Validate(); err != nil {
		return FitModel{}, err
	}
	xs, ys := ascending(spec.Wavenumbers, spec.Absorbance())

	model := seed.Clone()
	fitter := NewFitter(xs, ys, model, cfg)
	if fitter.p == 0 {
		return model, nil
	}

	// Infinite amplitude or baseline bounds cannot be searched; shrink them
	// to a generous window around the observed data.
	lower := append([]float64(nil), fitter.bnd.lower...)
	upper := append([]float64(nil), fitter.bnd.upper...)
	span := dataSpan(ys)
	for i := range lower {
		if math.IsInf(lower[i], -1) {
			lower[i] = -4 * span
		}
		if math.IsInf(upper[i], 1) {
			upper[i] = 4 * span
		}
	}

	r := make([]float64, fitter.n)
	eval := func(params []float64) float64 {
		candidate := model.Clone()
		candidate.unpack(params, fitter.joint)
		cost := fitter.residuals(candidate, r)
		if !isFinite(cost) {
			return math.MaxFloat64
		}
		return cost
	}

	bestParams, bestCost := optimizer.Run(eval, lower, upper, fitter.p)
	slog.Info("Global seed search complete", "cost", bestCost, "params", fitter.p)

	out := model.Clone()
	out.unpack(bestParams, fitter.joint)
	return out, nil
}

func dataSpan(ys []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, y := range ys {
		lo = math.Min(lo, y)
		hi = math.Max(hi, y)
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	return span
}
