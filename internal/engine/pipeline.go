package engine

import (
	"context"
	"log/slog"

	"github.com/GuilleTCast/fittingo/internal/baseline"
	"github.com/GuilleTCast/fittingo/internal/detect"
	"github.com/GuilleTCast/fittingo/internal/peaks"
	"github.com/GuilleTCast/fittingo/internal/spectrum"
)

// Deconvolve runs the full pipeline on the spectrum's first channel:
// baseline estimation, peak seeding, and iterative refinement. Manual seeds
// bypass automatic detection entirely; passing both is impossible by
// construction since a non-empty manual list disables the detector.
func Deconvolve(ctx context.Context, spec *spectrum.Spectrum, cfg Config, detCfg detect.Config, manual []peaks.PeakParams) (*FitResult, error) {
	cfg = cfg.withDefaults()

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	xs, ys := ascending(spec.Wavenumbers, spec.Absorbance())

	poly, err := baseline.Estimate(xs, ys, cfg.BaselineDegree, cfg.Polarity)
	if err != nil {
		return nil, err
	}

	corrected := make([]float64, len(ys))
	for i := range ys {
		corrected[i] = ys[i] - poly.Eval(xs[i])
	}

	var seeds []peaks.PeakParams
	if len(manual) > 0 {
		seeds, err = detect.ManualSeeds(manual, xs, detCfg)
		slog.Info("Using manual seeds", "count", len(manual))
	} else {
		seeds, err = detect.Peaks(xs, corrected, detCfg)
		slog.Info("Detected peaks", "count", len(seeds))
	}
	if err != nil {
		return nil, err
	}

	seed := FitModel{Peaks: seeds, Baseline: poly}
	return Fit(ctx, spec, seed, cfg)
}
