package engine

import (
	"gonum.org/v1/gonum/stat"

	"github.com/GuilleTCast/fittingo/internal/peaks"
)

// PeakReport is a single fitted peak with its derived quantities, recomputed
// in full from the final parameters. Detector estimates are never carried
// into a result.
type PeakReport struct {
	peaks.PeakParams
	Area float64 `json:"area"`
	FWHM float64 `json:"fwhm"`
}

// FitResult is the immutable snapshot produced by one completed fit. A new
// fit produces a new result; nothing mutates an existing one.
type FitResult struct {
	Model      FitModel     `json:"model"`
	Residuals  []float64    `json:"residuals"`
	Peaks      []PeakReport `json:"peaks"`
	State      State        `json:"state"`
	Converged  bool         `json:"converged"`
	Iterations int          `json:"iterations"`

	// Cost is the sum of squared residuals; ReducedChiSquare normalizes it
	// by the degrees of freedom and RSquared compares against the data's
	// variance around its mean.
	Cost             float64 `json:"cost"`
	ReducedChiSquare float64 `json:"reducedChiSquare"`
	RSquared         float64 `json:"rSquared"`
}

func newFitResult(model FitModel, f *Fitter, state State, iterations int) *FitResult {
	residuals := make([]float64, f.n)
	cost := f.residuals(model, residuals)

	dof := f.n - f.p
	if dof < 1 {
		dof = 1
	}

	mean := stat.Mean(f.ys, nil)
	var totalSS float64
	for _, y := range f.ys {
		d := y - mean
		totalSS += d * d
	}
	rSquared := 1.0
	if totalSS > 0 {
		rSquared = 1 - cost/totalSS
	}

	reports := make([]PeakReport, len(model.Peaks))
	for i, p := range model.Peaks {
		reports[i] = PeakReport{
			PeakParams: p,
			Area:       p.Area(),
			FWHM:       p.FWHM(),
		}
	}

	return &FitResult{
		Model:            model,
		Residuals:        residuals,
		Peaks:            reports,
		State:            state,
		Converged:        state == StateConverged,
		Iterations:       iterations,
		Cost:             cost,
		ReducedChiSquare: cost / float64(dof),
		RSquared:         rSquared,
	}
}
