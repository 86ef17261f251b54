package server

import (
	"fmt"

	"github.com/GuilleTCast/fittingo/internal/baseline"
	"github.com/GuilleTCast/fittingo/internal/detect"
	"github.com/GuilleTCast/fittingo/internal/engine"
	"github.com/GuilleTCast/fittingo/internal/peaks"
	"github.com/GuilleTCast/fittingo/internal/store"
)

// configsFromJob translates the persisted job config into engine and
// detector configs. Unset fields fall through to the package defaults.
func configsFromJob(cfg JobConfig) (engine.Config, detect.Config, error) {
	shape, err := peaks.ParseShape(cfg.Shape)
	if err != nil {
		return engine.Config{}, detect.Config{}, err
	}

	mode := baseline.ModePreSubtract
	if cfg.BaselineMode != "" {
		mode, err = baseline.ParseMode(cfg.BaselineMode)
		if err != nil {
			return engine.Config{}, detect.Config{}, err
		}
	}

	polarity := float64(cfg.Polarity)
	if polarity == 0 {
		polarity = 1
	}

	engCfg := engine.DefaultConfig()
	engCfg.MaxIterations = cfg.MaxIterations
	engCfg.Polarity = polarity
	engCfg.BaselineMode = mode
	engCfg.BaselineDegree = cfg.Degree

	detCfg := detect.DefaultConfig()
	detCfg.Shape = shape
	detCfg.Polarity = polarity
	if cfg.NoiseMult > 0 {
		detCfg.NoiseMult = cfg.NoiseMult
	}
	if err := detCfg.Validate(); err != nil {
		return engine.Config{}, detect.Config{}, err
	}

	return engCfg, detCfg, nil
}

// peakRecords flattens fitted peaks into their persisted form.
func peakRecords(reports []engine.PeakReport) []store.PeakRecord {
	records := make([]store.PeakRecord, len(reports))
	for i, r := range reports {
		records[i] = store.PeakRecord{
			Shape:     r.Shape.String(),
			Center:    r.Center,
			Width:     r.Width,
			Amplitude: r.Amplitude,
			Mix:       r.Mix,
			FWHM:      r.FWHM,
			Area:      r.Area,
		}
	}
	return records
}

// recordFromResult builds the persistable record for a finished fit.
func recordFromResult(jobID string, res *engine.FitResult, cfg JobConfig) *store.FitRecord {
	record := store.NewFitRecord(
		jobID,
		peakRecords(res.Peaks),
		res.Model.Baseline.Coeffs,
		res.Cost,
		string(res.State),
		res.Converged,
		res.Iterations,
		cfg,
	)
	record.ReducedChiSquare = res.ReducedChiSquare
	record.RSquared = res.RSquared
	return record
}

// recordFromJob snapshots a running job for periodic persistence.
func recordFromJob(job *Job) (*store.FitRecord, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	return store.NewFitRecord(
		job.ID,
		job.Peaks,
		job.Baseline,
		job.BestCost,
		string(engine.StateIterating),
		false,
		job.Iterations,
		job.Config,
	), nil
}
