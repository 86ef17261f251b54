package store

import (
	"fmt"
	"time"
)

// FitConfig holds the configuration a fit was run with (persisted copy).
// This mirrors the fields the CLI and server care about without importing
// the engine package, avoiding an import cycle.
type FitConfig struct {
	DataPath      string  `json:"dataPath"`
	Channel       int     `json:"channel"`
	Shape         string  `json:"shape"` // gaussian, lorentzian, voigt
	BaselineMode  string  `json:"baselineMode"`
	Degree        int     `json:"degree"`
	MaxIterations int     `json:"maxIterations"`
	NoiseMult     float64 `json:"noiseMult,omitempty"`
	Polarity      int     `json:"polarity,omitempty"`
	// CheckpointInterval is how often (seconds) the worker persists an
	// intermediate record while a fit is running. 0 disables it.
	CheckpointInterval int `json:"checkpointInterval,omitempty"`
}

// PeakRecord is the persisted form of a fitted peak, including the derived
// quantities so consumers never need to re-evaluate the model.
type PeakRecord struct {
	Shape     string  `json:"shape"`
	Center    float64 `json:"center"`
	Width     float64 `json:"width"`
	Amplitude float64 `json:"amplitude"`
	Mix       float64 `json:"mix,omitempty"`
	FWHM      float64 `json:"fwhm"`
	Area      float64 `json:"area"`
}

// FitRecord is the saved outcome of a fit job. Intermediate records are
// written while a job runs (best model so far) and the final record replaces
// them when the job finishes.
//
// Only the best parameters are saved, not the optimizer internals, so a fit
// restarted from a record begins a fresh iteration schedule seeded with the
// recorded peaks. The recorded cost can only improve on restart because the
// engine keeps the best model it has seen.
type FitRecord struct {
	// JobID is the unique identifier for this fit job
	JobID string `json:"jobId"`

	// Peaks holds the best peak parameters found so far
	Peaks []PeakRecord `json:"peaks"`

	// Baseline holds the fitted polynomial coefficients, ascending powers
	Baseline []float64 `json:"baseline,omitempty"`

	// Cost is the sum of squared residuals achieved by Peaks
	Cost float64 `json:"cost"`

	// ReducedChiSquare and RSquared are goodness-of-fit diagnostics
	ReducedChiSquare float64 `json:"reducedChiSquare"`
	RSquared         float64 `json:"rSquared"`

	// State is the engine outcome (iterating, converged, max-iterations, aborted, failed)
	State     string `json:"state"`
	Converged bool   `json:"converged"`

	// Iterations completed when this record was written
	Iterations int `json:"iterations"`

	// Timestamp records when this record was created
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed to validate restarts
	Config FitConfig `json:"config"`
}

// RecordInfo contains metadata about a saved fit without the peak data.
// Used for listing results without loading full records.
type RecordInfo struct {
	JobID      string    `json:"jobId"`
	Cost       float64   `json:"cost"`
	Peaks      int       `json:"peaks"`
	State      string    `json:"state"`
	Converged  bool      `json:"converged"`
	Iterations int       `json:"iterations"`
	Timestamp  time.Time `json:"timestamp"`
	Shape      string    `json:"shape"`
	DataPath   string    `json:"dataPath"`
}

// NewFitRecord stamps a record with the current time.
func NewFitRecord(jobID string, peaks []PeakRecord, baseline []float64, cost float64, state string, converged bool, iterations int, config FitConfig) *FitRecord {
	return &FitRecord{
		JobID:      jobID,
		Peaks:      peaks,
		Baseline:   baseline,
		Cost:       cost,
		State:      state,
		Converged:  converged,
		Iterations: iterations,
		Timestamp:  time.Now(),
		Config:     config,
	}
}

// ToInfo converts a full FitRecord to RecordInfo (metadata only).
func (r *FitRecord) ToInfo() RecordInfo {
	return RecordInfo{
		JobID:      r.JobID,
		Cost:       r.Cost,
		Peaks:      len(r.Peaks),
		State:      r.State,
		Converged:  r.Converged,
		Iterations: r.Iterations,
		Timestamp:  r.Timestamp,
		Shape:      r.Config.Shape,
		DataPath:   r.Config.DataPath,
	}
}

// Validate checks that the record is complete enough to load and reuse.
func (r *FitRecord) Validate() error {
	if r.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if r.State == "" {
		return &ValidationError{Field: "State", Reason: "cannot be empty"}
	}
	if r.Cost < 0 {
		return &ValidationError{Field: "Cost", Reason: "cannot be negative"}
	}
	if r.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.DataPath == "" {
		return &ValidationError{Field: "Config.DataPath", Reason: "cannot be empty"}
	}
	if r.Config.Shape == "" {
		return &ValidationError{Field: "Config.Shape", Reason: "cannot be empty"}
	}
	if r.Config.MaxIterations <= 0 {
		return &ValidationError{Field: "Config.MaxIterations", Reason: "must be positive"}
	}
	for i, p := range r.Peaks {
		if p.Width <= 0 {
			return &ValidationError{
				Field:  "Peaks",
				Reason: fmt.Sprintf("peak %d has non-positive width %v", i, p.Width),
			}
		}
	}
	return nil
}

// ValidationError represents a fit record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether this record can seed a new fit with the given
// config. The data file and peak shape must match; iteration budget and
// checkpointing may differ.
func (r *FitRecord) IsCompatible(config FitConfig) error {
	if r.Config.DataPath != config.DataPath {
		return &CompatibilityError{
			Field:    "DataPath",
			Expected: r.Config.DataPath,
			Actual:   config.DataPath,
		}
	}
	if r.Config.Shape != config.Shape {
		return &CompatibilityError{
			Field:    "Shape",
			Expected: r.Config.Shape,
			Actual:   config.Shape,
		}
	}
	if r.Config.Channel != config.Channel {
		return &CompatibilityError{
			Field:    "Channel",
			Expected: fmt.Sprintf("%d", r.Config.Channel),
			Actual:   fmt.Sprintf("%d", config.Channel),
		}
	}
	return nil
}

// CompatibilityError represents a record/config mismatch on restart.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
