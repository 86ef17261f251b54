package store

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validRecord() *FitRecord {
	return &FitRecord{
		JobID: "fit-valid",
		Peaks: []PeakRecord{
			{Shape: "lorentzian", Center: 1080, Width: 12, Amplitude: 0.3, FWHM: 24, Area: 11.3},
		},
		Cost:       0.02,
		State:      "converged",
		Converged:  true,
		Iterations: 12,
		Timestamp:  time.Now(),
		Config: FitConfig{
			DataPath:      "testdata/sample.csv",
			Shape:         "lorentzian",
			BaselineMode:  "pre-subtract",
			MaxIterations: 200,
		},
	}
}

func TestFitRecordValidate(t *testing.T) {
	if err := validRecord().Validate(); err != nil {
		t.Fatalf("Valid record failed validation: %v", err)
	}
}

func TestFitRecordValidate_Failures(t *testing.T) {
	cases := map[string]func(*FitRecord){
		"empty job id":       func(r *FitRecord) { r.JobID = "" },
		"empty state":        func(r *FitRecord) { r.State = "" },
		"negative cost":      func(r *FitRecord) { r.Cost = -1 },
		"negative iteration": func(r *FitRecord) { r.Iterations = -1 },
		"zero timestamp":     func(r *FitRecord) { r.Timestamp = time.Time{} },
		"empty data path":    func(r *FitRecord) { r.Config.DataPath = "" },
		"empty shape":        func(r *FitRecord) { r.Config.Shape = "" },
		"zero max iters":     func(r *FitRecord) { r.Config.MaxIterations = 0 },
		"bad peak width":     func(r *FitRecord) { r.Peaks[0].Width = 0 },
	}

	for name, corrupt := range cases {
		r := validRecord()
		corrupt(r)
		err := r.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", name)
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %T", name, err)
		}
	}
}

func TestFitRecordValidate_NoPeaksAllowed(t *testing.T) {
	// A record with zero peaks is a legitimate outcome on a flat spectrum.
	r := validRecord()
	r.Peaks = nil
	if err := r.Validate(); err != nil {
		t.Errorf("Record without peaks should validate, got %v", err)
	}
}

func TestToInfo(t *testing.T) {
	r := validRecord()
	info := r.ToInfo()

	if info.JobID != r.JobID {
		t.Errorf("JobID mismatch: %q vs %q", info.JobID, r.JobID)
	}
	if info.Peaks != 1 {
		t.Errorf("Expected 1 peak in info, got %d", info.Peaks)
	}
	if info.Cost != r.Cost {
		t.Errorf("Cost mismatch: %v vs %v", info.Cost, r.Cost)
	}
	if info.Shape != "lorentzian" {
		t.Errorf("Expected lorentzian shape, got %q", info.Shape)
	}
	if info.DataPath != r.Config.DataPath {
		t.Errorf("DataPath mismatch: %q vs %q", info.DataPath, r.Config.DataPath)
	}
	if !info.Converged {
		t.Error("Converged flag lost in ToInfo")
	}
}

func TestIsCompatible(t *testing.T) {
	r := validRecord()

	if err := r.IsCompatible(r.Config); err != nil {
		t.Fatalf("Identical config should be compatible: %v", err)
	}

	// Iteration budget and checkpointing may change on restart
	relaxed := r.Config
	relaxed.MaxIterations = 1000
	relaxed.CheckpointInterval = 30
	if err := r.IsCompatible(relaxed); err != nil {
		t.Errorf("Budget changes should be compatible: %v", err)
	}
}

func TestIsCompatible_Mismatches(t *testing.T) {
	r := validRecord()

	cases := map[string]FitConfig{
		"DataPath": func() FitConfig { c := r.Config; c.DataPath = "other.csv"; return c }(),
		"Shape":    func() FitConfig { c := r.Config; c.Shape = "voigt"; return c }(),
		"Channel":  func() FitConfig { c := r.Config; c.Channel = 2; return c }(),
	}

	for field, cfg := range cases {
		err := r.IsCompatible(cfg)
		if err == nil {
			t.Errorf("%s mismatch: expected error", field)
			continue
		}
		var cerr *CompatibilityError
		if !errors.As(err, &cerr) {
			t.Errorf("%s mismatch: expected CompatibilityError, got %T", field, err)
			continue
		}
		if cerr.Field != field {
			t.Errorf("Expected field %q in error, got %q", field, cerr.Field)
		}
		if !strings.Contains(err.Error(), field) {
			t.Errorf("Error message should mention %q: %s", field, err.Error())
		}
	}
}

func TestNewFitRecord(t *testing.T) {
	peaks := []PeakRecord{{Shape: "gaussian", Center: 900, Width: 4, Amplitude: 1.1, FWHM: 9.4, Area: 11}}
	cfg := FitConfig{DataPath: "d.csv", Shape: "gaussian", MaxIterations: 50}

	before := time.Now()
	r := NewFitRecord("fit-new", peaks, []float64{0.1}, 0.004, "converged", true, 9, cfg)
	after := time.Now()

	if r.JobID != "fit-new" {
		t.Errorf("JobID not set: %q", r.JobID)
	}
	if r.Timestamp.Before(before) || r.Timestamp.After(after) {
		t.Errorf("Timestamp %v outside [%v, %v]", r.Timestamp, before, after)
	}
	if err := r.Validate(); err != nil {
		t.Errorf("Constructed record should validate: %v", err)
	}
}

func TestNotFoundErrorIs(t *testing.T) {
	err := &NotFoundError{JobID: "fit-x"}

	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError with JobID should match ErrNotFound")
	}
	if !strings.Contains(err.Error(), "fit-x") {
		t.Errorf("Error should mention the job id: %s", err.Error())
	}
	if errors.Is(errors.New("other"), ErrNotFound) {
		t.Error("Unrelated error must not match ErrNotFound")
	}
}
