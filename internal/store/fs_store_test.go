package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}

	return store, tempDir
}

// createTestRecord creates a record with test data.
func createTestRecord(jobID string) *FitRecord {
	return &FitRecord{
		JobID: jobID,
		Peaks: []PeakRecord{
			{Shape: "gaussian", Center: 1520.4, Width: 6.2, Amplitude: 0.81, FWHM: 14.6, Area: 12.6},
			{Shape: "gaussian", Center: 1655.1, Width: 9.8, Amplitude: 0.42, FWHM: 23.1, Area: 10.3},
		},
		Baseline:         []float64{0.02, 1e-5},
		Cost:             0.0134,
		ReducedChiSquare: 2.8e-5,
		RSquared:         0.998,
		State:            "converged",
		Converged:        true,
		Iterations:       37,
		Timestamp:        time.Now(),
		Config: FitConfig{
			DataPath:      "testdata/sample.csv",
			Shape:         "gaussian",
			BaselineMode:  "pre-subtract",
			Degree:        1,
			MaxIterations: 200,
		},
	}
}

func TestNewFSStore(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	if store == nil {
		t.Fatal("Expected non-nil store")
	}

	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Fatal("Base directory was not created")
	}
}

func TestSaveResult(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "fit-job-123"
	record := createTestRecord(jobID)

	if err := store.SaveResult(jobID, record); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	expectedPath := filepath.Join(tempDir, "fits", jobID, "result.json")
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Fatalf("Record file was not created at %s", expectedPath)
	}

	// Verify no temp file remains
	tempPath := expectedPath + ".tmp"
	if _, err := os.Stat(tempPath); !os.IsNotExist(err) {
		t.Errorf("Temp file should not exist after save: %s", tempPath)
	}
}

func TestSaveResult_EmptyJobID(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveResult("", createTestRecord("any-id")); err == nil {
		t.Fatal("Expected error for empty jobID")
	}
}

func TestSaveResult_NilRecord(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.SaveResult("fit-job", nil); err == nil {
		t.Fatal("Expected error for nil record")
	}
}

func TestSaveResult_Overwrite(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "fit-job-overwrite"
	first := createTestRecord(jobID)
	first.Cost = 0.5
	first.State = "iterating"
	first.Converged = false

	second := createTestRecord(jobID)
	second.Cost = 0.1

	if err := store.SaveResult(jobID, first); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	if err := store.SaveResult(jobID, second); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	loaded, err := store.LoadResult(jobID)
	if err != nil {
		t.Fatalf("LoadResult failed: %v", err)
	}
	if loaded.Cost != 0.1 {
		t.Errorf("Expected overwritten cost 0.1, got %v", loaded.Cost)
	}
	if loaded.State != "converged" {
		t.Errorf("Expected overwritten state, got %q", loaded.State)
	}
}

func TestLoadResult_RoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "fit-job-roundtrip"
	record := createTestRecord(jobID)

	if err := store.SaveResult(jobID, record); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	loaded, err := store.LoadResult(jobID)
	if err != nil {
		t.Fatalf("LoadResult failed: %v", err)
	}

	if loaded.JobID != record.JobID {
		t.Errorf("JobID mismatch: got %q, want %q", loaded.JobID, record.JobID)
	}
	if len(loaded.Peaks) != len(record.Peaks) {
		t.Fatalf("Peak count mismatch: got %d, want %d", len(loaded.Peaks), len(record.Peaks))
	}
	for i := range loaded.Peaks {
		if loaded.Peaks[i] != record.Peaks[i] {
			t.Errorf("Peak %d mismatch: got %+v, want %+v", i, loaded.Peaks[i], record.Peaks[i])
		}
	}
	if loaded.Cost != record.Cost {
		t.Errorf("Cost mismatch: got %v, want %v", loaded.Cost, record.Cost)
	}
	if loaded.Config != record.Config {
		t.Errorf("Config mismatch: got %+v, want %+v", loaded.Config, record.Config)
	}
	if !loaded.Converged {
		t.Error("Converged flag lost in round trip")
	}
}

func TestLoadResult_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.LoadResult("does-not-exist")
	if err == nil {
		t.Fatal("Expected error for missing record")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLoadResult_Corrupted(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "fit-job-corrupt"
	jobDir := filepath.Join(tempDir, "fits", jobID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		t.Fatalf("Failed to create job dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, "result.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write corrupt file: %v", err)
	}

	_, err := store.LoadResult(jobID)
	if err == nil {
		t.Fatal("Expected error for corrupted record")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("Corrupted record should not report ErrNotFound")
	}
}

func TestListResults_Empty(t *testing.T) {
	store, _ := setupTestStore(t)

	infos, err := store.ListResults()
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("Expected empty list, got %d entries", len(infos))
	}
}

func TestListResults(t *testing.T) {
	store, _ := setupTestStore(t)

	ids := []string{"fit-a", "fit-b", "fit-c"}
	for _, id := range ids {
		if err := store.SaveResult(id, createTestRecord(id)); err != nil {
			t.Fatalf("SaveResult(%s) failed: %v", id, err)
		}
	}

	infos, err := store.ListResults()
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(infos) != len(ids) {
		t.Fatalf("Expected %d records, got %d", len(ids), len(infos))
	}

	seen := make(map[string]bool)
	for _, info := range infos {
		seen[info.JobID] = true
		if info.Peaks != 2 {
			t.Errorf("Record %s: expected 2 peaks, got %d", info.JobID, info.Peaks)
		}
		if info.Shape != "gaussian" {
			t.Errorf("Record %s: expected gaussian shape, got %q", info.JobID, info.Shape)
		}
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("Record %s missing from listing", id)
		}
	}
}

func TestListResults_SkipsCorrupted(t *testing.T) {
	store, tempDir := setupTestStore(t)

	if err := store.SaveResult("fit-good", createTestRecord("fit-good")); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	badDir := filepath.Join(tempDir, "fits", "fit-bad")
	if err := os.MkdirAll(badDir, 0755); err != nil {
		t.Fatalf("Failed to create bad dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "result.json"), []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to write bad file: %v", err)
	}

	infos, err := store.ListResults()
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(infos) != 1 || infos[0].JobID != "fit-good" {
		t.Errorf("Expected only the good record, got %+v", infos)
	}
}

func TestDeleteResult(t *testing.T) {
	store, tempDir := setupTestStore(t)

	jobID := "fit-job-delete"
	if err := store.SaveResult(jobID, createTestRecord(jobID)); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	// Trace file in the same directory must go too
	tw, err := NewTraceWriter(tempDir, jobID, false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}
	tw.Write(TraceEntry{Iteration: 1, Cost: 0.5, Accepted: true, Timestamp: time.Now()})
	tw.Close()

	if err := store.DeleteResult(jobID); err != nil {
		t.Fatalf("DeleteResult failed: %v", err)
	}

	jobDir := filepath.Join(tempDir, "fits", jobID)
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Error("Job directory should be removed")
	}

	_, err = store.LoadResult(jobID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteResult_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.DeleteResult("does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
