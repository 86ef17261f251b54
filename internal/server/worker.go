package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/GuilleTCast/fittingo/internal/engine"
	"github.com/GuilleTCast/fittingo/internal/specio"
	"github.com/GuilleTCast/fittingo/internal/store"
)

// runJob executes a fit job in the background.
// If resultStore is not nil, the final record is persisted there; with
// CheckpointInterval > 0 intermediate records are saved periodically too.
// A non-empty dataDir enables the per-iteration trace file.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, dataDir, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}

	slog.Info("Starting fit job", "job_id", jobID, "data", job.Config.DataPath)

	spec, err := specio.ReadFile(job.Config.DataPath)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to read spectrum: %w", err))
		return err
	}

	if job.Config.Channel > 0 {
		spec, err = spec.Channel(job.Config.Channel)
		if err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
	}

	slog.Info("Loaded spectrum", "job_id", jobID, "samples", spec.Len())

	engCfg, detCfg, err := configsFromJob(job.Config)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	var trace *store.TraceWriter
	if dataDir != "" {
		trace, err = store.NewTraceWriter(dataDir, jobID, false)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
		} else {
			defer trace.Close()
		}
	}

	engCfg.OnProgress = func(p engine.Progress) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations = p.Iteration
			j.BestCost = p.Cost
		})
		if trace != nil {
			trace.Write(store.TraceEntry{
				Iteration: p.Iteration,
				Cost:      p.Cost,
				Lambda:    p.Lambda,
				Accepted:  p.Accepted,
				Timestamp: time.Now(),
			})
		}
	}

	// Check for cancellation before starting the expensive part
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	start := time.Now()

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	var checkpointDone chan struct{}
	if resultStore != nil && job.Config.CheckpointInterval > 0 {
		checkpointDone = make(chan struct{})
		go monitorCheckpoints(ctx, jm, resultStore, trace, jobID, checkpointDone)
	}

	result, err := engine.Deconvolve(ctx, spec, engCfg, detCfg, nil)

	close(progressDone)
	if checkpointDone != nil {
		close(checkpointDone)
	}
	elapsed := time.Since(start)

	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	if trace != nil {
		trace.Flush()
	}

	if result.State == engine.StateAborted {
		// Best model so far still gets persisted for inspection
		if resultStore != nil {
			if saveErr := resultStore.SaveResult(jobID, recordFromResult(jobID, result, job.Config)); saveErr != nil {
				slog.Warn("Failed to save aborted fit record", "job_id", jobID, "error", saveErr)
			}
		}
		markJobCancelled(jm, jobID)
		return nil
	}

	endTime := time.Now()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Peaks = peakRecords(result.Peaks)
		j.Baseline = result.Model.Baseline.Coeffs
		j.BestCost = result.Cost
		j.Iterations = result.Iterations
		j.Converged = result.Converged
		j.EndTime = &endTime
	}); err != nil {
		return err
	}

	if resultStore != nil {
		if err := resultStore.SaveResult(jobID, recordFromResult(jobID, result, job.Config)); err != nil {
			slog.Error("Failed to save fit record", "job_id", jobID, "error", err)
		}
	}

	slog.Info("Fit job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"state", result.State,
		"converged", result.Converged,
		"iterations", result.Iterations,
		"peaks", len(result.Peaks),
		"cost", result.Cost,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Iteration: result.Iterations,
		BestCost:  result.Cost,
		Timestamp: time.Now(),
	})

	return nil
}

// monitorProgress periodically broadcasts progress events while a fit runs
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:     jobID,
				State:     job.State,
				Iteration: job.Iterations,
				BestCost:  job.BestCost,
				Timestamp: time.Now(),
			})
		}
	}
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Fit job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Fit job cancelled", "job_id", jobID)
}

// monitorCheckpoints periodically saves intermediate records while a fit runs
func monitorCheckpoints(ctx context.Context, jm *JobManager, resultStore store.Store, trace *store.TraceWriter, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	interval := time.Duration(job.Config.CheckpointInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, resultStore, trace, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint persists the current best state of a running job
func saveCheckpoint(jm *JobManager, resultStore store.Store, trace *store.TraceWriter, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if job.Iterations == 0 {
		slog.Debug("Skipping checkpoint, no iterations yet", "job_id", jobID)
		return nil
	}

	record, err := recordFromJob(job)
	if err != nil {
		return err
	}
	if err := resultStore.SaveResult(jobID, record); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	// Flush the trace alongside so the history on disk matches the record
	if trace != nil {
		if err := trace.Flush(); err != nil {
			slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
		}
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"iteration", job.Iterations,
		"best_cost", job.BestCost,
	)

	return nil
}
