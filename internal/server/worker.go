package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bebuch/localmin/internal/objective"
	"github.com/bebuch/localmin/internal/solve"
	"github.com/bebuch/localmin/internal/store"
)

// runJob executes a minimization job in the background. The server owns the
// objective (parsed from the job's expression) and drives the
// reverse-communication loop through the solve driver.
//
// When dataDir is non-empty, every evaluation is appended to the job's trace
// and, if the job asks for it, checkpoints are saved periodically.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, dataDir, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "expr", job.Config.Expr,
		"low", job.Config.Low, "high", job.Config.High)

	f, err := objective.Parse(job.Config.Expr)
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

	start := time.Now()

	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, start, progressDone)

	var checkpointDone chan struct{}
	checkpointing := checkpointStore != nil && job.Config.CheckpointInterval > 0
	if checkpointing {
		checkpointDone = make(chan struct{})
		go monitorCheckpoints(ctx, jm, checkpointStore, jobID, checkpointDone)
	}

	opts := solve.Options{
		MaxEvals: job.Config.MaxEvals,
		OnEval: func(p solve.Progress) error {
			jm.UpdateJob(jobID, func(j *Job) {
				j.Evaluations = p.Evaluations
				j.BestX = p.Solver.X
				j.BestValue = p.Solver.FX
				j.Low = p.Solver.Low
				j.High = p.Solver.High
				j.solver = p.Solver
			})
			if trace != nil {
				entry := store.TraceEntry{
					Eval:      p.Evaluations,
					X:         p.X,
					FX:        p.FX,
					Low:       p.Solver.Low,
					High:      p.Solver.High,
					Timestamp: time.Now(),
				}
				if err := trace.Write(entry); err != nil {
					slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
				}
			}
			return nil
		},
	}

	result, err := solve.Minimize(ctx, f, job.Config.Low, job.Config.High, opts)

	close(progressDone)
	if checkpointing {
		close(checkpointDone)
	}
	elapsed := time.Since(start)

	if trace != nil {
		if err := trace.Flush(); err != nil {
			slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			markJobCancelled(jm, jobID)
		} else {
			markJobFailed(jm, jobID, err)
		}
		return err
	}

	endTime := time.Now()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.BestX = result.Minimizer
		j.BestValue = result.Value
		j.Evaluations = result.Evaluations
		j.Low = result.Low
		j.High = result.High
		j.Converged = result.Converged
		j.EndTime = &endTime
	}); err != nil {
		return err
	}

	// One final checkpoint so a completed (or budget-capped) search is on
	// disk with its terminal state.
	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
			slog.Warn("Failed to save final checkpoint", "job_id", jobID, "error", err)
		}
	}

	eps := float64(result.Evaluations) / elapsed.Seconds()
	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"minimizer", result.Minimizer,
		"value", result.Value,
		"evaluations", result.Evaluations,
		"converged", result.Converged,
	)

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:       jobID,
		State:       StateCompleted,
		Evaluations: result.Evaluations,
		BestX:       result.Minimizer,
		BestValue:   result.Value,
		Width:       result.High - result.Low,
		EPS:         eps,
		Timestamp:   time.Now(),
	})

	return nil
}

// monitorProgress periodically broadcasts progress events while a job runs.
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
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

			elapsed := time.Since(startTime).Seconds()
			var eps float64
			if elapsed > 0 {
				eps = float64(job.Evaluations) / elapsed
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:       jobID,
				State:       job.State,
				Evaluations: job.Evaluations,
				BestX:       job.BestX,
				BestValue:   job.BestValue,
				Width:       job.High - job.Low,
				EPS:         eps,
				Timestamp:   time.Now(),
			})
		}
	}
}

// monitorCheckpoints periodically saves checkpoints while a job runs.
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
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
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint snapshots the job's current solver state to the store.
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if job.Evaluations == 0 {
		// Nothing worth persisting before the first evaluation.
		return nil
	}

	checkpoint := store.NewCheckpoint(jobID, job.solver, job.Evaluations, job.Config)
	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Debug("Checkpoint saved", "job_id", jobID, "evaluations", job.Evaluations)
	return nil
}

// markJobFailed marks a job as failed with an error message.
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled.
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}
