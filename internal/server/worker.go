package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evofit/evofit/internal/evolve"
	"github.com/evofit/evofit/internal/phrase"
	"github.com/evofit/evofit/internal/store"
)

// runJob executes an optimization job in the background. If resultStore is
// not nil, the final record and a per-generation score trace are persisted
// under dataDir.
func runJob(ctx context.Context, jm *JobManager, resultStore store.Store, dataDir, jobID string) error {
	// Get the job
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Update state to running
	err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job", "job_id", jobID, "target", job.Config.Target, "pop_size", job.Config.PopSize)

	// Build the optimization domain
	env, err := phrase.NewEnvironment(job.Config.Target, job.Config.Seed)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to create environment: %w", err))
		return err
	}

	engine, err := evolve.New[*phrase.Text](job.Config.PopSize)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to create engine: %w", err))
		return err
	}

	// Trace is best effort: the run proceeds even if the trace file fails
	var trace *store.TraceWriter
	if resultStore != nil && dataDir != "" {
		trace, err = store.NewTraceWriter(dataDir, jobID)
		if err != nil {
			slog.Warn("Failed to create trace writer", "job_id", jobID, "error", err)
			trace = nil
		}
	}
	if trace != nil {
		defer trace.Close()
	}

	// Start progress monitoring goroutine
	start := time.Now()
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, start, progressDone)

	eliteCount := int(float64(job.Config.PopSize) * job.Config.EliteFraction)
	if eliteCount < 0 {
		eliteCount = 0
	}
	out := make([]*phrase.Text, eliteCount)

	observer := &jobObserver{jm: jm, jobID: jobID, trace: trace}

	result, err := engine.Run(ctx, evolve.RunConfig{
		MaxGenerations: job.Config.Generations,
		MinError:       job.Config.MinError,
		EliteFraction:  job.Config.EliteFraction,
		Seed:           job.Config.Seed,
		Parallelism:    job.Config.Parallelism,
	}, env, observer, phrase.DefaultStrategies(), out)

	close(progressDone)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			markJobCancelled(jm, jobID)
			return ctx.Err()
		}
		markJobFailed(jm, jobID, err)
		return err
	}

	best := make([]string, result.Count)
	for i := 0; i < result.Count; i++ {
		best[i] = out[i].String()
	}

	// Update job with results
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Best = best
		j.BestScore = result.BestScore
		j.Generation = result.Generations
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	if trace != nil {
		if err := trace.Flush(); err != nil {
			slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
		}
	}

	// Persist the final record. Failure to persist does not fail the job;
	// the in-memory result remains queryable.
	if resultStore != nil {
		record := store.NewRunRecord(jobID, best, result.BestScore, result.Generations, job.Config)
		if err := resultStore.SaveResult(jobID, record); err != nil {
			slog.Warn("Failed to save run record", "job_id", jobID, "error", err)
		}
	}

	gps := float64(result.Generations) / elapsed.Seconds()

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"generations", result.Generations,
		"best_score", result.BestScore,
		"generations_per_second", gps,
	)

	// Broadcast final completion event
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:      jobID,
		State:      StateCompleted,
		Generation: result.Generations,
		BestScore:  result.BestScore,
		GPS:        gps,
		Timestamp:  time.Now(),
	})

	return nil
}

// jobObserver receives the ranked elite once per generation and mirrors the
// progress into the job and the score trace.
type jobObserver struct {
	jm    *JobManager
	jobID string
	trace *store.TraceWriter
}

func (o *jobObserver) Visit(generation int, elite []*phrase.Text, scores []float64) {
	o.jm.UpdateJob(o.jobID, func(j *Job) {
		j.Generation = generation
		j.BestScore = scores[0]
	})

	if o.trace != nil {
		entry := store.TraceEntry{
			Generation: generation,
			BestScore:  scores[0],
			Timestamp:  time.Now(),
		}
		if err := o.trace.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "job_id", o.jobID, "error", err)
		}
	}
}

// monitorProgress periodically broadcasts progress events during optimization
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Get current job state
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			elapsed := time.Since(startTime).Seconds()

			var gps float64
			if elapsed > 0 && job.Generation > 0 {
				gps = float64(job.Generation) / elapsed
			}

			// Broadcast progress event
			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:      jobID,
				State:      job.State,
				Generation: job.Generation,
				BestScore:  job.BestScore,
				GPS:        gps,
				Timestamp:  time.Now(),
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
	slog.Error("Job failed", "job_id", jobID, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}
