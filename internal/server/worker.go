package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/cwbudde/onefifth/internal/config"
	"github.com/cwbudde/onefifth/internal/driver"
	"github.com/cwbudde/onefifth/internal/report"
	"github.com/cwbudde/onefifth/internal/store"
)

// eventRetention is how long the final event of a job stays cached for
// stream clients that connect late.
const eventRetention = 30 * time.Second

// runner executes jobs. Both dependencies are optional: without a store no
// checkpoints, traces or plots are written, and without a history finished
// runs are not recorded.
type runner struct {
	jm        *JobManager
	store     store.Store
	history   *store.SQLiteHistory
	retention time.Duration // 0 means eventRetention
}

// runJob executes an optimization job in the background.
// If the runner has a store, the generation trace is written to the job
// directory, a checkpoint is saved every CheckpointEvery generations and once
// more when the job ends, and the fitness plot is saved on completion.
func (rn *runner) runJob(ctx context.Context, jobID string) error {
	jm := rn.jm

	// Get the job
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	setup, baseEvals, initialFitness, err := rn.prepare(job)
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	// Update state to running
	initial := setup.Strategy.State()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
		j.InitialFitness = initialFitness
		j.BestFitness = initial.Parent.Fitness
		j.Best = initial.Parent.X
		j.Sigma = initial.Sigma
		j.PSucc = initial.PSucc
		j.Generation = initial.Generation
		j.Evaluations = baseEvals
		j.strategyState = initial
	})
	if err != nil {
		return err
	}

	slog.Info("Starting job",
		"job_id", jobID,
		"objective", job.Config.Objective,
		"dim", job.Config.Dim,
		"rule", job.Config.Rule,
		"resumed_from", job.ResumedFrom,
	)

	// Check for cancellation before starting
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	opts := setup.Options
	opts.Observers = append(opts.Observers, func(r driver.Record) error {
		st := setup.Strategy.State()
		return jm.UpdateJob(jobID, func(j *Job) {
			j.Generation = r.Generation
			j.Evaluations = baseEvals + r.Evaluations
			j.BestFitness = r.Best
			j.Best = st.Parent.X
			j.Sigma = r.Sigma
			j.PSucc = r.PSucc
			j.logbook = append(j.logbook, r)
			j.strategyState = st
		})
	})

	if rn.store != nil {
		tw, err := store.OpenTraceWriter(filepath.Join(rn.store.JobDir(jobID), store.TraceFileName), false)
		if err != nil {
			markJobFailed(jm, jobID, err)
			return err
		}
		defer tw.Close()
		opts.Observers = append(opts.Observers, tw.Observe)

		if every := job.Config.CheckpointEvery; every > 0 {
			opts.Observers = append(opts.Observers, func(r driver.Record) error {
				if r.Generation%every != 0 {
					return nil
				}
				if err := rn.saveCheckpoint(jobID); err != nil {
					slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
				}
				return nil
			})
		}
	}

	// Start progress monitoring goroutine
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, progressDone)

	res, err := driver.Run(ctx, setup.Strategy, setup.Benchmark.Func, opts)
	close(progressDone)

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			rn.finalCheckpoint(jobID)
			markJobCancelled(jm, jobID)
			rn.broadcastFinal(jobID)
			return err
		}
		markJobFailed(jm, jobID, err)
		rn.broadcastFinal(jobID)
		return err
	}

	// Artifacts are written before the job is reported complete
	rn.finalCheckpoint(jobID)
	if err := rn.savePlot(jobID, res.Logbook); err != nil {
		slog.Warn("Failed to save plot", "job_id", jobID, "error", err)
	}
	if err := rn.recordHistory(ctx, jobID, res); err != nil {
		slog.Warn("Failed to record run history", "job_id", jobID, "error", err)
	}

	// Update job with results
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Best = res.Best.X
		j.BestFitness = res.Best.Fitness
		j.StopReason = res.StopReason
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", res.Elapsed,
		"generations", res.Generations,
		"initial_fitness", initialFitness,
		"best_fitness", res.Best.Fitness,
		"stop_reason", res.StopReason,
		"acceptance_rate", res.Logbook.AcceptanceRate(),
	)

	// Broadcast final completion event
	rn.broadcastFinal(jobID)
	return nil
}

// prepare builds the run of a job. For fresh jobs the starting point is
// evaluated here so its fitness is known before the first generation.
func (rn *runner) prepare(job Job) (*config.Setup, int, float64, error) {
	if job.ResumedFrom == "" {
		setup, err := config.Prepare(job.Config, job.Config.Seed)
		if err != nil {
			return nil, 0, 0, err
		}
		fitness := setup.Benchmark.Func(setup.Strategy.Parent().X)
		if err := setup.Strategy.SetParentFitness(fitness); err != nil {
			return nil, 0, 0, fmt.Errorf("failed to evaluate starting point: %w", err)
		}
		return setup, 1, fitness, nil
	}

	if rn.store == nil {
		return nil, 0, 0, errors.New("resuming requires a checkpoint store")
	}
	cp, err := rn.store.LoadCheckpoint(job.ResumedFrom)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	setup, err := config.PrepareResume(cp, job.Config)
	if err != nil {
		return nil, 0, 0, err
	}
	return setup, cp.Evaluations, cp.InitialFitness, nil
}

// monitorProgress periodically broadcasts progress events during optimization
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
			jm.broadcaster.Broadcast(progressEvent(job))
		}
	}
}

// broadcastFinal publishes the terminal state of a job and releases its
// stream resources once the retention period has passed.
func (rn *runner) broadcastFinal(jobID string) {
	if job, ok := rn.jm.GetJob(jobID); ok {
		rn.jm.broadcaster.Broadcast(progressEvent(job))
	}
	retention := rn.retention
	if retention <= 0 {
		retention = eventRetention
	}
	time.AfterFunc(retention, func() {
		rn.jm.broadcaster.CleanupJob(jobID)
	})
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
		j.StopReason = driver.StopCancelled
		j.EndTime = &endTime
	})
	slog.Info("Job cancelled", "job_id", jobID)
}

func (rn *runner) finalCheckpoint(jobID string) {
	if rn.store == nil {
		return
	}
	if err := rn.saveCheckpoint(jobID); err != nil {
		slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
	}
}

// saveCheckpoint saves a checkpoint for the given job from the strategy
// state of its last completed generation
func (rn *runner) saveCheckpoint(jobID string) error {
	job, exists := rn.jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Skip if no generation has completed in this run yet
	if len(job.Logbook()) == 0 {
		slog.Debug("Skipping checkpoint, no generation completed yet", "job_id", jobID)
		return nil
	}

	state := job.strategyState
	checkpoint := store.NewCheckpoint(
		jobID,
		state,
		job.BestFitness,
		job.InitialFitness,
		job.Evaluations,
		job.Config,
	)
	if err := rn.store.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"generation", state.Generation,
		"best_fitness", job.BestFitness,
	)
	return nil
}

func (rn *runner) savePlot(jobID string, lb driver.Logbook) error {
	if rn.store == nil || len(lb) == 0 {
		return nil
	}
	p, err := report.FitnessPlot(jobID, lb)
	if err != nil {
		return err
	}
	_, err = rn.store.WriteArtifact(jobID, "plot.png", func(w io.Writer) error {
		return report.WritePNG(p, w)
	})
	return err
}

func (rn *runner) recordHistory(ctx context.Context, jobID string, res *driver.Result) error {
	if rn.history == nil {
		return nil
	}
	job, exists := rn.jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	err := rn.history.SaveRun(ctx, store.RunSummary{
		ID:             jobID,
		Objective:      job.Config.Objective,
		Dim:            job.Config.Dim,
		Rule:           job.Config.Rule,
		Seed:           job.Config.Seed,
		Generations:    res.Final.Generation,
		Evaluations:    job.Evaluations,
		InitialFitness: job.InitialFitness,
		BestFitness:    res.Best.Fitness,
		StopReason:     res.StopReason,
		Elapsed:        res.Elapsed,
	})
	if err != nil {
		return err
	}
	return rn.history.SaveGenerations(ctx, jobID, res.Logbook)
}
