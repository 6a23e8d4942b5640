package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cwbudde/onefifth/internal/config"
	"github.com/cwbudde/onefifth/internal/driver"
	"github.com/cwbudde/onefifth/internal/report"
	"github.com/cwbudde/onefifth/internal/store"
)

// localRun is one optimization executed in this process.
type localRun struct {
	jobID          string
	setup          *config.Setup
	initialFitness float64
	baseEvals      int // evaluations done before this process started

	store     store.Store // nil disables checkpoints
	every     int         // checkpoint interval in generations, 0 = final only
	tracePath string      // empty disables the trace
	resumed   bool        // append to an existing trace

	checkpointed bool // a checkpoint was saved by this process
}

// newLocalRun prepares a fresh run and evaluates its starting point.
func newLocalRun(jobID string, jc store.JobConfig) (*localRun, error) {
	setup, err := config.Prepare(jc, jc.Seed)
	if err != nil {
		return nil, err
	}
	fitness := setup.Benchmark.Func(setup.Strategy.Parent().X)
	if err := setup.Strategy.SetParentFitness(fitness); err != nil {
		return nil, fmt.Errorf("failed to evaluate starting point: %w", err)
	}
	return &localRun{
		jobID:          jobID,
		setup:          setup,
		initialFitness: fitness,
		baseEvals:      1,
		every:          jc.CheckpointEvery,
	}, nil
}

// resumeLocalRun rebuilds a run from a checkpoint.
func resumeLocalRun(cp *store.Checkpoint, jc store.JobConfig) (*localRun, error) {
	setup, err := config.PrepareResume(cp, jc)
	if err != nil {
		return nil, err
	}
	return &localRun{
		jobID:          cp.JobID,
		setup:          setup,
		initialFitness: cp.InitialFitness,
		baseEvals:      cp.Evaluations,
		every:          jc.CheckpointEvery,
		resumed:        true,
	}, nil
}

// execute runs the driver. When a store is set, a checkpoint is written every
// lr.every generations and once more when the run ends, including on
// cancellation.
func (lr *localRun) execute(ctx context.Context) (*driver.Result, error) {
	opts := lr.setup.Options

	if lr.tracePath != "" {
		tw, err := store.OpenTraceWriter(lr.tracePath, lr.resumed)
		if err != nil {
			return nil, err
		}
		defer tw.Close()
		opts.Observers = append(opts.Observers, tw.Observe)
	}

	var last driver.Record
	opts.Observers = append(opts.Observers, func(r driver.Record) error {
		last = r
		if lr.store != nil && lr.every > 0 && r.Generation%lr.every == 0 {
			return lr.checkpoint(r)
		}
		return nil
	})

	res, err := driver.Run(ctx, lr.setup.Strategy, lr.setup.Benchmark.Func, opts)
	if res != nil && len(res.Logbook) > 0 && lr.store != nil {
		if cerr := lr.checkpoint(last); cerr != nil {
			slog.Error("Failed to save checkpoint", "job_id", lr.jobID, "error", cerr)
		}
	}
	return res, err
}

func (lr *localRun) checkpoint(r driver.Record) error {
	cp := store.NewCheckpoint(
		lr.jobID,
		lr.setup.Strategy.State(),
		r.Best,
		lr.initialFitness,
		lr.baseEvals+r.Evaluations,
		lr.setup.Config,
	)
	if err := lr.store.SaveCheckpoint(lr.jobID, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	lr.checkpointed = true
	slog.Debug("Checkpoint saved", "job_id", lr.jobID, "generation", r.Generation)
	return nil
}

// reportInterrupt tells the user how to continue an interrupted run. The
// resume command is only suggested when a checkpoint exists.
func reportInterrupt(w io.Writer, lr *localRun, dataDir string) {
	switch {
	case lr.checkpointed:
		fmt.Fprintf(w, "Interrupted; resume with: onefifth resume %s --data-dir %s\n", lr.jobID, dataDir)
	case lr.store != nil:
		fmt.Fprintln(w, "Interrupted before the first generation completed; no checkpoint was saved")
	}
}

// writeOutputs saves the optional fitness curve CSV and plot of a run.
func writeOutputs(title string, lb driver.Logbook, csvPath, plotPath string) error {
	if csvPath != "" {
		if err := report.SaveCSV(csvPath, lb.BestCurve()); err != nil {
			return err
		}
	}
	if plotPath != "" {
		p, err := report.FitnessPlot(title, lb)
		if err != nil {
			return err
		}
		if err := report.SavePNG(p, plotPath); err != nil {
			return err
		}
	}
	return nil
}
