package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/onefifth/internal/store"
)

var (
	runFlags        jobFlags
	tracePath       string
	checkpointDir   string
	checkpointEvery int
	runCSVPath      string
	runPlotPath     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single optimization",
	Long: `Runs one evolution strategy optimization and prints the result.
Each generation is logged at debug level. Optionally writes a JSONL trace,
checkpoints that can be resumed, and the fitness curve as CSV and PNG.`,
	RunE: runOptimization,
}

func init() {
	runFlags.register(runCmd.Flags())
	runCmd.Flags().StringVar(&tracePath, "trace", "", "Write one JSON record per generation to this file")
	runCmd.Flags().StringVar(&checkpointDir, "checkpoint", "", "Data directory for checkpoints (empty = no checkpoints)")
	runCmd.Flags().IntVar(&checkpointEvery, "checkpoint-every", 0, "Checkpoint every N generations (0 = only at the end)")
	runCmd.Flags().StringVar(&runCSVPath, "csv", "", "Write the best-fitness curve as generation,fitness CSV")
	runCmd.Flags().StringVar(&runPlotPath, "plot", "", "Write the best-fitness curve as PNG")
	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	jc, err := runFlags.resolve(cmd.Flags())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("checkpoint-every") {
		jc.CheckpointEvery = checkpointEvery
	}

	jobID := uuid.New().String()
	lr, err := newLocalRun(jobID, jc)
	if err != nil {
		return err
	}
	lr.tracePath = tracePath
	if checkpointDir != "" {
		lr.store, err = store.NewFSStore(checkpointDir)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
	}

	slog.Info("Starting optimization",
		"job_id", jobID,
		"objective", jc.Objective,
		"dim", jc.Dim,
		"rule", jc.Rule,
		"generations", jc.Generations,
		"seed", jc.Seed,
		"initial_fitness", lr.initialFitness,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, err := lr.execute(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			reportInterrupt(cmd.OutOrStdout(), lr, checkpointDir)
		}
		return err
	}

	slog.Info("Optimization complete",
		"job_id", jobID,
		"elapsed", res.Elapsed,
		"generations", res.Generations,
		"evaluations", lr.baseEvals+res.Evaluations,
		"initial_fitness", lr.initialFitness,
		"best_fitness", res.Best.Fitness,
		"final_sigma", res.Final.Sigma,
		"acceptance_rate", res.Logbook.AcceptanceRate(),
		"stop_reason", res.StopReason,
	)

	if err := writeOutputs(jc.Objective, res.Logbook, runCSVPath, runPlotPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (dim %d): fitness %.6g -> %.6g after %d generations (%s, sigma %.3g)\n",
		jc.Objective, jc.Dim, lr.initialFitness, res.Best.Fitness, res.Generations, res.StopReason, res.Final.Sigma)
	if lr.store != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint: %s\n", jobID)
	}
	return nil
}
