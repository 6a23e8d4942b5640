package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/cwbudde/onefifth/internal/store"
)

var (
	resumeDataDir     string
	resumeGenerations int
	resumeTracePath   string
	resumeCSVPath     string
	resumePlotPath    string
)

var resumeCmd = &cobra.Command{
	Use:   "resume [job-id]",
	Short: "Resume an optimization from its checkpoint",
	Long: `Continues a run from the checkpoint saved under its job ID. The
generation budget counts from the start of the original run; pass
--generations to extend it. The checkpoint is updated as the run goes on.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&resumeDataDir, "data-dir", "./data", "Base directory for checkpoint storage")
	resumeCmd.Flags().IntVar(&resumeGenerations, "generations", 0, "New total generation budget (0 = keep the checkpointed budget)")
	resumeCmd.Flags().StringVar(&resumeTracePath, "trace", "", "Append one JSON record per generation to this file")
	resumeCmd.Flags().StringVar(&resumeCSVPath, "csv", "", "Write the best-fitness curve of the resumed generations as CSV")
	resumeCmd.Flags().StringVar(&resumePlotPath, "plot", "", "Write the best-fitness curve of the resumed generations as PNG")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	checkpointStore, err := store.NewFSStore(resumeDataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	cp, err := checkpointStore.LoadCheckpoint(jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no checkpoint for job %s in %s", jobID, resumeDataDir)
		}
		return err
	}

	jc := cp.Config
	if resumeGenerations > 0 {
		jc.Generations = resumeGenerations
	}

	lr, err := resumeLocalRun(cp, jc)
	if err != nil {
		return err
	}
	lr.store = checkpointStore
	lr.tracePath = resumeTracePath

	slog.Info("Resuming optimization",
		"job_id", jobID,
		"generation", cp.State.Generation,
		"generations", jc.Generations,
		"best_fitness", cp.BestFitness,
		"sigma", cp.State.Sigma,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, err := lr.execute(ctx)
	if err != nil {
		return err
	}

	slog.Info("Optimization complete",
		"job_id", jobID,
		"elapsed", res.Elapsed,
		"generations", res.Final.Generation,
		"evaluations", lr.baseEvals+res.Evaluations,
		"best_fitness", res.Best.Fitness,
		"stop_reason", res.StopReason,
	)

	if err := writeOutputs(jc.Objective, res.Logbook, resumeCSVPath, resumePlotPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: fitness %.6g -> %.6g at generation %d (%s)\n",
		jobID, cp.BestFitness, res.Best.Fitness, res.Final.Generation, res.StopReason)
	return nil
}
