package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/onefifth/internal/bench"
	"github.com/cwbudde/onefifth/internal/config"
	"github.com/cwbudde/onefifth/internal/driver"
	"github.com/cwbudde/onefifth/internal/report"
	"github.com/cwbudde/onefifth/internal/store"
)

var (
	benchFlags    jobFlags
	benchTrials   int
	benchWorkers  int
	benchCSVPath  string
	benchPlotPath string
	benchDBPath   string
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Average independent trials into a fitness curve",
	Long: `Runs independent trials of one configuration concurrently. Trial i
uses seed+i. The best fitness per generation is averaged over all trials
and written as a generation,fitness CSV.`,
	RunE: runBench,
}

func init() {
	benchFlags.register(benchCmd.Flags())
	benchCmd.Flags().IntVar(&benchTrials, "trials", config.DefaultTrials, "Number of independent trials")
	benchCmd.Flags().IntVar(&benchWorkers, "workers", runtime.NumCPU(), "Trials run concurrently")
	benchCmd.Flags().StringVar(&benchCSVPath, "out", "fitnesses.csv", "Averaged generation,fitness CSV")
	benchCmd.Flags().StringVar(&benchPlotPath, "plot", "", "Write the averaged curve as PNG")
	benchCmd.Flags().StringVar(&benchDBPath, "db", "", "Record every trial in this SQLite database")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	jc, err := benchFlags.resolve(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	slog.Info("Starting benchmark",
		"objective", jc.Objective,
		"dim", jc.Dim,
		"rule", jc.Rule,
		"generations", jc.Generations,
		"trials", benchTrials,
		"workers", benchWorkers,
	)

	sum, err := bench.Run(ctx, jc, bench.Options{Trials: benchTrials, Workers: benchWorkers})
	if err != nil {
		return err
	}

	if err := report.SaveCSV(benchCSVPath, sum.Curve); err != nil {
		return err
	}
	if benchPlotPath != "" {
		p, err := report.CurvePlot(
			fmt.Sprintf("%s, %d trials", jc.Objective, benchTrials), "mean best fitness", true,
			report.Series{Name: jc.Rule, Values: sum.Curve},
		)
		if err != nil {
			return err
		}
		if err := report.SavePNG(p, benchPlotPath); err != nil {
			return err
		}
	}
	if benchDBPath != "" {
		if err := recordTrials(ctx, benchDBPath, sum); err != nil {
			return err
		}
	}

	finals := sum.BestFitness()
	mean, std := stat.MeanStdDev(finals, nil)
	slog.Info("Benchmark complete",
		"elapsed", sum.Elapsed,
		"mean_best_fitness", mean,
		"std_best_fitness", std,
	)

	fmt.Fprintf(cmd.OutOrStdout(), "%s (dim %d, %d trials): final best fitness %.6g ± %.3g, wrote %s\n",
		jc.Objective, jc.Dim, benchTrials, mean, std, benchCSVPath)
	return nil
}

// recordTrials stores every trial of sum as its own run.
func recordTrials(ctx context.Context, path string, sum *bench.Summary) error {
	history := store.NewSQLiteHistory(path)
	if err := history.Init(ctx); err != nil {
		return err
	}
	defer history.Close()

	now := time.Now()
	for i, res := range sum.Results {
		id := uuid.New().String()
		run := trialSummary(id, sum.Config, bench.Seed(sum.Config, i), res)
		run.CreatedAt = now.Add(time.Duration(i))
		if err := history.SaveRun(ctx, run); err != nil {
			return err
		}
		if err := history.SaveGenerations(ctx, id, res.Logbook); err != nil {
			return err
		}
	}
	slog.Info("Recorded trials", "db", path, "runs", len(sum.Results))
	return nil
}

func trialSummary(id string, jc store.JobConfig, seed int64, res *driver.Result) store.RunSummary {
	return store.RunSummary{
		ID:             id,
		Objective:      jc.Objective,
		Dim:            jc.Dim,
		Rule:           jc.Rule,
		Seed:           seed,
		Generations:    res.Generations,
		Evaluations:    res.Evaluations,
		InitialFitness: res.InitialFitness,
		BestFitness:    res.Best.Fitness,
		StopReason:     res.StopReason,
		Elapsed:        res.Elapsed,
	}
}
