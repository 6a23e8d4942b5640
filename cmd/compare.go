package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/onefifth/internal/bench"
	"github.com/cwbudde/onefifth/internal/config"
	"github.com/cwbudde/onefifth/internal/opt"
)

var (
	compareFlags jobFlags
	mayflyIters  int
	mayflyPop    int
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the evolution strategy with the Mayfly baseline",
	Long: `Runs the evolution strategy and the population-based Mayfly algorithm
on the same objective, bounds and seed and reports cost and evaluations.`,
	RunE: runCompare,
}

func init() {
	compareFlags.register(compareCmd.Flags())
	compareCmd.Flags().IntVar(&mayflyIters, "mayfly-iters", 100, "Mayfly iterations")
	compareCmd.Flags().IntVar(&mayflyPop, "mayfly-pop", 20, "Mayfly population size")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	jc, err := compareFlags.resolve(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.StrategyConfig(jc)
	if err != nil {
		return err
	}

	entries, err := bench.Compare(cmd.Context(), jc,
		opt.NewES(jc.Generations, jc.Lambda, cfg, jc.Seed),
		opt.NewMayfly(mayflyIters, mayflyPop, jc.Seed),
	)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPTIMIZER\tEVALUATIONS\tINITIAL COST\tBEST COST\tELAPSED")
	fmt.Fprintln(w, "---------\t-----------\t------------\t---------\t-------")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%d\t%.6g\t%.6g\t%s\n",
			e.Name,
			e.Result.Evaluations,
			e.Result.InitialCost,
			e.Result.Cost,
			e.Elapsed.Round(time.Microsecond),
		)
	}
	return w.Flush()
}
