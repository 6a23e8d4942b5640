// Package bench runs repeated independent trials of one configuration and
// compares optimizers on a shared objective.
package bench

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/cwbudde/onefifth/internal/config"
	"github.com/cwbudde/onefifth/internal/driver"
	"github.com/cwbudde/onefifth/internal/objective"
	"github.com/cwbudde/onefifth/internal/opt"
	"github.com/cwbudde/onefifth/internal/store"
)

// Options controls a benchmark.
type Options struct {
	Trials  int
	Workers int // 0 = runtime.NumCPU()

	// Observe, if set, is called once per finished trial from the trial's
	// goroutine.
	Observe func(trial int, res *driver.Result)
}

// Summary is the outcome of a benchmark.
type Summary struct {
	Config  store.JobConfig
	Results []*driver.Result // indexed by trial
	Curve   []float64        // best fitness per generation, averaged over trials
	Elapsed time.Duration
}

// Seed returns the seed of the given trial.
func Seed(jc store.JobConfig, trial int) int64 {
	return jc.Seed + int64(trial)
}

// Run executes opts.Trials independent runs of jc. Trial i draws its start
// point and mutations from its own stream seeded with Seed(jc, i). The
// first failing trial cancels the rest.
func Run(ctx context.Context, jc store.JobConfig, opts Options) (*Summary, error) {
	if opts.Trials < 1 {
		return nil, fmt.Errorf("trials must be at least 1, got %d", opts.Trials)
	}
	if err := config.Validate(jc); err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	start := time.Now()
	results := make([]*driver.Result, opts.Trials)

	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(workers)
	for i := 0; i < opts.Trials; i++ {
		i := i
		p.Go(func(ctx context.Context) error {
			setup, err := config.Prepare(jc, Seed(jc, i))
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			res, err := driver.Run(ctx, setup.Strategy, setup.Benchmark.Func, setup.Options)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			results[i] = res
			slog.Debug("Trial complete",
				"trial", i,
				"generations", res.Generations,
				"best_fitness", res.Best.Fitness,
			)
			if opts.Observe != nil {
				opts.Observe(i, res)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	curves := make([][]float64, len(results))
	for i, res := range results {
		curves[i] = res.Logbook.BestCurve()
	}

	return &Summary{
		Config:  jc,
		Results: results,
		Curve:   driver.AverageCurves(curves),
		Elapsed: time.Since(start),
	}, nil
}

// BestFitness returns the final best fitness of every trial.
func (s *Summary) BestFitness() []float64 {
	out := make([]float64, len(s.Results))
	for i, res := range s.Results {
		out[i] = res.Best.Fitness
	}
	return out
}

// Entry is the result of one optimizer in a comparison.
type Entry struct {
	Name    string
	Result  opt.Result
	Elapsed time.Duration
}

// Compare runs every optimizer on the objective and bounds of jc. The
// optimizers run one after another so their timings are comparable.
func Compare(ctx context.Context, jc store.JobConfig, optimizers ...opt.Optimizer) ([]Entry, error) {
	if err := config.Validate(jc); err != nil {
		return nil, err
	}
	b, err := objective.Lookup(jc.Objective)
	if err != nil {
		return nil, err
	}
	r := config.Bounds(jc, b)
	lower := make([]float64, jc.Dim)
	upper := make([]float64, jc.Dim)
	for i := range lower {
		lower[i], upper[i] = r.Lower, r.Upper
	}
	eval := func(x []float64) float64 { return b.Func(x) }

	entries := make([]Entry, 0, len(optimizers))
	for _, o := range optimizers {
		start := time.Now()
		res, err := o.Run(ctx, eval, lower, upper)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.Name(), err)
		}
		entries = append(entries, Entry{Name: o.Name(), Result: res, Elapsed: time.Since(start)})
		slog.Info("Optimizer finished",
			"optimizer", o.Name(),
			"evaluations", res.Evaluations,
			"initial_cost", res.InitialCost,
			"best_cost", res.Cost,
		)
	}
	return entries, nil
}
