package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/onefifth/internal/es"
	"github.com/cwbudde/onefifth/internal/objective"
)

// Engine is the generate/update cycle the driver steers. *es.Strategy
// implements it.
type Engine interface {
	Generate(count int) ([]es.Vector, error)
	Update(candidates []es.Individual) error
	SetParentFitness(fitness float64) error
	State() es.State
}

// Observer receives every generation record. A non-nil error aborts the run.
type Observer func(r Record) error

// Options configures a run.
type Options struct {
	// Generations is the generation budget. Zero means no budget, in which
	// case Stop must be set.
	Generations int

	// Lambda is the number of offspring per generation (default 1)
	Lambda int

	// Stop is an optional early-stopping policy
	Stop StopPolicy

	// Observers are called after each generation, in order
	Observers []Observer

	// HallOfFame is the number of best individuals to keep (default 1)
	HallOfFame int
}

// Result summarizes a finished run.
type Result struct {
	Best           es.Individual
	InitialFitness float64
	Final          es.State
	Generations    int
	Evaluations    int
	StopReason     string
	Elapsed        time.Duration
	Logbook        Logbook
	HallOfFame     []es.Individual
}

// Run drives eng against fn until the budget is spent, the stop policy fires,
// or ctx is cancelled. Cancellation is honoured between generations; the
// partial result is returned together with ctx.Err().
func Run(ctx context.Context, eng Engine, fn objective.Func, opts Options) (*Result, error) {
	if eng == nil || fn == nil {
		return nil, errors.New("engine and objective are required")
	}
	if opts.Generations < 0 {
		return nil, fmt.Errorf("generations must not be negative, got %d", opts.Generations)
	}
	if opts.Generations == 0 && opts.Stop == nil {
		return nil, errors.New("either a generation budget or a stop policy is required")
	}
	if opts.Lambda < 0 {
		return nil, fmt.Errorf("lambda must be at least 1, got %d", opts.Lambda)
	}
	if opts.Lambda == 0 {
		opts.Lambda = 1
	}
	if opts.HallOfFame == 0 {
		opts.HallOfFame = 1
	}

	start := time.Now()
	hof := NewHallOfFame(opts.HallOfFame)
	res := &Result{}

	st := eng.State()
	if !st.Parent.Evaluated {
		if err := eng.SetParentFitness(fn(st.Parent.X)); err != nil {
			return nil, fmt.Errorf("failed to evaluate starting point: %w", err)
		}
		res.Evaluations++
		st = eng.State()
	}
	res.InitialFitness = st.Parent.Fitness
	hof.Insert(st.Parent)

	finish := func(reason string) *Result {
		final := eng.State()
		res.Final = final
		res.StopReason = reason
		res.Elapsed = time.Since(start)
		res.HallOfFame = hof.Items()
		res.Best, _ = hof.Best()
		return res
	}

	fitness := make([]float64, opts.Lambda)
	for g := 0; opts.Generations == 0 || g < opts.Generations; g++ {
		if err := ctx.Err(); err != nil {
			return finish(StopCancelled), err
		}

		xs, err := eng.Generate(opts.Lambda)
		if err != nil {
			return finish(""), fmt.Errorf("generation %d: failed to generate: %w", g+1, err)
		}
		cands := make([]es.Individual, len(xs))
		for i, x := range xs {
			fitness[i] = fn(x)
			cands[i] = es.Evaluate(x, fitness[i])
		}
		res.Evaluations += len(xs)

		before := eng.State().Successes
		if err := eng.Update(cands); err != nil {
			return finish(""), fmt.Errorf("generation %d: failed to update: %w", g+1, err)
		}
		st = eng.State()
		hof.Insert(st.Parent)
		best, _ := hof.Best()

		rec := Record{
			Generation:  st.Generation,
			Evaluations: res.Evaluations,
			Sigma:       st.Sigma,
			PSucc:       st.PSucc,
			Fitness:     st.Parent.Fitness,
			Best:        best.Fitness,
			Accepted:    st.Successes > before,
		}
		rec.Avg, rec.Std, rec.Min, rec.Max = offspringStats(fitness[:len(xs)])
		res.Logbook = append(res.Logbook, rec)
		res.Generations++

		slog.Debug("Generation complete",
			"generation", rec.Generation,
			"fitness", rec.Fitness,
			"sigma", rec.Sigma,
			"psucc", rec.PSucc,
		)

		for _, obs := range opts.Observers {
			if err := obs(rec); err != nil {
				return finish(""), fmt.Errorf("generation %d: observer failed: %w", g+1, err)
			}
		}

		if opts.Stop != nil && opts.Stop.Done(rec) {
			return finish(opts.Stop.Reason()), nil
		}
	}

	return finish(StopGenerations), nil
}

// Improvement returns the ratio of initial to final best fitness, or +Inf
// when the final fitness is zero.
func (r *Result) Improvement() float64 {
	if r.Best.Fitness == 0 {
		return math.Inf(1)
	}
	return r.InitialFitness / r.Best.Fitness
}
