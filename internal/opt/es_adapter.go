package opt

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cwbudde/onefifth/internal/driver"
	"github.com/cwbudde/onefifth/internal/es"
)

// ESAdapter runs the self-adaptive evolution strategy behind the Optimizer
// interface. The starting point is drawn uniformly from the bounds.
type ESAdapter struct {
	generations int
	lambda      int
	config      es.Config
	seed        int64
}

// NewES creates an evolution strategy optimizer.
func NewES(generations, lambda int, config es.Config, seed int64) *ESAdapter {
	return &ESAdapter{
		generations: generations,
		lambda:      lambda,
		config:      config,
		seed:        seed,
	}
}

func (a *ESAdapter) Name() string { return "es" }

func (a *ESAdapter) Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64) (Result, error) {
	if err := checkBounds(lower, upper); err != nil {
		return Result{}, err
	}

	rng := rand.New(rand.NewSource(a.seed))
	x0 := make(es.Vector, len(lower))
	for i := range x0 {
		x0[i] = lower[i] + rng.Float64()*(upper[i]-lower[i])
	}

	strategy, err := es.New(x0, a.config, rng)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create strategy: %w", err)
	}

	objective := func(x es.Vector) float64 { return eval(x) }
	res, err := driver.Run(ctx, strategy, objective, driver.Options{
		Generations: a.generations,
		Lambda:      a.lambda,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{
		Params:      res.Best.X,
		Cost:        res.Best.Fitness,
		InitialCost: res.InitialFitness,
		Evaluations: res.Evaluations,
	}, nil
}
