package opt

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library as a population-based
// baseline for the evolution strategy.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

func (m *MayflyAdapter) Name() string { return "mayfly" }

// Run executes the Mayfly optimization using the external library.
// The library only supports scalar bounds, so the first dimension's bounds
// apply to all dimensions.
func (m *MayflyAdapter) Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64) (Result, error) {
	if err := checkBounds(lower, upper); err != nil {
		return Result{}, err
	}
	if m.maxIters < 1 {
		return Result{}, fmt.Errorf("mayfly iterations must be at least 1, got %d", m.maxIters)
	}
	if m.popSize < 1 {
		return Result{}, fmt.Errorf("mayfly population must be at least 1, got %d", m.popSize)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	dim := len(lower)
	evals := 0
	var first float64
	counted := func(x []float64) float64 {
		cost := eval(x)
		if evals == 0 {
			first = cost
		}
		evals++
		return cost
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = counted
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.NPopF = m.popSize
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return Result{}, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	return Result{
		Params:      result.GlobalBest.Position,
		Cost:        result.GlobalBest.Cost,
		InitialCost: first,
		Evaluations: evals,
	}, nil
}
