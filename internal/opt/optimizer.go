package opt

import (
	"context"
	"fmt"
)

// Result is the outcome of one optimizer run.
type Result struct {
	Params      []float64
	Cost        float64
	InitialCost float64
	Evaluations int
}

// Optimizer defines a black-box minimizer over a bounded box.
type Optimizer interface {
	// Name identifies the algorithm in logs and reports
	Name() string

	// Run minimizes eval over the box [lower, upper]. The bounds only
	// shape initialization for algorithms that do not clamp.
	Run(ctx context.Context, eval func([]float64) float64, lower, upper []float64) (Result, error)
}

func checkBounds(lower, upper []float64) error {
	if len(lower) == 0 {
		return fmt.Errorf("bounds must have at least one dimension")
	}
	if len(lower) != len(upper) {
		return fmt.Errorf("bounds length mismatch: lower %d, upper %d", len(lower), len(upper))
	}
	for i := range lower {
		if lower[i] > upper[i] {
			return fmt.Errorf("dimension %d: lower bound %v is greater than upper bound %v", i, lower[i], upper[i])
		}
	}
	return nil
}
