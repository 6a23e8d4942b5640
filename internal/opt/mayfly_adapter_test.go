package opt

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/onefifth/internal/es"
)

// Sphere function: f(x) = sum(x_i^2), minimum at origin
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func box(dim int, lo, hi float64) ([]float64, []float64) {
	lower := make([]float64, dim)
	upper := make([]float64, dim)
	for i := 0; i < dim; i++ {
		lower[i] = lo
		upper[i] = hi
	}
	return lower, upper
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42) // maxIters, popSize, seed

	lower, upper := box(3, -10, 10)
	res, err := optimizer.Run(context.Background(), sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Params) != 3 {
		t.Fatalf("Expected %d parameters, got %d", 3, len(res.Params))
	}

	// Should converge close to zero
	if res.Cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", res.Cost)
	}

	for i, v := range res.Params {
		if math.Abs(v) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 0", i, v)
		}
	}

	if res.Evaluations == 0 {
		t.Error("Expected evaluations to be counted")
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	// Run twice with same seed
	res1, err := NewMayfly(50, 20, 123).Run(context.Background(), sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	res2, err := NewMayfly(50, 20, 123).Run(context.Background(), sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res1.Cost != res2.Cost {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", res1.Cost, res2.Cost)
	}
}

func TestESAdapterOnSphere(t *testing.T) {
	optimizer := NewES(500, 1, es.Config{Sigma0: 0.02886751345, C: 0.87}, 42)

	lower, upper := box(10, -5.12, 5.12)
	res, err := optimizer.Run(context.Background(), sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Params) != 10 {
		t.Fatalf("Expected 10 parameters, got %d", len(res.Params))
	}
	if res.Evaluations != 501 {
		t.Errorf("Expected 501 evaluations, got %d", res.Evaluations)
	}
	if res.Cost > res.InitialCost*1e-2 {
		t.Errorf("Expected cost far below %f, got %f", res.InitialCost, res.Cost)
	}
}

func TestESAdapterDeterministic(t *testing.T) {
	lower, upper := box(4, -5, 5)
	cfg := es.Config{Sigma0: 0.5, C: 0.87}

	res1, err := NewES(100, 1, cfg, 7).Run(context.Background(), sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	res2, err := NewES(100, 1, cfg, 7).Run(context.Background(), sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res1.Cost != res2.Cost {
		t.Errorf("Non-deterministic: cost1=%g, cost2=%g", res1.Cost, res2.Cost)
	}
}

func TestInvalidBounds(t *testing.T) {
	optimizers := []Optimizer{
		NewES(10, 1, es.Config{Sigma0: 1, C: 0.9}, 1),
		NewMayfly(10, 20, 1),
	}
	for _, o := range optimizers {
		if _, err := o.Run(context.Background(), sphere, nil, nil); err == nil {
			t.Errorf("%s: expected error for empty bounds", o.Name())
		}
		if _, err := o.Run(context.Background(), sphere, []float64{1}, []float64{0}); err == nil {
			t.Errorf("%s: expected error for inverted bounds", o.Name())
		}
		if _, err := o.Run(context.Background(), sphere, []float64{0, 0}, []float64{1}); err == nil {
			t.Errorf("%s: expected error for mismatched bounds", o.Name())
		}
	}
}

func TestESAdapterInvalidConfig(t *testing.T) {
	lower, upper := box(2, -1, 1)
	_, err := NewES(10, 1, es.Config{Sigma0: -1, C: 0.9}, 1).Run(context.Background(), sphere, lower, upper)
	if err == nil {
		t.Fatal("Expected error for invalid sigma")
	}
}

func TestMayflyAdapterSmallPopulation(t *testing.T) {
	lower, upper := box(3, -5, 5)
	res, err := NewMayfly(30, 10, 7).Run(context.Background(), sphere, lower, upper)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Params) != 3 {
		t.Fatalf("Expected %d parameters, got %d", 3, len(res.Params))
	}
	if res.Cost > res.InitialCost {
		t.Errorf("Best cost %g is worse than the first evaluation %g", res.Cost, res.InitialCost)
	}
}

func TestMayflyAdapterInvalidSettings(t *testing.T) {
	lower, upper := box(2, -1, 1)
	tests := []struct {
		name     string
		maxIters int
		popSize  int
	}{
		{"zero iterations", 0, 10},
		{"zero population", 10, 0},
		{"negative population", 10, -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evals := 0
			counted := func(x []float64) float64 {
				evals++
				return sphere(x)
			}
			if _, err := NewMayfly(tt.maxIters, tt.popSize, 1).Run(context.Background(), counted, lower, upper); err == nil {
				t.Error("Expected error")
			}
			if evals != 0 {
				t.Errorf("Expected no evaluations, got %d", evals)
			}
		})
	}
}
