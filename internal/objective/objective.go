package objective

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/onefifth/internal/es"
)

// Func maps a candidate vector to its fitness. Lower is better. A Func must be
// pure and defined for every finite input.
type Func func(x es.Vector) float64

// Sphere is f(x) = Σ xᵢ², minimum 0 at the origin.
func Sphere(x es.Vector) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

// Rastrigin is 10n + Σ (xᵢ² - 10 cos(2π xᵢ)), minimum 0 at the origin.
func Rastrigin(x es.Vector) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

// Rosenbrock is Σ 100(xᵢ₊₁ - xᵢ²)² + (1 - xᵢ)², minimum 0 at (1,…,1).
// For n = 1 it reduces to (1 - x)².
func Rosenbrock(x es.Vector) float64 {
	if len(x) == 1 {
		d := 1 - x[0]
		return d * d
	}
	var sum float64
	for i := 0; i+1 < len(x); i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// Ackley is the Ackley function with a = 20, b = 0.2, c = 2π, minimum 0 at
// the origin.
func Ackley(x es.Vector) float64 {
	if len(x) == 0 {
		return 0
	}
	n := float64(len(x))
	var sq, cs float64
	for _, v := range x {
		sq += v * v
		cs += math.Cos(2 * math.Pi * v)
	}
	return -20*math.Exp(-0.2*math.Sqrt(sq/n)) - math.Exp(cs/n) + 20 + math.E
}

// Benchmark bundles a named function with its conventional search range.
type Benchmark struct {
	Name  string
	Func  Func
	Range Range[float64]
}

func benchmarks() map[string]Benchmark {
	return map[string]Benchmark{
		"sphere":     {Name: "sphere", Func: Sphere, Range: DefaultRange},
		"rastrigin":  {Name: "rastrigin", Func: Rastrigin, Range: DefaultRange},
		"rosenbrock": {Name: "rosenbrock", Func: Rosenbrock, Range: Range[float64]{Lower: -2.048, Upper: 2.048}},
		"ackley":     {Name: "ackley", Func: Ackley, Range: Range[float64]{Lower: -32.768, Upper: 32.768}},
	}
}

// Lookup returns the benchmark with the given name.
func Lookup(name string) (Benchmark, error) {
	b, ok := benchmarks()[name]
	if !ok {
		return Benchmark{}, fmt.Errorf("unknown objective: %s", name)
	}
	return b, nil
}

// Names lists the available benchmark names in sorted order.
func Names() []string {
	all := benchmarks()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
