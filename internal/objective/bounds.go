package objective

import (
	"fmt"
	"math/rand"

	"golang.org/x/exp/constraints"

	"github.com/cwbudde/onefifth/internal/es"
)

// DefaultRange is the classic sphere/rastrigin search domain.
var DefaultRange = Range[float64]{Lower: -5.12, Upper: 5.12}

// Range is a closed interval [Lower, Upper]. It only shapes the starting
// point; the strategy itself never clamps offspring.
type Range[T constraints.Float] struct {
	Lower T `json:"lower" toml:"lower"`
	Upper T `json:"upper" toml:"upper"`
}

// Validate rejects empty intervals.
func (r Range[T]) Validate() error {
	if r.Lower > r.Upper {
		return fmt.Errorf("lower bound %v is greater than upper bound %v", r.Lower, r.Upper)
	}
	return nil
}

// Contains reports whether v lies inside the interval.
func (r Range[T]) Contains(v T) bool {
	return v >= r.Lower && v <= r.Upper
}

// Width returns Upper - Lower.
func (r Range[T]) Width() T {
	return r.Upper - r.Lower
}

// UniformVector draws n components independently and uniformly from r.
func UniformVector(rng *rand.Rand, n int, r Range[float64]) (es.Vector, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("dimension must be at least 1, got %d", n)
	}
	x := make(es.Vector, n)
	for i := range x {
		x[i] = r.Lower + rng.Float64()*r.Width()
	}
	return x, nil
}
