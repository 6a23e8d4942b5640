package es

// Vector is a candidate solution in an N-dimensional continuous search space.
type Vector []float64

// Clone returns an independent copy of v.
func (v Vector) Clone() Vector {
	if v == nil {
		return nil
	}
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Individual pairs a Vector with its fitness. Lower fitness is better.
// An Individual with Evaluated == false has no meaningful Fitness and is never
// compared or accepted.
type Individual struct {
	X         Vector  `json:"x"`
	Fitness   float64 `json:"fitness"`
	Evaluated bool    `json:"evaluated"`
}

// Evaluate returns the individual for x with the given fitness attached.
func Evaluate(x Vector, fitness float64) Individual {
	return Individual{X: x, Fitness: fitness, Evaluated: true}
}

// Clone returns a deep copy of the individual.
func (ind Individual) Clone() Individual {
	ind.X = ind.X.Clone()
	return ind
}

// Better reports whether ind strictly improves on other. Ties are failures.
func (ind Individual) Better(other Individual) bool {
	return ind.Evaluated && other.Evaluated && ind.Fitness < other.Fitness
}

// State is a read-only snapshot of the strategy's mutable state.
type State struct {
	// Parent is the current best-known individual
	Parent Individual `json:"parent"`

	// Sigma is the standard deviation of the isotropic Gaussian mutation
	Sigma float64 `json:"sigma"`

	// PSucc is the running success-rate estimate in [0,1]
	PSucc float64 `json:"psucc"`

	// Generation counts completed updates
	Generation int `json:"generation"`

	// Successes counts generations in which the parent was replaced
	Successes int `json:"successes"`
}

// Dim returns the dimensionality of the parent vector.
func (s State) Dim() int {
	return len(s.Parent.X)
}
