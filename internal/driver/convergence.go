package driver

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines parameters for detecting that a run has stalled
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool

	// Patience is the number of generations with no significant improvement
	// of the best fitness before stopping
	Patience int

	// Threshold is the minimum relative improvement required to count as progress
	// Example: 0.001 = 0.1% improvement required
	// Relative improvement = (last - new) / |last|
	Threshold float64
}

// DefaultConvergenceConfig returns sensible defaults for convergence detection.
// An elitist ES often needs dozens of generations between improvements, so the
// patience is larger than for population methods.
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  100,
		Threshold: 1e-6,
	}
}

// DisabledConvergenceConfig returns a config with convergence detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker tracks best-fitness history and detects when a run has converged
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	best            float64 // Best fitness ever seen
	lastSignificant float64 // Last fitness that was a significant improvement
	staleCount      int     // Number of generations without significant improvement
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		history:         []float64{},
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new best fitness and returns true if convergence is detected
func (c *ConvergenceTracker) Update(fitness float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, fitness)

	if fitness < c.best {
		c.best = fitness
	}

	// First value - initialize lastSignificant
	if len(c.history) == 1 {
		c.lastSignificant = fitness
		return false
	}

	if c.significant(fitness) {
		c.lastSignificant = fitness
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Debug("Convergence detected",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_fitness", c.best,
		)
		return true
	}
	return false
}

// significant reports whether fitness improves on the last significant value
// by at least the relative threshold. A zero reference admits any decrease.
func (c *ConvergenceTracker) significant(fitness float64) bool {
	ref := c.lastSignificant
	if fitness >= ref {
		return false
	}
	if ref == 0 {
		return true
	}
	return (ref-fitness)/math.Abs(ref) >= c.config.Threshold
}

// Done implements StopPolicy on a record's best fitness.
func (c *ConvergenceTracker) Done(r Record) bool {
	return c.Update(r.Best)
}

func (c *ConvergenceTracker) Reason() string { return StopConverged }

// Best returns the best fitness seen so far
func (c *ConvergenceTracker) Best() float64 {
	return c.best
}

// History returns the full best-fitness history
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the current number of generations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.history = []float64{}
	c.best = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
