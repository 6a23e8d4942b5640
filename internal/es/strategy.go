package es

import (
	"fmt"
	"math"
	"math/rand"
)

// Config holds the initialization parameters of a Strategy.
type Config struct {
	// Sigma0 is the initial step size, must be > 0
	Sigma0 float64

	// C is the adaptation constant in (0,1]; the 1/5 rule multiplies or
	// divides sigma by C² each generation
	C float64

	// TargetSuccess is the success rate the rule steers towards.
	// Zero selects OneFifth.
	TargetSuccess float64

	// LearningRate is the EMA rate of the success estimate.
	// Zero selects DefaultLearningRate(TargetSuccess, Lambda).
	LearningRate float64

	// Lambda is the expected offspring count per generation. It only feeds
	// the default learning rate and damping. Zero selects 1.
	Lambda int

	// Rule overrides the step-size rule. Nil selects OneFifthRule.
	Rule StepSizeRule

	// Estimator overrides the success estimator. Nil selects EMAEstimator.
	Estimator SuccessEstimator
}

func (c Config) withDefaults() Config {
	if c.TargetSuccess == 0 {
		c.TargetSuccess = OneFifth
	}
	if c.Lambda == 0 {
		c.Lambda = 1
	}
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate(c.TargetSuccess, c.Lambda)
	}
	return c
}

func (c Config) validate(dim int) error {
	if dim < 1 {
		return &ConfigError{Field: "x0", Reason: "must have at least one component"}
	}
	if !(c.Sigma0 > 0) || math.IsInf(c.Sigma0, 0) {
		return &ConfigError{Field: "Sigma0", Reason: fmt.Sprintf("must be positive and finite, got %v", c.Sigma0)}
	}
	if !(c.C > 0 && c.C <= 1) {
		return &ConfigError{Field: "C", Reason: fmt.Sprintf("must be in (0,1], got %v", c.C)}
	}
	if !(c.TargetSuccess > 0 && c.TargetSuccess < 1) {
		return &ConfigError{Field: "TargetSuccess", Reason: fmt.Sprintf("must be in (0,1), got %v", c.TargetSuccess)}
	}
	if !(c.LearningRate > 0 && c.LearningRate <= 1) {
		return &ConfigError{Field: "LearningRate", Reason: fmt.Sprintf("must be in (0,1], got %v", c.LearningRate)}
	}
	if c.Lambda < 1 {
		return &ConfigError{Field: "Lambda", Reason: "must be at least 1"}
	}
	return nil
}

// Strategy is a single-parent self-adaptive evolution strategy. It owns its
// random stream and is not safe for concurrent use: Generate and Update must
// alternate on one goroutine.
type Strategy struct {
	cfg       Config
	rule      StepSizeRule
	estimator SuccessEstimator
	rng       *rand.Rand

	parent     Individual
	sigma      float64
	psucc      float64
	generation int
	successes  int

	// pending is the size of the last generated batch, 0 when none is open
	pending int
}

// New creates a strategy around the unevaluated starting point x0.
// x0 is copied.
func New(x0 Vector, cfg Config, rng *rand.Rand) (*Strategy, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(len(x0)); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, &ConfigError{Field: "rng", Reason: "random source is required"}
	}

	s := &Strategy{
		cfg:    cfg,
		rng:    rng,
		parent: Individual{X: x0.Clone()},
		sigma:  cfg.Sigma0,
		psucc:  cfg.TargetSuccess,
	}
	s.rule = cfg.Rule
	if s.rule == nil {
		s.rule = NewOneFifthRule(cfg.TargetSuccess, cfg.C)
	}
	s.estimator = cfg.Estimator
	if s.estimator == nil {
		s.estimator = EMAEstimator{Rate: cfg.LearningRate}
	}
	return s, nil
}

// Restore rebuilds a strategy from a snapshot taken with State. cfg.Sigma0
// may be zero, in which case the snapshot's sigma is used for validation.
func Restore(snapshot State, cfg Config, rng *rand.Rand) (*Strategy, error) {
	if cfg.Sigma0 == 0 {
		cfg.Sigma0 = snapshot.Sigma
	}
	s, err := New(snapshot.Parent.X, cfg, rng)
	if err != nil {
		return nil, err
	}
	if !(snapshot.Sigma > 0) || math.IsInf(snapshot.Sigma, 0) {
		return nil, &ConfigError{Field: "Sigma", Reason: fmt.Sprintf("must be positive and finite, got %v", snapshot.Sigma)}
	}
	if !(snapshot.PSucc >= 0 && snapshot.PSucc <= 1) {
		return nil, &ConfigError{Field: "PSucc", Reason: fmt.Sprintf("must be in [0,1], got %v", snapshot.PSucc)}
	}
	if snapshot.Generation < 0 || snapshot.Successes < 0 || snapshot.Successes > snapshot.Generation {
		return nil, &ConfigError{Field: "Generation", Reason: "inconsistent generation counters"}
	}
	if snapshot.Parent.Evaluated && math.IsNaN(snapshot.Parent.Fitness) {
		return nil, &ConfigError{Field: "Parent.Fitness", Reason: "must not be NaN"}
	}

	s.parent = snapshot.Parent.Clone()
	s.sigma = snapshot.Sigma
	s.psucc = snapshot.PSucc
	s.generation = snapshot.Generation
	s.successes = snapshot.Successes
	return s, nil
}

// SetParentFitness attaches the externally computed fitness of the starting
// point. Once the parent is evaluated its fitness is maintained by Update and
// ErrParentEvaluated is returned.
func (s *Strategy) SetParentFitness(fitness float64) error {
	if s.parent.Evaluated {
		return ErrParentEvaluated
	}
	if math.IsNaN(fitness) {
		return ErrInvalidFitness
	}
	s.parent.Fitness = fitness
	s.parent.Evaluated = true
	return nil
}

// Generate samples count offspring, each parent[i] + sigma·N(0,1) per
// component. The returned vectors are unevaluated and owned by the caller.
func (s *Strategy) Generate(count int) ([]Vector, error) {
	if count < 1 {
		return nil, ErrInvalidCount
	}

	n := len(s.parent.X)
	out := make([]Vector, count)
	for k := range out {
		x := make(Vector, n)
		for i, p := range s.parent.X {
			x[i] = p + s.sigma*s.rng.NormFloat64()
		}
		out[k] = x
	}

	s.pending = count
	return out, nil
}

// Update folds the evaluated offspring of the last Generate call into the
// state. A candidate succeeds when its fitness is strictly lower than the
// parent's; the best successful candidate becomes the new parent. The step
// size is then adapted from the updated success estimate.
//
// Update validates everything before mutating: on error the state is
// unchanged.
func (s *Strategy) Update(candidates []Individual) error {
	if s.pending == 0 {
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, ErrNoPendingOffspring)
	}
	if len(candidates) != s.pending {
		return &DimensionError{What: "candidate count", Want: s.pending, Got: len(candidates)}
	}
	if !s.parent.Evaluated {
		return fmt.Errorf("parent: %w", ErrUnevaluated)
	}

	n := len(s.parent.X)
	best := -1
	successes := 0
	for i, c := range candidates {
		if len(c.X) != n {
			return &DimensionError{What: fmt.Sprintf("candidate %d length", i), Want: n, Got: len(c.X)}
		}
		if !c.Evaluated {
			return fmt.Errorf("candidate %d: %w", i, ErrUnevaluated)
		}
		if math.IsNaN(c.Fitness) {
			return fmt.Errorf("candidate %d: %w", i, ErrInvalidFitness)
		}
		if c.Better(s.parent) {
			successes++
			if best < 0 || c.Fitness < candidates[best].Fitness {
				best = i
			}
		}
	}

	generation := s.generation + 1
	successful := s.successes
	if successes > 0 {
		successful++
	}

	psucc := s.estimator.Next(Outcome{
		PSucc:                 s.psucc,
		Successes:             successes,
		Lambda:                len(candidates),
		Generation:            generation,
		SuccessfulGenerations: successful,
	})
	if !(psucc >= 0 && psucc <= 1) {
		return fmt.Errorf("success estimate %v outside [0,1]", psucc)
	}

	sigma := s.rule.Adapt(s.sigma, psucc)
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return fmt.Errorf("%w: rule produced %v", ErrInvalidStepSize, sigma)
	}

	if best >= 0 {
		s.parent = candidates[best].Clone()
	}
	s.psucc = psucc
	s.sigma = sigma
	s.generation = generation
	s.successes = successful
	s.pending = 0
	return nil
}

// State returns a snapshot of the current state. The parent vector is copied.
func (s *Strategy) State() State {
	return State{
		Parent:     s.parent.Clone(),
		Sigma:      s.sigma,
		PSucc:      s.psucc,
		Generation: s.generation,
		Successes:  s.successes,
	}
}

// Parent returns a copy of the current parent.
func (s *Strategy) Parent() Individual { return s.parent.Clone() }

func (s *Strategy) Sigma() float64 { return s.sigma }

func (s *Strategy) PSucc() float64 { return s.psucc }

func (s *Strategy) Dim() int { return len(s.parent.X) }

// Config returns the effective configuration with defaults applied.
func (s *Strategy) Config() Config { return s.cfg }
