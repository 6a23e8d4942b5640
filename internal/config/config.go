// Package config turns a store.JobConfig into a ready-to-run strategy,
// objective and driver options. Job configurations come from command-line
// flags, TOML files or the job server, and all of them pass through here.
package config

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/cwbudde/onefifth/internal/driver"
	"github.com/cwbudde/onefifth/internal/es"
	"github.com/cwbudde/onefifth/internal/objective"
	"github.com/cwbudde/onefifth/internal/store"
)

// Step-size rule and success estimator names accepted in JobConfig.
const (
	RuleOneFifth = "onefifth"
	RuleSmooth   = "smooth"

	EstimatorEMA        = "ema"
	EstimatorCumulative = "cumulative"
)

// Defaults of the classic single-run experiment.
const (
	DefaultDim         = 10
	DefaultSigma0      = 0.02886751345
	DefaultC           = 0.87
	DefaultGenerations = 500
	DefaultSeed        = 42
	DefaultTrials      = 50
)

// Default returns the configuration of the classic sphere experiment.
// Lower and Upper are left at zero, which selects the objective's own range.
func Default() store.JobConfig {
	return store.JobConfig{
		Objective:   "sphere",
		Dim:         DefaultDim,
		Sigma0:      DefaultSigma0,
		C:           DefaultC,
		Lambda:      1,
		Rule:        RuleOneFifth,
		Estimator:   EstimatorEMA,
		Generations: DefaultGenerations,
		Seed:        DefaultSeed,
	}
}

// Load decodes the TOML file at path on top of base. Keys the file leaves out
// keep their base value; unknown keys are an error.
func Load(path string, base store.JobConfig) (store.JobConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return store.JobConfig{}, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	jc := base
	md, err := toml.NewDecoder(f).Decode(&jc)
	if err != nil {
		return store.JobConfig{}, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return store.JobConfig{}, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return jc, nil
}

// FieldError reports an invalid job configuration field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return "invalid job config: " + e.Field + " " + e.Reason
}

// Validate checks the parts of jc that the strategy itself does not check.
// Numeric strategy parameters are validated by es.New.
func Validate(jc store.JobConfig) error {
	if _, err := objective.Lookup(jc.Objective); err != nil {
		return &FieldError{Field: "objective", Reason: err.Error()}
	}
	if jc.Dim < 1 {
		return &FieldError{Field: "dim", Reason: "must be at least 1"}
	}
	if jc.Lower != 0 || jc.Upper != 0 {
		r := objective.Range[float64]{Lower: jc.Lower, Upper: jc.Upper}
		if err := r.Validate(); err != nil {
			return &FieldError{Field: "lower/upper", Reason: err.Error()}
		}
	}
	if jc.Generations < 0 {
		return &FieldError{Field: "generations", Reason: "cannot be negative"}
	}
	if jc.Generations == 0 && jc.Patience == 0 && jc.TargetFitness == nil {
		return &FieldError{Field: "generations", Reason: "must be positive unless patience or target_fitness is set"}
	}
	switch jc.Rule {
	case "", RuleOneFifth, RuleSmooth:
	default:
		return &FieldError{Field: "rule", Reason: fmt.Sprintf("unknown rule %q (want %s or %s)", jc.Rule, RuleOneFifth, RuleSmooth)}
	}
	switch jc.Estimator {
	case "", EstimatorEMA, EstimatorCumulative:
	default:
		return &FieldError{Field: "estimator", Reason: fmt.Sprintf("unknown estimator %q (want %s or %s)", jc.Estimator, EstimatorEMA, EstimatorCumulative)}
	}
	if jc.Patience < 0 {
		return &FieldError{Field: "patience", Reason: "cannot be negative"}
	}
	if jc.Threshold < 0 || math.IsNaN(jc.Threshold) {
		return &FieldError{Field: "threshold", Reason: "cannot be negative"}
	}
	if jc.CheckpointEvery < 0 {
		return &FieldError{Field: "checkpoint_every", Reason: "cannot be negative"}
	}
	return nil
}

// Bounds returns the search range of jc, falling back to the objective's
// range when none is configured.
func Bounds(jc store.JobConfig, b objective.Benchmark) objective.Range[float64] {
	if jc.Lower == 0 && jc.Upper == 0 {
		return b.Range
	}
	return objective.Range[float64]{Lower: jc.Lower, Upper: jc.Upper}
}

// StrategyConfig maps jc onto the strategy configuration, resolving the rule
// and estimator names.
func StrategyConfig(jc store.JobConfig) (es.Config, error) {
	if err := Validate(jc); err != nil {
		return es.Config{}, err
	}

	target := jc.TargetSuccess
	if target == 0 {
		target = es.OneFifth
	}
	lambda := jc.Lambda
	if lambda == 0 {
		lambda = 1
	}

	cfg := es.Config{
		Sigma0:        jc.Sigma0,
		C:             jc.C,
		TargetSuccess: jc.TargetSuccess,
		LearningRate:  jc.LearningRate,
		Lambda:        jc.Lambda,
	}
	if jc.Rule == RuleSmooth {
		cfg.Rule = es.NewSmoothRule(target, jc.Dim, lambda)
	}
	if jc.Estimator == EstimatorCumulative {
		cfg.Estimator = es.CumulativeEstimator{}
	}
	return cfg, nil
}

// StopPolicy builds the early-stopping policy of jc, or nil if none is
// configured.
func StopPolicy(jc store.JobConfig) driver.StopPolicy {
	var policies []driver.StopPolicy
	if jc.TargetFitness != nil {
		policies = append(policies, driver.TargetFitness{Value: *jc.TargetFitness})
	}
	if jc.Patience > 0 {
		cc := driver.DefaultConvergenceConfig()
		cc.Patience = jc.Patience
		if jc.Threshold > 0 {
			cc.Threshold = jc.Threshold
		}
		policies = append(policies, driver.NewConvergenceTracker(cc))
	}

	switch len(policies) {
	case 0:
		return nil
	case 1:
		return policies[0]
	default:
		return driver.AnyOf(policies...)
	}
}

// Setup is everything a single run needs.
type Setup struct {
	Config    store.JobConfig
	Benchmark objective.Benchmark
	Range     objective.Range[float64]
	Strategy  *es.Strategy
	Options   driver.Options
}

// Prepare builds a fresh run of jc. The random stream is seeded with seed,
// which lets benchmark trials share one config with distinct streams; the
// starting point is drawn from that stream.
func Prepare(jc store.JobConfig, seed int64) (*Setup, error) {
	cfg, err := StrategyConfig(jc)
	if err != nil {
		return nil, err
	}
	b, _ := objective.Lookup(jc.Objective)
	r := Bounds(jc, b)

	rng := rand.New(rand.NewSource(seed))
	x0, err := objective.UniformVector(rng, jc.Dim, r)
	if err != nil {
		return nil, fmt.Errorf("failed to draw starting point: %w", err)
	}
	s, err := es.New(x0, cfg, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create strategy: %w", err)
	}

	return &Setup{
		Config:    jc,
		Benchmark: b,
		Range:     r,
		Strategy:  s,
		Options:   options(jc, jc.Generations),
	}, nil
}

// PrepareResume rebuilds a run from a checkpoint. jc may extend the
// generation budget but must be compatible with the checkpointed config. The
// random stream is reseeded from jc.Seed and the checkpointed generation.
func PrepareResume(cp *store.Checkpoint, jc store.JobConfig) (*Setup, error) {
	if err := cp.IsCompatible(jc); err != nil {
		return nil, err
	}
	cfg, err := StrategyConfig(jc)
	if err != nil {
		return nil, err
	}

	remaining := jc.Generations
	if remaining > 0 {
		remaining -= cp.State.Generation
		if remaining <= 0 {
			return nil, fmt.Errorf("checkpoint %s is already at generation %d of %d", cp.JobID, cp.State.Generation, jc.Generations)
		}
	}

	b, _ := objective.Lookup(jc.Objective)
	rng := rand.New(rand.NewSource(jc.Seed + int64(cp.State.Generation)))
	s, err := es.Restore(cp.State, cfg, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to restore strategy: %w", err)
	}

	return &Setup{
		Config:    jc,
		Benchmark: b,
		Range:     Bounds(jc, b),
		Strategy:  s,
		Options:   options(jc, remaining),
	}, nil
}

func options(jc store.JobConfig, generations int) driver.Options {
	return driver.Options{
		Generations: generations,
		Lambda:      jc.Lambda,
		Stop:        StopPolicy(jc),
	}
}
