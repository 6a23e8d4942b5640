package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/onefifth/internal/es"
)

// JobConfig holds the configuration of one optimization run. It is shared by
// the CLI (flags and TOML file), the job server and checkpoints, and lives
// here to avoid import cycles with the server package.
type JobConfig struct {
	Objective     string   `json:"objective" toml:"objective"`
	Dim           int      `json:"dim" toml:"dim"`
	Lower         float64  `json:"lower" toml:"lower"`
	Upper         float64  `json:"upper" toml:"upper"`
	Sigma0        float64  `json:"sigma0" toml:"sigma0"`
	C             float64  `json:"c" toml:"c"`
	TargetSuccess float64  `json:"targetSuccess,omitempty" toml:"target_success"`
	LearningRate  float64  `json:"learningRate,omitempty" toml:"learning_rate"`
	Lambda        int      `json:"lambda" toml:"lambda"`
	Rule          string   `json:"rule" toml:"rule"`           // onefifth, smooth
	Estimator     string   `json:"estimator" toml:"estimator"` // ema, cumulative
	Generations   int      `json:"generations" toml:"generations"`
	Seed          int64    `json:"seed" toml:"seed"`
	Patience      int      `json:"patience,omitempty" toml:"patience"` // 0 = no convergence stop
	Threshold     float64  `json:"threshold,omitempty" toml:"threshold"`
	TargetFitness *float64 `json:"targetFitness,omitempty" toml:"target_fitness"`

	// CheckpointEvery saves a checkpoint every N generations (0 = disabled)
	CheckpointEvery int `json:"checkpointEvery,omitempty" toml:"checkpoint_every"`
}

// Checkpoint represents a saved strategy state that can be resumed later.
// All fields are serialized to JSON for persistence.
//
// Unlike population methods, the complete numeric state of the evolution
// strategy is small and is saved in full: parent, step size, success
// estimate and counters. The random stream is not serializable; on resume it
// is reseeded from Config.Seed and the generation count, so a resumed run is
// reproducible but does not replay the exact draws an uninterrupted run
// would have made.
type Checkpoint struct {
	// JobID is the unique identifier for this optimization job
	JobID string `json:"jobId"`

	// State is the strategy snapshot at checkpoint time
	State es.State `json:"state"`

	// BestFitness is the best fitness seen so far
	BestFitness float64 `json:"bestFitness"`

	// InitialFitness is the fitness of the starting point
	InitialFitness float64 `json:"initialFitness"`

	// Evaluations counts objective evaluations so far
	Evaluations int `json:"evaluations"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Config holds the job configuration, needed for validation during resume
	Config JobConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the parent vector.
type CheckpointInfo struct {
	JobID       string    `json:"jobId"`
	BestFitness float64   `json:"bestFitness"`
	Sigma       float64   `json:"sigma"`
	Generation  int       `json:"generation"`
	Timestamp   time.Time `json:"timestamp"`
	Objective   string    `json:"objective"`
	Dim         int       `json:"dim"`
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, state es.State, bestFitness, initialFitness float64, evaluations int, config JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:          jobID,
		State:          state,
		BestFitness:    bestFitness,
		InitialFitness: initialFitness,
		Evaluations:    evaluations,
		Timestamp:      time.Now(),
		Config:         config,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:       c.JobID,
		BestFitness: c.BestFitness,
		Sigma:       c.State.Sigma,
		Generation:  c.State.Generation,
		Timestamp:   c.Timestamp,
		Objective:   c.Config.Objective,
		Dim:         c.Config.Dim,
	}
}

// Validate checks if the checkpoint has valid data.
// Returns an error if any required field is missing or invalid.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.State.Parent.X) == 0 {
		return &ValidationError{Field: "State.Parent", Reason: "cannot be empty"}
	}
	if !c.State.Parent.Evaluated {
		return &ValidationError{Field: "State.Parent", Reason: "must be evaluated"}
	}
	if !(c.State.Sigma > 0) || math.IsInf(c.State.Sigma, 0) {
		return &ValidationError{Field: "State.Sigma", Reason: "must be positive and finite"}
	}
	if !(c.State.PSucc >= 0 && c.State.PSucc <= 1) {
		return &ValidationError{Field: "State.PSucc", Reason: "must be in [0,1]"}
	}
	if c.State.Generation < 0 {
		return &ValidationError{Field: "State.Generation", Reason: "cannot be negative"}
	}
	if c.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if c.Config.Objective == "" {
		return &ValidationError{Field: "Config.Objective", Reason: "cannot be empty"}
	}
	if c.Config.Dim <= 0 {
		return &ValidationError{Field: "Config.Dim", Reason: "must be positive"}
	}
	if c.Config.Generations < 0 {
		return &ValidationError{Field: "Config.Generations", Reason: "cannot be negative"}
	}
	if len(c.State.Parent.X) != c.Config.Dim {
		return &ValidationError{
			Field:  "State.Parent",
			Reason: fmt.Sprintf("length mismatch: expected %d components, got %d", c.Config.Dim, len(c.State.Parent.X)),
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
// Returns an error if the configs are incompatible.
func (c *Checkpoint) IsCompatible(config JobConfig) error {
	if c.Config.Objective != config.Objective {
		return &CompatibilityError{
			Field:    "Objective",
			Expected: c.Config.Objective,
			Actual:   config.Objective,
		}
	}
	if c.Config.Dim != config.Dim {
		return &CompatibilityError{
			Field:    "Dim",
			Expected: fmt.Sprintf("%d", c.Config.Dim),
			Actual:   fmt.Sprintf("%d", config.Dim),
		}
	}
	if c.Config.Rule != config.Rule {
		return &CompatibilityError{
			Field:    "Rule",
			Expected: c.Config.Rule,
			Actual:   config.Rule,
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
