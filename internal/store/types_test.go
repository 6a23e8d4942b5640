package store

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/onefifth/internal/es"
)

func TestCheckpoint_JSONSerialization(t *testing.T) {
	original := createTestCheckpoint("test-job-123")
	original.Timestamp = time.Date(2025, 10, 23, 10, 30, 0, 0, time.UTC)
	target := 1e-6
	original.Config.TargetFitness = &target

	data, err := json.MarshalIndent(original, "", "  ")
	if err != nil {
		t.Fatalf("Failed to marshal checkpoint: %v", err)
	}

	var restored Checkpoint
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Failed to unmarshal checkpoint: %v", err)
	}

	if restored.JobID != original.JobID {
		t.Errorf("JobID mismatch: expected %s, got %s", original.JobID, restored.JobID)
	}
	if !restored.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Timestamp mismatch: expected %v, got %v", original.Timestamp, restored.Timestamp)
	}
	if restored.State.Sigma != original.State.Sigma || restored.State.PSucc != original.State.PSucc {
		t.Errorf("Step size state mismatch: expected %+v, got %+v", original.State, restored.State)
	}
	if restored.State.Successes != original.State.Successes {
		t.Errorf("Successes mismatch: expected %d, got %d", original.State.Successes, restored.State.Successes)
	}
	if !restored.State.Parent.Evaluated || restored.State.Parent.Fitness != original.State.Parent.Fitness {
		t.Errorf("Parent mismatch: expected %+v, got %+v", original.State.Parent, restored.State.Parent)
	}
	for i := range original.State.Parent.X {
		if restored.State.Parent.X[i] != original.State.Parent.X[i] {
			t.Errorf("Parent[%d] mismatch: expected %f, got %f", i, original.State.Parent.X[i], restored.State.Parent.X[i])
		}
	}
	if restored.Config.TargetFitness == nil || *restored.Config.TargetFitness != target {
		t.Errorf("TargetFitness not preserved: %v", restored.Config.TargetFitness)
	}
	if err := restored.Validate(); err != nil {
		t.Errorf("Restored checkpoint should be valid: %v", err)
	}
}

func TestCheckpoint_Validate_Valid(t *testing.T) {
	if err := createTestCheckpoint("valid-job").Validate(); err != nil {
		t.Errorf("Expected valid checkpoint, got error: %v", err)
	}
}

func TestCheckpoint_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Checkpoint)
		field  string
	}{
		{"empty job id", func(c *Checkpoint) { c.JobID = "" }, "JobID"},
		{"empty parent", func(c *Checkpoint) { c.State.Parent.X = nil }, "State.Parent"},
		{"unevaluated parent", func(c *Checkpoint) { c.State.Parent.Evaluated = false }, "State.Parent"},
		{"zero sigma", func(c *Checkpoint) { c.State.Sigma = 0 }, "State.Sigma"},
		{"nan sigma", func(c *Checkpoint) { c.State.Sigma = math.NaN() }, "State.Sigma"},
		{"infinite sigma", func(c *Checkpoint) { c.State.Sigma = math.Inf(1) }, "State.Sigma"},
		{"psucc above one", func(c *Checkpoint) { c.State.PSucc = 1.5 }, "State.PSucc"},
		{"negative generation", func(c *Checkpoint) { c.State.Generation = -1 }, "State.Generation"},
		{"negative evaluations", func(c *Checkpoint) { c.Evaluations = -1 }, "Evaluations"},
		{"zero timestamp", func(c *Checkpoint) { c.Timestamp = time.Time{} }, "Timestamp"},
		{"empty objective", func(c *Checkpoint) { c.Config.Objective = "" }, "Config.Objective"},
		{"zero dim", func(c *Checkpoint) { c.Config.Dim = 0 }, "Config.Dim"},
		{"negative generations", func(c *Checkpoint) { c.Config.Generations = -1 }, "Config.Generations"},
		{"dim mismatch", func(c *Checkpoint) { c.Config.Dim = 4 }, "State.Parent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := createTestCheckpoint("job")
			tt.mutate(c)

			err := c.Validate()
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, vErr.Field)
			}
		})
	}
}

func TestCheckpoint_IsCompatible(t *testing.T) {
	c := createTestCheckpoint("job")

	same := c.Config
	same.Generations = 5000
	same.Seed = 7
	if err := c.IsCompatible(same); err != nil {
		t.Errorf("Budget and seed changes should be compatible, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(jc *JobConfig)
		field  string
	}{
		{"objective", func(jc *JobConfig) { jc.Objective = "rastrigin" }, "Objective"},
		{"dim", func(jc *JobConfig) { jc.Dim = 10 }, "Dim"},
		{"rule", func(jc *JobConfig) { jc.Rule = "smooth" }, "Rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jc := c.Config
			tt.mutate(&jc)

			err := c.IsCompatible(jc)
			var cErr *CompatibilityError
			if !errors.As(err, &cErr) {
				t.Fatalf("Expected CompatibilityError, got %v", err)
			}
			if cErr.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, cErr.Field)
			}
		})
	}
}

func TestNewCheckpoint(t *testing.T) {
	state := es.State{
		Parent:     es.Evaluate(es.Vector{1, 2}, 5),
		Sigma:      0.5,
		PSucc:      0.2,
		Generation: 12,
		Successes:  3,
	}
	config := JobConfig{Objective: "sphere", Dim: 2, Generations: 100, Rule: "onefifth"}

	before := time.Now()
	c := NewCheckpoint("job-new", state, 5, 20, 13, config)

	if c.JobID != "job-new" || c.BestFitness != 5 || c.InitialFitness != 20 || c.Evaluations != 13 {
		t.Errorf("Unexpected checkpoint fields: %+v", c)
	}
	if c.Timestamp.Before(before) {
		t.Errorf("Timestamp %v should not precede %v", c.Timestamp, before)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("NewCheckpoint should produce a valid checkpoint: %v", err)
	}

	info := c.ToInfo()
	if info.Generation != 12 || info.Sigma != 0.5 || info.Objective != "sphere" || info.Dim != 2 {
		t.Errorf("Unexpected info: %+v", info)
	}
}
