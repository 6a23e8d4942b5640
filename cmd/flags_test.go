package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/cwbudde/onefifth/internal/config"
)

func newTestFlags(t *testing.T, args ...string) (*jobFlags, *pflag.FlagSet) {
	t.Helper()
	f := &jobFlags{}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return f, fs
}

func TestJobFlags_Defaults(t *testing.T) {
	f, fs := newTestFlags(t)

	jc, err := f.resolve(fs)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	d := config.Default()
	if jc.Objective != d.Objective || jc.Dim != d.Dim || jc.Generations != d.Generations {
		t.Errorf("Expected defaults, got %+v", jc)
	}
	if jc.TargetFitness != nil {
		t.Error("Target fitness should be unset by default")
	}
}

func TestJobFlags_Override(t *testing.T) {
	f, fs := newTestFlags(t,
		"--objective", "rastrigin",
		"--dim", "5",
		"--rule", "smooth",
		"--generations", "0",
		"--target", "0.5",
		"--seed", "9",
	)

	jc, err := f.resolve(fs)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if jc.Objective != "rastrigin" || jc.Dim != 5 || jc.Rule != "smooth" || jc.Seed != 9 {
		t.Errorf("Flags not applied: %+v", jc)
	}
	if jc.Generations != 0 {
		t.Errorf("Expected unbounded run, got %d generations", jc.Generations)
	}
	if jc.TargetFitness == nil || *jc.TargetFitness != 0.5 {
		t.Errorf("Expected target fitness 0.5, got %v", jc.TargetFitness)
	}
}

func TestJobFlags_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.toml")
	content := "objective = \"ackley\"\ndim = 7\nseed = 3\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	original := configPath
	configPath = path
	defer func() { configPath = original }()

	// Flags win over the file, the file wins over defaults
	f, fs := newTestFlags(t, "--dim", "2")
	jc, err := f.resolve(fs)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if jc.Objective != "ackley" {
		t.Errorf("Expected objective from file, got %s", jc.Objective)
	}
	if jc.Seed != 3 {
		t.Errorf("Expected seed from file, got %d", jc.Seed)
	}
	if jc.Dim != 2 {
		t.Errorf("Expected dim from flag, got %d", jc.Dim)
	}
}

func TestJobFlags_Invalid(t *testing.T) {
	tests := [][]string{
		{"--objective", "nonexistent"},
		{"--dim", "0"},
		{"--estimator", "median"},
		{"--generations", "0"},
		{"--lower", "2", "--upper", "1"},
	}

	for _, args := range tests {
		f, fs := newTestFlags(t, args...)
		if _, err := f.resolve(fs); err == nil {
			t.Errorf("Expected error for %v", args)
		}
	}
}
