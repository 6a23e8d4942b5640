package es

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is matched by every *ConfigError.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch is matched by every *DimensionError.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	ErrUnevaluated        = errors.New("individual is not evaluated")
	ErrInvalidCount       = errors.New("offspring count must be at least 1")
	ErrInvalidFitness     = errors.New("fitness must not be NaN")
	ErrInvalidStepSize    = errors.New("step size must be positive and finite")
	ErrNoPendingOffspring = errors.New("update without a preceding generate")
	ErrParentEvaluated    = errors.New("parent fitness is already known")
)

// ConfigError reports a rejected initialization parameter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Field + " " + e.Reason
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// DimensionError reports a vector length or candidate count that does not
// match what the strategy expects.
type DimensionError struct {
	What string
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s (want %d, got %d)", e.What, e.Want, e.Got)
}

func (e *DimensionError) Is(target error) bool {
	return target == ErrDimensionMismatch
}
