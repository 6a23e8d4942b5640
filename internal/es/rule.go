package es

import "math"

// OneFifth is the classic target success rate of the 1/5 success rule.
const OneFifth = 1.0 / 5.0

// StepSizeRule maps the current step size and success-rate estimate to the
// step size for the next generation.
type StepSizeRule interface {
	Adapt(sigma, psucc float64) float64
}

// StepSizeRuleFunc adapts an ordinary function to StepSizeRule.
type StepSizeRuleFunc func(sigma, psucc float64) float64

func (f StepSizeRuleFunc) Adapt(sigma, psucc float64) float64 {
	return f(sigma, psucc)
}

// OneFifthRule is the generalized 1/5 success rule. Below Target the step
// size is multiplied by Factor, above Target it is divided by Factor, and at
// exactly Target it is left untouched. Factor is c² for an adaptation
// constant c in (0,1].
type OneFifthRule struct {
	Target float64
	Factor float64
}

// NewOneFifthRule returns the rule for adaptation constant c.
func NewOneFifthRule(target, c float64) OneFifthRule {
	return OneFifthRule{Target: target, Factor: c * c}
}

func (r OneFifthRule) Adapt(sigma, psucc float64) float64 {
	switch {
	case psucc < r.Target:
		return sigma * r.Factor
	case psucc > r.Target:
		return sigma / r.Factor
	default:
		return sigma
	}
}

// SmoothRule is the exponential step-size update of the (1+λ)-ES with
// success-rule control:
//
//	sigma' = sigma * exp((psucc - Target) / (Damping * (1 - Target)))
//
// It never changes sign and is the identity at psucc == Target.
type SmoothRule struct {
	Target  float64
	Damping float64
}

// NewSmoothRule returns the rule with the canonical damping 1 + n/(2λ).
func NewSmoothRule(target float64, n, lambda int) SmoothRule {
	if lambda < 1 {
		lambda = 1
	}
	return SmoothRule{
		Target:  target,
		Damping: 1 + float64(n)/(2*float64(lambda)),
	}
}

func (r SmoothRule) Adapt(sigma, psucc float64) float64 {
	if psucc == r.Target {
		return sigma
	}
	return sigma * math.Exp((psucc-r.Target)/(r.Damping*(1-r.Target)))
}
