package driver

// Stop reasons reported in Result.StopReason.
const (
	StopGenerations = "generations"
	StopTarget      = "target"
	StopConverged   = "converged"
	StopSigma       = "sigma"
	StopCancelled   = "cancelled"
)

// StopPolicy decides after each generation whether the run should end.
type StopPolicy interface {
	Done(r Record) bool
	Reason() string
}

// TargetFitness stops once the best fitness reaches Value or below.
type TargetFitness struct {
	Value float64
}

func (t TargetFitness) Done(r Record) bool { return r.Best <= t.Value }

func (t TargetFitness) Reason() string { return StopTarget }

// MinSigma stops once the step size has collapsed below Value.
type MinSigma struct {
	Value float64
}

func (m MinSigma) Done(r Record) bool { return r.Sigma < m.Value }

func (m MinSigma) Reason() string { return StopSigma }

// anyOf stops as soon as one member does and reports that member's reason.
type anyOf struct {
	policies []StopPolicy
	reason   string
}

// AnyOf combines policies. Every member sees every record, so stateful
// policies such as ConvergenceTracker stay in sync.
func AnyOf(policies ...StopPolicy) StopPolicy {
	return &anyOf{policies: policies}
}

func (a *anyOf) Done(r Record) bool {
	done := false
	for _, p := range a.policies {
		if p.Done(r) && !done {
			done = true
			a.reason = p.Reason()
		}
	}
	return done
}

func (a *anyOf) Reason() string { return a.reason }
