package es

// Outcome describes one completed generation as seen by a SuccessEstimator.
type Outcome struct {
	// PSucc is the estimate before this generation
	PSucc float64

	// Successes of Lambda offspring strictly improved on the parent
	Successes int
	Lambda    int

	// Generation is the 1-based index of this generation
	Generation int

	// SuccessfulGenerations counts generations with at least one success,
	// this one included
	SuccessfulGenerations int
}

// SuccessEstimator folds one generation into the running success-rate
// estimate. Implementations must return a value in [0,1].
type SuccessEstimator interface {
	Next(o Outcome) float64
}

// DefaultLearningRate returns cp = target·λ / (2 + target·λ). For the (1+1)
// case with target 1/5 this is 1/11.
func DefaultLearningRate(target float64, lambda int) float64 {
	if lambda < 1 {
		lambda = 1
	}
	tl := target * float64(lambda)
	return tl / (2 + tl)
}

// EMAEstimator is the exponential moving average
// psucc' = (1-Rate)·psucc + Rate·(successes/lambda).
type EMAEstimator struct {
	Rate float64
}

func (e EMAEstimator) Next(o Outcome) float64 {
	indicator := float64(o.Successes) / float64(o.Lambda)
	return (1-e.Rate)*o.PSucc + e.Rate*indicator
}

// CumulativeEstimator reports the fraction of all generations so far that
// produced at least one success.
type CumulativeEstimator struct{}

func (CumulativeEstimator) Next(o Outcome) float64 {
	if o.Generation < 1 {
		return o.PSucc
	}
	return float64(o.SuccessfulGenerations) / float64(o.Generation)
}
