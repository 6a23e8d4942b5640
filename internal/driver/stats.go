package driver

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Record is the observation taken at the end of one generation.
type Record struct {
	Generation  int     `json:"generation"`
	Evaluations int     `json:"evaluations"`
	Sigma       float64 `json:"sigma"`
	PSucc       float64 `json:"psucc"`

	// Fitness is the parent's fitness after the update
	Fitness float64 `json:"fitness"`

	// Best is the best fitness seen so far, initial point included
	Best float64 `json:"best"`

	// Offspring statistics for this generation
	Avg float64 `json:"avg"`
	Std float64 `json:"std"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`

	Accepted bool `json:"accepted"`
}

// offspringStats returns population mean, standard deviation, minimum and
// maximum of the offspring fitness values. fitness must not be empty.
func offspringStats(fitness []float64) (avg, std, lo, hi float64) {
	avg, std = stat.PopMeanStdDev(fitness, nil)
	return avg, std, floats.Min(fitness), floats.Max(fitness)
}

// Logbook is the ordered list of generation records of one run.
type Logbook []Record

// BestCurve returns the best-so-far fitness per generation.
func (lb Logbook) BestCurve() []float64 {
	out := make([]float64, len(lb))
	for i, r := range lb {
		out[i] = r.Best
	}
	return out
}

// SigmaCurve returns the step size per generation.
func (lb Logbook) SigmaCurve() []float64 {
	out := make([]float64, len(lb))
	for i, r := range lb {
		out[i] = r.Sigma
	}
	return out
}

// AcceptanceRate returns the fraction of generations that replaced the parent.
func (lb Logbook) AcceptanceRate() float64 {
	if len(lb) == 0 {
		return 0
	}
	accepted := 0
	for _, r := range lb {
		if r.Accepted {
			accepted++
		}
	}
	return float64(accepted) / float64(len(lb))
}

// AverageCurves averages several best-so-far curves point-wise. Curves may
// differ in length (early stopping); shorter curves are extended with their
// last value so every curve contributes to every generation.
func AverageCurves(curves [][]float64) []float64 {
	longest := 0
	for _, c := range curves {
		if len(c) > longest {
			longest = len(c)
		}
	}
	if longest == 0 {
		return nil
	}

	out := make([]float64, longest)
	column := make([]float64, 0, len(curves))
	for g := 0; g < longest; g++ {
		column = column[:0]
		for _, c := range curves {
			switch {
			case len(c) == 0:
				continue
			case g < len(c):
				column = append(column, c[g])
			default:
				column = append(column, c[len(c)-1])
			}
		}
		out[g] = stat.Mean(column, nil)
	}
	return out
}
