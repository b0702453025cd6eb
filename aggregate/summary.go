// Package aggregate derives the comparison quantities of one scenario from
// aligned run matrices: per-step quartiles, significance flags against a
// reference, AUC, speedups and parallel-portfolio samples.
//
// All functions are pure. Monte-Carlo steps take an explicit *rand.Rand so
// that callers control reproducibility.
package aggregate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/scttfrdmn/acbench/acbench"
	"github.com/scttfrdmn/acbench/stats"
)

// StepSummary holds the per-step quartiles of an aligned matrix.
type StepSummary struct {
	Median []float64
	Q25    []float64
	Q75    []float64
}

// Summaries computes the median and the quartiles of every time step.
// A matrix without rows yields NaN everywhere.
func Summaries(m *acbench.AlignedMatrix) StepSummary {
	n := m.Steps()
	s := StepSummary{
		Median: make([]float64, n),
		Q25:    make([]float64, n),
		Q75:    make([]float64, n),
	}
	for i := 0; i < n; i++ {
		if m.Rows() == 0 {
			s.Median[i], s.Q25[i], s.Q75[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		s.Q25[i], s.Median[i], s.Q75[i] = stats.Quartiles(m.Column(i))
	}
	return s
}

// AUC returns the mean of the per-step medians. The time axis is not used as
// a weight. The boolean is false for a matrix without data.
func AUC(m *acbench.AlignedMatrix) (float64, bool) {
	if m.Rows() == 0 || m.Steps() == 0 {
		return 0, false
	}
	return stat.Mean(Summaries(m).Median, nil), true
}

// medianAt returns the median of step s, NaN without rows.
func medianAt(m *acbench.AlignedMatrix, s int) float64 {
	if m.Rows() == 0 {
		return math.NaN()
	}
	return stats.Median(m.Column(s))
}

func ptr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
