package aggregate

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
	"github.com/scttfrdmn/acbench/stats"
)

// DefaultBootstrapSamples is the number of run pairs drawn per speedup.
const DefaultBootstrapSamples = 10000

// BootstrapSpeedups estimates how much faster every configurator reaches the
// reference's performance. Each sample pairs a random reference run with a
// random candidate run; the result is the geometric mean over all samples.
// The reference's own entry is exactly 1. Configurators without data, and
// every entry when the reference has none, are NaN.
func BootstrapSpeedups(ms []*acbench.AlignedMatrix, ref, n int, rng *rand.Rand) ([]float64, error) {
	if ref < 0 || ref >= len(ms) {
		return nil, acerrors.NewArgumentError("BootstrapSpeedups", fmt.Sprintf("reference index %d out of range", ref))
	}
	if n <= 0 {
		n = DefaultBootstrapSamples
	}
	out := make([]float64, len(ms))
	refRows := rows(ms[ref])
	for i, m := range ms {
		switch {
		case len(refRows) == 0 || m.Rows() == 0:
			out[i] = math.NaN()
		case i == ref:
			out[i] = 1.0
		default:
			acRows := rows(m)
			samples := make([]float64, n)
			for k := range samples {
				r := refRows[rng.Intn(len(refRows))]
				c := acRows[rng.Intn(len(acRows))]
				samples[k] = speedupPair(r, ms[ref].Times, c, m.Times)
			}
			out[i] = stat.GeometricMean(samples, nil)
		}
	}
	return out, nil
}

// speedupPair compares one reference run with one candidate run. When the
// candidate ends better than the reference, the speedup is how much earlier
// the candidate reaches the reference's best value; when it ends worse, the
// inverse of how much earlier the reference reaches the candidate's best.
func speedupPair(ref, refTimes, ac, acTimes []float64) float64 {
	// the candidate never got below the reference's starting point
	if ref[0] <= ac[len(ac)-1] {
		return 1
	}
	refValue := min(ref[0], ref[len(ref)-1])
	acValue := min(ac[0], ac[len(ac)-1])
	switch {
	case refValue > acValue:
		return timeToReach(ac, acTimes, refValue, refTimes[len(refTimes)-1])
	case refValue < acValue:
		return 1 / timeToReach(ref, refTimes, acValue, acTimes[len(acTimes)-1])
	}
	return 1
}

// timeToReach returns budget divided by the earliest time from which the run
// stays strictly below target.
func timeToReach(values, times []float64, target, budget float64) float64 {
	last := times[len(times)-1]
	if last <= 0 {
		return 1
	}
	speedup := budget / last
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] >= target {
			break
		}
		if times[i] > 0 {
			speedup = budget / times[i]
		}
	}
	return speedup
}

// SignificanceSpeedups measures speedups with significance tests instead of
// run pairs. A configurator reaches the reference at the first step t at
// which it is not significantly worse than the reference's final
// performance while being significantly better than the reference's initial
// performance; its speedup is the reference's final time divided by t.
// A later step that fails either test resets the speedup to 1. The values
// are normalized by the reference's own speedup.
func SignificanceSpeedups(ms []*acbench.AlignedMatrix, ref int, tester *stats.Tester, rng *rand.Rand) ([]float64, error) {
	if ref < 0 || ref >= len(ms) {
		return nil, acerrors.NewArgumentError("SignificanceSpeedups", fmt.Sprintf("reference index %d out of range", ref))
	}
	out := make([]float64, len(ms))
	r := ms[ref]
	if r.Rows() == 0 || r.Steps() == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out, nil
	}
	finalRef, initRef := r.Final(), r.Initial()
	finalT := r.Times[r.Steps()-1]

	for i, m := range ms {
		if m.Rows() == 0 {
			out[i] = math.NaN()
			continue
		}
		speedup := 1.0
		for s, t := range m.Times {
			if t > finalT {
				break
			}
			x := m.Column(s)
			pFinal := tester.PValue(finalRef, x, rng)
			pInit := tester.PValue(x, initRef, rng)
			if tester.Similar(pFinal) && pInit < tester.Level() {
				if t > 0 {
					speedup = max(speedup, finalT/t)
				}
			} else {
				speedup = 1
			}
		}
		out[i] = speedup
	}

	norm := out[ref]
	for i := range out {
		out[i] /= norm
	}
	return out, nil
}

func rows(m *acbench.AlignedMatrix) [][]float64 {
	out := make([][]float64, m.Rows())
	for i := range out {
		out[i] = m.Row(i)
	}
	return out
}
