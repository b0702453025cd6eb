package aggregate

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
	"github.com/scttfrdmn/acbench/stats"
)

// BestPerStep selects, at every time step, the configurator with the lowest
// median as the reference.
const BestPerStep = -1

// StepTests holds the per-step comparison of several configurators against a
// reference. Slices are indexed [configurator][step].
type StepTests struct {
	// Reference holds the reference index of every step, -1 when no
	// configurator has data.
	Reference []int
	Medians   [][]float64
	PValues   [][]float64
	Reject    [][]bool
	Similar   [][]bool
	Better    [][]bool
	// Performed counts the p-values actually computed.
	Performed int
}

// TestPerTimestep compares every configurator to the reference at every step
// of the shared time axis. The p-value is the one-sided test of "reference
// is better than configurator": Reject marks configurators significantly
// worse than the reference, Similar those that cannot be told apart from it
// and Better those significantly better. The reference itself is similar but
// never better.
//
// All matrices must share their time axis (see align.Unify). Configurators
// without rows get NaN p-values and all flags unset.
func TestPerTimestep(ms []*acbench.AlignedMatrix, ref int, tester *stats.Tester, rng *rand.Rand) (*StepTests, error) {
	if ref < BestPerStep || ref >= len(ms) {
		return nil, acerrors.NewArgumentError("TestPerTimestep", fmt.Sprintf("reference index %d out of range", ref))
	}
	steps, err := sharedSteps("TestPerTimestep", ms)
	if err != nil {
		return nil, err
	}

	n := len(ms)
	out := &StepTests{
		Reference: make([]int, steps),
		Medians:   make([][]float64, n),
		PValues:   make([][]float64, n),
		Reject:    make([][]bool, n),
		Similar:   make([][]bool, n),
		Better:    make([][]bool, n),
	}
	for i := range ms {
		out.Medians[i] = make([]float64, steps)
		out.PValues[i] = make([]float64, steps)
		out.Reject[i] = make([]bool, steps)
		out.Similar[i] = make([]bool, steps)
		out.Better[i] = make([]bool, steps)
	}

	for s := 0; s < steps; s++ {
		best := -1
		for i, m := range ms {
			out.Medians[i][s] = medianAt(m, s)
			if math.IsNaN(out.Medians[i][s]) {
				continue
			}
			if best < 0 || out.Medians[i][s] < out.Medians[best][s] {
				best = i
			}
		}
		r := ref
		if r == BestPerStep {
			r = best
		}
		out.Reference[s] = r
		if r < 0 || ms[r].Rows() == 0 {
			for i := range ms {
				out.PValues[i][s] = math.NaN()
			}
			continue
		}

		refCol := ms[r].Column(s)
		for i, m := range ms {
			if m.Rows() == 0 {
				out.PValues[i][s] = math.NaN()
				continue
			}
			p := tester.PValue(refCol, m.Column(s), rng)
			out.Performed++
			out.PValues[i][s] = p
			out.Reject[i][s] = tester.Rejects(p)
			out.Similar[i][s] = tester.Similar(p)
			out.Better[i][s] = i != r && tester.Better(p)
		}
	}
	return out, nil
}

// sharedSteps checks that every matrix with data has the same number of steps.
func sharedSteps(op string, ms []*acbench.AlignedMatrix) (int, error) {
	steps := -1
	for _, m := range ms {
		if m.Rows() == 0 {
			continue
		}
		if steps >= 0 && m.Steps() != steps {
			return 0, acerrors.NewArgumentError(op,
				fmt.Sprintf("matrices do not share a time axis (%d vs %d steps)", steps, m.Steps()))
		}
		steps = m.Steps()
	}
	return max(steps, 0), nil
}
