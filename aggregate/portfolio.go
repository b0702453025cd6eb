package aggregate

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/scttfrdmn/acbench/acbench"
	"github.com/scttfrdmn/acbench/align"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// DefaultSampleIterations is the number of simulated portfolios.
const DefaultSampleIterations = 100

// PortfolioSampler simulates running NSamples independent runs in parallel
// and keeping the one that looks best on the training set. The reported
// value is always the selected run's test performance.
type PortfolioSampler struct {
	// NSamples is the portfolio size.
	NSamples int
	// Bootstrap samples runs with replacement.
	Bootstrap bool
	// Iterations is the number of simulated portfolios, i.e. rows of the
	// sampled matrix.
	Iterations int
}

func (p PortfolioSampler) iterations() int {
	if p.Iterations <= 0 {
		return DefaultSampleIterations
	}
	return p.Iterations
}

// pick draws min(n, NSamples) distinct (or, when bootstrapping, arbitrary)
// indices from [0, n).
func (p PortfolioSampler) pick(n int, rng *rand.Rand) []int {
	k := min(n, max(p.NSamples, 1))
	idx := make([]int, k)
	if p.Bootstrap {
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		return idx
	}
	copy(idx, rng.Perm(n)[:k])
	return idx
}

// SampleOverTime samples portfolios independently at every step of the test
// axis. The train matrix is resampled onto the test axis and its rows are
// matched to test rows by run id; test rows without train data are ignored.
// Without any train data the result is ErrNoTrainingData.
func (p PortfolioSampler) SampleOverTime(test, train *acbench.AlignedMatrix, rng *rand.Rand) (*acbench.AlignedMatrix, error) {
	if train.Rows() == 0 || test.Rows() == 0 {
		return nil, acerrors.ErrNoTrainingData
	}
	onTest := align.Resample(train, test.Times)
	trainRow := make(map[int]int, onTest.Rows())
	for i, id := range onTest.RunIDs {
		trainRow[id] = i
	}
	var testRows, trainRows []int
	for i, id := range test.RunIDs {
		if j, ok := trainRow[id]; ok {
			testRows = append(testRows, i)
			trainRows = append(trainRows, j)
		}
	}
	if len(testRows) == 0 {
		return nil, acerrors.ErrNoTrainingData
	}

	iters := p.iterations()
	steps := test.Steps()
	data := make([]float64, iters*steps)
	for it := 0; it < iters; it++ {
		for s := 0; s < steps; s++ {
			best := -1
			for _, k := range p.pick(len(testRows), rng) {
				if best < 0 || onTest.At(trainRows[k], s) < onTest.At(trainRows[best], s) {
					best = k
				}
			}
			data[it*steps+s] = test.At(testRows[best], s)
		}
	}

	out := &acbench.AlignedMatrix{
		Configurator: test.Configurator,
		Scenario:     test.Scenario,
		Times:        append([]float64(nil), test.Times...),
		RunIDs:       make([]int, iters),
		Values:       mat.NewDense(iters, steps, data),
	}
	for i := range out.RunIDs {
		out.RunIDs[i] = i + 1
	}
	return out, nil
}

// SampleFinal samples portfolios of whole runs by their final training
// performance. The returned group has Iterations runs, renumbered from 1, each
// a copy of the selected run. Any sampled run without train data makes the
// result ErrNoTrainingData.
func (p PortfolioSampler) SampleFinal(group *acbench.RunGroup, rng *rand.Rand) (*acbench.RunGroup, error) {
	if group.Len() == 0 {
		return nil, acerrors.ErrNoTrainingData
	}
	iters := p.iterations()
	runs := make([]*acbench.Run, 0, iters)
	for it := 0; it < iters; it++ {
		var (
			best      *acbench.Run
			bestValue float64
		)
		for _, k := range p.pick(group.Len(), rng) {
			r := group.Runs[k]
			v, ok := r.Final(acbench.SplitTrain)
			if !ok {
				return nil, acerrors.ErrNoTrainingData
			}
			if best == nil || v < bestValue {
				best, bestValue = r, v
			}
		}
		cp := *best
		cp.ID = it + 1
		runs = append(runs, &cp)
	}
	return acbench.NewRunGroup(group.Configurator, group.Scenario, runs), nil
}
