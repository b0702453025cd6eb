package aggregate

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// AggregatedScenario names the scenario built by Normalize.
const AggregatedScenario = "aggregated_scenario"

// Normalize scales every scenario to a common range and merges them into one
// AggregatedScenario. Per scenario, times are divided by the largest test
// time and performance becomes the gap (p - best) / (default - best), where
// default is the first test value of the first run and best the lowest value
// seen in the scenario; the train split uses its own default and best. A
// scenario whose default equals its best maps to zero.
//
// The result has one group per configurator, in order of first appearance,
// with runs renumbered from 1.
func Normalize(scenarios [][]*acbench.RunGroup) ([]*acbench.RunGroup, error) {
	merged := make(map[string][]*acbench.Run)
	var order []string
	for _, groups := range scenarios {
		normalized, err := normalizeScenario(groups)
		if err != nil {
			return nil, err
		}
		for _, g := range normalized {
			if _, ok := merged[g.Configurator]; !ok {
				order = append(order, g.Configurator)
				merged[g.Configurator] = nil
			}
			for _, r := range g.Runs {
				cp := *r
				cp.Scenario = AggregatedScenario
				cp.ID = len(merged[g.Configurator]) + 1
				merged[g.Configurator] = append(merged[g.Configurator], &cp)
			}
		}
	}

	out := make([]*acbench.RunGroup, 0, len(order))
	for _, name := range order {
		out = append(out, acbench.NewRunGroup(name, AggregatedScenario, merged[name]))
	}
	return out, nil
}

type gap struct {
	def, best float64
	found     bool
}

func (g gap) apply(p float64) float64 {
	if g.def == g.best {
		return 0
	}
	return (p - g.best) / (g.def - g.best)
}

func normalizeScenario(groups []*acbench.RunGroup) ([]*acbench.RunGroup, error) {
	test := gap{best: math.Inf(1)}
	train := gap{best: math.Inf(1)}
	maxT := math.Inf(-1)
	for _, g := range groups {
		for _, r := range g.Runs {
			if v, ok := r.Initial(acbench.SplitTest); ok && !test.found {
				test.def, test.found = v, true
			}
			if v, ok := r.Initial(acbench.SplitTrain); ok && !train.found {
				train.def, train.found = v, true
			}
			if recs, ok := r.Series(acbench.SplitTest); ok {
				for _, rec := range recs {
					maxT = max(maxT, rec.Time)
					if rec.Defined() {
						test.best = min(test.best, rec.Performance)
					}
				}
			}
			if recs, ok := r.Series(acbench.SplitTrain); ok {
				for _, rec := range recs {
					if rec.Defined() {
						train.best = min(train.best, rec.Performance)
					}
				}
			}
		}
	}
	if !test.found {
		return nil, acerrors.NewInsufficientDataError(scenarioOf(groups), "", "default performance")
	}
	if maxT <= 0 {
		maxT = 1
	}

	out := make([]*acbench.RunGroup, 0, len(groups))
	for _, g := range groups {
		runs := make([]*acbench.Run, 0, len(g.Runs))
		for _, r := range g.Runs {
			recs, ok := r.Series(acbench.SplitTest)
			if !ok {
				continue
			}
			n := r.WithSeries(acbench.SplitTest, rescale(recs, maxT, test))
			if trecs, ok := r.Series(acbench.SplitTrain); ok && train.found {
				n = n.WithSeries(acbench.SplitTrain, rescale(trecs, maxT, train))
			}
			runs = append(runs, n)
		}
		out = append(out, &acbench.RunGroup{Configurator: g.Configurator, Scenario: g.Scenario, Runs: runs})
	}
	return out, nil
}

func rescale(recs []acbench.TrajectoryRecord, maxT float64, g gap) []acbench.TrajectoryRecord {
	out := make([]acbench.TrajectoryRecord, len(recs))
	for i, rec := range recs {
		rec.Time /= maxT
		if rec.Defined() {
			rec.Performance = g.apply(rec.Performance)
		}
		out[i] = rec
	}
	return out
}

// Scale multiplies all performance values of the validated splits, and
// their objective matrices, by factor.
func Scale(group *acbench.RunGroup, factor float64) *acbench.RunGroup {
	runs := make([]*acbench.Run, len(group.Runs))
	for i, r := range group.Runs {
		cp := *r
		cp.Test = scaleSub(r.Test, factor)
		cp.Train = scaleSub(r.Train, factor)
		runs[i] = &cp
	}
	return &acbench.RunGroup{Configurator: group.Configurator, Scenario: group.Scenario, Runs: runs}
}

func scaleSub(sub *acbench.SubTrajectory, factor float64) *acbench.SubTrajectory {
	if sub == nil {
		return nil
	}
	out := &acbench.SubTrajectory{Records: make([]acbench.TrajectoryRecord, len(sub.Records))}
	for i, rec := range sub.Records {
		rec.Performance *= factor
		out.Records[i] = rec
	}
	if sub.Matrix != nil {
		m := &acbench.ObjectiveMatrix{
			Instances: sub.Matrix.Instances,
			Columns:   sub.Matrix.Columns,
			Values:    make([][]float64, len(sub.Matrix.Values)),
		}
		for i, row := range sub.Matrix.Values {
			m.Values[i] = floats.ScaleTo(make([]float64, len(row)), factor, row)
		}
		out.Matrix = m
	}
	return out
}

// UseTrain replaces the test split of every run by its train split, so that
// the training performance is analysed in place of the test performance.
// A run without train data makes the result ErrNoTrainingData.
func UseTrain(group *acbench.RunGroup) (*acbench.RunGroup, error) {
	runs := make([]*acbench.Run, len(group.Runs))
	for i, r := range group.Runs {
		if r.Train == nil {
			return nil, acerrors.ErrNoTrainingData
		}
		cp := *r
		cp.Test = r.Train
		runs[i] = &cp
	}
	return &acbench.RunGroup{Configurator: group.Configurator, Scenario: group.Scenario, Runs: runs}, nil
}
