package aggregate

import (
	"fmt"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// parFactor is the penalty factor of PAR10 scores.
const parFactor = 10

// RemoveCommonTimeouts takes the instances that no run of any configurator
// solves within cutoff out of the PAR10 test performance. An instance is
// solved by a run when any column of the run's test objective matrix is
// below cutoff. Every test record of every run is corrected to
//
//	(p*n - 10*cutoff*k) / (n - k)
//
// with n instances and k common timeouts. The instance set is taken from the
// first objective matrix found. The number of removed instances is returned
// with the new groups; the inputs are not modified. When every instance is a
// common timeout nothing is removed: the groups come back unchanged with a
// count of 0 and an InsufficientDataError.
func RemoveCommonTimeouts(groups []*acbench.RunGroup, cutoff float64) ([]*acbench.RunGroup, int, error) {
	var instances []string
	for _, g := range groups {
		for _, r := range g.Runs {
			if m, ok := r.Matrix(acbench.SplitTest); ok && len(m.Instances) > 0 {
				instances = m.Instances
				break
			}
		}
		if instances != nil {
			break
		}
	}
	if len(instances) == 0 {
		return groups, 0, acerrors.NewInsufficientDataError(scenarioOf(groups), "", "objective matrix")
	}

	timeouts := make(map[string]bool, len(instances))
	for _, inst := range instances {
		timeouts[inst] = true
	}
	for _, g := range groups {
		for _, r := range g.Runs {
			m, ok := r.Matrix(acbench.SplitTest)
			if !ok {
				continue
			}
			for i, inst := range m.Instances {
				for _, v := range m.Values[i] {
					if v < cutoff {
						delete(timeouts, inst)
						break
					}
				}
			}
		}
	}

	n, k := float64(len(instances)), len(timeouts)
	if k == 0 {
		return groups, 0, nil
	}
	if k == len(instances) {
		return groups, 0, acerrors.NewInsufficientDataError(scenarioOf(groups), "",
			fmt.Sprintf("all %d instances are common timeouts", k))
	}

	out := make([]*acbench.RunGroup, len(groups))
	for gi, g := range groups {
		runs := make([]*acbench.Run, len(g.Runs))
		for ri, r := range g.Runs {
			recs, ok := r.Series(acbench.SplitTest)
			if !ok {
				runs[ri] = r
				continue
			}
			fixed := make([]acbench.TrajectoryRecord, len(recs))
			for i, rec := range recs {
				rec.Performance = (rec.Performance*n - parFactor*cutoff*float64(k)) / (n - float64(k))
				fixed[i] = rec
			}
			runs[ri] = r.WithSeries(acbench.SplitTest, fixed)
		}
		out[gi] = &acbench.RunGroup{Configurator: g.Configurator, Scenario: g.Scenario, Runs: runs}
	}
	return out, k, nil
}

func scenarioOf(groups []*acbench.RunGroup) string {
	for _, g := range groups {
		if g != nil {
			return g.Scenario
		}
	}
	return ""
}
