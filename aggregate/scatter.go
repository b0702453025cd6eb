package aggregate

import (
	"sort"

	"github.com/scttfrdmn/acbench/acbench"
)

// Scatter pairs the per-instance performance of the default configuration
// with that of the final incumbent for one run.
type Scatter struct {
	RunID     int
	Instances []string
	Default   []float64
	Incumbent []float64
}

// MedianRunScatter picks the run with the median final test performance and
// returns the first and last column of its test objective matrix. The
// boolean is false when no run has a matrix.
func MedianRunScatter(group *acbench.RunGroup) (Scatter, bool) {
	type candidate struct {
		run   *acbench.Run
		final float64
	}
	var runs []candidate
	for _, r := range group.Runs {
		m, ok := r.Matrix(acbench.SplitTest)
		if !ok || len(m.Columns) == 0 {
			continue
		}
		if v, ok := r.Final(acbench.SplitTest); ok {
			runs = append(runs, candidate{run: r, final: v})
		}
	}
	if len(runs) == 0 {
		return Scatter{}, false
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].final < runs[j].final })

	median := runs[len(runs)/2].run
	m, _ := median.Matrix(acbench.SplitTest)
	def, _ := m.Column(m.Columns[0])
	inc, _ := m.LastColumn()
	return Scatter{RunID: median.ID, Instances: m.Instances, Default: def, Incumbent: inc}, true
}
