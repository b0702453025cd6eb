// Package align puts the trajectories of several runs on one shared time
// axis.
//
// Trajectories are step functions: a run keeps its incumbent's performance
// until the next incumbent change. At every shared timestamp a run therefore
// takes the value of its most recent record (forward fill). Timestamps before
// a run's first record take the run's first value (back fill), i.e. the run
// is assumed to hold its first incumbent from time zero.
package align

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/scttfrdmn/acbench/acbench"
)

// Report describes the runs alignment had to leave out.
type Report struct {
	// Runs is the number of input runs.
	Runs int
	// Dropped counts runs without a single defined record.
	Dropped int
	// DroppedIDs lists the ids of dropped runs.
	DroppedIDs []int
}

// series is one run's trajectory sorted by time with undefined records removed.
type series struct {
	id     int
	times  []float64
	values []float64
}

// at evaluates the step function at t.
func (s series) at(t float64) float64 {
	// index of the first record strictly after t
	i := sort.Search(len(s.times), func(i int) bool { return s.times[i] > t })
	if i == 0 {
		return s.values[0]
	}
	return s.values[i-1]
}

func newSeries(id int, times, values []float64) (series, bool) {
	n := min(len(times), len(values))
	idx := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(values[i]) && !math.IsNaN(times[i]) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return series{}, false
	}
	// records violating time order are kept, so order them here
	sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]] < times[idx[b]] })

	s := series{id: id, times: make([]float64, len(idx)), values: make([]float64, len(idx))}
	for k, i := range idx {
		s.times[k] = times[i]
		s.values[k] = values[i]
	}
	return s, true
}

// Align builds the aligned matrix of one split of a run group. Runs without
// data for the split are excluded and counted in the report.
func Align(group *acbench.RunGroup, split acbench.Split) (*acbench.AlignedMatrix, Report) {
	report := Report{Runs: group.Len()}
	var all []series
	for _, run := range group.Runs {
		recs, ok := run.Series(split)
		if !ok {
			report.Dropped++
			report.DroppedIDs = append(report.DroppedIDs, run.ID)
			continue
		}
		times := make([]float64, len(recs))
		values := make([]float64, len(recs))
		for i, r := range recs {
			times[i] = r.Time
			values[i] = r.Performance
		}
		s, ok := newSeries(run.ID, times, values)
		if !ok {
			report.Dropped++
			report.DroppedIDs = append(report.DroppedIDs, run.ID)
			continue
		}
		all = append(all, s)
	}

	m := build(all, union(all))
	m.Configurator = group.Configurator
	m.Scenario = group.Scenario
	return m, report
}

// AlignSeries aligns explicit (times, values) pairs. Row i of the result
// belongs to pair i unless earlier pairs were dropped; RunIDs holds the
// input index of every row.
func AlignSeries(times, values [][]float64) (*acbench.AlignedMatrix, Report) {
	n := min(len(times), len(values))
	report := Report{Runs: n}
	var all []series
	for i := 0; i < n; i++ {
		s, ok := newSeries(i, times[i], values[i])
		if !ok {
			report.Dropped++
			report.DroppedIDs = append(report.DroppedIDs, i)
			continue
		}
		all = append(all, s)
	}
	return build(all, union(all)), report
}

// Unify re-aligns several matrices, typically of different configurators on
// one scenario, onto the union of their time axes. The inputs are not
// modified.
func Unify(ms ...*acbench.AlignedMatrix) []*acbench.AlignedMatrix {
	var all []float64
	for _, m := range ms {
		if m != nil {
			all = append(all, m.Times...)
		}
	}
	times := distinct(all)

	out := make([]*acbench.AlignedMatrix, len(ms))
	for i, m := range ms {
		out[i] = Resample(m, times)
	}
	return out
}

// Resample evaluates every row of m at the given ascending timestamps with
// the same fill rules as Align.
func Resample(m *acbench.AlignedMatrix, times []float64) *acbench.AlignedMatrix {
	if m == nil {
		return &acbench.AlignedMatrix{Times: append([]float64(nil), times...)}
	}
	rows := make([]series, 0, m.Rows())
	for i := 0; i < m.Rows(); i++ {
		rows = append(rows, series{id: m.RunIDs[i], times: m.Times, values: m.Row(i)})
	}
	out := build(rows, append([]float64(nil), times...))
	out.Configurator = m.Configurator
	out.Scenario = m.Scenario
	return out
}

// Cut drops the leading steps with a time below xmin. The final step is
// always kept so that the result stays a usable matrix.
func Cut(m *acbench.AlignedMatrix, xmin float64) *acbench.AlignedMatrix {
	if m == nil || m.Steps() == 0 {
		return m
	}
	skip := 0
	for skip < m.Steps()-1 && m.Times[skip] < xmin {
		skip++
	}
	out := &acbench.AlignedMatrix{
		Configurator: m.Configurator,
		Scenario:     m.Scenario,
		Times:        append([]float64(nil), m.Times[skip:]...),
		RunIDs:       append([]int(nil), m.RunIDs...),
	}
	if m.Rows() > 0 {
		out.Values = mat.DenseCopyOf(m.Values.Slice(0, m.Rows(), skip, m.Steps()))
	}
	return out
}

func union(all []series) []float64 {
	var ts []float64
	for _, s := range all {
		ts = append(ts, s.times...)
	}
	return distinct(ts)
}

// distinct returns the sorted distinct values of ts.
func distinct(ts []float64) []float64 {
	if len(ts) == 0 {
		return nil
	}
	sorted := append([]float64(nil), ts...)
	sort.Float64s(sorted)
	out := sorted[:1]
	for _, t := range sorted[1:] {
		if t != out[len(out)-1] {
			out = append(out, t)
		}
	}
	return out
}

func build(rows []series, times []float64) *acbench.AlignedMatrix {
	m := &acbench.AlignedMatrix{Times: times}
	if len(rows) == 0 || len(times) == 0 {
		return m
	}
	data := make([]float64, 0, len(rows)*len(times))
	m.RunIDs = make([]int, len(rows))
	for i, s := range rows {
		m.RunIDs[i] = s.id
		for _, t := range times {
			data = append(data, s.at(t))
		}
	}
	m.Values = mat.NewDense(len(rows), len(times), data)
	return m
}
