package align

import (
	"math"
	"testing"

	"github.com/scttfrdmn/acbench/acbench"
)

func makeRun(id int, times, perfs []float64) *acbench.Run {
	recs := make([]acbench.TrajectoryRecord, len(times))
	for i := range times {
		recs[i] = acbench.TrajectoryRecord{Time: times[i], Performance: perfs[i], IncumbentID: i + 1}
	}
	return &acbench.Run{Configurator: "smac", Scenario: "scen", ID: id, Records: recs}
}

func equalRow(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestAlignThreeRuns tests the union axis and forward fill on three runs
func TestAlignThreeRuns(t *testing.T) {
	group := acbench.NewRunGroup("smac", "scen", []*acbench.Run{
		makeRun(1, []float64{0, 10, 20}, []float64{10, 5, 5}),
		makeRun(2, []float64{0, 5, 20}, []float64{10, 10, 2}),
		makeRun(3, []float64{0, 15, 20}, []float64{10, 8, 8}),
	})

	m, report := Align(group, acbench.SplitTrajectory)

	if report.Dropped != 0 {
		t.Errorf("Expected no dropped runs, got %d", report.Dropped)
	}
	if !equalRow(m.Times, []float64{0, 5, 10, 15, 20}) {
		t.Fatalf("Expected union axis [0 5 10 15 20], got %v", m.Times)
	}
	if got := m.Row(0); !equalRow(got, []float64{10, 10, 5, 5, 5}) {
		t.Errorf("Expected run 1 row [10 10 5 5 5], got %v", got)
	}
	if got := m.Row(1); !equalRow(got, []float64{10, 10, 10, 10, 2}) {
		t.Errorf("Expected run 2 row [10 10 10 10 2], got %v", got)
	}
	if got := m.Row(2); !equalRow(got, []float64{10, 10, 10, 8, 8}) {
		t.Errorf("Expected run 3 row [10 10 10 8 8], got %v", got)
	}
	if m.Configurator != "smac" || m.Scenario != "scen" {
		t.Errorf("Expected group identity on matrix, got %s/%s", m.Configurator, m.Scenario)
	}
}

// TestAlignIdempotent tests that runs with shared timestamps are left as is
func TestAlignIdempotent(t *testing.T) {
	times := []float64{1, 2, 4, 8}
	raw := [][]float64{
		{9, 7, 7, 3},
		{8, 8, 6, 6},
		{9, 5, 4, 1},
	}
	ts := [][]float64{times, times, times}

	m, _ := AlignSeries(ts, raw)

	if !equalRow(m.Times, times) {
		t.Fatalf("Expected axis %v, got %v", times, m.Times)
	}
	for i, row := range raw {
		if got := m.Row(i); !equalRow(got, row) {
			t.Errorf("Row %d: expected %v, got %v", i, row, got)
		}
	}

	// Aligning the aligned output again changes nothing
	again, _ := AlignSeries([][]float64{m.Times, m.Times, m.Times}, [][]float64{m.Row(0), m.Row(1), m.Row(2)})
	for i := range raw {
		if !equalRow(again.Row(i), m.Row(i)) {
			t.Errorf("Row %d changed on re-alignment", i)
		}
	}
}

// TestAlignBackFill tests that cells before a run's first record take its first value
func TestAlignBackFill(t *testing.T) {
	m, _ := AlignSeries(
		[][]float64{{0, 2, 7}, {5, 9}},
		[][]float64{{20, 15, 11}, {12, 4}},
	)

	// axis: 0 2 5 7 9
	for s, tm := range m.Times {
		if tm < 5 && m.At(1, s) != 12 {
			t.Errorf("Expected back-filled value 12 at t=%v, got %v", tm, m.At(1, s))
		}
	}
	if got := m.Row(1); !equalRow(got, []float64{12, 12, 12, 12, 4}) {
		t.Errorf("Expected [12 12 12 12 4], got %v", got)
	}
}

// TestAlignDisjointRanges tests runs without overlapping timestamps
func TestAlignDisjointRanges(t *testing.T) {
	m, _ := AlignSeries(
		[][]float64{{1, 2}, {10, 20}},
		[][]float64{{5, 3}, {7, 1}},
	)

	if m.Steps() != 4 || m.Rows() != 2 {
		t.Fatalf("Expected 2x4 matrix, got %dx%d", m.Rows(), m.Steps())
	}
	if got := m.Row(0); !equalRow(got, []float64{5, 3, 3, 3}) {
		t.Errorf("Expected [5 3 3 3], got %v", got)
	}
	if got := m.Row(1); !equalRow(got, []float64{7, 7, 7, 1}) {
		t.Errorf("Expected [7 7 7 1], got %v", got)
	}
}

// TestAlignDropsEmptyRuns tests that runs without defined records are excluded
func TestAlignDropsEmptyRuns(t *testing.T) {
	nan := math.NaN()
	group := acbench.NewRunGroup("smac", "scen", []*acbench.Run{
		makeRun(1, []float64{0, 10}, []float64{4, 2}),
		makeRun(2, nil, nil),
		makeRun(3, []float64{0, 3}, []float64{nan, nan}),
	})

	m, report := Align(group, acbench.SplitTrajectory)

	if m.Rows() != 1 {
		t.Errorf("Expected 1 row, got %d", m.Rows())
	}
	if report.Dropped != 2 || report.Runs != 3 {
		t.Errorf("Expected 2 of 3 dropped, got %d of %d", report.Dropped, report.Runs)
	}
	if len(report.DroppedIDs) != 2 || report.DroppedIDs[0] != 2 || report.DroppedIDs[1] != 3 {
		t.Errorf("Expected dropped ids [2 3], got %v", report.DroppedIDs)
	}
	if m.RunIDs[0] != 1 {
		t.Errorf("Expected remaining run id 1, got %d", m.RunIDs[0])
	}
}

// TestAlignNoData tests that a group without data yields an empty matrix
func TestAlignNoData(t *testing.T) {
	group := acbench.NewRunGroup("smac", "scen", []*acbench.Run{makeRun(1, nil, nil)})

	m, report := Align(group, acbench.SplitTest)
	if m.Rows() != 0 || m.Steps() != 0 {
		t.Errorf("Expected empty matrix, got %dx%d", m.Rows(), m.Steps())
	}
	if report.Dropped != 1 {
		t.Errorf("Expected 1 dropped run, got %d", report.Dropped)
	}
}

// TestUnify tests re-alignment of several matrices onto one axis
func TestUnify(t *testing.T) {
	a, _ := AlignSeries([][]float64{{0, 10}}, [][]float64{{6, 2}})
	b, _ := AlignSeries([][]float64{{0, 5}}, [][]float64{{8, 1}})

	out := Unify(a, b)

	if !equalRow(out[0].Times, []float64{0, 5, 10}) || !equalRow(out[1].Times, out[0].Times) {
		t.Fatalf("Expected shared axis [0 5 10], got %v and %v", out[0].Times, out[1].Times)
	}
	if got := out[0].Row(0); !equalRow(got, []float64{6, 6, 2}) {
		t.Errorf("Expected [6 6 2], got %v", got)
	}
	if got := out[1].Row(0); !equalRow(got, []float64{8, 1, 1}) {
		t.Errorf("Expected [8 1 1], got %v", got)
	}
	if a.Steps() != 2 {
		t.Error("Expected input matrix to stay untouched")
	}
}

// TestCut tests removal of leading steps below xmin
func TestCut(t *testing.T) {
	m, _ := AlignSeries([][]float64{{1, 2, 3, 4}}, [][]float64{{9, 8, 7, 6}})

	cut := Cut(m, 3)
	if !equalRow(cut.Times, []float64{3, 4}) {
		t.Errorf("Expected axis [3 4], got %v", cut.Times)
	}
	if got := cut.Row(0); !equalRow(got, []float64{7, 6}) {
		t.Errorf("Expected [7 6], got %v", got)
	}

	last := Cut(m, 100)
	if last.Steps() != 1 || last.At(0, 0) != 6 {
		t.Errorf("Expected only the final step to remain, got %v", last.Times)
	}
}
