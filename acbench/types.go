// Package acbench defines the core value types shared by the trajectory
// parsers, the time aligner, the statistical tests and the report builder.
//
// A Run is produced by parsing exactly one configurator artifact and is never
// mutated afterwards. Every pipeline stage (parse, align, test, aggregate)
// consumes these values read-only and returns new values.
package acbench

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ConfiguratorKind identifies the on-disk dialect a configurator writes.
type ConfiguratorKind string

const (
	// KindSMAC is the SMAC trajectory CSV (traj-run*.txt).
	KindSMAC ConfiguratorKind = "smac"
	// KindGGA is GGA's trajectory CSV, same layout as SMAC.
	KindGGA ConfiguratorKind = "gga"
	// KindParamILS is classic ParamILS trajectory CSV.
	KindParamILS ConfiguratorKind = "paramils"
	// KindMOParamILS is the MO-ParamILS text log with incumbent markers.
	KindMOParamILS ConfiguratorKind = "moparamils"
	// KindIrace is irace's stdout log with JSON trajectory lines.
	KindIrace ConfiguratorKind = "irace"
	// KindValidation is SMAC validator output inside a run directory.
	KindValidation ConfiguratorKind = "validation"
)

// Kinds lists every supported dialect.
func Kinds() []ConfiguratorKind {
	return []ConfiguratorKind{KindSMAC, KindGGA, KindParamILS, KindMOParamILS, KindIrace, KindValidation}
}

// ParseKind resolves a dialect name (case-insensitive).
func ParseKind(s string) (ConfiguratorKind, error) {
	k := ConfiguratorKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown configurator kind %q", s)
}

// TimeUnit is the unit of the time axis of a run.
type TimeUnit string

const (
	// UnitSeconds measures configuration budget in (wallclock or CPU) seconds.
	UnitSeconds TimeUnit = "seconds"
	// UnitEvaluations measures configuration budget in target algorithm calls.
	UnitEvaluations TimeUnit = "evaluations"
)

// Split selects one of the trajectories a run may carry.
type Split string

const (
	// SplitTrajectory is the configurator's own trajectory.
	SplitTrajectory Split = "trajectory"
	// SplitTest is the validated test-set trajectory.
	SplitTest Split = "test"
	// SplitTrain is the validated train-set trajectory.
	SplitTrain Split = "train"
)

// ParseSplit resolves a split name.
func ParseSplit(s string) (Split, error) {
	switch Split(strings.ToLower(strings.TrimSpace(s))) {
	case SplitTrajectory, "traj", "":
		return SplitTrajectory, nil
	case SplitTest:
		return SplitTest, nil
	case SplitTrain:
		return SplitTrain, nil
	}
	return "", fmt.Errorf("unknown split %q", s)
}

// TrajectoryRecord is one incumbent change of one run.
type TrajectoryRecord struct {
	// Time since the start of the run, in the run's TimeUnit.
	Time float64
	// Performance of the incumbent, lower is better. NaN means unknown.
	Performance float64
	// IncumbentID keys into Run.Configs.
	IncumbentID int
	// ActiveIncumbents lists all incumbents active at Time for dialects that
	// keep several (MO-ParamILS). Nil otherwise.
	ActiveIncumbents []int
	// Rejected is set when IncumbentID has no known configuration.
	Rejected bool
}

// Defined reports whether the record carries a usable performance value.
func (r TrajectoryRecord) Defined() bool {
	return !math.IsNaN(r.Performance)
}

// ObjectiveMatrix is a validation objective matrix: one row per instance,
// one column per validated configuration.
type ObjectiveMatrix struct {
	Instances []string
	Columns   []string
	Values    [][]float64
}

// Column returns the values of the named column.
func (m *ObjectiveMatrix) Column(name string) ([]float64, bool) {
	if m == nil {
		return nil, false
	}
	for j, c := range m.Columns {
		if c == name {
			col := make([]float64, len(m.Values))
			for i, row := range m.Values {
				col[i] = row[j]
			}
			return col, true
		}
	}
	return nil, false
}

// LastColumn returns the values of the right-most column, usually the final
// incumbent.
func (m *ObjectiveMatrix) LastColumn() ([]float64, bool) {
	if m == nil || len(m.Columns) == 0 {
		return nil, false
	}
	return m.Column(m.Columns[len(m.Columns)-1])
}

// SubTrajectory is a validated trajectory together with its objective matrix.
type SubTrajectory struct {
	Records []TrajectoryRecord
	Matrix  *ObjectiveMatrix
}

// Run is the parsed result of one configurator run on one scenario.
type Run struct {
	Configurator string
	Scenario     string
	ID           int
	Kind         ConfiguratorKind
	Unit         TimeUnit
	Source       string

	Records []TrajectoryRecord
	Test    *SubTrajectory
	Train   *SubTrajectory

	Configs           map[int]map[string]string
	RejectedConfigIDs []int
}

// Series returns the records of the requested split. The boolean is false
// when the run has no data for that split.
func (r *Run) Series(split Split) ([]TrajectoryRecord, bool) {
	if r == nil {
		return nil, false
	}
	var recs []TrajectoryRecord
	switch split {
	case SplitTrajectory:
		recs = r.Records
	case SplitTest:
		if r.Test == nil {
			return nil, false
		}
		recs = r.Test.Records
	case SplitTrain:
		if r.Train == nil {
			return nil, false
		}
		recs = r.Train.Records
	default:
		return nil, false
	}
	for _, rec := range recs {
		if rec.Defined() {
			return recs, true
		}
	}
	return nil, false
}

// Final returns the last defined performance of the split.
func (r *Run) Final(split Split) (float64, bool) {
	recs, ok := r.Series(split)
	if !ok {
		return 0, false
	}
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Defined() {
			return recs[i].Performance, true
		}
	}
	return 0, false
}

// Initial returns the first defined performance of the split, i.e. the
// performance of the default configuration.
func (r *Run) Initial(split Split) (float64, bool) {
	recs, ok := r.Series(split)
	if !ok {
		return 0, false
	}
	for _, rec := range recs {
		if rec.Defined() {
			return rec.Performance, true
		}
	}
	return 0, false
}

// Matrix returns the objective matrix of a validated split.
func (r *Run) Matrix(split Split) (*ObjectiveMatrix, bool) {
	switch split {
	case SplitTest:
		if r.Test != nil && r.Test.Matrix != nil {
			return r.Test.Matrix, true
		}
	case SplitTrain:
		if r.Train != nil && r.Train.Matrix != nil {
			return r.Train.Matrix, true
		}
	}
	return nil, false
}

// WithSeries returns a shallow copy of the run with the records of split
// replaced. The receiver is not modified.
func (r *Run) WithSeries(split Split, recs []TrajectoryRecord) *Run {
	cp := *r
	switch split {
	case SplitTrajectory:
		cp.Records = recs
	case SplitTest:
		sub := SubTrajectory{Records: recs}
		if r.Test != nil {
			sub.Matrix = r.Test.Matrix
		}
		cp.Test = &sub
	case SplitTrain:
		sub := SubTrajectory{Records: recs}
		if r.Train != nil {
			sub.Matrix = r.Train.Matrix
		}
		cp.Train = &sub
	}
	return &cp
}

// RunGroup holds the runs of one configurator on one scenario. The runs are
// assumed to be exchangeable; this is not checked.
type RunGroup struct {
	Configurator string
	Scenario     string
	Runs         []*Run
}

// NewRunGroup builds a group and orders its runs by ID.
func NewRunGroup(configurator, scenario string, runs []*Run) *RunGroup {
	sorted := make([]*Run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &RunGroup{Configurator: configurator, Scenario: scenario, Runs: sorted}
}

// Len returns the number of runs.
func (g *RunGroup) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Runs)
}

// WithSplit counts the runs that have data for split.
func (g *RunGroup) WithSplit(split Split) int {
	n := 0
	for _, r := range g.Runs {
		if _, ok := r.Series(split); ok {
			n++
		}
	}
	return n
}

// AlignedMatrix is a runs x timestamps table without missing cells.
type AlignedMatrix struct {
	Configurator string
	Scenario     string
	Times        []float64
	RunIDs       []int
	Values       *mat.Dense
}

// Rows returns the number of runs. A nil matrix has zero rows.
func (m *AlignedMatrix) Rows() int {
	if m == nil || m.Values == nil {
		return 0
	}
	r, _ := m.Values.Dims()
	return r
}

// Steps returns the number of shared timestamps.
func (m *AlignedMatrix) Steps() int {
	if m == nil {
		return 0
	}
	return len(m.Times)
}

// Row returns a copy of run i's aligned values.
func (m *AlignedMatrix) Row(i int) []float64 {
	return mat.Row(nil, i, m.Values)
}

// Column returns a copy of all runs' values at step s.
func (m *AlignedMatrix) Column(s int) []float64 {
	return mat.Col(nil, s, m.Values)
}

// At returns the value of run i at step s.
func (m *AlignedMatrix) At(i, s int) float64 {
	return m.Values.At(i, s)
}

// Final returns the values at the last step.
func (m *AlignedMatrix) Final() []float64 {
	if m.Steps() == 0 {
		return nil
	}
	return m.Column(m.Steps() - 1)
}

// Initial returns the values at the first step.
func (m *AlignedMatrix) Initial() []float64 {
	if m.Steps() == 0 {
		return nil
	}
	return m.Column(0)
}
