package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/scttfrdmn/acbench/acbench"
	"github.com/scttfrdmn/acbench/align"
	acerrors "github.com/scttfrdmn/acbench/errors"
	"github.com/scttfrdmn/acbench/stats"
)

// ConfiguratorInput is one configurator of a scenario comparison.
type ConfiguratorInput struct {
	// Name identifies the configurator, e.g. its directory name.
	Name string
	// Label is the display name. Empty uses Name.
	Label string
	Group *acbench.RunGroup
	// Portfolio, when set with NSamples > 1, replaces the runs by simulated
	// parallel portfolios selected on the train split.
	Portfolio *PortfolioSampler
}

func (c ConfiguratorInput) label() string {
	label := c.Label
	if label == "" {
		label = c.Name
	}
	if p := c.Portfolio; p != nil && p.NSamples > 1 && p.Bootstrap {
		return fmt.Sprintf("%sx%d", label, p.NSamples)
	}
	return label
}

func (c ConfiguratorInput) sampled() bool {
	return c.Portfolio != nil && c.Portfolio.NSamples > 1
}

// Input describes the comparison of one scenario.
type Input struct {
	Scenario string
	// Label is the display name of the scenario. Empty uses Scenario.
	Label         string
	Configurators []ConfiguratorInput
	// Reference names the configurator everything is compared to. Empty
	// compares to the best median, per time step and at the final step.
	// Speedups need a reference.
	Reference string
	// Split is the analysed split. Empty means acbench.SplitTest.
	Split  acbench.Split
	Tester *stats.Tester
	// BootstrapSamples is the number of run pairs per speedup.
	BootstrapSamples int
	// XMin drops the time steps before it from the over-time statistics.
	XMin   float64
	Logger *slog.Logger
}

// FinalSummary describes the performance at the end of the budget.
type FinalSummary struct {
	Median float64   `json:"median"`
	Q25    float64   `json:"q25"`
	Q75    float64   `json:"q75"`
	Values []float64 `json:"values"`
	// PValue of "reference is better than this configurator".
	PValue  *float64 `json:"p_value,omitempty"`
	Best    bool     `json:"best"`
	Similar bool     `json:"similar"`
	Better  bool     `json:"better"`
}

// ConfiguratorStats holds everything computed for one configurator. Nil
// pointers and slices mean the value could not be computed.
type ConfiguratorStats struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	NRuns   int    `json:"n_runs"`
	Dropped int    `json:"dropped"`

	Medians []float64 `json:"medians,omitempty"`
	Q25     []float64 `json:"q25,omitempty"`
	Q75     []float64 `json:"q75,omitempty"`
	PValues []float64 `json:"p_values,omitempty"`
	Reject  []bool    `json:"reject,omitempty"`
	Similar []bool    `json:"similar,omitempty"`
	Better  []bool    `json:"better,omitempty"`

	Final               *FinalSummary `json:"final,omitempty"`
	AUC                 *float64      `json:"auc,omitempty"`
	Speedup             *float64      `json:"speedup,omitempty"`
	SignificanceSpeedup *float64      `json:"significance_speedup,omitempty"`
}

// ScenarioComparison is the result of comparing all configurators on one
// scenario.
type ScenarioComparison struct {
	ID        string        `json:"id"`
	Scenario  string        `json:"scenario"`
	Label     string        `json:"label"`
	CreatedAt time.Time     `json:"created_at"`
	Split     acbench.Split `json:"split"`
	Reference string        `json:"reference,omitempty"`
	// Default is the performance of the default configuration.
	Default        *float64            `json:"default,omitempty"`
	Times          []float64           `json:"times"`
	Configurators  []ConfiguratorStats `json:"configurators"`
	TestsPerformed int                 `json:"tests_performed"`
	Warnings       []string            `json:"warnings,omitempty"`
}

// Stats returns the statistics of the named configurator.
func (c *ScenarioComparison) Stats(name string) (*ConfiguratorStats, bool) {
	for i := range c.Configurators {
		if c.Configurators[i].Name == name {
			return &c.Configurators[i], true
		}
	}
	return nil, false
}

func (c *ScenarioComparison) warn(err error) {
	c.Warnings = append(c.Warnings, err.Error())
}

// Compare runs the full aggregation of one scenario: final-step summary and
// tests, per-step tests, AUC and speedups. Missing data never fails the
// comparison; it leaves the affected values nil and adds a warning. Only
// invalid arguments and cancellation return an error.
func Compare(ctx context.Context, in Input) (*ScenarioComparison, error) {
	if len(in.Configurators) == 0 {
		return nil, acerrors.NewArgumentError("Compare", "no configurators")
	}
	ref := BestPerStep
	for i, c := range in.Configurators {
		if c.Name == in.Reference && in.Reference != "" {
			ref = i
		}
	}
	if in.Reference != "" && ref == BestPerStep {
		return nil, acerrors.NewArgumentError("Compare", fmt.Sprintf("unknown reference %q", in.Reference))
	}
	if in.Tester == nil {
		in.Tester = stats.NewTester()
	}
	if in.Split == "" {
		in.Split = acbench.SplitTest
	}
	if in.Logger == nil {
		in.Logger = slog.Default()
	}
	in.Configurators = append([]ConfiguratorInput(nil), in.Configurators...)
	for i, c := range in.Configurators {
		if c.Group == nil {
			in.Configurators[i].Group = &acbench.RunGroup{Configurator: c.Name, Scenario: in.Scenario}
		}
	}

	out := &ScenarioComparison{
		ID:            uuid.New().String(),
		Scenario:      in.Scenario,
		Label:         in.Label,
		CreatedAt:     time.Now().UTC(),
		Split:         in.Split,
		Reference:     in.Reference,
		Configurators: make([]ConfiguratorStats, len(in.Configurators)),
	}
	if out.Label == "" {
		out.Label = in.Scenario
	}
	for i, c := range in.Configurators {
		out.Configurators[i] = ConfiguratorStats{Name: c.Name, Label: c.label(), NRuns: c.Group.Len()}
	}
	out.Default = defaultPerformance(in)

	compareFinal(in, ref, out)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := compareOverTime(in, ref, out); err != nil {
		return nil, err
	}

	in.Logger.Debug("scenario compared",
		"scenario", in.Scenario,
		"configurators", len(in.Configurators),
		"steps", len(out.Times),
		"tests", out.TestsPerformed,
		"warnings", len(out.Warnings))
	return out, nil
}

// defaultPerformance is the first value of the first run with data.
func defaultPerformance(in Input) *float64 {
	for _, c := range in.Configurators {
		for _, r := range c.Group.Runs {
			if v, ok := r.Initial(in.Split); ok {
				return &v
			}
		}
	}
	return nil
}

func (in Input) rand(parts ...string) *rand.Rand {
	return in.Tester.Rand(append([]string{in.Scenario}, parts...)...)
}

func compareFinal(in Input, ref int, out *ScenarioComparison) {
	finals := make([][]float64, len(in.Configurators))
	medians := make([]float64, len(in.Configurators))
	for i, c := range in.Configurators {
		medians[i] = math.NaN()
		group := c.Group
		if c.sampled() {
			sampled, err := c.Portfolio.SampleFinal(group, in.rand(c.Name, "final-sample"))
			if err != nil {
				out.warn(fmt.Errorf("configurator %s: portfolio sampling: %w", c.Name, err))
				continue
			}
			group = sampled
		}
		for _, r := range group.Runs {
			if v, ok := r.Final(in.Split); ok {
				finals[i] = append(finals[i], v)
			}
		}
		if len(finals[i]) == 0 {
			out.warn(acerrors.NewInsufficientDataError(in.Scenario, c.Name, "final performance"))
			continue
		}
		q25, med, q75 := stats.Quartiles(finals[i])
		medians[i] = med
		out.Configurators[i].Final = &FinalSummary{Median: med, Q25: q25, Q75: q75, Values: finals[i]}
	}

	best := math.Inf(1)
	bestIdx := -1
	for i, m := range medians {
		if !math.IsNaN(m) && m < best {
			best, bestIdx = m, i
		}
	}
	for i := range out.Configurators {
		if f := out.Configurators[i].Final; f != nil {
			f.Best = f.Median == best
		}
	}
	if ref == BestPerStep {
		ref = bestIdx
	}
	if ref < 0 || len(finals[ref]) == 0 {
		return
	}

	rng := in.rand("final-test")
	for i := range in.Configurators {
		f := out.Configurators[i].Final
		if f == nil {
			continue
		}
		p := in.Tester.PValue(finals[ref], finals[i], rng)
		out.TestsPerformed++
		f.PValue = ptr(p)
		f.Similar = in.Tester.Similar(p)
		f.Better = i != ref && in.Tester.Better(p)
	}
}

func compareOverTime(in Input, ref int, out *ScenarioComparison) error {
	ms := make([]*acbench.AlignedMatrix, len(in.Configurators))
	for i, c := range in.Configurators {
		m, report := align.Align(c.Group, in.Split)
		out.Configurators[i].Dropped = report.Dropped
		if report.Dropped > 0 {
			in.Logger.Info("runs without data",
				"scenario", in.Scenario, "configurator", c.Name, "split", string(in.Split), "runs", report.DroppedIDs)
		}
		if c.sampled() && m.Rows() > 0 {
			train, _ := align.Align(c.Group, acbench.SplitTrain)
			sampled, err := c.Portfolio.SampleOverTime(m, train, in.rand(c.Name, "overtime-sample"))
			if err != nil {
				out.warn(fmt.Errorf("configurator %s: portfolio sampling: %w", c.Name, err))
				m = &acbench.AlignedMatrix{Configurator: c.Name, Scenario: in.Scenario}
			} else {
				m = sampled
			}
		}
		if m.Rows() == 0 {
			out.warn(acerrors.NewInsufficientDataError(in.Scenario, c.Name, "trajectory"))
		}
		ms[i] = m
	}

	ms = align.Unify(ms...)
	if in.XMin > 0 {
		for i := range ms {
			ms[i] = align.Cut(ms[i], in.XMin)
		}
	}
	if len(ms) > 0 {
		out.Times = ms[0].Times
	}

	tests, err := TestPerTimestep(ms, ref, in.Tester, in.rand("per-step"))
	if err != nil {
		return err
	}
	out.TestsPerformed += tests.Performed
	for i, m := range ms {
		st := &out.Configurators[i]
		if m.Rows() == 0 {
			continue
		}
		sum := Summaries(m)
		st.Medians, st.Q25, st.Q75 = sum.Median, sum.Q25, sum.Q75
		st.PValues = definedOrNil(tests.PValues[i])
		st.Reject, st.Similar, st.Better = tests.Reject[i], tests.Similar[i], tests.Better[i]
		if auc, ok := AUC(m); ok {
			st.AUC = &auc
		}
	}

	if ref == BestPerStep {
		return nil
	}
	if ms[ref].Rows() == 0 {
		out.warn(acerrors.NewInsufficientDataError(in.Scenario, in.Reference, "speedup"))
		return nil
	}
	boot, err := BootstrapSpeedups(ms, ref, in.BootstrapSamples, in.rand("bootstrap-speedup"))
	if err != nil {
		return err
	}
	sig, err := SignificanceSpeedups(ms, ref, in.Tester, in.rand("significance-speedup"))
	if err != nil {
		return err
	}
	for i := range ms {
		out.Configurators[i].Speedup = ptr(boot[i])
		out.Configurators[i].SignificanceSpeedup = ptr(sig[i])
	}
	return nil
}

// definedOrNil drops a series that contains undefined values.
func definedOrNil(v []float64) []float64 {
	for _, x := range v {
		if math.IsNaN(x) {
			return nil
		}
	}
	return v
}
