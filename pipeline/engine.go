// Package pipeline runs a whole experiment: it discovers and parses the runs
// of every configurator on every scenario, preprocesses them, compares them
// and stores the comparisons.
//
// Scenarios are processed concurrently, bounded by the configured number of
// workers. Every statistic draws from a generator seeded by its scenario and
// configurator, so the results do not depend on scheduling.
//
// Example:
//
//	exp, err := config.Load("experiment.yaml")
//	engine, err := pipeline.New(exp, "./runs", pipeline.WithStore(store))
//	result, err := engine.Run(ctx)
//	err = pipeline.Render(os.Stdout, result.Tables(exp.ReportConfig()), "pipe")
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/scttfrdmn/acbench/acbench"
	"github.com/scttfrdmn/acbench/aggregate"
	"github.com/scttfrdmn/acbench/config"
	acerrors "github.com/scttfrdmn/acbench/errors"
	"github.com/scttfrdmn/acbench/observability"
	"github.com/scttfrdmn/acbench/report"
	"github.com/scttfrdmn/acbench/storage"
	"github.com/scttfrdmn/acbench/trajectory"
)

// Stage names used for spans and the latency histogram.
const (
	StageParse      = "parse"
	StagePreprocess = "preprocess"
	StageCompare    = "compare"
	StageStore      = "store"
)

// Engine runs the analysis of one experiment.
type Engine struct {
	exp     *config.Experiment
	root    string
	store   storage.ResultStore
	metrics *observability.PipelineMetrics
	events  *observability.EventLog
	logger  *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStore saves every comparison to store.
func WithStore(store storage.ResultStore) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// WithMetrics records pipeline counters and stage latencies.
func WithMetrics(metrics *observability.PipelineMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithEvents records data-quality events.
func WithEvents(events *observability.EventLog) EngineOption {
	return func(e *Engine) {
		e.events = events
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine reading runs from root, laid out as
// <root>/<scenario>/<configurator>/run-<id>.
func New(exp *config.Experiment, root string, opts ...EngineOption) (*Engine, error) {
	if exp == nil {
		return nil, acerrors.NewArgumentError("pipeline.New", "nil experiment")
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	if len(exp.Scenarios) == 0 || len(exp.Configurators) == 0 {
		return nil, acerrors.NewArgumentError("pipeline.New", "experiment needs at least one scenario and one configurator")
	}
	e := &Engine{
		exp:    exp,
		root:   root,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Result is the outcome of one Run.
type Result struct {
	// Comparisons holds one comparison per scenario, in configuration order.
	Comparisons []*aggregate.ScenarioComparison
	// Aggregated compares the normalized union of all scenarios. Nil unless
	// aggregation was requested and possible.
	Aggregated *aggregate.ScenarioComparison
	// Scatter holds the default-vs-incumbent tables of the median runs.
	Scatter []report.Table
}

// Tables returns every table of the result: the cross-scenario tables, the
// over-time tables of each comparison and finally the scatter tables.
func (r *Result) Tables(cfg report.Config) []report.Table {
	tables := report.Tables(r.Comparisons, cfg)
	for _, c := range r.Comparisons {
		tables = append(tables, report.OverTimeTables(c, cfg)...)
	}
	if r.Aggregated != nil {
		tables = append(tables, report.OverTimeTables(r.Aggregated, cfg)...)
	}
	return append(tables, r.Scatter...)
}

// scenarioOutcome is what one scenario contributes to a Result.
type scenarioOutcome struct {
	groups     []*acbench.RunGroup
	comparison *aggregate.ScenarioComparison
	scatter    []report.Table
}

// Run analyses every scenario. Missing or malformed data never fails the run;
// it is logged, counted and recorded as events. Errors are returned for
// invalid settings, cancellation and store failures.
func (e *Engine) Run(ctx context.Context) (result *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.Int("scenarios", len(e.exp.Scenarios)),
		attribute.Int("configurators", len(e.exp.Configurators)),
		attribute.String("split", string(e.exp.Split())),
	)
	defer func() { observability.EndSpan(span, err) }()

	outcomes := make([]*scenarioOutcome, len(e.exp.Scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.exp.Analysis.Workers)
	for i, scen := range e.exp.Scenarios {
		i, scen := i, scen
		g.Go(func() error {
			out, err := e.runScenario(gctx, scen)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", scen.Name, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result = &Result{}
	for _, out := range outcomes {
		result.Comparisons = append(result.Comparisons, out.comparison)
		result.Scatter = append(result.Scatter, out.scatter...)
	}

	if e.aggregates() {
		result.Aggregated, err = e.runAggregated(ctx, outcomes)
		if err != nil {
			return nil, err
		}
	}

	e.logger.InfoContext(ctx, "experiment analysed",
		"scenarios", len(result.Comparisons),
		"aggregated", result.Aggregated != nil,
		"events", e.events.Counts())
	return result, nil
}

func (e *Engine) aggregates() bool {
	return e.exp.Analysis.Aggregate && len(e.exp.Scenarios) > 1 && e.exp.Split() != acbench.SplitTrajectory
}

func (e *Engine) runScenario(ctx context.Context, scen config.Scenario) (out *scenarioOutcome, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.scenario", attribute.String("scenario", scen.Name))
	defer func() { observability.EndSpan(span, err) }()

	groups, err := e.Load(ctx, scen)
	if err != nil {
		return nil, err
	}
	groups, split := e.preprocess(ctx, scen, groups)

	out = &scenarioOutcome{groups: groups}
	if e.exp.Report.Scatter {
		out.scatter = e.scatter(scen, groups)
	}
	out.comparison, err = e.compare(ctx, scen.Name, scen.Label(), split, groups)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Load discovers and parses the runs of every configurator on scen. The
// groups are returned in configuration order; a configurator without runs
// yields an empty group.
func (e *Engine) Load(ctx context.Context, scen config.Scenario) (groups []*acbench.RunGroup, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline."+StageParse, attribute.String("scenario", scen.Name))
	defer func() { observability.EndSpan(span, err) }()
	defer e.metrics.ObserveStage(ctx, StageParse, scen.Name, time.Now())

	groups = make([]*acbench.RunGroup, 0, len(e.exp.Configurators))
	for _, ac := range e.exp.Configurators {
		group, err := e.loadConfigurator(ctx, scen, ac)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (e *Engine) loadConfigurator(ctx context.Context, scen config.Scenario, ac config.Configurator) (*acbench.RunGroup, error) {
	kind, err := acbench.ParseKind(ac.Kind)
	if err != nil {
		return nil, err
	}
	opts := e.exp.ParseOptions(ac)
	opts.Logger = e.logger
	parser, err := trajectory.ForKind(kind, opts)
	if err != nil {
		return nil, err
	}

	// configurator trajectories carry no test data of their own
	var validator trajectory.Parser
	if kind != acbench.KindValidation && e.exp.Split() != acbench.SplitTrajectory {
		vopts := opts
		vopts.Patterns = nil
		if validator, err = trajectory.ForKind(acbench.KindValidation, vopts); err != nil {
			return nil, err
		}
	}

	dirs, err := trajectory.Discover(e.root, scen.Name, ac.Name, ac.RunFilter())
	if err != nil {
		e.logger.WarnContext(ctx, "no runs found", "scenario", scen.Name, "configurator", ac.Name, "error", err)
		e.events.RecordError(ctx, scen.Name, ac.Name, err)
		e.metrics.RunsMissing(ctx, scen.Name, ac.Name, 1)
		return acbench.NewRunGroup(ac.Name, scen.Name, nil), nil
	}

	var runs []*acbench.Run
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := parser.Parse(ctx, dir.Path, dir.Meta())
		e.recordWarnings(ctx, scen.Name, ac.Name, result.Warnings)
		if len(result.Runs) == 0 {
			e.metrics.RunsMissing(ctx, scen.Name, ac.Name, 1)
			continue
		}
		for _, run := range result.Runs {
			if validator != nil && run.Test == nil {
				e.attachValidation(ctx, validator, dir, run)
			}
			runs = append(runs, run)
		}
	}

	e.metrics.RunsParsed(ctx, scen.Name, ac.Name, len(runs))
	e.logger.DebugContext(ctx, "runs loaded",
		"scenario", scen.Name,
		"configurator", ac.Name,
		"kind", kind,
		"dirs", len(dirs),
		"runs", len(runs))
	return acbench.NewRunGroup(ac.Name, scen.Name, runs), nil
}

// attachValidation adds the validated test and train sub-trajectories found
// in the run directory.
func (e *Engine) attachValidation(ctx context.Context, validator trajectory.Parser, dir trajectory.RunDir, run *acbench.Run) {
	result := validator.Parse(ctx, dir.Path, dir.Meta())
	e.recordWarnings(ctx, dir.Scenario, dir.Configurator, result.Warnings)
	if len(result.Runs) == 0 {
		return
	}
	run.Test = result.Runs[0].Test
	run.Train = result.Runs[0].Train
}

func (e *Engine) recordWarnings(ctx context.Context, scenario, configurator string, warnings []error) {
	malformed := 0
	for _, w := range warnings {
		var m *acerrors.MalformedRecordError
		if errors.As(w, &m) {
			malformed++
		}
		e.events.RecordError(ctx, scenario, configurator, w)
	}
	e.metrics.RecordsMalformed(ctx, scenario, configurator, malformed)
}

// preprocess applies the performance factor, the train split substitution
// and the removal of common timeouts. It returns the split to compare.
func (e *Engine) preprocess(ctx context.Context, scen config.Scenario, groups []*acbench.RunGroup) ([]*acbench.RunGroup, acbench.Split) {
	ctx, span := observability.StartSpan(ctx, "pipeline."+StagePreprocess, attribute.String("scenario", scen.Name))
	defer observability.EndSpan(span, nil)
	defer e.metrics.ObserveStage(ctx, StagePreprocess, scen.Name, time.Now())

	a := e.exp.Analysis
	split := e.exp.Split()
	if a.PerfFactor != 1 {
		for i, g := range groups {
			groups[i] = aggregate.Scale(g, a.PerfFactor)
		}
	}

	if split == acbench.SplitTrain {
		for i, g := range groups {
			groups[i] = e.trainAsTest(ctx, g)
		}
		split = acbench.SplitTest
	}

	if a.RmTimeouts && scen.Cutoff > 0 && split == acbench.SplitTest {
		fixed, removed, err := aggregate.RemoveCommonTimeouts(groups, scen.Cutoff)
		if err != nil {
			e.logger.WarnContext(ctx, "common timeouts kept", "scenario", scen.Name, "error", err)
			e.events.RecordError(ctx, scen.Name, "", err)
		} else if removed > 0 {
			groups = fixed
			event := observability.NewEvent(ctx, observability.TimeoutsRemoved, observability.SeverityInfo,
				fmt.Sprintf("removed %d common timeouts at cutoff %g", removed, scen.Cutoff))
			event.Scenario = scen.Name
			event.Metadata = map[string]any{"instances": removed, "cutoff": scen.Cutoff}
			e.events.Record(event)
		}
	}
	return groups, split
}

// trainAsTest drops the runs without train data and analyses the train split
// in place of the test split.
func (e *Engine) trainAsTest(ctx context.Context, g *acbench.RunGroup) *acbench.RunGroup {
	kept := make([]*acbench.Run, 0, len(g.Runs))
	for _, r := range g.Runs {
		if r.Train != nil {
			kept = append(kept, r)
		}
	}
	if dropped := len(g.Runs) - len(kept); dropped > 0 {
		event := observability.NewEvent(ctx, observability.RunsDropped, observability.SeverityWarning,
			fmt.Sprintf("%d runs without train data", dropped))
		event.Scenario, event.Configurator = g.Scenario, g.Configurator
		e.events.Record(event)
	}
	out, err := aggregate.UseTrain(&acbench.RunGroup{Configurator: g.Configurator, Scenario: g.Scenario, Runs: kept})
	if err != nil {
		// unreachable: every kept run has train data
		return acbench.NewRunGroup(g.Configurator, g.Scenario, nil)
	}
	return out
}

func (e *Engine) input(scenario, label string, split acbench.Split, groups []*acbench.RunGroup) aggregate.Input {
	in := aggregate.Input{
		Scenario:         scenario,
		Label:            label,
		Reference:        e.exp.Analysis.Reference,
		Split:            split,
		Tester:           e.exp.Tester(),
		BootstrapSamples: e.exp.Analysis.BootstrapSamples,
		XMin:             e.exp.Analysis.XMin,
		Logger:           e.logger,
	}
	for i, ac := range e.exp.Configurators {
		in.Configurators = append(in.Configurators, aggregate.ConfiguratorInput{
			Name:      ac.Name,
			Label:     ac.Label(),
			Group:     groups[i],
			Portfolio: e.exp.Portfolio(ac),
		})
	}
	return in
}

// compare runs the statistics of one scenario and saves the comparison.
func (e *Engine) compare(ctx context.Context, scenario, label string, split acbench.Split, groups []*acbench.RunGroup) (c *aggregate.ScenarioComparison, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline."+StageCompare, attribute.String("scenario", scenario))
	start := time.Now()
	c, err = aggregate.Compare(ctx, e.input(scenario, label, split, groups))
	e.metrics.ObserveStage(ctx, StageCompare, scenario, start)
	if err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}
	// the train split is compared in the test slot
	c.Split = e.exp.Split()
	span.SetAttributes(
		attribute.String("comparison.id", c.ID),
		attribute.Int("tests", c.TestsPerformed),
		attribute.Int("warnings", len(c.Warnings)),
	)
	observability.EndSpan(span, nil)

	e.metrics.TestsPerformed(ctx, scenario, c.TestsPerformed)
	for _, s := range c.Configurators {
		e.metrics.RowsDropped(ctx, scenario, s.Name, s.Dropped)
		if s.Dropped > 0 {
			event := observability.NewEvent(ctx, observability.RunsDropped, observability.SeverityWarning,
				fmt.Sprintf("%d of %d runs dropped during alignment", s.Dropped, s.NRuns))
			event.Scenario, event.Configurator = scenario, s.Name
			e.events.Record(event)
		}
	}
	for _, w := range c.Warnings {
		event := observability.NewEvent(ctx, observability.OtherWarning, observability.SeverityWarning, w)
		event.Scenario = scenario
		e.events.Record(event)
	}
	finished := observability.NewEvent(ctx, observability.ComparisonFinished, observability.SeverityInfo,
		fmt.Sprintf("compared %d configurators", len(c.Configurators)))
	finished.Scenario = scenario
	finished.Metadata = map[string]any{
		"id":       c.ID,
		"steps":    len(c.Times),
		"tests":    c.TestsPerformed,
		"warnings": len(c.Warnings),
	}
	e.events.Record(finished)

	if err := e.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (e *Engine) save(ctx context.Context, c *aggregate.ScenarioComparison) (err error) {
	if e.store == nil {
		return nil
	}
	ctx, span := observability.StartSpan(ctx, "pipeline."+StageStore, attribute.String("comparison.id", c.ID))
	defer func() { observability.EndSpan(span, err) }()
	defer e.metrics.ObserveStage(ctx, StageStore, c.Scenario, time.Now())

	if err := e.store.Save(ctx, c); err != nil {
		return fmt.Errorf("failed to store comparison %s: %w", c.ID, err)
	}
	return nil
}

// runAggregated normalizes every scenario and compares the merged groups.
// Scenarios without test data make aggregation impossible; that is recorded
// and nil is returned.
func (e *Engine) runAggregated(ctx context.Context, outcomes []*scenarioOutcome) (*aggregate.ScenarioComparison, error) {
	scenarios := make([][]*acbench.RunGroup, len(outcomes))
	for i, out := range outcomes {
		scenarios[i] = out.groups
	}
	merged, err := aggregate.Normalize(scenarios)
	if err != nil {
		e.logger.WarnContext(ctx, "scenarios not aggregated", "error", err)
		e.events.RecordError(ctx, aggregate.AggregatedScenario, "", err)
		return nil, nil
	}

	byName := make(map[string]*acbench.RunGroup, len(merged))
	for _, g := range merged {
		byName[g.Configurator] = g
	}
	groups := make([]*acbench.RunGroup, len(e.exp.Configurators))
	for i, ac := range e.exp.Configurators {
		groups[i] = byName[ac.Name]
		if groups[i] == nil {
			groups[i] = acbench.NewRunGroup(ac.Name, aggregate.AggregatedScenario, nil)
		}
	}
	return e.compare(ctx, aggregate.AggregatedScenario, "Aggregated", acbench.SplitTest, groups)
}

func (e *Engine) scatter(scen config.Scenario, groups []*acbench.RunGroup) []report.Table {
	var tables []report.Table
	for i, g := range groups {
		s, ok := aggregate.MedianRunScatter(g)
		if !ok {
			continue
		}
		title := fmt.Sprintf("%s: %s (run %d)", scen.Label(), e.exp.Configurators[i].Label(), s.RunID)
		tables = append(tables, report.ScatterTable(title, s.Instances, s.Default, s.Incumbent))
	}
	return tables
}
