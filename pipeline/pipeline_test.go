package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/scttfrdmn/acbench/acbench"
	"github.com/scttfrdmn/acbench/aggregate"
	"github.com/scttfrdmn/acbench/config"
	acerrors "github.com/scttfrdmn/acbench/errors"
	"github.com/scttfrdmn/acbench/observability"
	"github.com/scttfrdmn/acbench/storage"
	"github.com/scttfrdmn/acbench/trajectory"
)

const experimentYAML = `
scenarios:
  spear: {legend_name: SPEAR}
  clasp: {}
configurators:
  smac: {kind: smac}
  gga: {kind: validation}
  ghost: {kind: validation}
analysis:
  reference: smac
  reps: 200
  bootstrap_samples: 50
  seed: 7
  workers: 2
`

const smacTrajectory = `"CPU Time Used","Estimated Training Performance","Wallclock Time","Incumbent ID","Automatic Configurator (CPU) Time","Configuration..."
0.0, 100.0, 0.5, 1, 0.0, a='1'
10.0, 50.0, 12.0, 2, 1.0, a='2'
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// writeValidation writes a validation of two incumbents, the default with
// performance first and the final incumbent with last.
func writeValidation(t *testing.T, runDir, split string, first, last float64) {
	t.Helper()
	results := fmt.Sprintf(`"Time","Training (Empirical) Performance","Test Set Performance","AC Overhead Time","Validation Configuration ID"
0.0,%[1]g,%[1]g,0,1
50.0,%[2]g,%[2]g,0,2
`, first, last)
	matrix := fmt.Sprintf(`"Problem Instance","Seed","Objective of validation config #1","Objective of validation config #2"
"inst1",-1,%[1]g,%[2]g
"inst2",-1,%[1]g,%[2]g
`, first, last)
	writeFile(t, filepath.Join(runDir, split, "validationResults-traj-run-1-walltime.csv"), results)
	writeFile(t, filepath.Join(runDir, split, "validationObjectiveMatrix-traj-run-1-walltime.csv"), matrix)
}

// writeExperiment lays out three runs of smac and gga on both scenarios.
// smac ends at 5 on test and 4 on train, gga at 8 and 7.
func writeExperiment(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, scen := range []string{"spear", "clasp"} {
		for id := 1; id <= 3; id++ {
			run := filepath.Join(root, scen, "smac", fmt.Sprintf("run-%d", id))
			writeFile(t, filepath.Join(run, fmt.Sprintf("traj-run%d.txt", id)), smacTrajectory)
			writeValidation(t, run, trajectory.ValidationTestDir, 12, 5)
			writeValidation(t, run, trajectory.ValidationTrainDir, 11, 4)

			run = filepath.Join(root, scen, "gga", fmt.Sprintf("run-%d", id))
			writeValidation(t, run, trajectory.ValidationTestDir, 12, 8)
			writeValidation(t, run, trajectory.ValidationTrainDir, 11, 7)
		}
	}
	return root
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustExperiment(t *testing.T, extra string) *config.Experiment {
	t.Helper()
	exp, err := config.Parse([]byte(experimentYAML + extra))
	if err != nil {
		t.Fatalf("config.Parse failed: %v", err)
	}
	return exp
}

func mustEngine(t *testing.T, exp *config.Experiment, root string, opts ...EngineOption) *Engine {
	t.Helper()
	opts = append([]EngineOption{WithLogger(quietLogger())}, opts...)
	engine, err := New(exp, root, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return engine
}

func finalMedian(t *testing.T, c *aggregate.ScenarioComparison, name string) float64 {
	t.Helper()
	s, ok := c.Stats(name)
	if !ok {
		t.Fatalf("No statistics for %s", name)
	}
	if s.Final == nil {
		t.Fatalf("No final summary for %s", name)
	}
	return s.Final.Median
}

// TestRun tests the complete analysis of two scenarios
func TestRun(t *testing.T) {
	root := writeExperiment(t)
	store := storage.NewMemoryStore()
	var sink bytes.Buffer
	events := observability.NewEventLog(observability.NewJSONEventSink(&sink))

	engine := mustEngine(t, mustExperiment(t, ""), root, WithStore(store), WithEvents(events))
	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Comparisons) != 2 {
		t.Fatalf("Expected 2 comparisons, got %d", len(result.Comparisons))
	}
	if result.Comparisons[0].Scenario != "spear" || result.Comparisons[1].Scenario != "clasp" {
		t.Errorf("Expected configuration order, got %s, %s", result.Comparisons[0].Scenario, result.Comparisons[1].Scenario)
	}
	if result.Comparisons[0].Label != "SPEAR" {
		t.Errorf("Expected legend name as label, got %q", result.Comparisons[0].Label)
	}
	if result.Aggregated != nil || len(result.Scatter) != 0 {
		t.Error("Expected neither aggregation nor scatter tables by default")
	}

	for _, c := range result.Comparisons {
		if c.Split != acbench.SplitTest {
			t.Errorf("Expected test split, got %s", c.Split)
		}
		smac, _ := c.Stats("smac")
		ghost, _ := c.Stats("ghost")
		if smac.NRuns != 3 || ghost.NRuns != 0 {
			t.Errorf("Expected 3 smac runs and no ghost runs, got %d and %d", smac.NRuns, ghost.NRuns)
		}
		if v := finalMedian(t, c, "smac"); v != 5 {
			t.Errorf("Expected smac final median 5, got %v", v)
		}
		if v := finalMedian(t, c, "gga"); v != 8 {
			t.Errorf("Expected gga final median 8, got %v", v)
		}
		if c.Default == nil || *c.Default != 12 {
			t.Errorf("Expected default performance 12, got %v", c.Default)
		}
	}

	if store.Len() != 2 {
		t.Errorf("Expected 2 stored comparisons, got %d", store.Len())
	}
	stored, err := store.Load(context.Background(), result.Comparisons[0].ID)
	if err != nil || stored == nil || stored.Scenario != "spear" {
		t.Errorf("Expected the spear comparison in the store, got %v (%v)", stored, err)
	}

	counts := events.Counts()
	if counts[observability.ArtifactMissing] != 2 {
		t.Errorf("Expected one missing artifact per scenario for ghost, got %d", counts[observability.ArtifactMissing])
	}
	if counts[observability.ComparisonFinished] != 2 {
		t.Errorf("Expected 2 finished comparisons, got %d", counts[observability.ComparisonFinished])
	}
	if !strings.Contains(sink.String(), `"configurator":"ghost"`) {
		t.Errorf("Expected ghost events in the sink, got %s", sink.String())
	}
}

// TestRunTrainSplit tests analysing the train validation in place of test
func TestRunTrainSplit(t *testing.T) {
	root := writeExperiment(t)
	engine := mustEngine(t, mustExperiment(t, "  split: train\n"), root)

	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, c := range result.Comparisons {
		if c.Split != acbench.SplitTrain {
			t.Errorf("Expected train split to be reported, got %s", c.Split)
		}
		if v := finalMedian(t, c, "smac"); v != 4 {
			t.Errorf("Expected smac train median 4, got %v", v)
		}
		if v := finalMedian(t, c, "gga"); v != 7 {
			t.Errorf("Expected gga train median 7, got %v", v)
		}
	}
}

// TestRunAggregated tests the normalized scenario merging all scenarios
func TestRunAggregated(t *testing.T) {
	root := writeExperiment(t)
	store := storage.NewMemoryStore()
	engine := mustEngine(t, mustExperiment(t, "  aggregate: true\n"), root, WithStore(store))

	result, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	agg := result.Aggregated
	if agg == nil {
		t.Fatal("Expected an aggregated comparison")
	}
	if agg.Scenario != aggregate.AggregatedScenario {
		t.Errorf("Expected scenario %s, got %s", aggregate.AggregatedScenario, agg.Scenario)
	}
	if len(agg.Configurators) != 3 || agg.Configurators[0].Name != "smac" || agg.Configurators[2].Name != "ghost" {
		t.Errorf("Expected configurators in configuration order, got %+v", agg.Configurators)
	}
	if smac, _ := agg.Stats("smac"); smac.NRuns != 6 {
		t.Errorf("Expected the runs of both scenarios, got %d", smac.NRuns)
	}
	if store.Len() != 3 {
		t.Errorf("Expected the aggregated comparison to be stored too, got %d", store.Len())
	}

	// default 12 and best 5 map smac's final 5 to 0
	if v := finalMedian(t, agg, "smac"); v != 0 {
		t.Errorf("Expected normalized smac median 0, got %v", v)
	}
}

// TestRunScatter tests the median-run scatter tables
func TestRunScatter(t *testing.T) {
	root := writeExperiment(t)
	exp := mustExperiment(t, "report:\n  scatter: true\n")
	result, err := mustEngine(t, exp, root).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.Scatter) != 4 {
		t.Fatalf("Expected a scatter table per scenario and configurator with data, got %d", len(result.Scatter))
	}
	first := result.Scatter[0]
	if !strings.HasPrefix(first.Title, "SPEAR: smac") {
		t.Errorf("Unexpected title %q", first.Title)
	}
	if len(first.Rows) != 2 || first.Rows[0][0].Text != "inst1" {
		t.Errorf("Expected one row per instance, got %+v", first.Rows)
	}
	if v := first.Rows[0][2].Value; v == nil || *v != 5 {
		t.Errorf("Expected incumbent value 5, got %v", v)
	}
}

// TestRunMetrics tests the pipeline counters
func TestRunMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	defer provider.Shutdown(context.Background())

	metrics, err := observability.NewPipelineMetrics()
	if err != nil {
		t.Fatalf("NewPipelineMetrics failed: %v", err)
	}
	root := writeExperiment(t)
	if _, err := mustEngine(t, mustExperiment(t, ""), root, WithMetrics(metrics)).Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	if sums["acbench.runs.parsed"] != 12 {
		t.Errorf("Expected 12 parsed runs, got %d", sums["acbench.runs.parsed"])
	}
	if sums["acbench.runs.missing"] != 2 {
		t.Errorf("Expected 2 missing configurators, got %d", sums["acbench.runs.missing"])
	}
	if sums["acbench.tests.performed"] == 0 {
		t.Error("Expected tests to be counted")
	}
}

// TestRunCancelled tests that cancellation stops the analysis
func TestRunCancelled(t *testing.T) {
	root := writeExperiment(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mustEngine(t, mustExperiment(t, ""), root).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

// TestNew tests argument validation
func TestNew(t *testing.T) {
	if _, err := New(nil, "."); err == nil {
		t.Error("Expected error for nil experiment")
	}

	exp := mustExperiment(t, "")
	exp.Analysis.Alpha = 2
	_, err := New(exp, ".")
	var argErr *acerrors.ArgumentError
	if !errors.As(err, &argErr) {
		t.Errorf("Expected ArgumentError for invalid settings, got %v", err)
	}

	empty := config.Default()
	if _, err := New(empty, "."); !errors.As(err, &argErr) {
		t.Errorf("Expected ArgumentError without scenarios, got %v", err)
	}
}

// TestRenderTables tests rendering fresh and stored results alike
func TestRenderTables(t *testing.T) {
	root := writeExperiment(t)
	exp := mustExperiment(t, "")
	store := storage.NewMemoryStore()
	result, err := mustEngine(t, exp, root, WithStore(store)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	tables := result.Tables(exp.ReportConfig())
	var buf bytes.Buffer
	if err := Render(&buf, tables, "pipe"); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "SPEAR") {
		t.Errorf("Expected the scenario legend in the output:\n%s", buf.String())
	}
	if err := Render(&buf, tables, "html"); err == nil {
		t.Error("Expected error for unknown format")
	}

	stored, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if got := StoredTables(stored, exp.ReportConfig()); len(got) != len(tables) {
		t.Errorf("Expected %d tables from the store, got %d", len(tables), len(got))
	}
}
