package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/scttfrdmn/acbench/aggregate"
)

func f(v float64) *float64 { return &v }

func comparisons() []*aggregate.ScenarioComparison {
	return []*aggregate.ScenarioComparison{
		{
			Scenario:  "spear-qcp",
			Label:     "spear-qcp",
			Reference: "smac",
			Default:   f(100),
			Times:     []float64{1, 10},
			Configurators: []aggregate.ConfiguratorStats{
				{
					Name: "smac", Label: "SMAC",
					Medians: []float64{50, 20}, PValues: []float64{1, 1},
					Reject: []bool{false, false}, Similar: []bool{true, true}, Better: []bool{false, false},
					Final:   &aggregate.FinalSummary{Median: 20, Q25: 18, Q75: 25, Similar: true},
					AUC:     f(35), Speedup: f(1), SignificanceSpeedup: f(1),
				},
				{
					Name: "irace", Label: "irace",
					Medians: []float64{40, 10}, PValues: []float64{0.9, 0.99},
					Reject: []bool{false, false}, Similar: []bool{true, true}, Better: []bool{false, true},
					Final:   &aggregate.FinalSummary{Median: 10, Q25: 9, Q75: 12, Best: true, Similar: true, Better: true},
					AUC:     f(25), Speedup: f(4), SignificanceSpeedup: f(2),
				},
				{Name: "gga", Label: "GGA"},
			},
		},
		{
			Scenario:  "cplex",
			Label:     "cplex",
			Reference: "smac",
			Default:   f(10),
			Times:     []float64{1},
			Configurators: []aggregate.ConfiguratorStats{
				{
					Name: "smac", Label: "SMAC",
					Medians: []float64{5}, PValues: []float64{1}, Reject: []bool{false},
					Final: &aggregate.FinalSummary{Median: 5, Best: true, Similar: true},
					AUC:   f(5), Speedup: f(1),
				},
				{
					Name: "irace", Label: "irace",
					Medians: []float64{8}, PValues: []float64{0.01}, Reject: []bool{true},
					Final: &aggregate.FinalSummary{Median: 8},
					AUC:   f(8), Speedup: f(1),
				},
			},
		},
	}
}

// TestFinalPerformanceTable tests flags, placeholders and quartiles
func TestFinalPerformanceTable(t *testing.T) {
	table := FinalPerformanceTable(comparisons(), Config{AddQuartiles: true})

	if got := strings.Join(table.Headers, ","); got != "Set,Default,SMAC,irace,GGA" {
		t.Errorf("Unexpected headers %s", got)
	}
	row := table.Rows[0]
	if row[1].Text != "100.00" {
		t.Errorf("Expected default 100.00, got %s", row[1].Text)
	}
	if !row[3].Best || !row[3].Better || row[2].Better {
		t.Errorf("Expected irace best and better, SMAC not better")
	}
	if row[4].Text != Placeholder {
		t.Errorf("Expected placeholder without data, got %s", row[4].Text)
	}
	if got := row[2].Plain(); got != "20.00 [18.00;25.00]" {
		t.Errorf("Expected quartiles in plain text, got %q", got)
	}
	if table.Rows[1][4].Text != Placeholder {
		t.Errorf("Expected placeholder for a configurator missing from a scenario")
	}
}

// TestFinalPerformanceTableTimeouts tests that timed out finals render everywhere
func TestFinalPerformanceTableTimeouts(t *testing.T) {
	comps := comparisons()
	final := comps[0].Configurators[0].Final
	final.Median, final.Q75 = math.Inf(1), math.Inf(1)
	tables := []Table{FinalPerformanceTable(comps, Config{AddQuartiles: true})}

	cell := tables[0].Rows[0][2]
	if cell.Text != Placeholder || cell.Value != nil {
		t.Errorf("Expected placeholder for a timed out median, got %q", cell.Text)
	}
	if cell.Q25 != nil || cell.Q75 != nil {
		t.Errorf("Expected no quartiles with an infinite upper quartile")
	}

	for _, format := range Formats() {
		r, err := NewRenderer(format)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		var buf bytes.Buffer
		if err := r.Render(&buf, tables); err != nil {
			t.Fatalf("Render %s failed: %v", format, err)
		}
		if strings.Contains(buf.String(), "Inf") {
			t.Errorf("Expected no infinite values in %s output:\n%s", format, buf.String())
		}
	}
}

// TestSpeedupTableGeoAvg tests the geometric average row
func TestSpeedupTableGeoAvg(t *testing.T) {
	table := SpeedupTable(comparisons(), Config{})

	last := table.Rows[len(table.Rows)-1]
	if last[0].Text != "Geo Avg." {
		t.Fatalf("Expected Geo Avg. row, got %s", last[0].Text)
	}
	if last[2].Text != "2.0" {
		t.Errorf("Expected geometric mean of 4 and 1 to be 2.0, got %s", last[2].Text)
	}
	if last[3].Text != Placeholder {
		t.Errorf("Expected placeholder for GGA, got %s", last[3].Text)
	}
}

// TestDefaultSpeedupTable tests default divided by median
func TestDefaultSpeedupTable(t *testing.T) {
	table := DefaultSpeedupTable(comparisons(), Config{})
	if got := table.Rows[0][2].Text; got != "10.00" {
		t.Errorf("Expected 10.00, got %s", got)
	}
}

// TestMedianTableMarksRejected tests daggers for significantly worse configurators
func TestMedianTableMarksRejected(t *testing.T) {
	table := MedianTable(comparisons(), Config{})

	row := table.Rows[1]
	if !row[3].Rejected || !row[3].Daggered() || row[3].Starred() {
		t.Errorf("Expected irace on cplex to carry a dagger and no star")
	}

	var pipe, latex strings.Builder
	if err := (&PipeRenderer{}).Render(&pipe, []Table{table}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if err := (&LatexRenderer{}).Render(&latex, []Table{table}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(pipe.String(), "†") || !strings.Contains(latex.String(), `^\dagger`) {
		t.Errorf("Expected dagger markers, got:\n%s\n%s", pipe.String(), latex.String())
	}
	if !row[2].Best {
		t.Errorf("Expected lowest median to be marked best")
	}
}

// TestAUCTableNameMap tests name mapping through the config
func TestAUCTableNameMap(t *testing.T) {
	cfg := Config{
		ConfiguratorNames: map[string]string{"smac": "SMAC3"},
		ScenarioNames:     map[string]string{"cplex": "CPLEX RCW"},
	}
	table := AUCTable(comparisons(), cfg)

	if table.Headers[1] != "SMAC3" {
		t.Errorf("Expected mapped configurator name, got %s", table.Headers[1])
	}
	if table.Rows[1][0].Text != "CPLEX RCW" {
		t.Errorf("Expected mapped scenario name, got %s", table.Rows[1][0].Text)
	}
	if !table.Rows[0][2].Best || table.Rows[0][1].Best {
		t.Errorf("Expected the lowest AUC to be best")
	}
}

// TestOverTimeTables tests the mean column and the aggregated stats
func TestOverTimeTables(t *testing.T) {
	tables := OverTimeTables(comparisons()[0], Config{})
	if len(tables) != 4 {
		t.Fatalf("Expected 4 tables, got %d", len(tables))
	}

	pvals := tables[0]
	if got := strings.Join(pvals.Headers, ","); got != "AC,1.00,10.00,Mean" {
		t.Errorf("Unexpected headers %s", got)
	}
	if len(pvals.Rows) != 2 {
		t.Errorf("Expected configurators without data to be skipped, got %d rows", len(pvals.Rows))
	}
	if got := tables[2].Rows[0][3].Text; got != "35.00" {
		t.Errorf("Expected mean median 35.00, got %s", got)
	}
	aggr := tables[3]
	if aggr.Rows[1][1].Text != "10.00" || aggr.Rows[1][4].Text != "2.00" {
		t.Errorf("Unexpected aggregated row %v", aggr.Rows[1])
	}
}

// TestRenderers tests every output format on the same tables
func TestRenderers(t *testing.T) {
	tables := []Table{FinalPerformanceTable(comparisons(), Config{AddQuartiles: true})}

	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			r, err := NewRenderer(format)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			var buf bytes.Buffer
			if err := r.Render(&buf, tables); err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			out := buf.String()

			switch format {
			case "pipe", "markdown":
				if !strings.Contains(out, "**<u>10.00</u>**\\* [9.00;12.00]") {
					t.Errorf("Expected decorated best cell, got:\n%s", out)
				}
			case "latex":
				if !strings.Contains(out, `$\mathbf{\underline{10.00}}^* [9.00;12.00]$`) {
					t.Errorf("Expected LaTeX math cell, got:\n%s", out)
				}
				if !strings.Contains(out, `\begin{tabular}{lrrrr}`) {
					t.Errorf("Expected tabular spec, got:\n%s", out)
				}
			case "csv":
				reader := csv.NewReader(strings.NewReader(out))
				reader.FieldsPerRecord = -1
				records, err := reader.ReadAll()
				if err != nil {
					t.Fatalf("Invalid CSV: %v", err)
				}
				if records[2][3] != "10.00 [9.00;12.00]" {
					t.Errorf("Expected plain cell, got %q", records[2][3])
				}
			case "json":
				var decoded []Table
				if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
					t.Fatalf("Invalid JSON: %v", err)
				}
				if !decoded[0].Rows[0][3].Best {
					t.Error("Expected flags to survive JSON encoding")
				}
			}
		})
	}

	if _, err := NewRenderer("html"); err == nil {
		t.Error("Expected error for unknown format")
	}
}
