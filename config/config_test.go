package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

const experimentYAML = `
scenarios:
  spear-swv: {legend_name: SPEAR-SWV, cutoff: 5}
  cplex-rcw:
    cutoff: 10
  clasp-ws:
configurators:
  smac: {kind: smac, legend_name: SMAC}
  irace:
    kind: irace
    n_samples: 4
    bootstrapping: true
    min_run_id: 2
    max_run_id: 8
  gga:
analysis:
  reference: smac
  seed: 7
  alpha: 0.01
report:
  table_style: latex
  name_map:
    ac_dict: {irace: iRace}
    scen_dict: {cplex-rcw: CPLEX}
storage:
  backend: file
  dir: /tmp/acbench
  ttl_seconds: 60
`

// TestParseKeepsOrder tests that scenarios and configurators keep file order
func TestParseKeepsOrder(t *testing.T) {
	exp, err := Parse([]byte(experimentYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	var scen []string
	for _, s := range exp.Scenarios {
		scen = append(scen, s.Name)
	}
	if got := strings.Join(scen, ","); got != "spear-swv,cplex-rcw,clasp-ws" {
		t.Errorf("Expected file order, got %s", got)
	}
	var acs []string
	for _, c := range exp.Configurators {
		acs = append(acs, c.Name)
	}
	if got := strings.Join(acs, ","); got != "smac,irace,gga" {
		t.Errorf("Expected file order, got %s", got)
	}
}

// TestParseEntries tests field decoding and per-entry defaults
func TestParseEntries(t *testing.T) {
	exp, err := Parse([]byte(experimentYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cplex, ok := exp.Scenario("cplex-rcw")
	if !ok || cplex.Cutoff != 10 || cplex.Label() != "cplex-rcw" {
		t.Errorf("Unexpected scenario %+v", cplex)
	}
	gga, ok := exp.Configurator("gga")
	if !ok || gga.Kind != "gga" || gga.NSamples != 1 {
		t.Errorf("Expected kind and n_samples defaults for an empty entry, got %+v", gga)
	}
	irace, _ := exp.Configurator("irace")
	if f := irace.RunFilter(); f.MinRunID != 2 || f.MaxRunID != 8 {
		t.Errorf("Unexpected run filter %+v", f)
	}
	p := exp.Portfolio(irace)
	if p == nil || p.NSamples != 4 || !p.Bootstrap || p.Iterations != 100 {
		t.Errorf("Unexpected portfolio %+v", p)
	}
	if exp.Portfolio(gga) != nil {
		t.Error("Expected no portfolio for single runs")
	}
	if exp.Storage.TTL().Seconds() != 60 {
		t.Errorf("Expected TTL of 60s, got %v", exp.Storage.TTL())
	}
	if o := exp.StoreOptions(); o.Backend != "file" || o.Dir != "/tmp/acbench" || o.TTL != exp.Storage.TTL() {
		t.Errorf("Unexpected store options %+v", o)
	}
}

// TestDefaults tests the analysis defaults of a minimal file
func TestDefaults(t *testing.T) {
	exp, err := Parse([]byte("configurators:\n  smac:\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	a := exp.Analysis
	if a.Alpha != 0.05 || a.Reps != 10000 || a.BootstrapSamples != 10000 || a.SampleIterations != 100 {
		t.Errorf("Unexpected defaults %+v", a)
	}
	if a.FastPathMin != 20 || a.Workers < 1 {
		t.Errorf("Unexpected defaults %+v", a)
	}
	if exp.Split() != acbench.SplitTest {
		t.Errorf("Expected test split, got %s", exp.Split())
	}
	if exp.Report.TableStyle != "pipe" || exp.Storage.Backend != "memory" {
		t.Errorf("Unexpected report or storage defaults")
	}

	tester := exp.Tester()
	if tester.Reps != 10000 || tester.Level() != 0.05 {
		t.Errorf("Unexpected tester %+v", tester)
	}
}

// TestReportConfig tests that legend names and name maps reach the report
func TestReportConfig(t *testing.T) {
	exp, err := Parse([]byte(experimentYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg := exp.ReportConfig()
	if cfg.Format != "latex" {
		t.Errorf("Expected latex format, got %s", cfg.Format)
	}
	if cfg.ScenarioNames["spear-swv"] != "SPEAR-SWV" {
		t.Errorf("Expected legend name to be mapped")
	}
	if cfg.ScenarioNames["cplex-rcw"] != "CPLEX" {
		t.Errorf("Expected scen_dict to be mapped")
	}
	if cfg.ConfiguratorNames["irace"] != "iRace" {
		t.Errorf("Expected ac_dict to be mapped")
	}
}

// TestValidate tests rejected settings
func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"alpha", "analysis: {alpha: 1.5}", "alpha"},
		{"zero alpha", "analysis: {alpha: 0}", "alpha"},
		{"n_samples", "configurators: {smac: {n_samples: 0}}", "n_samples"},
		{"run ids", "configurators: {smac: {min_run_id: 5, max_run_id: 3}}", "min_run_id"},
		{"kind", "configurators: {smac: {kind: hyperopt}}", "unknown configurator kind"},
		{"reference", "configurators: {smac: }\nanalysis: {reference: irace}", "reference"},
		{"timeouts", "scenarios: {a: }\nanalysis: {rm_timeouts: true}", "cutoff"},
		{"table style", "report: {table_style: html}", "table_style"},
		{"backend", "storage: {backend: s3}", "backend"},
		{"redis url", "storage: {backend: redis}", "redis_url"},
		{"split", "analysis: {split: validation}", "split"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			var argErr *acerrors.ArgumentError
			if !errors.As(err, &argErr) {
				t.Errorf("Expected ArgumentError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

// TestParseRejectsNonMapping tests that entries must be keyed by name
func TestParseRejectsNonMapping(t *testing.T) {
	if _, err := Parse([]byte("configurators:\n  - smac\n")); err == nil {
		t.Error("Expected error for a sequence of configurators")
	}
}

// TestLoadJSON tests loading a JSON file from disk
func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exp.json")
	data := `{"configurators": {"b": {"kind": "gga"}, "a": {"kind": "smac"}}, "analysis": {"seed": 3}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	exp, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exp.Configurators[0].Name != "b" || exp.Analysis.Seed != 3 {
		t.Errorf("Unexpected experiment %+v", exp)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a missing file")
	}
}
