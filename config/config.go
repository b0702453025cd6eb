// Package config loads experiment descriptions: which scenarios and
// configurators to compare, how to test them and how to present the results.
//
// Files are YAML; JSON works as well. Scenarios and configurators are
// mappings keyed by name, and their order in the file is kept as the order of
// rows and columns in every report.
//
// Example:
//
//	scenarios:
//	  spear-qcp: {legend_name: SPEAR-QCP, cutoff: 5}
//	configurators:
//	  smac: {kind: smac}
//	  irace: {kind: irace, n_samples: 4, bootstrapping: true}
//	analysis:
//	  reference: smac
//	  seed: 42
package config

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scttfrdmn/acbench/acbench"
	"github.com/scttfrdmn/acbench/aggregate"
	acerrors "github.com/scttfrdmn/acbench/errors"
	"github.com/scttfrdmn/acbench/report"
	"github.com/scttfrdmn/acbench/stats"
	"github.com/scttfrdmn/acbench/storage"
	"github.com/scttfrdmn/acbench/trajectory"
)

// Scenario is one problem set configurators were run on.
type Scenario struct {
	Name       string  `yaml:"-"`
	LegendName string  `yaml:"legend_name"`
	Cutoff     float64 `yaml:"cutoff"`
	// MaxY is the upper bound of the performance axis of plots.
	MaxY float64 `yaml:"maxy"`
}

// Label returns the legend name, or the name when none is set.
func (s Scenario) Label() string {
	if s.LegendName != "" {
		return s.LegendName
	}
	return s.Name
}

// Configurator is one algorithm configurator and where its runs live.
type Configurator struct {
	Name       string `yaml:"-"`
	LegendName string `yaml:"legend_name"`
	Kind       string `yaml:"kind"`
	// NSamples > 1 evaluates simulated parallel portfolios of that size.
	NSamples      int  `yaml:"n_samples"`
	Bootstrapping bool `yaml:"bootstrapping"`
	MinRunID      int  `yaml:"min_run_id"`
	MaxRunID      int  `yaml:"max_run_id"`
	// TimeColumn overrides the time column of CSV trajectories.
	TimeColumn string `yaml:"time_column"`
	// TimeUnit is "seconds" (default) or "evaluations".
	TimeUnit string   `yaml:"time_unit"`
	Patterns []string `yaml:"patterns"`
}

// Label returns the legend name, or the name when none is set.
func (c Configurator) Label() string {
	if c.LegendName != "" {
		return c.LegendName
	}
	return c.Name
}

// Analysis holds the statistical settings.
type Analysis struct {
	Alpha            float64 `yaml:"alpha"`
	Reps             int     `yaml:"reps"`
	BootstrapSamples int     `yaml:"bootstrap_samples"`
	SampleIterations int     `yaml:"sample_iterations"`
	Seed             int64   `yaml:"seed"`
	Workers          int     `yaml:"workers"`
	// Reference names the configurator to compare against. Empty compares
	// to the best median.
	Reference string `yaml:"reference"`
	Split     string `yaml:"split"`
	// PerfFactor scales all performance values, e.g. to change units.
	PerfFactor float64 `yaml:"perf_factor"`
	// RmTimeouts removes instances no run solved within the cutoff.
	RmTimeouts bool    `yaml:"rm_timeouts"`
	MaxValue   float64 `yaml:"max_value"`
	XMin       float64 `yaml:"xmin"`
	// FastPathMin is the per-group size from which the rank-sum test is
	// used. Zero disables the fast path.
	FastPathMin int `yaml:"fast_path_min"`
	// Aggregate adds a normalized scenario merging all scenarios.
	Aggregate bool `yaml:"aggregate"`
}

// NameMap maps internal names to display names.
type NameMap struct {
	Configurators map[string]string `yaml:"ac_dict"`
	Scenarios     map[string]string `yaml:"scen_dict"`
}

// Report holds the presentation settings.
type Report struct {
	TableStyle   string  `yaml:"table_style"`
	AddQuartiles bool    `yaml:"add_quartiles"`
	NameMap      NameMap `yaml:"name_map"`
	// Scatter adds default-vs-incumbent tables of the median run.
	Scatter bool `yaml:"scatter"`
}

// Storage selects where comparison results are kept.
type Storage struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	RedisURL   string `yaml:"redis_url"`
	KeyPrefix  string `yaml:"key_prefix"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL returns the configured expiry. Zero means no expiry.
func (s Storage) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// Observability configures logging, tracing and metrics.
type Observability struct {
	LogLevel       string `yaml:"log_level"`
	StructuredLogs bool   `yaml:"structured_logs"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ConsoleTraces  bool   `yaml:"console_traces"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// Experiment is a complete experiment description.
type Experiment struct {
	Scenarios     Scenarios     `yaml:"scenarios"`
	Configurators Configurators `yaml:"configurators"`
	Analysis      Analysis      `yaml:"analysis"`
	Report        Report        `yaml:"report"`
	Storage       Storage       `yaml:"storage"`
	Observability Observability `yaml:"observability"`
}

// Default returns an experiment without scenarios and configurators and
// every setting at its default.
func Default() *Experiment {
	return &Experiment{
		Analysis: Analysis{
			Alpha:            float64(stats.SignificanceLevel005),
			Reps:             stats.DefaultReps,
			BootstrapSamples: aggregate.DefaultBootstrapSamples,
			SampleIterations: aggregate.DefaultSampleIterations,
			Workers:          runtime.GOMAXPROCS(0),
			Split:            string(acbench.SplitTest),
			PerfFactor:       1,
			FastPathMin:      stats.DefaultFastPathMin,
		},
		Report: Report{TableStyle: "pipe"},
		Storage: Storage{
			Backend:   "memory",
			Dir:       "results",
			KeyPrefix: "acbench",
		},
		Observability: Observability{LogLevel: "info"},
	}
}

// Load reads and validates an experiment file.
func Load(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	exp, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exp, nil
}

// Parse decodes and validates an experiment description.
func Parse(data []byte) (*Experiment, error) {
	exp := Default()
	if err := yaml.Unmarshal(data, exp); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	return exp, nil
}

// Validate checks the experiment for settings no analysis could run with.
func (e *Experiment) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	a := e.Analysis
	if !(a.Alpha > 0 && a.Alpha < 1) {
		add("alpha must be in (0, 1), got %g", a.Alpha)
	}
	if a.Reps < 1 {
		add("reps must be positive, got %d", a.Reps)
	}
	if a.BootstrapSamples < 1 {
		add("bootstrap_samples must be positive, got %d", a.BootstrapSamples)
	}
	if a.Workers < 1 {
		add("workers must be positive, got %d", a.Workers)
	}
	if a.PerfFactor <= 0 {
		add("perf_factor must be positive, got %g", a.PerfFactor)
	}
	if _, err := acbench.ParseSplit(a.Split); err != nil {
		add("%v", err)
	}
	if a.Reference != "" {
		if _, ok := e.Configurator(a.Reference); !ok {
			add("reference %q is not a configurator", a.Reference)
		}
	}

	for _, c := range e.Configurators {
		if _, err := acbench.ParseKind(c.Kind); err != nil {
			add("configurator %s: %v", c.Name, err)
		}
		if c.NSamples < 1 {
			add("configurator %s: n_samples must be at least 1, got %d", c.Name, c.NSamples)
		}
		if c.MaxRunID > 0 && c.MinRunID > c.MaxRunID {
			add("configurator %s: min_run_id %d exceeds max_run_id %d", c.Name, c.MinRunID, c.MaxRunID)
		}
		switch acbench.TimeUnit(c.TimeUnit) {
		case "", acbench.UnitSeconds, acbench.UnitEvaluations:
		default:
			add("configurator %s: unknown time_unit %q", c.Name, c.TimeUnit)
		}
	}
	for _, s := range e.Scenarios {
		if s.Cutoff < 0 {
			add("scenario %s: cutoff must not be negative", s.Name)
		}
		if a.RmTimeouts && s.Cutoff <= 0 {
			add("scenario %s: rm_timeouts needs a cutoff", s.Name)
		}
	}

	if !slices.Contains(report.Formats(), strings.ToLower(e.Report.TableStyle)) {
		add("unknown table_style %q", e.Report.TableStyle)
	}
	switch e.Storage.Backend {
	case "memory", "file", "redis":
	default:
		add("unknown storage backend %q", e.Storage.Backend)
	}
	if e.Storage.Backend == "redis" && e.Storage.RedisURL == "" {
		add("storage backend redis needs redis_url")
	}

	if len(problems) > 0 {
		return acerrors.NewArgumentError("config.Validate", strings.Join(problems, "; "))
	}
	return nil
}

// Scenario looks up a scenario by name.
func (e *Experiment) Scenario(name string) (Scenario, bool) {
	for _, s := range e.Scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Configurator looks up a configurator by name.
func (e *Experiment) Configurator(name string) (Configurator, bool) {
	for _, c := range e.Configurators {
		if c.Name == name {
			return c, true
		}
	}
	return Configurator{}, false
}

// Split returns the analysed split. Validate has checked it.
func (e *Experiment) Split() acbench.Split {
	s, err := acbench.ParseSplit(e.Analysis.Split)
	if err != nil {
		return acbench.SplitTest
	}
	return s
}

// Tester returns the significance tester for the analysis settings.
func (e *Experiment) Tester() *stats.Tester {
	return &stats.Tester{
		Reps:        e.Analysis.Reps,
		Alpha:       stats.SignificanceLevel(e.Analysis.Alpha),
		FastPathMin: e.Analysis.FastPathMin,
		Seed:        e.Analysis.Seed,
	}
}

// ReportConfig returns the presentation settings for the report builders.
func (e *Experiment) ReportConfig() report.Config {
	scen := make(map[string]string, len(e.Scenarios)+len(e.Report.NameMap.Scenarios))
	for _, s := range e.Scenarios {
		if s.LegendName != "" {
			scen[s.Name] = s.LegendName
		}
	}
	for k, v := range e.Report.NameMap.Scenarios {
		scen[k] = v
	}
	ac := make(map[string]string, len(e.Report.NameMap.Configurators))
	for k, v := range e.Report.NameMap.Configurators {
		ac[k] = v
	}
	return report.Config{
		Format:            e.Report.TableStyle,
		AddQuartiles:      e.Report.AddQuartiles,
		ConfiguratorNames: ac,
		ScenarioNames:     scen,
	}
}

// ParseOptions returns the trajectory parser options of a configurator.
func (e *Experiment) ParseOptions(c Configurator) trajectory.ParseOptions {
	return trajectory.ParseOptions{
		MaxValue:   e.Analysis.MaxValue,
		TimeColumn: c.TimeColumn,
		TimeUnit:   acbench.TimeUnit(c.TimeUnit),
		Patterns:   c.Patterns,
	}
}

// RunFilter returns the run id range of a configurator.
func (c Configurator) RunFilter() trajectory.RunFilter {
	return trajectory.RunFilter{MinRunID: c.MinRunID, MaxRunID: c.MaxRunID}
}

// Portfolio returns the portfolio sampler of a configurator, or nil when
// single runs are evaluated.
func (e *Experiment) Portfolio(c Configurator) *aggregate.PortfolioSampler {
	if c.NSamples <= 1 {
		return nil
	}
	return &aggregate.PortfolioSampler{
		NSamples:   c.NSamples,
		Bootstrap:  c.Bootstrapping,
		Iterations: e.Analysis.SampleIterations,
	}
}

// StoreOptions returns the options of the result store.
func (e *Experiment) StoreOptions() storage.Options {
	return storage.Options{
		Backend:   e.Storage.Backend,
		Dir:       e.Storage.Dir,
		RedisURL:  e.Storage.RedisURL,
		KeyPrefix: e.Storage.KeyPrefix,
		TTL:       e.Storage.TTL(),
	}
}
