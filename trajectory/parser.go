// Package trajectory turns the on-disk artifacts of configurator runs into
// acbench.Run values.
//
// Every dialect is a Parser strategy resolved once through ForKind. Parsers
// never fail hard: missing files and malformed lines are returned as
// warnings next to whatever runs could be recovered, so a batch of runs can
// partially succeed.
package trajectory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// Parser reads one dialect.
type Parser interface {
	// Kind returns the dialect handled by the parser.
	Kind() acbench.ConfiguratorKind
	// Parse reads the artifact(s) at path, a file or a directory.
	Parse(ctx context.Context, path string, meta RunMeta) Result
}

// RunMeta identifies the run(s) being parsed.
type RunMeta struct {
	Configurator string
	Scenario     string
	// ID is used when a single artifact is parsed. Runs discovered inside a
	// directory take their id from the file name.
	ID int
}

// Result is the outcome of one Parse call.
type Result struct {
	Runs     []*acbench.Run
	Warnings []error
}

func (r *Result) warn(err error) {
	r.Warnings = append(r.Warnings, err)
}

// ParseOptions tunes the parsers.
type ParseOptions struct {
	// MaxValue clamps performance values from above, including infinite
	// timeouts. Zero disables it and rejects infinite values.
	MaxValue float64
	// TimeColumn selects the time column of CSV trajectories.
	TimeColumn string
	// TimeUnit selects wallclock seconds or evaluations where a dialect
	// records both.
	TimeUnit acbench.TimeUnit
	// EstimatedTrain reads the configurator's training estimate instead of
	// the validated test performance.
	EstimatedTrain bool
	// Patterns overrides the dialect's file name globs.
	Patterns []string
	// Logger receives warnings. Nil uses slog.Default().
	Logger *slog.Logger
}

// CSV trajectory columns.
const (
	ColumnCPUTime       = "CPU Time Used"
	ColumnEstimatedPerf = "Estimated Training Performance"
	ColumnWallclock     = "Wallclock Time"
	ColumnIncumbentID   = "Incumbent ID"
	ColumnACTime        = "Automatic Configurator (CPU) Time"
	ColumnConfiguration = "Configuration..."
	ColumnFullConfig    = "Full Configuration"
)

// ForKind returns the parser for a dialect.
func ForKind(kind acbench.ConfiguratorKind, opts ParseOptions) (Parser, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TimeUnit == "" {
		opts.TimeUnit = acbench.UnitSeconds
	}
	switch kind {
	case acbench.KindSMAC, acbench.KindGGA, acbench.KindParamILS:
		return &csvParser{kind: kind, opts: opts}, nil
	case acbench.KindMOParamILS:
		return &moParamILSParser{opts: opts}, nil
	case acbench.KindIrace:
		return &iraceParser{opts: opts}, nil
	case acbench.KindValidation:
		return &validationParser{opts: opts}, nil
	}
	return nil, acerrors.NewArgumentError("ForKind", fmt.Sprintf("unsupported configurator kind %q", kind))
}

// DefaultPatterns returns the file name globs searched in a run directory.
func DefaultPatterns(kind acbench.ConfiguratorKind) []string {
	switch kind {
	case acbench.KindSMAC:
		return []string{"traj-run*.txt", "traj_old.csv", "traj*.csv"}
	case acbench.KindGGA:
		return []string{"traj.csv"}
	case acbench.KindParamILS:
		return []string{"*traj_*.csv"}
	case acbench.KindMOParamILS:
		return []string{"log-run*.txt"}
	case acbench.KindIrace:
		return []string{"irace*.log", "irace*.out", "*.log"}
	case acbench.KindValidation:
		return []string{validationResultsPattern}
	}
	return nil
}

func patterns(kind acbench.ConfiguratorKind, opts ParseOptions) []string {
	if len(opts.Patterns) > 0 {
		return opts.Patterns
	}
	return DefaultPatterns(kind)
}

// globFirst returns the matches of the first pattern that matches anything.
func globFirst(dir string, pats []string) []string {
	for _, p := range pats {
		matches, err := filepath.Glob(filepath.Join(dir, p))
		if err == nil && len(matches) > 0 {
			sort.Strings(matches)
			return matches
		}
	}
	return nil
}

var trailingNumber = regexp.MustCompile(`(\d+)\D*$`)

// runIDFromName extracts the last number of a file name, e.g. 3 from
// "traj-run3.txt".
func runIDFromName(path string, fallback int) int {
	m := trailingNumber.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return fallback
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return fallback
	}
	return id
}

// performance checks a parsed performance value and applies MaxValue.
// Infinite values, as some configurators write for timeouts, only pass when
// MaxValue is set and are clamped to it.
func (o ParseOptions) performance(v float64) (float64, error) {
	switch {
	case math.IsInf(v, 1) && o.MaxValue > 0:
		return o.MaxValue, nil
	case math.IsNaN(v) || math.IsInf(v, 0):
		return 0, fmt.Errorf("performance %g is not finite (set a max value to clamp timeouts)", v)
	case o.MaxValue > 0 && v > o.MaxValue:
		return o.MaxValue, nil
	}
	return v, nil
}

func finiteTime(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("time %g is not finite", t)
	}
	return nil
}

// checkOrder reports records that break the trajectory invariants: time
// must strictly increase and, when monotone is set, performance must not
// get worse. Offending records are kept.
func checkOrder(path string, recs []acbench.TrajectoryRecord, lines []int, monotone bool) []error {
	var warnings []error
	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1], recs[i]
		line := i
		if i < len(lines) {
			line = lines[i]
		}
		if cur.Time <= prev.Time {
			warnings = append(warnings, acerrors.NewInvariantViolationError(path, line,
				fmt.Sprintf("time %g does not increase over %g", cur.Time, prev.Time)))
		}
		if monotone && cur.Defined() && prev.Defined() && cur.Performance > prev.Performance {
			warnings = append(warnings, acerrors.NewInvariantViolationError(path, line,
				fmt.Sprintf("performance %g is worse than previous %g", cur.Performance, prev.Performance)))
		}
	}
	return warnings
}

// logWarnings writes every warning of a result to the logger.
func logWarnings(logger *slog.Logger, kind acbench.ConfiguratorKind, warnings []error) {
	for _, w := range warnings {
		logger.Warn("trajectory warning", "kind", string(kind), "error", w)
	}
}
