package trajectory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// parseFileFunc parses one artifact into one run.
type parseFileFunc func(file string, meta RunMeta) (*acbench.Run, []error)

// parseFiles resolves path to artifact files and parses each of them.
func parseFiles(ctx context.Context, kind acbench.ConfiguratorKind, path string, meta RunMeta, pats []string, parse parseFileFunc) Result {
	var result Result

	info, err := os.Stat(path)
	if err != nil {
		result.warn(acerrors.NewMissingArtifactError(path, ""))
		return result
	}

	files := []string{path}
	if info.IsDir() {
		files = globFirst(path, pats)
		if len(files) == 0 {
			result.warn(acerrors.NewMissingArtifactError(path, strings.Join(pats, "|")))
			return result
		}
	}

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			result.warn(fmt.Errorf("parsing %s: %w", file, err))
			break
		}
		m := meta
		if len(files) > 1 || m.ID == 0 {
			m.ID = runIDFromName(file, i+1)
		}
		run, warnings := parse(file, m)
		result.Warnings = append(result.Warnings, warnings...)
		if run != nil {
			run.Kind = kind
			result.Runs = append(result.Runs, run)
		}
	}
	return result
}

type csvParser struct {
	kind acbench.ConfiguratorKind
	opts ParseOptions
}

func (p *csvParser) Kind() acbench.ConfiguratorKind { return p.kind }

func (p *csvParser) Parse(ctx context.Context, path string, meta RunMeta) Result {
	result := parseFiles(ctx, p.kind, path, meta, patterns(p.kind, p.opts), p.parseFile)
	logWarnings(p.opts.Logger, p.kind, result.Warnings)
	return result
}

// csvLayout holds the column positions of a trajectory header.
type csvLayout struct {
	time, perf, id, config int
}

func newCSVLayout(header []string, timeColumn string) (csvLayout, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[unquote(h)] = i
	}
	l := csvLayout{time: -1, perf: -1, id: -1, config: len(header) - 1}

	if timeColumn == "" {
		timeColumn = ColumnWallclock
	}
	if i, ok := index[timeColumn]; ok {
		l.time = i
	} else if i, ok := index[ColumnCPUTime]; ok {
		l.time = i
	}
	if i, ok := index[ColumnEstimatedPerf]; ok {
		l.perf = i
	}
	if i, ok := index[ColumnIncumbentID]; ok {
		l.id = i
	}
	for _, name := range []string{ColumnConfiguration, ColumnFullConfig} {
		if i, ok := index[name]; ok {
			l.config = i
		}
	}
	if l.time < 0 || l.perf < 0 {
		return l, fmt.Errorf("header %v lacks a time or performance column", header)
	}
	return l, nil
}

func (p *csvParser) parseFile(file string, meta RunMeta) (*acbench.Run, []error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, []error{acerrors.NewMissingArtifactError(file, "")}
	}
	defer f.Close()

	run := &acbench.Run{
		Configurator: meta.Configurator,
		Scenario:     meta.Scenario,
		ID:           meta.ID,
		Unit:         acbench.UnitSeconds,
		Source:       file,
		Configs:      make(map[int]map[string]string),
	}

	r := csv.NewReader(f)
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var warnings []error
	header, err := r.Read()
	if err != nil {
		return run, []error{acerrors.NewMalformedRecordError(file, 1, err)}
	}
	layout, err := newCSVLayout(header, p.opts.TimeColumn)
	if err != nil {
		return run, []error{acerrors.NewMalformedRecordError(file, 1, err)}
	}

	var lines []int
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, line, err))
			continue
		}
		rec, config, err := p.parseRow(row, layout, len(run.Records)+1)
		if err != nil {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, line, err))
			continue
		}
		if _, seen := run.Configs[rec.IncumbentID]; !seen && config != nil {
			run.Configs[rec.IncumbentID] = config
		}
		run.Records = append(run.Records, rec)
		lines = append(lines, line)
	}

	warnings = append(warnings, checkOrder(file, run.Records, lines, true)...)
	return run, warnings
}

func (p *csvParser) parseRow(row []string, l csvLayout, fallbackID int) (acbench.TrajectoryRecord, map[string]string, error) {
	var rec acbench.TrajectoryRecord
	need := max(l.time, l.perf, l.id) + 1
	if len(row) < need {
		return rec, nil, fmt.Errorf("expected at least %d fields, got %d", need, len(row))
	}

	t, err := strconv.ParseFloat(strings.TrimSpace(row[l.time]), 64)
	if err == nil {
		err = finiteTime(t)
	}
	if err != nil {
		return rec, nil, fmt.Errorf("time: %w", err)
	}
	perf, err := strconv.ParseFloat(strings.TrimSpace(row[l.perf]), 64)
	if err == nil {
		perf, err = p.opts.performance(perf)
	}
	if err != nil {
		return rec, nil, fmt.Errorf("performance: %w", err)
	}
	id := fallbackID
	if l.id >= 0 {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[l.id]), 64)
		if err != nil {
			return rec, nil, fmt.Errorf("incumbent id: %w", err)
		}
		id = int(v)
	}

	var config map[string]string
	if l.config < len(row) {
		config = ParseConfiguration(strings.Join(row[l.config:], ", "))
	}

	rec = acbench.TrajectoryRecord{
		Time:        t,
		Performance: perf,
		IncumbentID: id,
	}
	return rec, config, nil
}
