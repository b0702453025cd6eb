package trajectory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

// Validation output layout inside a run directory.
const (
	ValidationTestDir        = "validate-time-test"
	ValidationTrainDir       = "validate-time-train"
	validationResultsPattern = "validationResults-*-walltime*.csv"
	objectiveMatrixPattern   = "validationObjectiveMatrix*-*-walltime*.csv"

	ColumnTime          = "Time"
	ColumnTestPerf      = "Test Set Performance"
	ColumnTrainPerf     = "Training (Empirical) Performance"
	ColumnValidationID  = "Validation Configuration ID"
	objectiveSeedColumn = "Seed"
	runDirectoryPattern = "run-*"
)

type validationParser struct {
	opts ParseOptions
}

func (p *validationParser) Kind() acbench.ConfiguratorKind { return acbench.KindValidation }

// Parse accepts either one run directory or a directory of run-* directories.
func (p *validationParser) Parse(ctx context.Context, path string, meta RunMeta) Result {
	var result Result
	if isDir(filepath.Join(path, ValidationTestDir)) || isDir(filepath.Join(path, ValidationTrainDir)) {
		if meta.ID == 0 {
			meta.ID = runIDFromName(path, 1)
		}
		run, warnings := p.parseRunDir(path, meta)
		result.Warnings = warnings
		if run != nil {
			result.Runs = append(result.Runs, run)
		}
		logWarnings(p.opts.Logger, p.Kind(), result.Warnings)
		return result
	}

	dirs, _ := filepath.Glob(filepath.Join(path, runDirectoryPattern))
	found := false
	for i, dir := range dirs {
		if !isDir(dir) {
			continue
		}
		found = true
		if err := ctx.Err(); err != nil {
			result.warn(fmt.Errorf("parsing %s: %w", dir, err))
			break
		}
		m := meta
		m.ID = runIDFromName(dir, i+1)
		run, warnings := p.parseRunDir(dir, m)
		result.Warnings = append(result.Warnings, warnings...)
		if run != nil {
			result.Runs = append(result.Runs, run)
		}
	}
	if !found {
		result.warn(acerrors.NewMissingArtifactError(path, filepath.Join(ValidationTestDir, validationResultsPattern)))
	}
	logWarnings(p.opts.Logger, p.Kind(), result.Warnings)
	return result
}

// parseRunDir reads the test and train validation of one run. A run without
// test validation is excluded; a missing train validation leaves Train nil.
func (p *validationParser) parseRunDir(dir string, meta RunMeta) (*acbench.Run, []error) {
	test, warnings, err := p.readOverTime(filepath.Join(dir, ValidationTestDir))
	if err != nil {
		return nil, append(warnings, err)
	}
	run := &acbench.Run{
		Configurator: meta.Configurator,
		Scenario:     meta.Scenario,
		ID:           meta.ID,
		Kind:         acbench.KindValidation,
		Unit:         acbench.UnitSeconds,
		Source:       dir,
		Test:         test,
	}

	train, tw, err := p.readOverTime(filepath.Join(dir, ValidationTrainDir))
	if err != nil {
		p.opts.Logger.Debug("no train validation", "run", dir, "error", err)
	} else {
		run.Train = train
		warnings = append(warnings, tw...)
	}
	return run, warnings
}

// readOverTime reads the validation results and the objective matrix of one
// validate-time directory. Both must exist.
func (p *validationParser) readOverTime(dir string) (*acbench.SubTrajectory, []error, error) {
	results := globFirst(dir, []string{validationResultsPattern})
	if len(results) == 0 {
		return nil, nil, acerrors.NewMissingArtifactError(dir, validationResultsPattern)
	}
	matrices := globFirst(dir, []string{objectiveMatrixPattern})
	if len(matrices) == 0 {
		return nil, nil, acerrors.NewMissingArtifactError(dir, objectiveMatrixPattern)
	}

	perfColumn := ColumnTestPerf
	if p.opts.EstimatedTrain {
		perfColumn = ColumnTrainPerf
	}
	recs, warnings, err := p.readResults(results[0], perfColumn)
	if err != nil {
		return nil, warnings, err
	}
	matrix, mw, err := ReadObjectiveMatrix(matrices[0])
	warnings = append(warnings, mw...)
	if err != nil {
		return nil, warnings, err
	}
	return &acbench.SubTrajectory{Records: recs, Matrix: matrix}, warnings, nil
}

func (p *validationParser) readResults(file, perfColumn string) ([]acbench.TrajectoryRecord, []error, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, acerrors.NewMissingArtifactError(file, "")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, acerrors.NewMalformedRecordError(file, 1, err)
	}
	tCol, pCol, idCol := -1, -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case ColumnTime:
			tCol = i
		case perfColumn:
			pCol = i
		case ColumnValidationID:
			idCol = i
		}
	}
	if tCol < 0 || pCol < 0 {
		return nil, nil, acerrors.NewMalformedRecordError(file, 1,
			fmt.Errorf("header lacks %q or %q", ColumnTime, perfColumn))
	}

	var (
		recs     []acbench.TrajectoryRecord
		lines    []int
		warnings []error
	)
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, line, err))
			continue
		}
		if len(row) <= max(tCol, pCol) {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, line,
				fmt.Errorf("expected at least %d fields, got %d", max(tCol, pCol)+1, len(row))))
			continue
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(row[tCol]), 64)
		if err == nil {
			err = finiteTime(t)
		}
		if err != nil {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, line, err))
			continue
		}
		perf, err := strconv.ParseFloat(strings.TrimSpace(row[pCol]), 64)
		if err == nil {
			perf, err = p.opts.performance(perf)
		}
		if err != nil {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, line, err))
			continue
		}
		id := len(recs) + 1
		if idCol >= 0 && idCol < len(row) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[idCol]), 64); err == nil {
				id = int(v)
			}
		}
		recs = append(recs, acbench.TrajectoryRecord{Time: t, Performance: perf, IncumbentID: id})
		lines = append(lines, line)
	}

	// validated performance may legitimately get worse over time
	warnings = append(warnings, checkOrder(file, recs, lines, false)...)
	return recs, warnings, nil
}

// ReadObjectiveMatrix reads a validation objective matrix. The first column
// names the instance and the Seed column is dropped.
func ReadObjectiveMatrix(file string) (*acbench.ObjectiveMatrix, []error, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, acerrors.NewMissingArtifactError(file, "")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, acerrors.NewMalformedRecordError(file, 1, err)
	}
	var keep []int
	m := &acbench.ObjectiveMatrix{}
	for i := 1; i < len(header); i++ {
		name := strings.TrimSpace(header[i])
		if name == objectiveSeedColumn {
			continue
		}
		keep = append(keep, i)
		m.Columns = append(m.Columns, name)
	}

	var warnings []error
	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, line, err))
			continue
		}
		if len(row) != len(header) {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, line,
				fmt.Errorf("expected %d fields, got %d", len(header), len(row))))
			continue
		}
		values := make([]float64, len(keep))
		bad := false
		for j, i := range keep {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
			if err != nil {
				warnings = append(warnings, acerrors.NewMalformedRecordError(file, line, err))
				bad = true
				break
			}
			values[j] = v
		}
		if bad {
			continue
		}
		m.Instances = append(m.Instances, row[0])
		m.Values = append(m.Values, values)
	}
	return m, warnings, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
