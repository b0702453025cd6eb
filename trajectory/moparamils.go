package trajectory

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

var (
	newIncumbentRe    = regexp.MustCompile(`New incumbent! #(\d+)`)
	noMoreIncumbentRe = regexp.MustCompile(`No more incumbent: #(\d+)`)
	logTimestampRe    = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})\.(\d{3})`)
	detailedSplitRe   = regexp.MustCompile(`",\s?"`)
)

const secondsPerDay = 86400

type moParamILSParser struct {
	opts ParseOptions
}

func (p *moParamILSParser) Kind() acbench.ConfiguratorKind { return acbench.KindMOParamILS }

func (p *moParamILSParser) Parse(ctx context.Context, path string, meta RunMeta) Result {
	result := parseFiles(ctx, p.Kind(), path, meta, patterns(p.Kind(), p.opts), p.parseFile)
	logWarnings(p.opts.Logger, p.Kind(), result.Warnings)
	return result
}

// DetailedTrajectoryPath returns the configuration file written next to a
// log-run<N>.txt log.
func DetailedTrajectoryPath(logFile string) string {
	n := runIDFromName(logFile, 0)
	return filepath.Join(filepath.Dir(logFile), fmt.Sprintf("detailed-traj-run-%d.csv", n))
}

// incumbentLog is the reconstructed list of active incumbents per elapsed
// second bucket, in insertion order.
type incumbentLog struct {
	keys   []int
	active map[int][]int
}

func (l *incumbentLog) set(key int, ids []int) {
	if _, ok := l.active[key]; !ok {
		l.keys = append(l.keys, key)
	}
	l.active[key] = ids
}

// readIncumbentLog replays the incumbent markers of a log file. The
// timestamp of a line applies to the markers on the same line; a marker on a
// line without timestamp takes the latest one seen. MO-ParamILS writes the
// timestamp when it logs the change, so a marker is never filed under the
// time of the line before it.
func readIncumbentLog(file string) (*incumbentLog, []int, []error, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()

	var (
		warnings   []error
		referenced []int
		started    bool
		start      float64
		prev       float64
		dayOffset  int
		elapsed    float64
		current    = -1
	)
	log := &incumbentLog{active: make(map[int][]int)}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for ln := 1; scanner.Scan(); ln++ {
		line := scanner.Text()

		if m := logTimestampRe.FindStringSubmatch(line); m != nil {
			h, _ := strconv.Atoi(m[1])
			mi, _ := strconv.Atoi(m[2])
			s, _ := strconv.Atoi(m[3])
			ms, _ := strconv.Atoi(m[4])
			ts := float64(3600*h+60*mi+s) + float64(ms)/1000
			if !started {
				started, start, prev = true, ts, ts
			}
			if ts < prev {
				dayOffset++
			}
			prev = ts
			elapsed = float64(secondsPerDay*dayOffset) + ts - start
		}

		if m := newIncumbentRe.FindStringSubmatch(line); m != nil {
			id, err := strconv.Atoi(m[1])
			if err != nil {
				warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln, err))
				continue
			}
			referenced = append(referenced, id)
			var ids []int
			if current >= 0 {
				ids = slices.Clone(log.active[current])
			}
			current = int(elapsed)
			log.set(current, append(ids, id))
		}

		if m := noMoreIncumbentRe.FindStringSubmatch(line); m != nil {
			id, err := strconv.Atoi(m[1])
			if err != nil {
				warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln, err))
				continue
			}
			if current < 0 {
				warnings = append(warnings, acerrors.NewInvariantViolationError(file, ln,
					fmt.Sprintf("incumbent #%d removed before any incumbent was set", id)))
				continue
			}
			ids := log.active[current]
			i := slices.Index(ids, id)
			if i < 0 {
				warnings = append(warnings, acerrors.NewInvariantViolationError(file, ln,
					fmt.Sprintf("incumbent #%d is not active", id)))
				continue
			}
			log.active[current] = slices.Delete(slices.Clone(ids), i, i+1)
		}
	}
	if err := scanner.Err(); err != nil {
		warnings = append(warnings, acerrors.NewMalformedRecordError(file, 0, err))
	}
	return log, referenced, warnings, nil
}

// detailedTrajectory is the per-incumbent content of a detailed-traj file.
type detailedTrajectory struct {
	configs map[int]map[string]string
	perf    map[int]float64
}

// readDetailedTrajectory reads the quoted CSV written next to the log. Each
// incumbent's configuration is taken from its first row and its estimated
// performance from its last row.
func (p *moParamILSParser) readDetailedTrajectory(file string) (*detailedTrajectory, []error, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	d := &detailedTrajectory{configs: make(map[int]map[string]string), perf: make(map[int]float64)}
	var (
		keys     []string
		warnings []error
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for ln := 1; scanner.Scan(); ln++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := detailedSplitRe.Split(line, -1)
		for i := range fields {
			fields[i] = strings.ReplaceAll(fields[i], `"`, "")
		}
		if keys == nil {
			keys = fields
			continue
		}
		if len(fields) != len(keys) {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln,
				fmt.Errorf("expected %d fields, got %d", len(keys), len(fields))))
			continue
		}
		row := make(map[string]string, len(keys))
		for i, k := range keys {
			row[k] = fields[i]
		}

		rawID, ok := row[ColumnIncumbentID]
		if !ok {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln, fmt.Errorf("no %q column", ColumnIncumbentID)))
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rawID), 64)
		if err != nil {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln, err))
			continue
		}
		id := int(v)
		if _, seen := d.configs[id]; !seen {
			d.configs[id] = ParseConfiguration(row[ColumnFullConfig])
		}
		if raw, ok := row[ColumnEstimatedPerf]; ok {
			perf, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err == nil {
				perf, err = p.opts.performance(perf)
			}
			if err != nil {
				warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln, err))
				continue
			}
			d.perf[id] = perf
		}
	}
	if err := scanner.Err(); err != nil {
		warnings = append(warnings, acerrors.NewMalformedRecordError(file, 0, err))
	}
	return d, warnings, nil
}

// RejectedIDs returns the ids in 1..upper that have no configuration.
func RejectedIDs(defined map[int]map[string]string, referenced []int) []int {
	upper := 0
	for id := range defined {
		upper = max(upper, id)
	}
	for _, id := range referenced {
		upper = max(upper, id)
	}
	var rejected []int
	for id := 1; id <= upper; id++ {
		if _, ok := defined[id]; !ok {
			rejected = append(rejected, id)
		}
	}
	return rejected
}

func (p *moParamILSParser) parseFile(file string, meta RunMeta) (*acbench.Run, []error) {
	log, referenced, warnings, err := readIncumbentLog(file)
	if err != nil {
		return nil, []error{acerrors.NewMissingArtifactError(file, "")}
	}

	detailedFile := DetailedTrajectoryPath(file)
	detailed, dw, err := p.readDetailedTrajectory(detailedFile)
	if err != nil {
		warnings = append(warnings, acerrors.NewMissingArtifactError(detailedFile, ""))
		detailed = &detailedTrajectory{configs: map[int]map[string]string{}, perf: map[int]float64{}}
	}
	warnings = append(warnings, dw...)

	run := &acbench.Run{
		Configurator:      meta.Configurator,
		Scenario:          meta.Scenario,
		ID:                meta.ID,
		Unit:              acbench.UnitSeconds,
		Source:            file,
		Configs:           detailed.configs,
		RejectedConfigIDs: RejectedIDs(detailed.configs, referenced),
	}
	rejected := make(map[int]bool, len(run.RejectedConfigIDs))
	for _, id := range run.RejectedConfigIDs {
		rejected[id] = true
	}

	var unknown []int
	for _, id := range referenced {
		if rejected[id] && !slices.Contains(unknown, id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		warnings = append(warnings, acerrors.NewConfigurationMismatchError(file, unknown))
	}

	for _, key := range log.keys {
		ids := slices.Clone(log.active[key])
		rec := acbench.TrajectoryRecord{
			Time:             float64(key),
			Performance:      math.NaN(),
			ActiveIncumbents: ids,
		}
		if len(ids) > 0 {
			rec.IncumbentID = ids[len(ids)-1]
			rec.Rejected = rejected[rec.IncumbentID]
		}
		for _, id := range ids {
			if perf, ok := detailed.perf[id]; ok && (math.IsNaN(rec.Performance) || perf < rec.Performance) {
				rec.Performance = perf
			}
		}
		run.Records = append(run.Records, rec)
	}

	warnings = append(warnings, checkOrder(file, run.Records, nil, false)...)
	return run, warnings
}
