package trajectory

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/scttfrdmn/acbench/acbench"
	acerrors "github.com/scttfrdmn/acbench/errors"
)

const iraceBestMarker = "Description of the best configuration:"

// iraceEntry is one JSON trajectory line of the irace log.
type iraceEntry struct {
	WallclockTime *float64 `json:"wallclock_time"`
	Cost          *float64 `json:"cost"`
	Evaluations   *float64 `json:"evaluations"`
}

type iraceParser struct {
	opts ParseOptions
}

func (p *iraceParser) Kind() acbench.ConfiguratorKind { return acbench.KindIrace }

func (p *iraceParser) Parse(ctx context.Context, path string, meta RunMeta) Result {
	result := parseFiles(ctx, p.Kind(), path, meta, patterns(p.Kind(), p.opts), p.parseFile)
	logWarnings(p.opts.Logger, p.Kind(), result.Warnings)
	return result
}

// parseIraceConfiguration pairs the parameter name line with the value line
// of a best-configuration block. The first three columns and the last one
// are bookkeeping and dropped, as are NA values.
func parseIraceConfiguration(names, values string) map[string]string {
	nf := strings.Fields(names)
	vf := strings.Fields(values)
	config := make(map[string]string)
	if len(nf) < 4 || len(vf) < 4 {
		return config
	}
	nf = nf[3 : len(nf)-1]
	vf = vf[3 : len(vf)-1]
	for i := 0; i < len(nf) && i < len(vf); i++ {
		v := strings.TrimSpace(vf[i])
		if v == "NA" || v == "<NA>" {
			continue
		}
		config[nf[i]] = v
	}
	return config
}

func (p *iraceParser) parseFile(file string, meta RunMeta) (*acbench.Run, []error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, []error{acerrors.NewMissingArtifactError(file, "")}
	}
	defer f.Close()

	unit := p.opts.TimeUnit
	if unit == "" {
		unit = acbench.UnitSeconds
	}
	run := &acbench.Run{
		Configurator: meta.Configurator,
		Scenario:     meta.Scenario,
		ID:           meta.ID,
		Unit:         unit,
		Source:       file,
		Configs:      make(map[int]map[string]string),
	}

	var (
		warnings []error
		lines    []int
		id       int
		orphans  bool
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	ln := 0
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		ln++
		return scanner.Text(), true
	}

	for {
		line, ok := next()
		if !ok {
			break
		}

		if strings.HasPrefix(line, iraceBestMarker) {
			id++
			names, ok1 := next()
			values, ok2 := next()
			if !ok1 || !ok2 {
				warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln,
					fmt.Errorf("truncated best configuration block")))
				break
			}
			run.Configs[id] = parseIraceConfiguration(names, values)
			continue
		}

		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		var entry iraceEntry
		if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
			continue
		}
		if entry.WallclockTime == nil || entry.Cost == nil || entry.Evaluations == nil {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln,
				fmt.Errorf("trajectory entry lacks wallclock_time, cost or evaluations")))
			continue
		}

		cost, err := p.opts.performance(*entry.Cost)
		if err != nil {
			warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln, err))
			continue
		}

		t := *entry.WallclockTime
		if unit == acbench.UnitEvaluations {
			t = *entry.Evaluations
		}
		rec := acbench.TrajectoryRecord{
			Time:        t,
			Performance: cost,
			IncumbentID: id,
		}
		if id == 0 {
			rec.Rejected = true
			orphans = true
		}
		run.Records = append(run.Records, rec)
		lines = append(lines, ln)
	}
	if err := scanner.Err(); err != nil {
		warnings = append(warnings, acerrors.NewMalformedRecordError(file, ln, err))
	}
	if orphans {
		warnings = append(warnings, acerrors.NewConfigurationMismatchError(file, []int{0}))
	}

	warnings = append(warnings, checkOrder(file, run.Records, lines, true)...)
	return run, warnings
}
