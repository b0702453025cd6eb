package pipeline

import (
	"io"

	"github.com/scttfrdmn/acbench/aggregate"
	"github.com/scttfrdmn/acbench/report"
)

// Render writes tables in format, one of report.Formats().
func Render(w io.Writer, tables []report.Table, format string) error {
	renderer, err := report.NewRenderer(format)
	if err != nil {
		return err
	}
	return renderer.Render(w, tables)
}

// StoredTables rebuilds the tables of comparisons loaded from a store. The
// aggregated scenario only contributes its over-time tables.
func StoredTables(comps []*aggregate.ScenarioComparison, cfg report.Config) []report.Table {
	result := &Result{}
	for _, c := range comps {
		if c.Scenario == aggregate.AggregatedScenario {
			result.Aggregated = c
			continue
		}
		result.Comparisons = append(result.Comparisons, c)
	}
	return result.Tables(cfg)
}
