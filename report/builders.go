package report

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/scttfrdmn/acbench/aggregate"
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// column is one configurator column shared by all scenario rows.
type column struct {
	name, label string
}

// columns collects the configurators of all comparisons in order of first
// appearance.
func columns(comps []*aggregate.ScenarioComparison, cfg Config) []column {
	seen := make(map[string]bool)
	var cols []column
	for _, c := range comps {
		for _, s := range c.Configurators {
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			cols = append(cols, column{name: s.Name, label: cfg.configurator(s.Name, s.Label)})
		}
	}
	return cols
}

func headers(first []string, cols []column) []string {
	out := append([]string(nil), first...)
	for _, c := range cols {
		out = append(out, c.label)
	}
	return out
}

func rowLabel(c *aggregate.ScenarioComparison, cfg Config) Cell {
	return Label(cfg.scenario(c.Scenario, c.Label))
}

// FinalPerformanceTable lists the median final performance of every
// configurator per scenario next to the default performance. The best median
// is marked best, configurators not significantly worse than the reference
// similar, and those significantly better than it better.
func FinalPerformanceTable(comps []*aggregate.ScenarioComparison, cfg Config) Table {
	cols := columns(comps, cfg)
	t := Table{Title: "Final Performance", Headers: headers([]string{"Set", "Default"}, cols)}
	for _, c := range comps {
		row := []Cell{rowLabel(c, cfg), Optional(c.Default, "%.2f")}
		for _, col := range cols {
			s, ok := c.Stats(col.name)
			if !ok || s.Final == nil {
				row = append(row, Label(Placeholder))
				continue
			}
			cell := Number(s.Final.Median, "%.2f")
			cell.Best = s.Final.Best
			cell.Similar = s.Final.Similar
			cell.Better = s.Final.Better
			if cfg.AddQuartiles && finite(s.Final.Q25) && finite(s.Final.Q75) {
				q25, q75 := s.Final.Q25, s.Final.Q75
				cell.Q25, cell.Q75 = &q25, &q75
			}
			row = append(row, cell)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// DefaultSpeedupTable lists default performance divided by the median final
// performance.
func DefaultSpeedupTable(comps []*aggregate.ScenarioComparison, cfg Config) Table {
	cols := columns(comps, cfg)
	t := Table{Title: "Speedup over Default", Headers: headers([]string{"Set"}, cols)}
	for _, c := range comps {
		row := []Cell{rowLabel(c, cfg)}
		for _, col := range cols {
			s, ok := c.Stats(col.name)
			if !ok || s.Final == nil || c.Default == nil || s.Final.Median == 0 {
				row = append(row, Label(Placeholder))
				continue
			}
			cell := Number(*c.Default/s.Final.Median, "%.2f")
			cell.Best = s.Final.Best
			row = append(row, cell)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// SpeedupTable lists the bootstrapped speedups over the reference with a
// geometric average row.
func SpeedupTable(comps []*aggregate.ScenarioComparison, cfg Config) Table {
	cols := columns(comps, cfg)
	t := Table{Title: "Speedup", Headers: headers([]string{"Set"}, cols)}
	collected := make([][]float64, len(cols))
	for _, c := range comps {
		row := []Cell{rowLabel(c, cfg)}
		for i, col := range cols {
			s, ok := c.Stats(col.name)
			if !ok || s.Speedup == nil {
				row = append(row, Label(Placeholder))
				continue
			}
			row = append(row, Number(*s.Speedup, "%.1f"))
			collected[i] = append(collected[i], *s.Speedup)
		}
		t.Rows = append(t.Rows, row)
	}

	avg := []Cell{Label("Geo Avg.")}
	for _, v := range collected {
		if len(v) == 0 {
			avg = append(avg, Label(Placeholder))
			continue
		}
		avg = append(avg, Number(stat.GeometricMean(v, nil), "%.1f"))
	}
	t.Rows = append(t.Rows, avg)
	return t
}

// AUCTable lists the area under the median curve, the lowest per row marked
// best.
func AUCTable(comps []*aggregate.ScenarioComparison, cfg Config) Table {
	return perScenario("AUC", comps, cfg, true, func(s *aggregate.ConfiguratorStats) *float64 { return s.AUC })
}

// SignificanceSpeedupTable lists the speedups derived from significance
// tests, the highest per row marked best.
func SignificanceSpeedupTable(comps []*aggregate.ScenarioComparison, cfg Config) Table {
	return perScenario("Speedup (significance)", comps, cfg, false,
		func(s *aggregate.ConfiguratorStats) *float64 { return s.SignificanceSpeedup })
}

// MedianTable lists the median at the last time step of the over-time
// statistics. Configurators significantly worse than the reference get a
// dagger, the lowest median is marked best.
func MedianTable(comps []*aggregate.ScenarioComparison, cfg Config) Table {
	cols := columns(comps, cfg)
	t := Table{Title: "Median + Significance Test", Headers: headers([]string{"Set", "Default"}, cols)}
	for _, c := range comps {
		row := []Cell{rowLabel(c, cfg), Optional(c.Default, "%.2f")}
		for _, col := range cols {
			s, ok := c.Stats(col.name)
			if !ok || len(s.Medians) == 0 {
				row = append(row, Label(Placeholder))
				continue
			}
			last := len(s.Medians) - 1
			cell := Number(s.Medians[last], "%.2f")
			cell.Rejected = last < len(s.Reject) && s.Reject[last]
			row = append(row, cell)
		}
		markExtreme(row[2:], true)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func perScenario(title string, comps []*aggregate.ScenarioComparison, cfg Config, lowest bool,
	get func(*aggregate.ConfiguratorStats) *float64) Table {
	cols := columns(comps, cfg)
	t := Table{Title: title, Headers: headers([]string{"Set"}, cols)}
	for _, c := range comps {
		row := []Cell{rowLabel(c, cfg)}
		for _, col := range cols {
			s, ok := c.Stats(col.name)
			if !ok {
				row = append(row, Label(Placeholder))
				continue
			}
			row = append(row, Optional(get(s), "%.2f"))
		}
		markExtreme(row[1:], lowest)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// markExtreme marks every cell holding the row's lowest (or highest) value.
func markExtreme(cells []Cell, lowest bool) {
	best := math.NaN()
	for _, c := range cells {
		if c.Value == nil {
			continue
		}
		if math.IsNaN(best) || (lowest && *c.Value < best) || (!lowest && *c.Value > best) {
			best = *c.Value
		}
	}
	for i := range cells {
		if cells[i].Value != nil && *cells[i].Value == best {
			cells[i].Best = true
		}
	}
}

// OverTimeTables returns the per-step p-values, rejections (1 when the
// reference is significantly better) and medians of one scenario, each with
// a Mean column, followed by the aggregated statistics.
func OverTimeTables(c *aggregate.ScenarioComparison, cfg Config) []Table {
	steps := make([]string, 0, len(c.Times)+2)
	steps = append(steps, "AC")
	for _, t := range c.Times {
		steps = append(steps, fmt.Sprintf("%.2f", t))
	}
	steps = append(steps, "Mean")

	scen := cfg.scenario(c.Scenario, c.Label)
	pvals := Table{Title: scen + ": p-values", Headers: steps}
	rej := Table{Title: scen + ": Reject (1)", Headers: steps}
	meds := Table{Title: scen + ": medians", Headers: steps}
	aggr := Table{Title: scen + ": Aggregated Stats", Headers: []string{"AC", "Median", "Sig. Test", "AUC", "Speedup"}}

	for i := range c.Configurators {
		s := &c.Configurators[i]
		name := Label(cfg.configurator(s.Name, s.Label))
		if len(s.Medians) == 0 {
			continue
		}
		pvals.Rows = append(pvals.Rows, withMean(name, s.PValues, len(c.Times)))
		rej.Rows = append(rej.Rows, withMean(name, oneZero(s.Reject), len(c.Times)))
		meds.Rows = append(meds.Rows, withMean(name, s.Medians, len(c.Times)))

		last := len(s.Medians) - 1
		finalRej := math.NaN()
		if last < len(s.Reject) {
			finalRej = oneZero(s.Reject)[last]
		}
		aggr.Rows = append(aggr.Rows, []Cell{
			name,
			Number(s.Medians[last], "%.2f"),
			Number(finalRej, "%.2f"),
			Optional(s.AUC, "%.2f"),
			Optional(s.SignificanceSpeedup, "%.2f"),
		})
	}
	return []Table{pvals, rej, meds, aggr}
}

func withMean(label Cell, values []float64, steps int) []Cell {
	row := []Cell{label}
	if len(values) != steps {
		for i := 0; i <= steps; i++ {
			row = append(row, Label(Placeholder))
		}
		return row
	}
	for _, v := range values {
		row = append(row, Number(v, "%.2f"))
	}
	return append(row, Number(stat.Mean(values, nil), "%.2f"))
}

func oneZero(flags []bool) []float64 {
	out := make([]float64, len(flags))
	for i, f := range flags {
		if f {
			out[i] = 1
		}
	}
	return out
}

// ScatterTable lists the per-instance performance of the default and the
// final incumbent of one run.
func ScatterTable(title string, instances []string, def, inc []float64) Table {
	t := Table{Title: title, Headers: []string{"Instance", "Default", "Optimized"}}
	for i := range instances {
		if i >= len(def) || i >= len(inc) {
			break
		}
		t.Rows = append(t.Rows, []Cell{Label(instances[i]), Number(def[i], "%.2f"), Number(inc[i], "%.2f")})
	}
	return t
}

// Tables builds every cross-scenario table for a set of comparisons. The
// speedup tables are only included when a reference was set.
func Tables(comps []*aggregate.ScenarioComparison, cfg Config) []Table {
	tables := []Table{
		FinalPerformanceTable(comps, cfg),
		DefaultSpeedupTable(comps, cfg),
		MedianTable(comps, cfg),
		AUCTable(comps, cfg),
	}
	for _, c := range comps {
		if c.Reference != "" {
			tables = append(tables, SpeedupTable(comps, cfg), SignificanceSpeedupTable(comps, cfg))
			break
		}
	}
	return tables
}
