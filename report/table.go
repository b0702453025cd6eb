// Package report turns scenario comparisons into tables and renders them as
// pipe/markdown, LaTeX, CSV or JSON.
//
// Builders only decide what a cell means (best, statistically similar,
// significantly better); each renderer decides how that looks. Naming and
// style come from a Config passed by the caller.
package report

import (
	"fmt"
	"math"
)

// Placeholder is shown for values that could not be computed.
const Placeholder = "--"

// Cell is one table cell.
type Cell struct {
	Text  string   `json:"text"`
	Value *float64 `json:"value,omitempty"`
	// Quartiles, when set, are appended to the text as " [q25;q75]".
	Q25 *float64 `json:"q25,omitempty"`
	Q75 *float64 `json:"q75,omitempty"`
	// Best marks the best value of a row. It implies emphasis.
	Best bool `json:"best,omitempty"`
	// Similar marks values not significantly worse than the reference.
	Similar bool `json:"similar,omitempty"`
	// Better marks values significantly better than the reference.
	Better bool `json:"better,omitempty"`
	// Rejected marks values significantly worse than the reference.
	Rejected bool `json:"rejected,omitempty"`
}

// Table is a titled grid of cells. The first cell of every row is the row
// label.
type Table struct {
	Title   string   `json:"title"`
	Headers []string `json:"headers"`
	Rows    [][]Cell `json:"rows"`
}

// Config controls naming and presentation.
type Config struct {
	// Format selects the renderer, see NewRenderer.
	Format string
	// AddQuartiles appends the quartiles to final-performance cells.
	AddQuartiles bool
	// ConfiguratorNames and ScenarioNames map internal names to display
	// names.
	ConfiguratorNames map[string]string
	ScenarioNames     map[string]string
}

func (c Config) configurator(name, fallback string) string {
	if v, ok := c.ConfiguratorNames[name]; ok {
		return v
	}
	if fallback != "" {
		return fallback
	}
	return name
}

func (c Config) scenario(name, fallback string) string {
	if v, ok := c.ScenarioNames[name]; ok {
		return v
	}
	if fallback != "" {
		return fallback
	}
	return name
}

// Label returns a text-only cell.
func Label(s string) Cell {
	return Cell{Text: s}
}

// Number returns a cell holding v printed with format. NaN and infinite
// values become the placeholder.
func Number(v float64, format string) Cell {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Cell{Text: Placeholder}
	}
	return Cell{Text: fmt.Sprintf(format, v), Value: &v}
}

// Optional returns Number(*v) or the placeholder for nil.
func Optional(v *float64, format string) Cell {
	if v == nil {
		return Cell{Text: Placeholder}
	}
	return Number(*v, format)
}

// Plain returns the cell text with quartiles but without any emphasis.
func (c Cell) Plain() string {
	if c.Q25 == nil || c.Q75 == nil {
		return c.Text
	}
	return fmt.Sprintf("%s [%.2f;%.2f]", c.Text, *c.Q25, *c.Q75)
}

// Emphasized reports whether the cell is printed in bold.
func (c Cell) Emphasized() bool {
	return c.Best || c.Similar
}

// Starred reports whether the cell carries a star, marking a value
// significantly better than the reference.
func (c Cell) Starred() bool {
	return c.Better
}

// Daggered reports whether the cell carries a dagger, marking a value
// significantly worse than the reference.
func (c Cell) Daggered() bool {
	return c.Rejected
}
