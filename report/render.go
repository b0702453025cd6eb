package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	acerrors "github.com/scttfrdmn/acbench/errors"
)

// Renderer writes tables in one output format.
type Renderer interface {
	Format() string
	Render(w io.Writer, tables []Table) error
}

// Formats lists the supported renderer formats.
func Formats() []string {
	return []string{"pipe", "markdown", "latex", "csv", "json"}
}

// NewRenderer returns the renderer for format. Empty selects pipe.
func NewRenderer(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "pipe":
		return &PipeRenderer{}, nil
	case "markdown", "md":
		return &PipeRenderer{Markdown: true}, nil
	case "latex":
		return &LatexRenderer{}, nil
	case "csv":
		return &CSVRenderer{}, nil
	case "json":
		return &JSONRenderer{Indent: "  "}, nil
	}
	return nil, acerrors.NewArgumentError("NewRenderer", fmt.Sprintf("unknown table format %q", format))
}

// PipeRenderer writes pipe tables with aligned columns. Best values are
// underlined with <u> and emphasized values bold. Significantly better
// values are starred, significantly worse ones get a dagger.
type PipeRenderer struct {
	// Markdown writes "### title" headings instead of ">>> title" lines.
	Markdown bool
}

func (r *PipeRenderer) Format() string {
	if r.Markdown {
		return "markdown"
	}
	return "pipe"
}

func (r *PipeRenderer) Render(w io.Writer, tables []Table) error {
	bw := bufio.NewWriter(w)
	for i, t := range tables {
		if i > 0 {
			bw.WriteString("\n")
		}
		if r.Markdown {
			fmt.Fprintf(bw, "### %s\n\n", t.Title)
		} else {
			fmt.Fprintf(bw, ">>> %s\n", t.Title)
		}
		writePipe(bw, t)
	}
	return bw.Flush()
}

func pipeCell(c Cell) string {
	s := c.Text
	if c.Value == nil {
		return c.Plain()
	}
	if c.Best {
		s = "<u>" + s + "</u>"
	}
	if c.Emphasized() {
		s = "**" + s + "**"
	}
	if c.Starred() {
		s += "\\*"
	}
	if c.Daggered() {
		s += "†"
	}
	if c.Q25 != nil && c.Q75 != nil {
		s += fmt.Sprintf(" [%.2f;%.2f]", *c.Q25, *c.Q75)
	}
	return s
}

func writePipe(w io.Writer, t Table) {
	grid := make([][]string, 0, len(t.Rows)+1)
	grid = append(grid, t.Headers)
	for _, row := range t.Rows {
		line := make([]string, len(row))
		for i, c := range row {
			line[i] = pipeCell(c)
		}
		grid = append(grid, line)
	}

	ncols := 0
	for _, line := range grid {
		ncols = max(ncols, len(line))
	}
	widths := make([]int, ncols)
	for _, line := range grid {
		for i, s := range line {
			widths[i] = max(widths[i], utf8.RuneCountInString(s), 3)
		}
	}

	printLine := func(line []string) {
		var sb strings.Builder
		sb.WriteString("|")
		for i := 0; i < ncols; i++ {
			s := ""
			if i < len(line) {
				s = line[i]
			}
			pad := widths[i] - utf8.RuneCountInString(s)
			if i == 0 {
				sb.WriteString(" " + s + strings.Repeat(" ", pad) + " |")
			} else {
				sb.WriteString(" " + strings.Repeat(" ", pad) + s + " |")
			}
		}
		sb.WriteString("\n")
		io.WriteString(w, sb.String())
	}

	printLine(grid[0])
	var sep strings.Builder
	sep.WriteString("|")
	for i, wd := range widths {
		if i == 0 {
			sep.WriteString(":" + strings.Repeat("-", wd+1) + "|")
		} else {
			sep.WriteString(strings.Repeat("-", wd+1) + ":|")
		}
	}
	sep.WriteString("\n")
	io.WriteString(w, sep.String())
	for _, line := range grid[1:] {
		printLine(line)
	}
}

// LatexRenderer writes one tabular environment per table. Numbers are set
// in math mode: best underlined, emphasized bold, significant starred.
type LatexRenderer struct{}

func (r *LatexRenderer) Format() string {
	return "latex"
}

var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
)

func latexCell(c Cell) string {
	if c.Value == nil {
		return latexEscaper.Replace(c.Plain())
	}
	s := c.Text
	if c.Best {
		s = `\underline{` + s + `}`
	}
	if c.Emphasized() {
		s = `\mathbf{` + s + `}`
	}
	if c.Starred() {
		s += "^*"
	}
	if c.Daggered() {
		s += `^\dagger`
	}
	if c.Q25 != nil && c.Q75 != nil {
		s += fmt.Sprintf(" [%.2f;%.2f]", *c.Q25, *c.Q75)
	}
	return "$" + s + "$"
}

func (r *LatexRenderer) Render(w io.Writer, tables []Table) error {
	bw := bufio.NewWriter(w)
	for i, t := range tables {
		if i > 0 {
			bw.WriteString("\n")
		}
		fmt.Fprintf(bw, "%% %s\n", t.Title)
		spec := "l" + strings.Repeat("r", max(len(t.Headers)-1, 0))
		fmt.Fprintf(bw, "\\begin{tabular}{%s}\n\\hline\n", spec)

		hs := make([]string, len(t.Headers))
		for j, h := range t.Headers {
			hs[j] = latexEscaper.Replace(h)
		}
		fmt.Fprintf(bw, "%s \\\\\n\\hline\n", strings.Join(hs, " & "))

		for _, row := range t.Rows {
			cells := make([]string, len(row))
			for j, c := range row {
				cells[j] = latexCell(c)
			}
			fmt.Fprintf(bw, "%s \\\\\n", strings.Join(cells, " & "))
		}
		bw.WriteString("\\hline\n\\end{tabular}\n")
	}
	return bw.Flush()
}

// CSVRenderer writes every table as a title record, a header record and the
// plain cell texts, separated by empty records.
type CSVRenderer struct{}

func (r *CSVRenderer) Format() string {
	return "csv"
}

func (r *CSVRenderer) Render(w io.Writer, tables []Table) error {
	writer := csv.NewWriter(w)
	for i, t := range tables {
		if i > 0 {
			if err := writer.Write([]string{""}); err != nil {
				return fmt.Errorf("failed to write CSV separator: %w", err)
			}
		}
		if err := writer.Write([]string{t.Title}); err != nil {
			return fmt.Errorf("failed to write CSV title: %w", err)
		}
		if err := writer.Write(t.Headers); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		for _, row := range t.Rows {
			record := make([]string, len(row))
			for j, c := range row {
				record[j] = c.Plain()
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// JSONRenderer writes the tables, cells with all flags, as one JSON array.
type JSONRenderer struct {
	Indent string
}

func (r *JSONRenderer) Format() string {
	return "json"
}

func (r *JSONRenderer) Render(w io.Writer, tables []Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", r.Indent)
	if tables == nil {
		tables = []Table{}
	}
	if err := enc.Encode(tables); err != nil {
		return fmt.Errorf("failed to encode tables: %w", err)
	}
	return nil
}
