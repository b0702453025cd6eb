package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/acbench/acbench"
	"github.com/scttfrdmn/acbench/pipeline"
	"github.com/scttfrdmn/acbench/report"
	"github.com/scttfrdmn/acbench/trajectory"
)

type parseOptions struct {
	kind           string
	scenario       string
	configurator   string
	maxValue       float64
	timeColumn     string
	timeUnit       string
	estimatedTrain bool
}

func newParseCmd(g *globalOptions) *cobra.Command {
	o := &parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse <path>",
		Short: "Parse the runs at path and print a summary",
		Long: `Parse reads a trajectory file or run directory of the given kind and prints
one row per recovered run: record count, final performance per split and the
incumbent ids without a known configuration. Warnings go to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, g, o, args[0])
		},
	}

	kinds := make([]string, 0, len(acbench.Kinds()))
	for _, k := range acbench.Kinds() {
		kinds = append(kinds, string(k))
	}
	flags := cmd.Flags()
	flags.StringVar(&o.kind, "kind", "", "configurator kind: "+strings.Join(kinds, ", "))
	flags.StringVar(&o.scenario, "scenario", "", "scenario name recorded on the runs")
	flags.StringVar(&o.configurator, "configurator", "", "configurator name recorded on the runs")
	flags.Float64Var(&o.maxValue, "max-value", 0, "clamp performance values from above (0 disables)")
	flags.StringVar(&o.timeColumn, "time-column", "", "time column of CSV trajectories")
	flags.StringVar(&o.timeUnit, "time-unit", "", "seconds or evaluations")
	flags.BoolVar(&o.estimatedTrain, "estimated-train", false, "read the training estimate of validation results")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func runParse(cmd *cobra.Command, g *globalOptions, o *parseOptions, path string) error {
	kind, err := acbench.ParseKind(o.kind)
	if err != nil {
		return err
	}
	parser, err := trajectory.ForKind(kind, trajectory.ParseOptions{
		MaxValue:       o.maxValue,
		TimeColumn:     o.timeColumn,
		TimeUnit:       acbench.TimeUnit(o.timeUnit),
		EstimatedTrain: o.estimatedTrain,
		Logger:         slog.Default(),
	})
	if err != nil {
		return err
	}

	result := parser.Parse(cmd.Context(), path, trajectory.RunMeta{
		Configurator: o.configurator,
		Scenario:     o.scenario,
	})
	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
	}
	if len(result.Runs) == 0 {
		return fmt.Errorf("no runs recovered from %s", path)
	}
	return pipeline.Render(cmd.OutOrStdout(), []report.Table{runTable(path, result.Runs)}, g.tableFormat("pipe"))
}

// runTable summarizes parsed runs, one row each.
func runTable(title string, runs []*acbench.Run) report.Table {
	t := report.Table{
		Title:   title,
		Headers: []string{"Run", "Kind", "Records", "Trajectory", "Test", "Train", "Rejected"},
	}
	for _, r := range runs {
		t.Rows = append(t.Rows, []report.Cell{
			report.Label(strconv.Itoa(r.ID)),
			report.Label(string(r.Kind)),
			report.Label(strconv.Itoa(len(r.Records))),
			finalCell(r, acbench.SplitTrajectory),
			finalCell(r, acbench.SplitTest),
			finalCell(r, acbench.SplitTrain),
			idsCell(r.RejectedConfigIDs),
		})
	}
	return t
}

func finalCell(r *acbench.Run, split acbench.Split) report.Cell {
	v, ok := r.Final(split)
	if !ok {
		return report.Label(report.Placeholder)
	}
	return report.Number(v, "%.4g")
}

func idsCell(ids []int) report.Cell {
	if len(ids) == 0 {
		return report.Label(report.Placeholder)
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return report.Label(strings.Join(parts, " "))
}
