package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/acbench/aggregate"
	"github.com/scttfrdmn/acbench/config"
	acerrors "github.com/scttfrdmn/acbench/errors"
	"github.com/scttfrdmn/acbench/pipeline"
	"github.com/scttfrdmn/acbench/report"
	"github.com/scttfrdmn/acbench/storage"
)

type reportOptions struct {
	configPath string
	ids        []string
	latest     int
}

func newReportCmd(g *globalOptions) *cobra.Command {
	o := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render stored comparisons again",
		Long: `Report loads comparisons saved by "compare --store" and prints their tables
with the naming and style of the experiment file. Without --id the most
recent comparisons are rendered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, g, o)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&o.configPath, "config", "", "experiment file (YAML or JSON)")
	flags.StringSliceVar(&o.ids, "id", nil, "comparison id, may be repeated")
	flags.IntVar(&o.latest, "latest", 0, "render the n most recent comparisons (0 renders all)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runReport(cmd *cobra.Command, g *globalOptions, o *reportOptions) error {
	ctx := cmd.Context()
	exp, err := g.loadExperiment(cmd, o.configPath)
	if err != nil {
		return err
	}
	store, err := openPersistentStore(ctx, exp)
	if err != nil {
		return err
	}
	defer store.Close()

	var comps []*aggregate.ScenarioComparison
	if len(o.ids) > 0 {
		for _, id := range o.ids {
			c, err := store.Load(ctx, id)
			if err != nil {
				return err
			}
			if c == nil {
				return fmt.Errorf("comparison %s not found", id)
			}
			comps = append(comps, c)
		}
	} else {
		if comps, err = store.List(ctx, o.latest); err != nil {
			return err
		}
	}
	if len(comps) == 0 {
		return fmt.Errorf("no stored comparisons")
	}

	cfg := exp.ReportConfig()
	cfg.Format = g.tableFormat(cfg.Format)
	return pipeline.Render(cmd.OutOrStdout(), pipeline.StoredTables(comps, cfg), cfg.Format)
}

type listOptions struct {
	configPath string
	limit      int
}

func newListCmd(g *globalOptions) *cobra.Command {
	o := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored comparisons, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			exp, err := g.loadExperiment(cmd, o.configPath)
			if err != nil {
				return err
			}
			store, err := openPersistentStore(ctx, exp)
			if err != nil {
				return err
			}
			defer store.Close()

			comps, err := store.List(ctx, o.limit)
			if err != nil {
				return err
			}
			return pipeline.Render(cmd.OutOrStdout(), []report.Table{comparisonTable(comps)}, g.tableFormat(exp.Report.TableStyle))
		},
	}
	cmd.Flags().StringVar(&o.configPath, "config", "", "experiment file (YAML or JSON)")
	cmd.Flags().IntVar(&o.limit, "limit", 20, "number of comparisons (0 lists all)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// openPersistentStore opens the configured store. The memory backend keeps
// nothing between invocations and is refused.
func openPersistentStore(ctx context.Context, exp *config.Experiment) (storage.ResultStore, error) {
	opts := exp.StoreOptions()
	if opts.Backend == "" || opts.Backend == "memory" {
		return nil, acerrors.NewArgumentError("report", "stored comparisons need a file or redis storage backend")
	}
	return storage.New(ctx, opts)
}

func comparisonTable(comps []*aggregate.ScenarioComparison) report.Table {
	t := report.Table{
		Title:   "Stored comparisons",
		Headers: []string{"ID", "Scenario", "Created", "Split", "Configurators", "Tests"},
	}
	for _, c := range comps {
		names := make([]string, len(c.Configurators))
		for i, s := range c.Configurators {
			names[i] = s.Name
		}
		t.Rows = append(t.Rows, []report.Cell{
			report.Label(c.ID),
			report.Label(c.Scenario),
			report.Label(c.CreatedAt.Format("2006-01-02 15:04:05")),
			report.Label(string(c.Split)),
			report.Label(strings.Join(names, " ")),
			report.Label(strconv.Itoa(c.TestsPerformed)),
		})
	}
	return t
}
