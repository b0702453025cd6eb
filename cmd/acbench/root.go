package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/acbench/config"
	"github.com/scttfrdmn/acbench/observability"
	"github.com/scttfrdmn/acbench/report"
)

const serviceName = "acbench"

// globalOptions holds the persistent flags.
type globalOptions struct {
	logLevel string
	jsonLogs bool
	format   string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "acbench",
		Short: "Compare algorithm configurators on their trajectories",
		Long: `acbench reconciles the trajectories written by algorithm configurators
(SMAC, GGA, ParamILS, MO-ParamILS, irace and validation runs), aligns them
over time and compares the configurators with permutation tests, AUC and
bootstrapped speedups.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.configureLogging(cmd, nil)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.BoolVar(&g.jsonLogs, "json-logs", false, "write logs as JSON")
	flags.StringVar(&g.format, "format", "", "table format: "+strings.Join(report.Formats(), ", "))

	root.AddCommand(
		newParseCmd(g),
		newCompareCmd(g),
		newReportCmd(g),
		newListCmd(g),
	)
	return root
}

// configureLogging installs the default logger. Settings of the experiment
// apply to the flags not given on the command line.
func (g *globalOptions) configureLogging(cmd *cobra.Command, obs *config.Observability) error {
	level, structured := g.logLevel, g.jsonLogs
	if obs != nil {
		if !cmd.Flags().Changed("log-level") && obs.LogLevel != "" {
			level = obs.LogLevel
		}
		if !cmd.Flags().Changed("json-logs") {
			structured = obs.StructuredLogs
		}
	}
	l, err := observability.ParseLevel(level)
	if err != nil {
		return err
	}
	observability.ConfigureLogging(l, structured, true)
	return nil
}

// tableFormat returns the --format flag, or fallback when it is not set.
func (g *globalOptions) tableFormat(fallback string) string {
	if g.format != "" {
		return g.format
	}
	return fallback
}

// loadExperiment reads the experiment file and applies its logging settings.
func (g *globalOptions) loadExperiment(cmd *cobra.Command, path string) (*config.Experiment, error) {
	exp, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := g.configureLogging(cmd, &exp.Observability); err != nil {
		return nil, err
	}
	return exp, nil
}
