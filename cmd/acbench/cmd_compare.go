package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/scttfrdmn/acbench/artifacts"
	"github.com/scttfrdmn/acbench/config"
	acerrors "github.com/scttfrdmn/acbench/errors"
	"github.com/scttfrdmn/acbench/observability"
	"github.com/scttfrdmn/acbench/pipeline"
	"github.com/scttfrdmn/acbench/storage"
)

type compareOptions struct {
	configPath  string
	root        string
	gcsURI      string
	credentials string
	eventsPath  string
	store       bool
}

func newCompareCmd(g *globalOptions) *cobra.Command {
	o := &compareOptions{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the configurators of an experiment and print all tables",
		Long: `Compare parses every run below <root>/<scenario>/<configurator>/run-<id>,
runs the statistics of every scenario and prints the cross-scenario tables
followed by the per-scenario tables over time.

With --gcs the runs are first mirrored from a gs://bucket/prefix location
into --root, or into a temporary directory when --root is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, g, o)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.configPath, "config", "", "experiment file (YAML or JSON)")
	flags.StringVar(&o.root, "root", "", "directory holding the runs")
	flags.StringVar(&o.gcsURI, "gcs", "", "mirror the runs from gs://bucket/prefix first")
	flags.StringVar(&o.credentials, "credentials", "", "service account key for --gcs")
	flags.StringVar(&o.eventsPath, "events", "", "append data-quality events to this JSON lines file")
	flags.BoolVar(&o.store, "store", false, "save the comparisons to the configured store")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runCompare(cmd *cobra.Command, g *globalOptions, o *compareOptions) error {
	ctx := cmd.Context()
	exp, err := g.loadExperiment(cmd, o.configPath)
	if err != nil {
		return err
	}
	logger := slog.Default()

	shutdown, err := initTelemetry(exp.Observability, logger)
	defer shutdown()
	if err != nil {
		return err
	}

	root, cleanup, err := o.resolveRoot(ctx, exp, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics, err := observability.NewPipelineMetrics()
	if err != nil {
		return err
	}
	events, closeEvents, err := o.eventLog()
	if err != nil {
		return err
	}
	defer closeEvents()

	opts := []pipeline.EngineOption{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
		pipeline.WithEvents(events),
	}
	if o.store {
		store, err := storage.New(ctx, exp.StoreOptions())
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, pipeline.WithStore(store))
	}

	engine, err := pipeline.New(exp, root, opts...)
	if err != nil {
		return err
	}
	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	if o.store {
		for _, c := range result.Comparisons {
			logger.Info("comparison stored", "scenario", c.Scenario, "id", c.ID)
		}
		if result.Aggregated != nil {
			logger.Info("comparison stored", "scenario", result.Aggregated.Scenario, "id", result.Aggregated.ID)
		}
	}

	cfg := exp.ReportConfig()
	cfg.Format = g.tableFormat(cfg.Format)
	return pipeline.Render(cmd.OutOrStdout(), result.Tables(cfg), cfg.Format)
}

// resolveRoot returns the directory to analyse, mirroring it from GCS when
// requested. The cleanup function removes a temporary mirror.
func (o *compareOptions) resolveRoot(ctx context.Context, exp *config.Experiment, logger *slog.Logger) (string, func(), error) {
	noop := func() {}
	if o.gcsURI == "" {
		if o.root == "" {
			return "", noop, acerrors.NewArgumentError("compare", "--root or --gcs is required")
		}
		return o.root, noop, nil
	}

	dest, cleanup := o.root, noop
	if dest == "" {
		tmp, err := os.MkdirTemp("", "acbench-")
		if err != nil {
			return "", noop, fmt.Errorf("failed to create mirror directory: %w", err)
		}
		dest = tmp
		cleanup = func() { os.RemoveAll(tmp) }
	}

	src, err := artifacts.NewGCSSource(ctx, o.gcsURI, o.credentials)
	if err != nil {
		cleanup()
		return "", noop, err
	}
	defer src.Close()
	src.Logger = logger
	src.Filter = experimentFilter(exp)

	if _, err := src.Mirror(ctx, dest); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to mirror %s: %w", o.gcsURI, err)
	}
	return dest, cleanup, nil
}

// experimentFilter selects the objects below <scenario>/<configurator>/ of
// the experiment.
func experimentFilter(exp *config.Experiment) func(rel string) bool {
	return func(rel string) bool {
		parts := strings.SplitN(rel, "/", 3)
		if len(parts) < 3 {
			return false
		}
		_, okScen := exp.Scenario(parts[0])
		_, okAC := exp.Configurator(parts[1])
		return okScen && okAC
	}
}

func (o *compareOptions) eventLog() (*observability.EventLog, func(), error) {
	if o.eventsPath == "" {
		return observability.NewEventLog(), func() {}, nil
	}
	sink, err := observability.NewFileEventSink(o.eventsPath)
	if err != nil {
		return nil, nil, err
	}
	return observability.NewEventLog(sink), func() { sink.Close() }, nil
}

// initTelemetry starts tracing and the metrics endpoint as configured. The
// returned function shuts down whatever was started and is never nil.
func initTelemetry(obs config.Observability, logger *slog.Logger) (func(), error) {
	var closers []func(context.Context) error
	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](ctx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}
	}

	if obs.OTLPEndpoint != "" || obs.ConsoleTraces {
		if _, err := observability.InitTracing(serviceName, obs.OTLPEndpoint, obs.ConsoleTraces); err != nil {
			return shutdown, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		closers = append(closers, observability.Shutdown)
	}

	if obs.MetricsAddr != "" {
		if _, err := observability.InitMetrics(serviceName); err != nil {
			return shutdown, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		closers = append(closers, observability.ShutdownMetrics)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: obs.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint failed", "addr", obs.MetricsAddr, "error", err)
			}
		}()
		closers = append(closers, server.Shutdown)
		logger.Info("serving metrics", "addr", obs.MetricsAddr, "path", "/metrics")
	}
	return shutdown, nil
}
