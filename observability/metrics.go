package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var installedMeterProvider *sdkmetric.MeterProvider

// InitMetrics installs a meter provider backed by the Prometheus exporter.
// The exporter registers with the default Prometheus registry, which
// promhttp.Handler serves.
func InitMetrics(serviceName string) (*sdkmetric.MeterProvider, error) {
	res, err := serviceResource(context.Background(), serviceName)
	if err != nil {
		return nil, err
	}
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)
	installedMeterProvider = provider
	return provider, nil
}

// PipelineMetrics counts what the analysis pipeline parsed, dropped and
// tested. All instruments carry scenario and configurator attributes where
// they apply.
type PipelineMetrics struct {
	runsParsed       metric.Int64Counter
	runsMissing      metric.Int64Counter
	recordsMalformed metric.Int64Counter
	rowsDropped      metric.Int64Counter
	testsPerformed   metric.Int64Counter
	stageLatency     metric.Float64Histogram
}

// NewPipelineMetrics creates the pipeline instruments on the global meter
// provider.
func NewPipelineMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter(InstrumentationName)
	m := &PipelineMetrics{}

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.runsParsed, "acbench.runs.parsed", "Runs parsed successfully"},
		{&m.runsMissing, "acbench.runs.missing", "Run directories without a usable artifact"},
		{&m.recordsMalformed, "acbench.records.malformed", "Trajectory records skipped as malformed"},
		{&m.rowsDropped, "acbench.rows.dropped", "Runs dropped during time alignment"},
		{&m.testsPerformed, "acbench.tests.performed", "Significance tests performed"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.target = counter
	}

	latency, err := meter.Float64Histogram(
		"acbench.stage.latency",
		metric.WithDescription("Pipeline stage latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create latency histogram: %w", err)
	}
	m.stageLatency = latency
	return m, nil
}

func scope(scenario, configurator string) metric.MeasurementOption {
	attrs := []attribute.KeyValue{attribute.String("scenario", scenario)}
	if configurator != "" {
		attrs = append(attrs, attribute.String("configurator", configurator))
	}
	return metric.WithAttributes(attrs...)
}

// RunsParsed adds n successfully parsed runs.
func (m *PipelineMetrics) RunsParsed(ctx context.Context, scenario, configurator string, n int) {
	if m != nil && n > 0 {
		m.runsParsed.Add(ctx, int64(n), scope(scenario, configurator))
	}
}

// RunsMissing adds n run directories that yielded no run.
func (m *PipelineMetrics) RunsMissing(ctx context.Context, scenario, configurator string, n int) {
	if m != nil && n > 0 {
		m.runsMissing.Add(ctx, int64(n), scope(scenario, configurator))
	}
}

// RecordsMalformed adds n skipped records.
func (m *PipelineMetrics) RecordsMalformed(ctx context.Context, scenario, configurator string, n int) {
	if m != nil && n > 0 {
		m.recordsMalformed.Add(ctx, int64(n), scope(scenario, configurator))
	}
}

// RowsDropped adds n runs dropped by alignment.
func (m *PipelineMetrics) RowsDropped(ctx context.Context, scenario, configurator string, n int) {
	if m != nil && n > 0 {
		m.rowsDropped.Add(ctx, int64(n), scope(scenario, configurator))
	}
}

// TestsPerformed adds n significance tests.
func (m *PipelineMetrics) TestsPerformed(ctx context.Context, scenario string, n int) {
	if m != nil && n > 0 {
		m.testsPerformed.Add(ctx, int64(n), scope(scenario, ""))
	}
}

// ObserveStage records the latency of one stage since start.
func (m *PipelineMetrics) ObserveStage(ctx context.Context, stage, scenario string, start time.Time) {
	if m == nil {
		return
	}
	ms := float64(time.Since(start).Microseconds()) / 1000.0
	m.stageLatency.Record(ctx, ms, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("scenario", scenario),
	))
}

// ShutdownMetrics stops the provider installed by InitMetrics.
func ShutdownMetrics(ctx context.Context) error {
	if installedMeterProvider == nil {
		return nil
	}
	return installedMeterProvider.Shutdown(ctx)
}
