// Package observability wires logging, tracing and metrics for the analysis
// pipeline.
//
// Tracing and metrics go through the global OpenTelemetry providers, so
// tests can install their own providers before running the code under test.
package observability

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer and meter of this module.
const InstrumentationName = "github.com/scttfrdmn/acbench"

var installedTracerProvider *sdktrace.TracerProvider

// InitTracing installs a tracer provider exporting to otlpEndpoint (gRPC)
// and, with consoleExport, pretty-printed to stderr. Without any exporter
// spans are recorded but dropped.
func InitTracing(serviceName string, otlpEndpoint string, consoleExport bool) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()
	res, err := serviceResource(ctx, serviceName)
	if err != nil {
		return nil, err
	}
	exporters, err := spanExporters(ctx, otlpEndpoint, consoleExport)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}
	for _, exp := range exporters {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	installedTracerProvider = tp
	return tp, nil
}

func serviceResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("resource for %s: %w", serviceName, err)
	}
	return res, nil
}

func spanExporters(ctx context.Context, otlpEndpoint string, console bool) ([]sdktrace.SpanExporter, error) {
	var out []sdktrace.SpanExporter
	if otlpEndpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(otlpEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp exporter %s: %w", otlpEndpoint, err)
		}
		out = append(out, exp)
	}
	if console {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("console exporter: %w", err)
		}
		out = append(out, exp)
	}
	return out, nil
}

// StartSpan starts an internal span of the module's tracer. The tracer is
// looked up on every call so providers installed later take effect.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Shutdown flushes and stops the provider installed by InitTracing.
func Shutdown(ctx context.Context) error {
	if installedTracerProvider == nil {
		return nil
	}
	return installedTracerProvider.Shutdown(ctx)
}
