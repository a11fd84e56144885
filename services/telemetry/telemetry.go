// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package telemetry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Exporter names. The config file's telemetry section uses the same values.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

// Config selects where run and session spans and the OTel run metrics go.
type Config struct {
	// ServiceName, ServiceVersion and Environment are attached to every
	// span and metric as resource attributes.
	ServiceName    string
	ServiceVersion string
	Environment    string

	// TraceExporter is otlp, stdout or none. Empty means none.
	TraceExporter string

	// MetricExporter is prometheus, stdout or none. Empty means none.
	MetricExporter string

	// OTLPEndpoint is the gRPC collector address for the otlp trace exporter.
	// OTLPInsecure dials it without TLS.
	OTLPEndpoint string
	OTLPInsecure bool
}

// DefaultConfig returns the configuration for a local polyrect process:
// no traces, Prometheus metrics. POLYRECT_ENV, OTEL_TRACES_EXPORTER,
// OTEL_METRICS_EXPORTER and OTEL_EXPORTER_OTLP_ENDPOINT override it.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "polyrect",
		ServiceVersion: "0.1.0",
		Environment:    cmp.Or(os.Getenv("POLYRECT_ENV"), "development"),
		TraceExporter:  cmp.Or(os.Getenv("OTEL_TRACES_EXPORTER"), ExporterNone),
		MetricExporter: cmp.Or(os.Getenv("OTEL_METRICS_EXPORTER"), ExporterPrometheus),
		OTLPEndpoint:   cmp.Or(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "localhost:4317"),
		OTLPInsecure:   true,
	}
}

// Init installs the global tracer and meter providers chosen by cfg.
//
// # Description
//
// A provider is built only for an exporter other than none, so with the
// defaults the search engine's spans go to the OTel no-op tracer. The
// prometheus metric exporter also enables MetricsHandler.
//
// # Outputs
//
//   - shutdown: Flushes and closes the providers Init installed. serve calls
//     it on exit.
//   - error: ErrNilContext, or ErrUnknownExporter or an exporter failure,
//     wrapped.
//
// # Thread Safety
//
// Call once, before the engine starts.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	var closers shutdownChain
	res := resource.NewWithAttributes("",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	if enabled(cfg.TraceExporter) {
		exp, err := newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		tp := trace.NewTracerProvider(
			trace.WithBatcher(exp),
			trace.WithResource(res),
			trace.WithSampler(trace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		closers = append(closers, tp.Shutdown)
	}

	if enabled(cfg.MetricExporter) {
		reader, err := newMetricReader(cfg)
		if err != nil {
			_ = closers.shutdown(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		mp := metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(reader))
		otel.SetMeterProvider(mp)
		closers = append(closers, mp.Shutdown)
	}

	return closers.shutdown, nil
}

func enabled(exporter string) bool {
	return exporter != "" && exporter != ExporterNone
}

type shutdownChain []func(context.Context) error

func (c shutdownChain) shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range c {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("telemetry shutdown: %w", err)
	}
	return nil
}

func newSpanExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	switch cfg.TraceExporter {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("otlp span exporter: %w", err)
		}
		return exp, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout span exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, cfg.TraceExporter)
}

func newMetricReader(cfg Config) (metric.Reader, error) {
	switch cfg.MetricExporter {
	case ExporterPrometheus:
		// The exporter registers with the default Prometheus registry, where
		// the engine's promauto gauges already live.
		reader, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("prometheus metric exporter: %w", err)
		}
		metricsHandler.Store(promhttp.Handler())
		return reader, nil
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout metric exporter: %w", err)
		}
		return metric.NewPeriodicReader(exp), nil
	}
	return nil, fmt.Errorf("%w: metric exporter %q", ErrUnknownExporter, cfg.MetricExporter)
}

var metricsHandler atomic.Value

// MetricsHandler returns the handler the visualizer mounts at /metrics, or
// nil unless Init ran with the prometheus metric exporter.
func MetricsHandler() http.Handler {
	h, _ := metricsHandler.Load().(http.Handler)
	return h
}
