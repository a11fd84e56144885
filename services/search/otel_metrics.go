// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName scopes the OpenTelemetry instruments of the engine.
const meterName = "polyrect.search"

// runInstruments are the OpenTelemetry counterparts of the run-level
// Prometheus metrics. They follow the process MeterProvider, so the
// exporter chosen at telemetry.Init decides where they go.
type runInstruments struct {
	runs     metric.Int64Counter
	checked  metric.Int64Counter
	duration metric.Float64Histogram
}

// newRunInstruments creates the instruments on mp, or on the global
// provider when mp is nil. A failed instrument falls back to a no-op.
func newRunInstruments(mp metric.MeterProvider) runInstruments {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	runs, err := meter.Int64Counter("polyrect.engine.runs",
		metric.WithDescription("Finished search runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		slog.Warn("otel instrument unavailable", "instrument", "polyrect.engine.runs", "error", err)
		runs, _ = fallback.Int64Counter("polyrect.engine.runs")
	}
	checked, err := meter.Int64Counter("polyrect.engine.candidates",
		metric.WithDescription("Candidates evaluated by finished runs"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		slog.Warn("otel instrument unavailable", "instrument", "polyrect.engine.candidates", "error", err)
		checked, _ = fallback.Int64Counter("polyrect.engine.candidates")
	}
	duration, err := meter.Float64Histogram("polyrect.engine.run.duration",
		metric.WithDescription("Wall time of finished search runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		slog.Warn("otel instrument unavailable", "instrument", "polyrect.engine.run.duration", "error", err)
		duration, _ = fallback.Float64Histogram("polyrect.engine.run.duration")
	}
	return runInstruments{runs: runs, checked: checked, duration: duration}
}

func (ri runInstruments) record(ctx context.Context, outcome string, checked uint64, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	ri.runs.Add(ctx, 1, attrs)
	ri.checked.Add(ctx, int64(checked), attrs)
	ri.duration.Record(ctx, elapsed.Seconds(), attrs)
}
