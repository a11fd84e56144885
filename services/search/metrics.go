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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const (
	metricsNamespace = "polyrect"
	searchSubsystem  = "search"
)

// Run outcomes used as the "outcome" label of RunsTotal.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
)

// Worker retirement reasons used as the "reason" label of RetirementsTotal.
const (
	RetireDrained   = "drained"
	RetireShrunk    = "shrunk"
	RetireStopped   = "stopped"
	RetireEarlyExit = "early_exit"
	RetireFailed    = "failed"
)

// Metrics holds the Prometheus instruments of the search engine.
//
// # Description
//
// Created with NewMetrics against a registerer. A nil *Metrics is valid and
// records nothing, so tests and headless runs can skip registration.
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// RunsTotal counts finished runs.
	// Labels: outcome (completed, stopped)
	RunsTotal *prometheus.CounterVec

	// CandidatesChecked counts oracle evaluations across all runs.
	CandidatesChecked prometheus.Counter

	// CandidatesContained counts evaluations that found a contained rectangle.
	CandidatesContained prometheus.Counter

	// LiveWorkers is the number of workers of the current run still draining.
	LiveWorkers prometheus.Gauge

	// BestArea is the best contained area of the most recent run.
	BestArea prometheus.Gauge

	// RetirementsTotal counts worker exits.
	// Labels: reason (drained, shrunk, stopped, early_exit, failed)
	RetirementsTotal *prometheus.CounterVec

	// WorkerFailuresTotal counts recovered worker panics.
	WorkerFailuresTotal prometheus.Counter

	// EventsDroppedTotal counts events discarded because a subscriber's
	// buffer was full.
	// Labels: kind (update, complete, status)
	EventsDroppedTotal *prometheus.CounterVec

	// RunDurationSeconds measures the wall time of finished runs.
	// Labels: outcome
	RunDurationSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers the search metrics.
//
// # Inputs
//
//   - reg: Registerer to attach to. Use prometheus.DefaultRegisterer in
//     production and prometheus.NewRegistry() in tests.
//
// # Limitations
//
//   - Panics if the same registerer already holds these metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: searchSubsystem,
				Name:      "runs_total",
				Help:      "Total number of finished search runs by outcome",
			},
			[]string{"outcome"},
		),
		CandidatesChecked: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: searchSubsystem,
				Name:      "candidates_checked_total",
				Help:      "Total number of candidate rectangles evaluated",
			},
		),
		CandidatesContained: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: searchSubsystem,
				Name:      "candidates_contained_total",
				Help:      "Total number of candidate rectangles found inside the polygon",
			},
		),
		LiveWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: searchSubsystem,
				Name:      "live_workers",
				Help:      "Workers of the current run that have not retired",
			},
		),
		BestArea: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: searchSubsystem,
				Name:      "best_area",
				Help:      "Largest contained area found by the most recent run",
			},
		),
		RetirementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: searchSubsystem,
				Name:      "worker_retirements_total",
				Help:      "Total number of worker exits by reason",
			},
			[]string{"reason"},
		),
		WorkerFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: searchSubsystem,
				Name:      "worker_failures_total",
				Help:      "Total number of recovered worker panics",
			},
		),
		EventsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: searchSubsystem,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped for slow subscribers",
			},
			[]string{"kind"},
		),
		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: searchSubsystem,
				Name:      "run_duration_seconds",
				Help:      "Wall time of finished search runs",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"outcome"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

func (m *Metrics) recordChecked(contained bool) {
	if m == nil {
		return
	}
	m.CandidatesChecked.Inc()
	if contained {
		m.CandidatesContained.Inc()
	}
}

func (m *Metrics) recordRetirement(reason string) {
	if m == nil {
		return
	}
	m.RetirementsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) recordFailure() {
	if m == nil {
		return
	}
	m.WorkerFailuresTotal.Inc()
}

func (m *Metrics) setLiveWorkers(n int) {
	if m == nil {
		return
	}
	m.LiveWorkers.Set(float64(n))
}

func (m *Metrics) setBestArea(area uint64) {
	if m == nil {
		return
	}
	m.BestArea.Set(float64(area))
}

func (m *Metrics) recordDropped(kind EventKind) {
	if m == nil {
		return
	}
	m.EventsDroppedTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) recordRun(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}
