// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for visualizer sessions.
//
// # Description
//
// Tracks websocket sessions and the messages they carry:
//   - Active session gauge and session duration histogram
//   - Message counters by direction and type
//   - Dropped inbound frames by reason
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// A nil *SessionMetrics records nothing.
package observability

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
	sessionSubsystem = "visualizer"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Reasons an inbound frame is dropped.
const (
	DropMalformed   = "malformed"
	DropUnknownType = "unknown_type"
	DropBinary      = "binary"
	DropCoalesced   = "coalesced"
)

// SessionMetrics holds the Prometheus metrics for websocket sessions.
type SessionMetrics struct {
	// ActiveSessions is the number of open websocket sessions.
	ActiveSessions prometheus.Gauge

	// SessionDurationSeconds measures how long sessions stay open.
	SessionDurationSeconds prometheus.Histogram

	// MessagesTotal counts messages.
	// Labels: direction (inbound, outbound), type (start, update, ...)
	MessagesTotal *prometheus.CounterVec

	// DroppedMessagesTotal counts inbound frames that were ignored.
	// Labels: reason (malformed, unknown_type, binary, coalesced)
	DroppedMessagesTotal *prometheus.CounterVec
}

// NewSessionMetrics creates and registers the session metrics on reg.
//
// # Limitations
//
//   - Panics if reg already holds these metrics.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	factory := promauto.With(reg)
	return &SessionMetrics{
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "active_sessions",
				Help:      "Number of open websocket sessions",
			},
		),
		SessionDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "session_duration_seconds",
				Help:      "Duration of websocket sessions",
				Buckets:   []float64{1, 10, 60, 300, 900, 3600},
			},
		),
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "messages_total",
				Help:      "Total websocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),
		DroppedMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: sessionSubsystem,
				Name:      "dropped_messages_total",
				Help:      "Total inbound websocket frames ignored by reason",
			},
			[]string{"reason"},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// SessionOpened records a new session.
func (m *SessionMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed records the end of a session that lasted d.
func (m *SessionMetrics) SessionClosed(d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDurationSeconds.Observe(d.Seconds())
}

// Message records one message of msgType in direction.
func (m *SessionMetrics) Message(direction, msgType string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// Dropped records an ignored inbound frame.
func (m *SessionMetrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.DroppedMessagesTotal.WithLabelValues(reason).Inc()
}
