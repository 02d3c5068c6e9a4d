// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ObservabilityDroppedTotal counts events a session's bus subscriber
	// queue dropped because it was full (spec.md §4.8: "telemetry is
	// best-effort and may be dropped under load").
	ObservabilityDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_observability_dropped_total",
		Help: "Total number of observability events dropped due to a full subscriber queue",
	}, []string{"session_id", "event_type"})

	// ObservabilityPublishedTotal counts events successfully delivered to
	// at least the bus (not necessarily every subscriber).
	ObservabilityPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_observability_published_total",
		Help: "Total number of observability events published",
	}, []string{"event_type"})
)

// IncObservabilityDrop records one dropped event for a session/type pair.
func IncObservabilityDrop(sessionID, eventType string) {
	ObservabilityDroppedTotal.WithLabelValues(sessionID, eventType).Inc()
}

// IncObservabilityPublish records one published event.
func IncObservabilityPublish(eventType string) {
	ObservabilityPublishedTotal.WithLabelValues(eventType).Inc()
}
