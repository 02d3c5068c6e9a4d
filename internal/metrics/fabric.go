// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FabricBestEffortDropsTotal counts packets a best-effort distributor
	// link dropped because its consumer channel was full.
	FabricBestEffortDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_fabric_best_effort_drops_total",
		Help: "Total number of packets dropped by a best-effort distributor link",
	}, []string{"node_id", "pin"})

	// FabricQueueDepth tracks a channel's current queued packet count.
	FabricQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamkit_fabric_queue_depth",
		Help: "Current number of packets queued on a channel",
	}, []string{"node_id", "pin"})
)

// IncFabricDrop records one best-effort drop for a (node, pin) link.
func IncFabricDrop(nodeID, pin string) {
	FabricBestEffortDropsTotal.WithLabelValues(nodeID, pin).Inc()
}

// SetFabricQueueDepth records the current depth of a (node, pin) channel.
func SetFabricQueueDepth(nodeID, pin string, depth int) {
	FabricQueueDepth.WithLabelValues(nodeID, pin).Set(float64(depth))
}
