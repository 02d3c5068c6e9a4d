// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package observability is C8: a session-keyed pub/sub event bus plus
// two optional sinks (archive, redisout) wired against it. It adapts
// the engine's Observer and the control plane's EventPublisher
// interfaces into one typed Event stream per spec.md §4.8.
package observability

import "encoding/json"

// EventType names one of the fixed event kinds spec.md §4.8 defines.
type EventType string

const (
	EventNodeStateChanged  EventType = "node_state_changed"
	EventNodeStatsUpdated  EventType = "node_stats_updated"
	EventNodeParamsChanged EventType = "node_params_changed"
	EventNodeAdded         EventType = "node_added"
	EventNodeRemoved       EventType = "node_removed"
	EventConnectionAdded   EventType = "connection_added"
	EventConnectionRemoved EventType = "connection_removed"
	EventNodeTelemetry     EventType = "node_telemetry"
)

// maxTelemetryBytes bounds NodeTelemetry.Data so one misbehaving node
// can't balloon bus/archive/redis payloads (spec.md §4.8: "large
// payload fields may be truncated").
const maxTelemetryBytes = 16 * 1024

// Event is the single typed envelope every sink and subscriber
// observes; only the fields relevant to Type are populated.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id,omitempty"`

	// NodeStateChanged
	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`

	// NodeStatsUpdated
	Stats *StatsPayload `json:"stats,omitempty"`

	// NodeAdded
	Kind string `json:"kind,omitempty"`

	// Connection{Added,Removed}
	FromNode string `json:"from_node,omitempty"`
	FromPin  string `json:"from_pin,omitempty"`
	ToNode   string `json:"to_node,omitempty"`
	ToPin    string `json:"to_pin,omitempty"`

	// NodeParamsChanged
	Params json.RawMessage `json:"params,omitempty"`

	// NodeTelemetry
	TelemetryType string `json:"telemetry_type,omitempty"`
	Data          []byte `json:"data,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
	TimestampUnix int64  `json:"timestamp_unix,omitempty"`
}

// StatsPayload mirrors engine.StatsSnapshot.
type StatsPayload struct {
	Received    uint64 `json:"received"`
	Sent        uint64 `json:"sent"`
	Discarded   uint64 `json:"discarded"`
	Errored     uint64 `json:"errored"`
	WallClockMs int64  `json:"wall_clock_ms"`
}

func truncate(data []byte) ([]byte, bool) {
	if len(data) <= maxTelemetryBytes {
		return data, false
	}
	out := make([]byte, maxTelemetryBytes)
	copy(out, data)
	return out, true
}
