// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package observability

import (
	"encoding/json"

	"github.com/streamkit-oss/streamkit/internal/engine"
)

// SessionPublisher binds a Bus to one session id and implements both
// engine.Observer and controlplane.EventPublisher, so a single value
// wires a session's engine and control plane onto the shared bus.
// Neither engine nor controlplane import this package — each declares
// its own narrow consumer interface and this is simply one
// implementation of both.
type SessionPublisher struct {
	sessionID string
	bus       *Bus
}

// NewSessionPublisher binds bus to sessionID.
func NewSessionPublisher(sessionID string, bus *Bus) *SessionPublisher {
	return &SessionPublisher{sessionID: sessionID, bus: bus}
}

// NodeStateChanged implements engine.Observer.
func (p *SessionPublisher) NodeStateChanged(nodeID string, state engine.State, reason engine.StopReason) {
	p.bus.Publish(Event{
		Type:      EventNodeStateChanged,
		SessionID: p.sessionID,
		NodeID:    nodeID,
		State:     state.String(),
		Reason:    string(reason),
	})
}

// NodeStatsUpdated implements engine.Observer.
func (p *SessionPublisher) NodeStatsUpdated(nodeID string, stats engine.StatsSnapshot) {
	p.bus.Publish(Event{
		Type:      EventNodeStatsUpdated,
		SessionID: p.sessionID,
		NodeID:    nodeID,
		Stats: &StatsPayload{
			Received:    stats.Received,
			Sent:        stats.Sent,
			Discarded:   stats.Discarded,
			Errored:     stats.Errored,
			WallClockMs: stats.WallClockMs,
		},
	})
}

// ConnectionClosed implements engine.Observer: the engine proactively
// detached nodeID's remaining inbound connection because it stopped on
// its own (spec.md §9 Open Question #2). Surfaced as the same
// connection_removed event a control-plane Disconnect produces, since
// a subscriber has no reason to distinguish the two causes — distinct
// from ConnectionRemoved below (controlplane.EventPublisher), which
// Go allows on the same type since the method names differ.
func (p *SessionPublisher) ConnectionClosed(fromNode, fromPin, toNode, toPin string) {
	p.bus.Publish(Event{
		Type: EventConnectionRemoved, SessionID: p.sessionID,
		FromNode: fromNode, FromPin: fromPin, ToNode: toNode, ToPin: toPin,
	})
}

// NodeAdded implements controlplane.EventPublisher.
func (p *SessionPublisher) NodeAdded(sessionID, nodeID, kind string) {
	p.bus.Publish(Event{Type: EventNodeAdded, SessionID: sessionID, NodeID: nodeID, Kind: kind})
}

// NodeRemoved implements controlplane.EventPublisher.
func (p *SessionPublisher) NodeRemoved(sessionID, nodeID string) {
	p.bus.Publish(Event{Type: EventNodeRemoved, SessionID: sessionID, NodeID: nodeID})
}

// ConnectionAdded implements controlplane.EventPublisher.
func (p *SessionPublisher) ConnectionAdded(sessionID, fromNode, fromPin, toNode, toPin string) {
	p.bus.Publish(Event{
		Type: EventConnectionAdded, SessionID: sessionID,
		FromNode: fromNode, FromPin: fromPin, ToNode: toNode, ToPin: toPin,
	})
}

// ConnectionRemoved implements controlplane.EventPublisher.
func (p *SessionPublisher) ConnectionRemoved(sessionID, fromNode, fromPin, toNode, toPin string) {
	p.bus.Publish(Event{
		Type: EventConnectionRemoved, SessionID: sessionID,
		FromNode: fromNode, FromPin: fromPin, ToNode: toNode, ToPin: toPin,
	})
}

// NodeParamsChanged implements controlplane.EventPublisher.
func (p *SessionPublisher) NodeParamsChanged(sessionID, nodeID string, params json.RawMessage) {
	p.bus.Publish(Event{Type: EventNodeParamsChanged, SessionID: sessionID, NodeID: nodeID, Params: params})
}

// PublishTelemetry emits an application-defined structured event,
// truncating an oversized payload (spec.md §4.8's NodeTelemetry).
func (p *SessionPublisher) PublishTelemetry(nodeID, typeID string, data []byte, timestampUnix int64) {
	truncated, wasTruncated := truncate(data)
	p.bus.Publish(Event{
		Type:          EventNodeTelemetry,
		SessionID:     p.sessionID,
		NodeID:        nodeID,
		TelemetryType: typeID,
		Data:          truncated,
		Truncated:     wasTruncated,
		TimestampUnix: timestampUnix,
	})
}
