// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipelinecore

import (
	"encoding/json"

	"github.com/streamkit-oss/streamkit/internal/packet"
)

// PlanNode is one constructable node in the resolved plan.
type PlanNode struct {
	ID     string
	Kind   string
	Params json.RawMessage
}

// PlanConnection is one wired edge in the resolved plan, with its
// fully-resolved packet type and backpressure mode.
type PlanConnection struct {
	FromNode string
	FromPin  string
	ToNode   string
	ToPin    string
	Type     packet.Type
	Mode     ConnectionMode
}

// Plan is the output of a successful compilation: a topologically
// ordered node list plus the wired connection list, ready for the
// engine (C5) to instantiate (spec.md §4.3 step 8).
type Plan struct {
	Name        string
	Description string
	Mode        Mode

	// Nodes is topologically ordered: every node appears after all of
	// its non-breakable upstream dependencies.
	Nodes       []PlanNode
	Connections []PlanConnection
}

// NodeConnections returns the connections whose ToNode is id, in the
// order they appear in the plan.
func (p *Plan) NodeConnections(id string) []PlanConnection {
	var out []PlanConnection
	for _, c := range p.Connections {
		if c.ToNode == id {
			out = append(out, c)
		}
	}
	return out
}

// OutgoingConnections returns the connections whose FromNode is id, in
// the order they appear in the plan.
func (p *Plan) OutgoingConnections(id string) []PlanConnection {
	var out []PlanConnection
	for _, c := range p.Connections {
		if c.FromNode == id {
			out = append(out, c)
		}
	}
	return out
}
