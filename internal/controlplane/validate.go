// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package controlplane

import (
	"errors"
	"fmt"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// snapshotGraph adapts a graphSnapshot to packet.Graph so a single
// Passthrough output can be resolved without recompiling the whole
// plan, mirroring internal/pipelinecore/compile.go's planGraph but
// scoped to the one touched node.
type snapshotGraph struct{ s *graphSnapshot }

func (a snapshotGraph) OutputType(nodeID, pin string) (packet.Type, bool) {
	n, ok := a.s.nodes[nodeID]
	if !ok {
		return packet.Type{}, false
	}
	for _, p := range n.meta.OutputPins {
		if p.Name == pin || (p.Cardinality == node.CardinalityDynamic && hasPrefix(pin, p.DynamicPrefix+"_")) {
			return p.ProducesType, true
		}
	}
	return packet.Type{}, false
}

func (a snapshotGraph) FirstInputEdge(nodeID string) (string, string, bool) {
	n, ok := a.s.nodes[nodeID]
	if !ok || len(n.meta.InputPins) == 0 {
		return "", "", false
	}
	firstPin := n.meta.InputPins[0].Name
	for _, e := range a.s.edges {
		if e.toNode == nodeID && e.toPin == firstPin {
			return e.fromNode, e.fromPin, true
		}
	}
	return "", "", false
}

func anyCompatible(producer packet.Type, accepted []packet.Type) bool {
	for _, t := range accepted {
		if packet.Compatible(producer, t) {
			return true
		}
	}
	return false
}

// validateConnect re-runs the §4.3 subset §4.6 calls for against the
// two touched endpoints only: existence, resolved type compatibility,
// input cardinality, and acyclicity (with the same bidirectional
// single-breakable-edge exception the compiler applies).
func (s *graphSnapshot) validateConnect(fromNode, fromPin, toNode, toPin string) (packet.Type, error) {
	if _, ok := s.nodes[fromNode]; !ok {
		return packet.Type{}, &NotFoundError{What: "node " + fromNode}
	}
	if _, ok := s.nodes[toNode]; !ok {
		return packet.Type{}, &NotFoundError{What: "node " + toNode}
	}

	outPin, ok := s.findPin(fromNode, fromPin, true)
	if !ok {
		return packet.Type{}, &NotFoundError{What: fmt.Sprintf("output pin %s.%s", fromNode, fromPin)}
	}
	inPin, ok := s.findPin(toNode, toPin, false)
	if !ok {
		return packet.Type{}, &NotFoundError{What: fmt.Sprintf("input pin %s.%s", toNode, toPin)}
	}

	producerType := outPin.ProducesType
	if producerType.Variant == packet.VariantPassthrough {
		resolved, err := packet.ResolvePassthrough(snapshotGraph{s: s}, fromNode, fromPin)
		var noUpstream *packet.ErrNoUpstreamEdge
		switch {
		case errors.As(err, &noUpstream):
			// Nothing feeds fromNode yet (a live graph is wired one
			// Connect at a time), so the output stays Passthrough,
			// which packet.Compatible accepts on any consumer pin.
		case err != nil:
			return packet.Type{}, &TypeMismatchError{NodeID: fromNode, Pin: fromPin, Reason: err.Error()}
		default:
			producerType = resolved
		}
	}
	if !anyCompatible(producerType, inPin.AcceptsTypes) {
		return packet.Type{}, &TypeMismatchError{NodeID: toNode, Pin: toPin, Reason: "producer type not accepted by consumer pin"}
	}

	if inPin.Cardinality == node.CardinalityOne && s.inputConnectionCount(toNode, toPin) > 0 {
		return packet.Type{}, &CardinalityViolationError{NodeID: toNode, Pin: toPin}
	}

	if s.reachable(fromNode, toNode) && !s.bidirectional(toNode) {
		return packet.Type{}, &CycleError{Through: toNode}
	}

	return producerType, nil
}
