// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package controlplane

import (
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
	"github.com/streamkit-oss/streamkit/internal/pipelinecore"
)

// nodeView is the control plane's read-only view of one live node:
// just enough of its kind metadata to re-run §4.3's validation subset
// against a touched edge without consulting the engine goroutine.
type nodeView struct {
	id   string
	kind string
	meta node.Metadata
}

// edgeView mirrors one wired connection.
type edgeView struct {
	fromNode, fromPin string
	toNode, toPin     string
	typ               packet.Type
	mode              pipelinecore.ConnectionMode
}

// graphSnapshot is the copy-on-write live graph view readers observe
// (spec.md §5: "readers observe either the pre-mutation or
// post-mutation graph, never a torn state"). The mutation loop builds
// the next snapshot from the current one plus one op, and only
// publishes it via atomic.Pointer.Store after the op fully succeeds.
type graphSnapshot struct {
	nodes map[string]nodeView
	edges []edgeView
}

func newGraphSnapshot() *graphSnapshot {
	return &graphSnapshot{nodes: map[string]nodeView{}}
}

// clone returns a shallow copy with independent node/edge containers,
// so in-place edits to the copy never mutate a snapshot a reader might
// be holding.
func (s *graphSnapshot) clone() *graphSnapshot {
	next := &graphSnapshot{
		nodes: make(map[string]nodeView, len(s.nodes)),
		edges: make([]edgeView, len(s.edges)),
	}
	for k, v := range s.nodes {
		next.nodes[k] = v
	}
	copy(next.edges, s.edges)
	return next
}

func (s *graphSnapshot) findPin(nodeID, pin string, output bool) (node.Pin, bool) {
	n, ok := s.nodes[nodeID]
	if !ok {
		return node.Pin{}, false
	}
	pins := n.meta.InputPins
	if output {
		pins = n.meta.OutputPins
	}
	for _, p := range pins {
		if p.Name == pin {
			return p, true
		}
		if p.Cardinality == node.CardinalityDynamic && hasPrefix(pin, p.DynamicPrefix+"_") {
			return p, true
		}
	}
	return node.Pin{}, false
}

func hasPrefix(s, prefix string) bool {
	return len(s) > len(prefix) && s[:len(prefix)] == prefix
}

// inputConnectionCount counts existing edges landing on (nodeID, pin),
// used to enforce CardinalityOne before adding another.
func (s *graphSnapshot) inputConnectionCount(nodeID, pin string) int {
	n := 0
	for _, e := range s.edges {
		if e.toNode == nodeID && e.toPin == pin {
			n++
		}
	}
	return n
}

// reachable reports whether to can reach from by following existing
// edges, used to detect whether adding the edge (from -> to) would
// close a cycle (spec.md §4.6: "acyclicity for the touched edges").
func (s *graphSnapshot) reachable(from, to string) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{to: true}
	queue := []string{to}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range s.edges {
			if e.fromNode != cur || visited[e.toNode] {
				continue
			}
			if e.toNode == from {
				return true
			}
			visited[e.toNode] = true
			queue = append(queue, e.toNode)
		}
	}
	return false
}

// bidirectional reports whether nodeID's kind declared itself
// feedback-capable, mirroring the compiler's single-breakable-edge
// exception (internal/pipelinecore/compile.go's internalNode.bidirectional).
func (s *graphSnapshot) bidirectional(nodeID string) bool {
	n, ok := s.nodes[nodeID]
	return ok && n.meta.Bidirectional
}
