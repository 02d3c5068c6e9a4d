// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipelinecore

import (
	"fmt"
	"sort"

	nodepkg "github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/node/builtins"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// internalEdge is a parsed, not-yet-typed connection between two
// labels (compile step 1/4).
type internalEdge struct {
	fromLabel, fromPin string
	toLabel, toPin     string
	mode               ConnectionMode
}

// internalNode is a parsed, kind-resolved graph node (compile step
// 1/2/3).
type internalNode struct {
	label  string
	kind   string
	params []byte
	meta   nodepkg.Metadata
}

// bidirectional reports whether the node's kind declares
// Metadata.Bidirectional — the class of node a breakable loop-back
// edge may terminate on (spec.md §4.3 step 5).
func (n *internalNode) bidirectional() bool {
	return n.meta.Bidirectional
}

// Compile parses and validates a pipeline document against the given
// node kind registry, producing a ready-to-instantiate plan. All
// errors are detected before Compile returns; a non-nil error means no
// node was constructed and no registry ref was acquired (spec.md §4.3
// failure semantics: partial compilation leaves no side effects).
func Compile(doc *Document, reg *nodepkg.Registry) (*Plan, error) {
	nodes, edges, err := parseGraph(doc)
	if err != nil {
		return nil, err
	}
	if err := resolveKinds(nodes, reg); err != nil {
		return nil, err
	}
	if err := validateParams(nodes); err != nil {
		return nil, err
	}
	edges, err = expandDynamicPins(nodes, edges)
	if err != nil {
		return nil, err
	}
	order, _, err := topoSort(nodes, edges)
	if err != nil {
		return nil, err
	}
	connections, err := inferTypes(nodes, edges)
	if err != nil {
		return nil, err
	}
	if doc.Mode == ModeOneshot {
		if err := checkOneshotStructure(nodes); err != nil {
			return nil, err
		}
	}

	plan := &Plan{
		Name:        doc.Name,
		Description: doc.Description,
		Mode:        doc.Mode,
		Connections: connections,
	}
	byLabel := make(map[string]*internalNode, len(nodes))
	for _, n := range nodes {
		byLabel[n.label] = n
	}
	for _, label := range order {
		n := byLabel[label]
		plan.Nodes = append(plan.Nodes, PlanNode{ID: n.label, Kind: n.kind, Params: n.params})
	}

	// Side effects only after every step above has succeeded.
	for _, n := range nodes {
		reg.Acquire(n.kind)
	}
	return plan, nil
}

// parseGraph implements compile step 1: build the internal
// (label, kind, params, edges_in) representation from either accepted
// YAML shape.
func parseGraph(doc *Document) ([]*internalNode, []internalEdge, error) {
	if len(doc.Steps) > 0 {
		return parseLinear(doc.Steps)
	}
	return parseDAG(doc.Nodes)
}

func parseLinear(steps []Step) ([]*internalNode, []internalEdge, error) {
	nodes := make([]*internalNode, 0, len(steps))
	labels := make([]string, 0, len(steps))
	seen := map[string]int{}
	for i, s := range steps {
		if s.Kind == "" {
			return nil, nil, &CompileError{Path: fmt.Sprintf("steps[%d]", i), Reason: "kind is required"}
		}
		n := seen[s.Kind]
		seen[s.Kind] = n + 1
		label := fmt.Sprintf("%s_%d", s.Kind, n)
		params, err := paramsToJSON(s.Params)
		if err != nil {
			return nil, nil, &CompileError{Path: label, Reason: err.Error()}
		}
		nodes = append(nodes, &internalNode{label: label, kind: s.Kind, params: params})
		labels = append(labels, label)
	}
	var edges []internalEdge
	for i := 1; i < len(labels); i++ {
		edges = append(edges, internalEdge{
			fromLabel: labels[i-1], fromPin: "out",
			toLabel: labels[i], toPin: "in",
			mode: ModeReliable,
		})
	}
	return nodes, edges, nil
}

func parseDAG(specs map[string]NodeSpec) ([]*internalNode, []internalEdge, error) {
	// Deterministic iteration: sort labels so diagnostics and plan
	// ordering are stable across runs.
	labels := make([]string, 0, len(specs))
	for label := range specs {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	nodes := make([]*internalNode, 0, len(labels))
	known := make(map[string]bool, len(labels))
	for _, label := range labels {
		known[label] = true
	}
	var edges []internalEdge
	for _, label := range labels {
		spec := specs[label]
		if spec.Kind == "" {
			return nil, nil, &CompileError{Path: label, Reason: "kind is required"}
		}
		params, err := paramsToJSON(spec.Params)
		if err != nil {
			return nil, nil, &CompileError{Path: label, Reason: err.Error()}
		}
		nodes = append(nodes, &internalNode{label: label, kind: spec.Kind, params: params})

		for i, need := range spec.Needs {
			if !known[need.Node] {
				return nil, nil, &CompileError{Path: label, Reason: fmt.Sprintf("needs unknown node %q", need.Node)}
			}
			toPin := "in"
			if len(spec.Needs) > 1 {
				toPin = fmt.Sprintf("in_%d", i)
			}
			edges = append(edges, internalEdge{
				fromLabel: need.Node, fromPin: "out",
				toLabel: label, toPin: toPin,
				mode: need.Mode,
			})
		}
	}
	return nodes, edges, nil
}

// resolveKinds implements compile step 2.
func resolveKinds(nodes []*internalNode, reg *nodepkg.Registry) error {
	for _, n := range nodes {
		k, err := reg.Lookup(n.kind)
		if err != nil {
			return &UnknownKindError{Label: n.label, Kind: n.kind}
		}
		n.meta = k.Metadata
	}
	return nil
}

// validateParams implements compile step 3.
func validateParams(nodes []*internalNode) error {
	for _, n := range nodes {
		if n.meta.ParamSchema == nil {
			continue
		}
		if err := n.meta.ParamSchema.Validate(n.params); err != nil {
			return &ParamValidationError{Label: n.label, FieldPath: fieldPathFromErr(err), Reason: err.Error()}
		}
	}
	return nil
}

func fieldPathFromErr(err error) string {
	if ve, ok := err.(*nodepkg.ValidationError); ok {
		return ve.FieldPath
	}
	return "<root>"
}

// expandDynamicPins implements compile step 4: for every edge that
// targets (or originates from) a Dynamic{prefix} pin, assign the
// sequential prefix_0, prefix_1, ... name. Edges already using a
// concrete static pin name pass through unchanged.
func expandDynamicPins(nodes []*internalNode, edges []internalEdge) ([]internalEdge, error) {
	byLabel := make(map[string]*internalNode, len(nodes))
	for _, n := range nodes {
		byLabel[n.label] = n
	}
	// Sequential counters, keyed by (label, templateName), assigned in
	// edge order — which for the DAG shape is needs order.
	inCounters := map[string]int{}
	outCounters := map[string]int{}

	out := make([]internalEdge, len(edges))
	for i, e := range edges {
		to := byLabel[e.toLabel]
		if to == nil {
			return nil, &CompileError{Path: e.toLabel, Reason: "unknown target node"}
		}
		toPin := e.toPin
		if pin, ok := findDynamicTemplate(to.meta.InputPins, toPin); ok {
			key := e.toLabel + "/" + pin.DynamicPrefix
			idx := inCounters[key]
			inCounters[key] = idx + 1
			toPin = fmt.Sprintf("%s_%d", pin.DynamicPrefix, idx)
		}

		from := byLabel[e.fromLabel]
		if from == nil {
			return nil, &CompileError{Path: e.fromLabel, Reason: "unknown source node"}
		}
		fromPin := e.fromPin
		if pin, ok := findDynamicTemplate(from.meta.OutputPins, fromPin); ok {
			key := e.fromLabel + "/" + pin.DynamicPrefix
			idx := outCounters[key]
			outCounters[key] = idx + 1
			fromPin = fmt.Sprintf("%s_%d", pin.DynamicPrefix, idx)
		}

		out[i] = internalEdge{fromLabel: e.fromLabel, fromPin: fromPin, toLabel: e.toLabel, toPin: toPin, mode: e.mode}
	}
	return out, nil
}

// findDynamicTemplate reports whether name refers to a Dynamic pin's
// base template name (matched as-is, before sequential expansion).
func findDynamicTemplate(pins []nodepkg.Pin, name string) (nodepkg.Pin, bool) {
	for _, p := range pins {
		if p.Cardinality == nodepkg.CardinalityDynamic && p.DynamicPrefix == name {
			return p, true
		}
	}
	return nodepkg.Pin{}, false
}

// findPin resolves a concrete (possibly already-expanded) pin name
// against a node's declared pins, matching either a static pin or a
// materialized prefix_k member of a Dynamic family.
func findPin(pins []nodepkg.Pin, name string) (nodepkg.Pin, bool) {
	for _, p := range pins {
		if p.Cardinality != nodepkg.CardinalityDynamic && p.Name == name {
			return p, true
		}
	}
	for _, p := range pins {
		if p.Cardinality == nodepkg.CardinalityDynamic && len(name) > len(p.DynamicPrefix)+1 &&
			name[:len(p.DynamicPrefix)+1] == p.DynamicPrefix+"_" {
			return p, true
		}
	}
	return nodepkg.Pin{}, false
}

// topoSort implements compile step 5: Kahn's algorithm, with a single
// breakable edge allowed when it is the only thing preventing an
// otherwise-acyclic order and its target is a bidirectional node.
// Returns the topological node order and the index (into edges) of
// the edge that was treated as breakable, or -1 if none was needed.
func topoSort(nodes []*internalNode, edges []internalEdge) ([]string, int, error) {
	order, ok := kahn(nodes, edges, -1)
	if ok {
		return order, -1, nil
	}
	for i, e := range edges {
		to := findNode(nodes, e.toLabel)
		if to == nil || !to.bidirectional() {
			continue
		}
		if order, ok := kahn(nodes, edges, i); ok {
			return order, i, nil
		}
	}
	remaining := cycleMembers(nodes, edges)
	return nil, -1, &CycleError{Nodes: remaining}
}

func findNode(nodes []*internalNode, label string) *internalNode {
	for _, n := range nodes {
		if n.label == label {
			return n
		}
	}
	return nil
}

// kahn runs Kahn's algorithm over nodes/edges, ignoring the edge at
// skipIdx (if >= 0) as an ordering constraint. Returns the order and
// whether every node was placed (false means a cycle remains).
func kahn(nodes []*internalNode, edges []internalEdge, skipIdx int) ([]string, bool) {
	indegree := make(map[string]int, len(nodes))
	adj := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		indegree[n.label] = 0
	}
	for i, e := range edges {
		if i == skipIdx {
			continue
		}
		indegree[e.toLabel]++
		adj[e.fromLabel] = append(adj[e.fromLabel], e.toLabel)
	}

	var queue []string
	for _, n := range nodes {
		if indegree[n.label] == 0 {
			queue = append(queue, n.label)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		var next []string
		for _, to := range adj[cur] {
			indegree[to]--
			if indegree[to] == 0 {
				next = append(next, to)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}
	return order, len(order) == len(nodes)
}

// cycleMembers returns the labels of nodes with nonzero indegree after
// a full Kahn pass, i.e. the set participating in some cycle.
func cycleMembers(nodes []*internalNode, edges []internalEdge) []string {
	_, _ = kahn(nodes, edges, -1)
	indegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		indegree[n.label] = 0
	}
	for _, e := range edges {
		indegree[e.toLabel]++
	}
	// Re-run reduction to find the stuck residue.
	removed := make(map[string]bool, len(nodes))
	changed := true
	for changed {
		changed = false
		for _, n := range nodes {
			if removed[n.label] || indegree[n.label] != 0 {
				continue
			}
			removed[n.label] = true
			changed = true
			for _, e := range edges {
				if e.fromLabel == n.label {
					indegree[e.toLabel]--
				}
			}
		}
	}
	var remaining []string
	for _, n := range nodes {
		if !removed[n.label] {
			remaining = append(remaining, n.label)
		}
	}
	sort.Strings(remaining)
	return remaining
}

// planGraph adapts the compiled node/edge set to packet.Graph so
// passthrough resolution (C1) can run during type inference.
type planGraph struct {
	byLabel map[string]*internalNode
	edges   []internalEdge
}

func (g *planGraph) OutputType(nodeID, pin string) (packet.Type, bool) {
	n, ok := g.byLabel[nodeID]
	if !ok {
		return packet.Type{}, false
	}
	p, ok := findPin(n.meta.OutputPins, pin)
	if !ok {
		return packet.Type{}, false
	}
	return p.ProducesType, true
}

func (g *planGraph) FirstInputEdge(nodeID string) (fromNode, fromPin string, ok bool) {
	for _, e := range g.edges {
		if e.toLabel == nodeID {
			return e.fromLabel, e.fromPin, true
		}
	}
	return "", "", false
}

// inferTypes implements compile step 6.
func inferTypes(nodes []*internalNode, edges []internalEdge) ([]PlanConnection, error) {
	byLabel := make(map[string]*internalNode, len(nodes))
	for _, n := range nodes {
		byLabel[n.label] = n
	}
	g := &planGraph{byLabel: byLabel, edges: edges}

	conns := make([]PlanConnection, 0, len(edges))
	for _, e := range edges {
		producerType, err := packet.ResolvePassthrough(g, e.fromLabel, e.fromPin)
		if err != nil {
			return nil, &CompileError{Path: fmt.Sprintf("%s.%s -> %s.%s", e.fromLabel, e.fromPin, e.toLabel, e.toPin), Reason: err.Error()}
		}

		to := byLabel[e.toLabel]
		inPin, ok := findPin(to.meta.InputPins, e.toPin)
		if !ok {
			return nil, &CompileError{Path: fmt.Sprintf("%s.%s", e.toLabel, e.toPin), Reason: "no such input pin"}
		}
		if !anyCompatible(producerType, inPin.AcceptsTypes) {
			return nil, &TypeMismatchError{
				FromNode: e.fromLabel, FromPin: e.fromPin,
				ToNode: e.toLabel, ToPin: e.toPin,
				ProducerType: packet.Format(producerType),
				ConsumerType: formatAccepted(inPin.AcceptsTypes),
			}
		}
		conns = append(conns, PlanConnection{
			FromNode: e.fromLabel, FromPin: e.fromPin,
			ToNode: e.toLabel, ToPin: e.toPin,
			Type: producerType, Mode: e.mode,
		})
	}
	return conns, nil
}

func anyCompatible(producer packet.Type, accepted []packet.Type) bool {
	if len(accepted) == 0 {
		return producer.Variant == packet.VariantAny
	}
	for _, c := range accepted {
		if packet.Compatible(producer, c) {
			return true
		}
	}
	return false
}

func formatAccepted(accepted []packet.Type) string {
	if len(accepted) == 0 {
		return packet.Format(packet.Any)
	}
	s := packet.Format(accepted[0])
	for _, t := range accepted[1:] {
		s += "|" + packet.Format(t)
	}
	return s
}

// checkOneshotStructure implements compile step 7.
func checkOneshotStructure(nodes []*internalNode) error {
	var sources, outputs int
	for _, n := range nodes {
		switch n.kind {
		case builtins.KindFileReader, builtins.KindHTTPInput:
			sources++
		case builtins.KindHTTPOutput:
			outputs++
		}
	}
	if sources != 1 {
		return &StructuralError{Reason: fmt.Sprintf("requires exactly one %s or %s node, found %d", builtins.KindFileReader, builtins.KindHTTPInput, sources)}
	}
	if outputs != 1 {
		return &StructuralError{Reason: fmt.Sprintf("requires exactly one %s node, found %d", builtins.KindHTTPOutput, outputs)}
	}
	return nil
}
