// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package controlplane implements C6: the serialized mutation surface
// against a running dynamic session (spec.md §4.6). One goroutine
// (Run) owns the live node/edge bookkeeping and is the only writer of
// the engine's graph; callers submit ops over channels and block for a
// reply, the same single-writer-lease shape as the teacher's
// orchestrator event loop (internal/pipeline/worker/orchestrator.go).
// Readers needing a point-in-time view of the graph use Snapshot,
// backed by a copy-on-write atomic.Pointer the teacher's own
// config.ConfigHolder (internal/config/reload.go) is grounded on.
package controlplane

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/streamkit-oss/streamkit/internal/engine"
	"github.com/streamkit-oss/streamkit/internal/fabric"
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/pipelinecore"
)

// EventPublisher is the narrow slice of the observability bus (C8)
// the control plane needs: one notification per successfully applied
// mutation (spec.md §4.8's Node/ConnectionAdded/Removed,
// NodeParamsChanged). Defined here, not imported from
// internal/observability, so this package stays the single source of
// truth for control-plane semantics and observability stays a
// consumer of it, not a dependency of it.
type EventPublisher interface {
	NodeAdded(sessionID, nodeID, kind string)
	NodeRemoved(sessionID, nodeID string)
	ConnectionAdded(sessionID, fromNode, fromPin, toNode, toPin string)
	ConnectionRemoved(sessionID, fromNode, fromPin, toNode, toPin string)
	NodeParamsChanged(sessionID, nodeID string, params json.RawMessage)
}

// command is one submitted op plus its reply channel; the Run loop
// processes exactly one at a time, so the engine never observes a
// half-applied mutation (spec.md §4.6 "atomic" requirement).
type command struct {
	apply func(next *graphSnapshot) error
	reply chan error
}

// ControlPlane serializes mutations for one session's engine.
type ControlPlane struct {
	sessionID string
	eng       *engine.Engine
	reg       *node.Registry
	publisher EventPublisher
	limiter   *rate.Limiter

	cmdCh chan command

	snapshot atomic.Pointer[graphSnapshot]

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a control plane for one session's engine. limiter caps
// the rate of accepted mutation ops; a nil limiter means unlimited.
func New(sessionID string, eng *engine.Engine, reg *node.Registry, publisher EventPublisher, limiter *rate.Limiter) *ControlPlane {
	cp := &ControlPlane{
		sessionID: sessionID,
		eng:       eng,
		reg:       reg,
		publisher: publisher,
		limiter:   limiter,
		cmdCh:     make(chan command),
		closed:    make(chan struct{}),
	}
	cp.snapshot.Store(newGraphSnapshot())
	return cp
}

// Run drains submitted ops one at a time until ctx is canceled or
// Close is called. It is meant to run in its own goroutine for the
// lifetime of the session.
func (cp *ControlPlane) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-cp.cmdCh:
			cur := cp.snapshot.Load()
			next := cur.clone()
			err := cmd.apply(next)
			if err == nil {
				cp.snapshot.Store(next)
			}
			cmd.reply <- err
		case <-ctx.Done():
			return
		case <-cp.closed:
			return
		}
	}
}

// Close stops accepting new ops; in-flight submissions already
// blocked in submit will observe ClosedError once Run exits.
func (cp *ControlPlane) Close() {
	cp.closeOnce.Do(func() { close(cp.closed) })
}

// LoadPlan seeds the control plane's bookkeeping from a plan the
// engine has already Start()ed, so subsequent live mutations validate
// against the full graph rather than just nodes added after this
// call. Must be called before Run begins draining ops.
func (cp *ControlPlane) LoadPlan(plan *pipelinecore.Plan) error {
	next := newGraphSnapshot()
	for _, pn := range plan.Nodes {
		k, err := cp.reg.Lookup(pn.Kind)
		if err != nil {
			return err
		}
		next.nodes[pn.ID] = nodeView{id: pn.ID, kind: pn.Kind, meta: k.Metadata}
	}
	for _, c := range plan.Connections {
		next.edges = append(next.edges, edgeView{fromNode: c.FromNode, fromPin: c.FromPin, toNode: c.ToNode, toPin: c.ToPin, typ: c.Type, mode: c.Mode})
	}
	cp.snapshot.Store(next)
	return nil
}

// Snapshot returns the current live graph view for read-only
// inspection (e.g. serving a UI's graph query); it never blocks on the
// mutation loop.
func (cp *ControlPlane) Snapshot() *graphSnapshot {
	return cp.snapshot.Load()
}

func (cp *ControlPlane) submit(ctx context.Context, apply func(next *graphSnapshot) error) error {
	if cp.limiter != nil && !cp.limiter.Allow() {
		return &RateLimitedError{Session: cp.sessionID}
	}
	reply := make(chan error, 1)
	select {
	case cp.cmdCh <- command{apply: apply, reply: reply}:
	case <-cp.closed:
		return &ClosedError{Session: cp.sessionID}
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddNode constructs kind under id and starts its task (spec.md §4.6
// "Add node"). params are validated against the kind's schema before
// the engine constructs anything.
func (cp *ControlPlane) AddNode(ctx context.Context, id, kind string, params json.RawMessage) error {
	return cp.submit(ctx, func(next *graphSnapshot) error {
		if _, exists := next.nodes[id]; exists {
			return &engine.DuplicateNodeError{NodeID: id}
		}
		k, err := cp.reg.Lookup(kind)
		if err != nil {
			return err
		}
		if err := k.Metadata.ParamSchema.Validate(params); err != nil {
			return err
		}
		if err := cp.eng.AddNode(ctx, id, kind, params); err != nil {
			return err
		}
		next.nodes[id] = nodeView{id: id, kind: kind, meta: k.Metadata}
		if cp.publisher != nil {
			cp.publisher.NodeAdded(cp.sessionID, id, kind)
		}
		return nil
	})
}

// RemoveNode detaches and tears down a node (spec.md §4.6 "Remove node").
func (cp *ControlPlane) RemoveNode(ctx context.Context, id string) error {
	return cp.submit(ctx, func(next *graphSnapshot) error {
		if _, ok := next.nodes[id]; !ok {
			return &NotFoundError{What: "node " + id}
		}
		if err := cp.eng.RemoveNode(ctx, id); err != nil {
			return err
		}
		delete(next.nodes, id)
		kept := next.edges[:0]
		for _, e := range next.edges {
			if e.fromNode == id || e.toNode == id {
				continue
			}
			kept = append(kept, e)
		}
		next.edges = kept
		if cp.publisher != nil {
			cp.publisher.NodeRemoved(cp.sessionID, id)
		}
		return nil
	})
}

// Connect wires a new edge after re-validating type compatibility,
// cardinality, and acyclicity for the two touched endpoints (spec.md
// §4.6 "Connect").
func (cp *ControlPlane) Connect(ctx context.Context, fromNode, fromPin, toNode, toPin string, mode fabric.Mode) error {
	return cp.submit(ctx, func(next *graphSnapshot) error {
		typ, err := next.validateConnect(fromNode, fromPin, toNode, toPin)
		if err != nil {
			return err
		}
		if err := cp.eng.Connect(fromNode, fromPin, toNode, toPin, typ, mode); err != nil {
			return err
		}
		next.edges = append(next.edges, edgeView{fromNode: fromNode, fromPin: fromPin, toNode: toNode, toPin: toPin, typ: typ, mode: connectionModeOf(mode)})
		if cp.publisher != nil {
			cp.publisher.ConnectionAdded(cp.sessionID, fromNode, fromPin, toNode, toPin)
		}
		return nil
	})
}

// Disconnect removes a wired edge (spec.md §4.6 "Disconnect").
func (cp *ControlPlane) Disconnect(ctx context.Context, fromNode, fromPin, toNode, toPin string) error {
	return cp.submit(ctx, func(next *graphSnapshot) error {
		found := false
		kept := next.edges[:0]
		for _, e := range next.edges {
			if e.fromNode == fromNode && e.fromPin == fromPin && e.toNode == toNode && e.toPin == toPin {
				found = true
				continue
			}
			kept = append(kept, e)
		}
		if !found {
			return &NotFoundError{What: "connection " + fromNode + "." + fromPin + " -> " + toNode + "." + toPin}
		}
		if err := cp.eng.Disconnect(fromNode, fromPin, toNode, toPin); err != nil {
			return err
		}
		next.edges = kept
		if cp.publisher != nil {
			cp.publisher.ConnectionRemoved(cp.sessionID, fromNode, fromPin, toNode, toPin)
		}
		return nil
	})
}

// TuneParams applies a partial params object, rejecting any field that
// isn't declared tunable before the node ever sees it (spec.md §4.6
// "Tune params").
func (cp *ControlPlane) TuneParams(ctx context.Context, nodeID string, partial json.RawMessage) error {
	return cp.submit(ctx, func(next *graphSnapshot) error {
		n, ok := next.nodes[nodeID]
		if !ok {
			return &NotFoundError{What: "node " + nodeID}
		}
		if err := n.meta.ParamSchema.ValidateTunablePartial(partial); err != nil {
			return err
		}
		if err := cp.eng.TuneParams(nodeID, partial); err != nil {
			return err
		}
		if cp.publisher != nil {
			cp.publisher.NodeParamsChanged(cp.sessionID, nodeID, partial)
		}
		return nil
	})
}

func connectionModeOf(m fabric.Mode) pipelinecore.ConnectionMode {
	if m == fabric.BestEffort {
		return pipelinecore.ModeBestEffort
	}
	return pipelinecore.ModeReliable
}
