// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamkit-oss/streamkit/internal/fabric"
	"github.com/streamkit-oss/streamkit/internal/log"
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
	"github.com/streamkit-oss/streamkit/internal/pipelinecore"
)

// edgeKey identifies one wired connection for Disconnect.
type edgeKey struct {
	fromNode, fromPin string
	toNode, toPin     string
}

// Engine runs a compiled plan as a live graph of per-node tasks. It
// implements C5 (spec.md §4.5) and the mutation primitives C6 (§4.6)
// serializes and exposes to operators.
type Engine struct {
	reg              *node.Registry
	observer         Observer
	defaultCapacity  int
	shutdownDeadline time.Duration

	mu       sync.RWMutex
	tasks    map[string]*task
	edges    map[edgeKey]*fabric.Channel
	outgoing map[string][]*fabric.Channel // nodeID -> channels it feeds

	cancel context.CancelFunc
	// wg tracks every live task goroutine, mirroring the teacher's
	// sessionRegistry bounded-join discipline
	// (internal/domain/session/manager/session_registry.go), generalized
	// from "drain on shutdown" to "drain with a node-task granularity".
	wg      sync.WaitGroup
	closing bool
}

// New creates an engine bound to the given kind registry. defaultCapacity
// is the per-pin channel capacity used when wiring connections;
// shutdownDeadline bounds how long Stop waits for tasks to exit after
// cancelling them.
func New(reg *node.Registry, observer Observer, defaultCapacity int, shutdownDeadline time.Duration) *Engine {
	if defaultCapacity <= 0 {
		defaultCapacity = 64
	}
	if shutdownDeadline <= 0 {
		shutdownDeadline = 10 * time.Second
	}
	return &Engine{
		reg:              reg,
		observer:         observer,
		defaultCapacity:  defaultCapacity,
		shutdownDeadline: shutdownDeadline,
		tasks:            map[string]*task{},
		edges:            map[edgeKey]*fabric.Channel{},
		outgoing:         map[string][]*fabric.Channel{},
	}
}

// Start constructs every node in plan, wires its connections, and
// launches one task goroutine per node in reverse topological order so
// consumers are scheduled before producers emit (spec.md §4.5 "Start").
// Construction failures abort the whole start with no task launched
// (spec.md §7 NodeConstructionError: "session construction fails").
func (e *Engine) Start(ctx context.Context, plan *pipelinecore.Plan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	// Constructors may do I/O (opening files, loading plugin handles),
	// so build every node concurrently and fail fast on the first
	// error, the same errgroup.WithContext pattern the teacher uses to
	// start its own collaborators (internal/daemon/app.go).
	g, _ := errgroup.WithContext(runCtx)
	built := make([]node.Instance, len(plan.Nodes))
	for i, pn := range plan.Nodes {
		i, pn := i, pn
		g.Go(func() error {
			k, err := e.reg.Lookup(pn.Kind)
			if err != nil {
				return &node.NodeConstructionError{NodeID: pn.ID, Kind: pn.Kind, Cause: err}
			}
			inst, err := k.Construct(pn.Params)
			if err != nil {
				return &node.NodeConstructionError{NodeID: pn.ID, Kind: pn.Kind, Cause: err}
			}
			built[i] = inst
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		cancel()
		return err
	}
	for i, pn := range plan.Nodes {
		e.tasks[pn.ID] = newTask(pn.ID, pn.Kind, built[i], e.observer)
	}

	for _, c := range plan.Connections {
		if err := e.wireLocked(c); err != nil {
			cancel()
			return err
		}
	}

	for i := len(plan.Nodes) - 1; i >= 0; i-- {
		t := e.tasks[plan.Nodes[i].ID]
		e.launchLocked(runCtx, t)
	}
	return nil
}

func (e *Engine) constructLocked(id, kind string, params []byte) error {
	k, err := e.reg.Lookup(kind)
	if err != nil {
		return &node.NodeConstructionError{NodeID: id, Kind: kind, Cause: err}
	}
	inst, err := k.Construct(params)
	if err != nil {
		return &node.NodeConstructionError{NodeID: id, Kind: kind, Cause: err}
	}
	e.tasks[id] = newTask(id, kind, inst, e.observer)
	return nil
}

func (e *Engine) wireLocked(c pipelinecore.PlanConnection) error {
	from, ok := e.tasks[c.FromNode]
	if !ok {
		return &NotFoundError{What: "node " + c.FromNode}
	}
	to, ok := e.tasks[c.ToNode]
	if !ok {
		return &NotFoundError{What: "node " + c.ToNode}
	}

	d, ok := from.outputs[c.FromPin]
	if !ok {
		d = fabric.NewDistributor(c.FromNode, c.FromPin)
		from.outputs[c.FromPin] = d
	}

	mode := fabric.Reliable
	if c.Mode == pipelinecore.ModeBestEffort {
		mode = fabric.BestEffort
	}
	ch := fabric.NewChannel(c.Type.Variant, e.defaultCapacity)
	d.Attach(c.ToNode+"/"+c.ToPin, ch, mode)
	to.attachInput(inputLink{pin: c.ToPin, ch: ch})

	key := edgeKey{fromNode: c.FromNode, fromPin: c.FromPin, toNode: c.ToNode, toPin: c.ToPin}
	e.edges[key] = ch
	e.outgoing[c.FromNode] = append(e.outgoing[c.FromNode], ch)
	return nil
}

func (e *Engine) launchLocked(ctx context.Context, t *task) {
	taskCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		err := t.run(taskCtx)
		e.detachInboundFor(t.id)
		e.closeOutputsFor(t.id)
		if err != nil {
			log.WithComponent("engine").Warn().Str("node_id", t.id).Err(err).Msg("node task exited with error")
		}
	}()
}

// detachInboundFor removes nodeID as a registered consumer from every
// distributor it was still wired to and deletes the corresponding
// edges, so a producer's reliable Publish never blocks waiting on a
// consumer that has already stopped on its own (spec.md §9 Open
// Question #2: "close its input side of every inbound distributor
// registration before the producer's next send"). It is called every
// time a task's run() returns, whatever the reason; RemoveNode and
// Disconnect already detach the edges they explicitly remove before
// canceling a task, so by the time a task they tore down actually
// exits there is nothing left here to do for those edges.
func (e *Engine) detachInboundFor(nodeID string) {
	e.mu.Lock()
	type closedEdge struct{ fromNode, fromPin, toNode, toPin string }
	var closed []closedEdge
	for key := range e.edges {
		if key.toNode != nodeID {
			continue
		}
		if fromTask, ok := e.tasks[key.fromNode]; ok {
			if d, ok := fromTask.outputs[key.fromPin]; ok {
				d.Detach(nodeID + "/" + key.toPin)
			}
		}
		closed = append(closed, closedEdge{key.fromNode, key.fromPin, key.toNode, key.toPin})
		delete(e.edges, key)
	}
	observer := e.observer
	e.mu.Unlock()

	if observer == nil {
		return
	}
	for _, c := range closed {
		observer.ConnectionClosed(c.fromNode, c.fromPin, c.toNode, c.toPin)
	}
}

// closeOutputsFor closes every channel the given node feeds, so
// downstream tasks observe the second phase of the stop wavefront:
// "close each node's input after its upstream closes" (spec.md §4.5).
func (e *Engine) closeOutputsFor(nodeID string) {
	e.mu.RLock()
	chans := e.outgoing[nodeID]
	e.mu.RUnlock()
	for _, ch := range chans {
		ch.Close()
	}
}

// Wait blocks until every task has exited, used by a oneshot caller
// to observe natural completion.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// NodeState returns the live state of a node, or false if unknown.
func (e *Engine) NodeState(nodeID string) (State, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[nodeID]
	if !ok {
		return 0, false
	}
	return t.State(), true
}

// Instance returns a node's constructed node.Instance, or false if
// unknown. Intended for callers that need to reach a kind-specific
// side channel beyond the Instance contract (e.g. a media::http_input
// source's Feed method, or a media::http_output sink's Latest/Done),
// the same way an external HTTP surface would hold onto the instance
// it fed a request into.
func (e *Engine) Instance(nodeID string) (node.Instance, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[nodeID]
	if !ok {
		return nil, false
	}
	return t.instance, true
}

// NodeStats returns a snapshot of a node's counters, or false if unknown.
func (e *Engine) NodeStats(nodeID string) (StatsSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tasks[nodeID]
	if !ok {
		return StatsSnapshot{}, false
	}
	return t.stats.Snapshot(), true
}

// Stop broadcasts cancellation to every task and waits up to the
// engine's configured deadline for them to exit (spec.md §4.5
// "Stop"/"Cancellation liveness"). If tasks are still running at the
// deadline, Stop returns an error; it does nothing further to them.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return nil
	}
	e.closing = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	deadline, cancelTimeout := context.WithTimeout(ctx, e.shutdownDeadline)
	defer cancelTimeout()
	select {
	case <-done:
		return nil
	case <-deadline.Done():
		return fmt.Errorf("engine stop: tasks did not drain within %s: %w", e.shutdownDeadline, deadline.Err())
	}
}

// AddNode constructs a new node and launches its task immediately with
// no connections attached (spec.md §4.6 "Add node"). The caller is
// expected to follow with Connect calls.
func (e *Engine) AddNode(ctx context.Context, id, kind string, params []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tasks[id]; exists {
		return &DuplicateNodeError{NodeID: id}
	}
	if err := e.constructLocked(id, kind, params); err != nil {
		delete(e.tasks, id)
		return err
	}
	// A node added live has no connections yet; the caller is expected
	// to follow with Connect calls, so its merge loop must not close
	// itself out just because it currently has zero inputs wired.
	e.tasks[id].expectMoreInputs = true
	e.launchLocked(e.runCtxLocked(ctx), e.tasks[id])
	return nil
}

// runCtxLocked derives a child context of ctx for a newly added task
// and chains its cancel into e.cancel, so Stop cancels live-added
// tasks as well as the ones Start launched.
func (e *Engine) runCtxLocked(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	if prev := e.cancel; prev != nil {
		e.cancel = func() { prev(); cancel() }
	} else {
		e.cancel = cancel
	}
	return runCtx
}

// RemoveNode detaches all of a node's connections and cancels its task
// (spec.md §4.6 "Remove node"). It returns without waiting for the task
// to exit; the exit is observed through Wait.
func (e *Engine) RemoveNode(ctx context.Context, id string) error {
	e.mu.Lock()
	t, ok := e.tasks[id]
	if !ok {
		e.mu.Unlock()
		return &NotFoundError{What: "node " + id}
	}
	for key := range e.edges {
		if key.toNode == id {
			if fromTask, ok := e.tasks[key.fromNode]; ok {
				if d, ok := fromTask.outputs[key.fromPin]; ok {
					d.Detach(id + "/" + key.toPin)
				}
			}
			delete(e.edges, key)
		}
		if key.fromNode == id {
			delete(e.edges, key)
		}
	}
	delete(e.tasks, id)
	delete(e.outgoing, id)
	e.mu.Unlock()

	t.cancel()
	e.closeOutputsFor(id)
	_ = ctx // task exit is observed via Wait/NodeState; ctx reserved for a future bounded per-op timeout
	return nil
}

// Connect adds a downstream endpoint to a producer's distributor and
// wires it into the consumer's merged input (spec.md §4.6 "Connect").
// Callers must have already re-run the relevant §4.3 validation
// subset (type inference, cardinality) before calling.
func (e *Engine) Connect(fromNode, fromPin, toNode, toPin string, typ packet.Type, mode fabric.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	from, ok := e.tasks[fromNode]
	if !ok {
		return &NotFoundError{What: "node " + fromNode}
	}
	to, ok := e.tasks[toNode]
	if !ok {
		return &NotFoundError{What: "node " + toNode}
	}
	key := edgeKey{fromNode: fromNode, fromPin: fromPin, toNode: toNode, toPin: toPin}
	if _, exists := e.edges[key]; exists {
		return &CardinalityViolationError{NodeID: toNode, Pin: toPin}
	}

	d, ok := from.outputs[fromPin]
	if !ok {
		d = fabric.NewDistributor(fromNode, fromPin)
		from.outputs[fromPin] = d
	}
	ch := fabric.NewChannel(typ.Variant, e.defaultCapacity)
	d.Attach(toNode+"/"+toPin, ch, mode)
	to.attachInput(inputLink{pin: toPin, ch: ch})

	e.edges[key] = ch
	e.outgoing[fromNode] = append(e.outgoing[fromNode], ch)
	return nil
}

// Disconnect removes a wired endpoint, dropping any buffered packets
// for that edge (spec.md §4.6 "Disconnect").
func (e *Engine) Disconnect(fromNode, fromPin, toNode, toPin string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := edgeKey{fromNode: fromNode, fromPin: fromPin, toNode: toNode, toPin: toPin}
	ch, ok := e.edges[key]
	if !ok {
		return &NotFoundError{What: fmt.Sprintf("connection %s.%s -> %s.%s", fromNode, fromPin, toNode, toPin)}
	}
	if from, ok := e.tasks[fromNode]; ok {
		if d, ok := from.outputs[fromPin]; ok {
			d.Detach(toNode + "/" + toPin)
		}
	}
	delete(e.edges, key)
	ch.Close()
	return nil
}

// TuneParams calls the node's update_params with a partial object the
// caller has already checked is all-tunable fields (spec.md §4.6
// "Tune params").
func (e *Engine) TuneParams(nodeID string, partial []byte) error {
	e.mu.RLock()
	t, ok := e.tasks[nodeID]
	e.mu.RUnlock()
	if !ok {
		return &NotFoundError{What: "node " + nodeID}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.instance.UpdateParams(partial)
}
