// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamkit-oss/streamkit/internal/fabric"
	"github.com/streamkit-oss/streamkit/internal/log"
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// Observer is the narrow view a task needs of the observability bus
// (C8), so engine does not import it directly — the same
// small-consumer-defined-interface discipline the teacher uses for
// its own ports (internal/domain/session/ports).
type Observer interface {
	NodeStateChanged(nodeID string, state State, reason StopReason)
	NodeStatsUpdated(nodeID string, stats StatsSnapshot)

	// ConnectionClosed notifies that the engine proactively detached
	// one inbound connection into toNode because toNode just stopped
	// on its own (not via an explicit control-plane Disconnect) —
	// spec.md §9 Open Question #2's decided policy, so a producer's
	// reliable Publish never blocks on a consumer that will never read
	// again.
	ConnectionClosed(fromNode, fromPin, toNode, toPin string)
}

type pinPacket struct {
	pin string
	ref *packet.Ref
}

// inputLink is one bound input channel and the pin name it feeds.
type inputLink struct {
	pin string
	ch  *fabric.Channel
}

// task is one node's scheduled unit: it owns the node Instance, its
// bound input channels, and a Distributor per output pin.
type task struct {
	id       string
	kind     string
	instance node.Instance

	outputs map[string]*fabric.Distributor

	// expectMoreInputs marks a task whose final set of input
	// connections isn't known up front — one launched via AddNode,
	// where the Connect calls that actually wire it arrive after the
	// task is already running. Such a task's merge loop never
	// auto-closes just because every currently attached input has
	// drained (e.g. a Disconnect, or an upstream node finishing); only
	// an explicit RemoveNode or engine Stop ends it. A statically
	// compiled node — every connection wired by Start before launch —
	// keeps the original drain-to-completion behavior.
	expectMoreInputs bool

	// inputMu guards inputs and the live merge-loop state below; kept
	// separate from mu (which serializes Instance calls) since input
	// wiring is a distinct concern from Process/UpdateParams/Shutdown.
	inputMu      sync.Mutex
	inputs       []inputLink
	mergeOut     chan pinPacket
	mergeCtx     context.Context
	mergePending int
	mergeDone    bool

	stats    Stats
	state    atomic.Int32 // State, stored atomically for lock-free reads
	observer Observer

	// cancel stops this task alone, independent of the engine-wide
	// context, so RemoveNode can tear down a single live node without
	// affecting its siblings (spec.md §4.6 "Remove node").
	cancel context.CancelFunc

	mu sync.Mutex // serializes Process/UpdateParams/Shutdown calls per spec.md's Instance contract
}

func newTask(id, kind string, instance node.Instance, observer Observer) *task {
	t := &task{id: id, kind: kind, instance: instance, outputs: map[string]*fabric.Distributor{}, observer: observer}
	t.setState(Initializing, "")
	return t
}

// markStarted records the task's first transition into Running, so
// Stats.Snapshot can report wall-clock duration (spec.md §4.8's
// NodeStatsUpdated "wall-clock duration" field).
func (t *task) markStarted() {
	t.stats.startedAt = time.Now()
}

func (t *task) setState(s State, reason StopReason) {
	t.state.Store(int32(s))
	if t.observer != nil {
		t.observer.NodeStateChanged(t.id, s, reason)
	}
}

func (t *task) State() State {
	return State(t.state.Load())
}

// attachInput wires one more input channel into the task's fan-in
// (spec.md §4.6 "Connect"). If the merge loop is already running, a
// forwarder goroutine is spawned for the link immediately; if run()
// hasn't started the loop yet, the link is simply recorded and picked
// up by startMergedInput. This lets Connect attach a pin either before
// or after the task begins running — an AddNode'd node with nothing
// wired yet must not be mistaken for one that will never receive
// anything.
func (t *task) attachInput(link inputLink) {
	t.inputMu.Lock()
	t.inputs = append(t.inputs, link)
	if t.mergeOut == nil || t.mergeDone {
		t.inputMu.Unlock()
		return
	}
	t.mergePending++
	ctx := t.mergeCtx
	t.inputMu.Unlock()
	go t.forwardInput(ctx, link)
}

// forwardInput drains one input channel into the task's shared merge
// channel until the channel closes or ctx is canceled, then reports
// its own completion.
func (t *task) forwardInput(ctx context.Context, link inputLink) {
	defer t.finishInput()
	for {
		select {
		case ref, ok := <-link.ch.Recv():
			if !ok {
				return
			}
			select {
			case t.mergeOut <- pinPacket{pin: link.pin, ref: ref}:
			case <-ctx.Done():
				ref.Release()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// finishInput is forwardInput's completion callback. The merge
// channel only auto-closes on drain for a statically wired task
// (expectMoreInputs == false); a task still expecting future Connect
// calls stays open with nothing to read until one arrives.
func (t *task) finishInput() {
	t.inputMu.Lock()
	defer t.inputMu.Unlock()
	t.mergePending--
	if t.mergePending == 0 && !t.mergeDone && !t.expectMoreInputs {
		t.mergeDone = true
		close(t.mergeOut)
	}
}

// startMergedInput begins the task's fan-in loop over whatever inputs
// are already attached (spec.md §4.5 ordering guarantees: per-pin
// FIFO, cross-pin interleaving unspecified), then leaves the merge
// channel open for attachInput to feed as later Connect calls arrive.
func (t *task) startMergedInput(ctx context.Context) <-chan pinPacket {
	t.inputMu.Lock()
	out := make(chan pinPacket)
	t.mergeOut = out
	t.mergeCtx = ctx
	links := append([]inputLink(nil), t.inputs...)
	t.mergePending = len(links)
	closeNow := len(links) == 0 && !t.expectMoreInputs
	if closeNow {
		t.mergeDone = true
	}
	t.inputMu.Unlock()

	if closeNow {
		close(out)
		return out
	}
	for _, link := range links {
		go t.forwardInput(ctx, link)
	}
	return out
}

// emit forwards one node emission to its pin's distributor, if any
// consumer is attached; an emission on a pin with no attached consumer
// is simply released (no one to deliver to).
func (t *task) emit(ctx context.Context, pin string, p packet.Packet) {
	d, ok := t.outputs[pin]
	ref := packet.NewRef(p, nil)
	if !ok {
		ref.Release()
		return
	}
	if err := d.Publish(ctx, ref); err != nil {
		// Cancellation during shutdown; not user-visible (spec.md §7
		// BackpressureCancelled).
		log.WithComponent("engine").Debug().Str("node_id", t.id).Str("pin", pin).Err(err).Msg("emit canceled")
	}
}

// run is the node task loop (spec.md §4.5's "informal" description):
// wait for the next (pin, packet), call process, forward emissions,
// update stats, transition on failure, shut down once on exit.
func (t *task) run(ctx context.Context) error {
	defer func() {
		shutdownCtx := context.Background()
		t.mu.Lock()
		t.instance.Shutdown(shutdownCtx)
		t.mu.Unlock()
	}()

	if src, ok := t.instance.(node.Source); ok {
		t.markStarted()
		t.setState(Running, "")
		err := src.Run(ctx, func(pin string, p packet.Packet) error {
			t.stats.Sent.Add(1)
			t.emit(ctx, pin, p)
			return ctx.Err()
		})
		if err != nil && ctx.Err() == nil {
			t.stats.Errored.Add(1)
			t.setState(Failed, ReasonProcessError)
			return err
		}
		t.setState(Completed, ReasonSourceDone)
		return nil
	}

	t.markStarted()
	t.setState(Running, "")
	merged := t.startMergedInput(ctx)
	for {
		select {
		case item, ok := <-merged:
			if !ok {
				t.setState(Stopped, ReasonUpstreamClosed)
				return nil
			}
			t.stats.Received.Add(1)
			p := item.ref.Packet()
			item.ref.Release()

			t.mu.Lock()
			result := t.instance.Process(ctx, item.pin, p)
			t.mu.Unlock()

			switch {
			case result.Failure != nil:
				t.stats.Errored.Add(1)
				t.setState(Failed, ReasonProcessError)
				return result.Failure
			case result.Dropped:
				t.stats.Discarded.Add(1)
			default:
				for _, em := range result.Emissions {
					t.stats.Sent.Add(1)
					t.emit(ctx, em.Pin, em.Packet)
				}
			}
		case <-ctx.Done():
			t.setState(Stopped, ReasonShutdown)
			return nil
		}
	}
}
