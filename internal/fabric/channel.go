// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package fabric implements the bounded typed channels that carry
// packet refs between nodes (spec.md §4.4, C4), and the per-pin
// distributor that fans a broadcast output out to its subscribers
// under either backpressure mode.
package fabric

import (
	"sync"

	"github.com/streamkit-oss/streamkit/internal/packet"
)

// Mode selects a connection's backpressure behavior.
type Mode int

const (
	// Reliable blocks the distributor when the consumer's channel is
	// full, backpressuring the producer through the distributor.
	Reliable Mode = iota
	// BestEffort drops the packet for that consumer only when its
	// channel is full, without blocking the producer.
	BestEffort
)

func (m Mode) String() string {
	if m == BestEffort {
		return "best_effort"
	}
	return "reliable"
}

// Channel is a bounded, typed, multi-producer-single-consumer FIFO of
// packet refs. Capacity is fixed at construction; the engine passes
// its configured default (runtimecfg's DefaultChannelCapacity) for
// every connection, and a pipeline description has no per-connection
// capacity setting.
type Channel struct {
	ch        chan *packet.Ref
	variant   packet.Variant
	closeOnce sync.Once
}

// NewChannel allocates a bounded channel for a connection carrying the
// given variant tag at the given capacity.
func NewChannel(variant packet.Variant, capacity int) *Channel {
	if capacity <= 0 {
		capacity = 1
	}
	return &Channel{ch: make(chan *packet.Ref, capacity), variant: variant}
}

// Variant is the declared packet variant this channel carries; at
// runtime a mismatched send is a programmer error (compile-time typing
// already proved compatibility), so callers asserting variant here are
// a sanity net, not a validation layer.
func (c *Channel) Variant() packet.Variant { return c.variant }

// Recv exposes the receive side for a node task's select loop.
func (c *Channel) Recv() <-chan *packet.Ref { return c.ch }

// Cap reports the channel's configured capacity.
func (c *Channel) Cap() int { return cap(c.ch) }

// Len reports the number of packets currently queued.
func (c *Channel) Len() int { return len(c.ch) }

// Close marks the channel closed so its task's merged-input forwarder
// observes end-of-stream and the node transitions to
// Stopped/upstream_closed, cascading the stop wavefront downstream
// (spec.md §4.5). Idempotent: only the first call actually closes the
// underlying channel.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.ch) })
}
