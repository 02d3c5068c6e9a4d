// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package fabric

import (
	"context"
	"sync"

	"github.com/streamkit-oss/streamkit/internal/log"
	"github.com/streamkit-oss/streamkit/internal/metrics"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// link is one subscribed consumer of a Distributor.
type link struct {
	consumerID string
	pin        string
	ch         *Channel
	mode       Mode
}

// Distributor sits on one broadcast output pin and publishes each
// outbound packet to every subscribed consumer according to that
// consumer's mode (spec.md §4.4). It is the direct generalization of
// the teacher's MemoryBus.Publish fan-out loop
// (internal/pipeline/bus/memory_bus.go) from a single best-effort mode
// to the reliable/best-effort split this domain requires.
type Distributor struct {
	nodeID string
	pin    string

	mu    sync.RWMutex
	links []link
}

// NewDistributor creates a distributor for the named node's output
// pin, used only for logging/metric labels.
func NewDistributor(nodeID, pin string) *Distributor {
	return &Distributor{nodeID: nodeID, pin: pin}
}

// Attach subscribes a consumer's channel under the given mode. Safe to
// call while Publish is in flight (control-plane live rewiring).
func (d *Distributor) Attach(consumerID string, ch *Channel, mode Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links = append(d.links, link{consumerID: consumerID, pin: d.pin, ch: ch, mode: mode})
}

// Detach removes a consumer. Safe to call while Publish is in flight.
func (d *Distributor) Detach(consumerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.links[:0]
	for _, l := range d.links {
		if l.consumerID != consumerID {
			out = append(out, l)
		}
	}
	d.links = out
}

// Publish fans p out to every attached consumer. A reliable consumer
// that is full blocks Publish until it drains or ctx is canceled,
// which is the one backpressure signal a producer observes (the
// slowest reliable consumer); a best-effort consumer that is full
// drops p for itself only and is counted in metrics. Publish takes
// ownership of the caller's reference to p and releases it once every
// consumer has either accepted or dropped its copy.
func (d *Distributor) Publish(ctx context.Context, p *packet.Ref) error {
	d.mu.RLock()
	links := append([]link(nil), d.links...)
	d.mu.RUnlock()

	defer p.Release()

	for _, l := range links {
		copyRef := p.Retain()
		switch l.mode {
		case Reliable:
			select {
			case l.ch.ch <- copyRef:
			case <-ctx.Done():
				copyRef.Release()
				return ctx.Err()
			}
		case BestEffort:
			select {
			case l.ch.ch <- copyRef:
			default:
				copyRef.Release()
				metrics.IncFabricDrop(d.nodeID, d.pin)
				log.WithComponent("fabric").Debug().
					Str("node_id", d.nodeID).
					Str("pin", d.pin).
					Str("consumer_id", l.consumerID).
					Msg("best-effort consumer full, packet dropped")
			}
		}
	}
	return nil
}

// Len reports the number of attached consumers.
func (d *Distributor) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.links)
}
