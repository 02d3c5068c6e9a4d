// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package observability

import (
	"sync"
	"sync/atomic"

	"github.com/streamkit-oss/streamkit/internal/log"
	"github.com/streamkit-oss/streamkit/internal/metrics"
)

// subscriberQueueDepth is the per-subscriber buffered channel size,
// the same 64-slot depth the teacher's MemoryBus gives each
// subscriber (internal/pipeline/bus/memory_bus.go).
const subscriberQueueDepth = 64

const dropLogEvery = 100

// Bus is an in-process, session-keyed pub/sub for Events. Unlike the
// teacher's MemoryBus — whose Publish blocks until a context is
// canceled — Publish here never blocks: a full subscriber queue drops
// the event immediately, since this bus sits on a node's hot path and
// spec.md §4.8 requires "telemetry never blocks the hot path". The
// fan-out-to-many-subscribers shape and the throttled drop logging are
// the part actually grounded on MemoryBus.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]chan Event

	dropCount atomic.Uint64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

// Publish fans ev out to every subscriber of ev.SessionID, dropping
// (and counting) on any subscriber whose queue is full.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	chs := append([]chan Event(nil), b.subs[ev.SessionID]...)
	b.mu.RUnlock()

	metrics.IncObservabilityPublish(string(ev.Type))
	for _, ch := range chs {
		select {
		case ch <- ev:
		default:
			metrics.IncObservabilityDrop(ev.SessionID, string(ev.Type))
			count := b.dropCount.Add(1)
			if count%dropLogEvery == 0 {
				log.WithComponent("observability").Warn().
					Str("session_id", ev.SessionID).
					Str("event_type", string(ev.Type)).
					Uint64("dropped", count).
					Msg("observability bus dropped event: subscriber queue full")
			}
		}
	}
}

// Subscribe returns a channel of Events for one session. The caller
// must call Unsubscribe when done to release the channel.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberQueueDepth)

	b.mu.Lock()
	b.subs[sessionID] = append(b.subs[sessionID], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		lst := b.subs[sessionID]
		out := lst[:0]
		for _, c := range lst {
			if c != ch {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			delete(b.subs, sessionID)
		} else {
			b.subs[sessionID] = out
		}
		close(ch)
	}
	return ch, unsubscribe
}
