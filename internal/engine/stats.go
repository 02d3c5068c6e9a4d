// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import (
	"sync/atomic"
	"time"
)

// Stats are a node's running counters, per spec.md §4.8's
// NodeStatsUpdated payload. Safe for concurrent read while the task
// goroutine updates it; readers get a point-in-time snapshot.
type Stats struct {
	Received  atomic.Uint64
	Sent      atomic.Uint64
	Discarded atomic.Uint64
	Errored   atomic.Uint64

	startedAt time.Time
}

// StatsSnapshot is a plain-value copy suitable for publishing on the
// observability bus.
type StatsSnapshot struct {
	Received    uint64
	Sent        uint64
	Discarded   uint64
	Errored     uint64
	WallClockMs int64
}

// Snapshot takes a point-in-time copy of s.
func (s *Stats) Snapshot() StatsSnapshot {
	var wallClockMs int64
	if !s.startedAt.IsZero() {
		wallClockMs = time.Since(s.startedAt).Milliseconds()
	}
	return StatsSnapshot{
		Received:    s.Received.Load(),
		Sent:        s.Sent.Load(),
		Discarded:   s.Discarded.Load(),
		Errored:     s.Errored.Load(),
		WallClockMs: wallClockMs,
	}
}
