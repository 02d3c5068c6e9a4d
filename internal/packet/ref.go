// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package packet

import "sync/atomic"

// Ref is a shared-ownership handle to a Packet. One producer creates a
// Ref; the channel fabric's distributor hands the same Ref to every
// fanned-out consumer without copying the payload. Consumers treat the
// wrapped Packet as immutable.
type Ref struct {
	pkt      Packet
	refcount atomic.Int64
	release  func(Packet)
}

// NewRef wraps a packet for zero-copy fan-out. release, if non-nil, is
// called exactly once after the last consumer drops its reference; it
// exists so node implementations that hold pooled buffers can return
// them, and is optional for ordinary heap-backed payloads.
func NewRef(p Packet, release func(Packet)) *Ref {
	r := &Ref{pkt: p, release: release}
	r.refcount.Store(1)
	return r
}

// Packet returns the wrapped, read-only packet value.
func (r *Ref) Packet() Packet {
	return r.pkt
}

// Retain increments the reference count; call once per additional
// consumer a distributor fans this Ref out to.
func (r *Ref) Retain() *Ref {
	r.refcount.Add(1)
	return r
}

// Release decrements the reference count and invokes the release
// callback once it reaches zero.
func (r *Ref) Release() {
	if r.refcount.Add(-1) == 0 && r.release != nil {
		r.release(r.pkt)
	}
}
