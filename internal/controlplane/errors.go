// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package controlplane

import "fmt"

// RateLimitedError is returned when a session's control-plane op budget
// is exhausted (spec.md §4.6's rate limiting).
type RateLimitedError struct{ Session string }

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("session %q: control-plane operation rate limited", e.Session)
}

// ClosedError is returned by any op submitted after Close.
type ClosedError struct{ Session string }

func (e *ClosedError) Error() string {
	return fmt.Sprintf("session %q: control plane is closed", e.Session)
}

// NotFoundError names a node, pin, or edge the op referenced that
// isn't in the live graph (spec.md §4.6 table, "NotFound").
type NotFoundError struct{ What string }

func (e *NotFoundError) Error() string { return "not found: " + e.What }

// TypeMismatchError is returned by Connect when the resolved producer
// type isn't accepted by the consumer pin.
type TypeMismatchError struct {
	NodeID, Pin, Reason string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s.%s: type mismatch: %s", e.NodeID, e.Pin, e.Reason)
}

// CardinalityViolationError is returned by Connect when the target
// pin already carries its one allowed connection.
type CardinalityViolationError struct{ NodeID, Pin string }

func (e *CardinalityViolationError) Error() string {
	return fmt.Sprintf("%s.%s: cardinality violation, pin already connected", e.NodeID, e.Pin)
}

// CycleError is returned by Connect when the new edge would close a
// cycle through a node that isn't declared bidirectional.
type CycleError struct{ Through string }

func (e *CycleError) Error() string {
	return fmt.Sprintf("connecting would create a cycle through node %q", e.Through)
}
