// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine

import "fmt"

// DuplicateNodeError is returned by AddNode for an id already present.
type DuplicateNodeError struct{ NodeID string }

func (e *DuplicateNodeError) Error() string { return fmt.Sprintf("node %q already exists", e.NodeID) }

// NotFoundError is returned by operations naming a node or edge that
// isn't in the live graph.
type NotFoundError struct{ What string }

func (e *NotFoundError) Error() string { return "not found: " + e.What }

// BusyError is returned by RemoveNode when the node cannot be safely
// torn down (currently unused but reserved for plugin-in-use checks
// surfaced through node construction).
type BusyError struct{ NodeID string }

func (e *BusyError) Error() string { return fmt.Sprintf("node %q is busy", e.NodeID) }

// CardinalityViolationError is returned by Connect when the target pin
// cannot accept another connection.
type CardinalityViolationError struct {
	NodeID, Pin string
}

func (e *CardinalityViolationError) Error() string {
	return fmt.Sprintf("%s.%s: cardinality violation, pin already connected", e.NodeID, e.Pin)
}
