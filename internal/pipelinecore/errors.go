// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipelinecore

import "fmt"

// CompileError is a typed compile-time diagnostic with a stable
// location, per spec.md §4.3's totality invariant: every rejection
// names exactly where and why.
type CompileError struct {
	// Path identifies the offending element: a node label, an
	// edge "from.pin -> to.pin", or empty for document-level errors.
	Path   string
	Reason string
}

func (e *CompileError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// UnknownKindError names a node whose kind is not registered.
type UnknownKindError struct {
	Label string
	Kind  string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("%s: unknown kind %q", e.Label, e.Kind)
}

// ParamValidationError carries the field path and reason a node's
// params failed schema validation.
type ParamValidationError struct {
	Label     string
	FieldPath string
	Reason    string
}

func (e *ParamValidationError) Error() string {
	return fmt.Sprintf("%s: param %s: %s", e.Label, e.FieldPath, e.Reason)
}

// CycleError names a non-bidirectional cycle found during topological
// sort.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle among nodes %v", e.Nodes)
}

// TypeMismatchError names the offending edge and both resolved types.
type TypeMismatchError struct {
	FromNode, FromPin string
	ToNode, ToPin     string
	ProducerType      string
	ConsumerType      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s.%s -> %s.%s: producer type %s incompatible with consumer type %s",
		e.FromNode, e.FromPin, e.ToNode, e.ToPin, e.ProducerType, e.ConsumerType)
}

// StructuralError names a violated oneshot-mode structural invariant
// (§4.3 step 7): exactly one source, exactly one http_output.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "oneshot mode: " + e.Reason
}
