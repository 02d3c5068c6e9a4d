// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package node declares the capability contract every processing unit
// exposes and the registry that maps a kind identifier to a
// constructor. Builtins live in node/builtins; plugin-provided kinds
// are registered dynamically by internal/pluginhost.
package node

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindPattern is the namespaced kind identifier grammar from the
// external interface contract: lowercase segments joined by "::",
// with at least one separator (e.g. "audio::opus::decoder").
var KindPattern = regexp.MustCompile(`^[a-z0-9]+(::[a-z0-9_]+)+$`)

// Cardinality describes how many connections a pin may carry.
type Cardinality int

const (
	// CardinalityOne means exactly one connection.
	CardinalityOne Cardinality = iota
	// CardinalityBroadcast means an output may fan out to many consumers.
	CardinalityBroadcast
	// CardinalityDynamic means pins of the form prefix_0, prefix_1, ...
	// are materialized at wiring time.
	CardinalityDynamic
)

// Pin is a named input or output endpoint on a node kind.
type Pin struct {
	Name        string
	Cardinality Cardinality
	// DynamicPrefix is set when Cardinality == CardinalityDynamic; the
	// live pin family is prefix_0, prefix_1, ...
	DynamicPrefix string

	// AcceptsTypes lists the types an input pin accepts. Empty for outputs.
	AcceptsTypes []packet.Type
	// ProducesType is the type an output pin declares. Zero value for inputs.
	ProducesType packet.Type
	IsOutput     bool
}

// Metadata is the fixed-size descriptor every node kind publishes.
type Metadata struct {
	Kind       string
	Categories []string
	InputPins  []Pin
	OutputPins []Pin

	// Bidirectional marks a kind that, by construction, participates in
	// feedback topologies (e.g. an echo-reference or control-loop node).
	// The compiler's topological sort may treat a single incoming edge
	// into such a node as breakable to permit one loop-back; ordinary
	// processing nodes with both input and output pins are NOT
	// bidirectional in this sense, and a cycle through them is rejected.
	Bidirectional bool

	ParamSchema *ParamSchema
}

// Result is the outcome of a single process() call.
type Result struct {
	Emissions []Emission
	Dropped   bool
	Failure   *Failure
}

// Emission is one (pin, packet) pair to publish downstream.
type Emission struct {
	Pin    string
	Packet packet.Packet
}

// Failure carries a machine kind plus human message for a failed process() call.
type Failure struct {
	Kind    string
	Message string
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	return f.Kind + ": " + f.Message
}

// Emitted builds a successful result with zero or more emissions.
func Emitted(emissions ...Emission) Result {
	return Result{Emissions: emissions}
}

// Dropped builds a result that consumes the input packet without emitting.
func Dropped() Result {
	return Result{Dropped: true}
}

// Failed builds a failed result.
func Failed(kind, message string) Result {
	return Result{Failure: &Failure{Kind: kind, Message: message}}
}

// Instance is the contract a constructed node exposes to the engine.
// Implementations must be safe to call from a single goroutine at a
// time; the engine never calls Process concurrently with itself for
// the same instance, but Shutdown must tolerate being the last call
// after any number of prior Process/UpdateParams calls.
type Instance interface {
	// Process handles one inbound (pin, packet) pair on the hot path.
	Process(ctx context.Context, inputPin string, p packet.Packet) Result

	// UpdateParams applies a partial params object. Called only for
	// fields marked tunable in the kind's ParamSchema; implementations
	// must still re-validate, since the caller may be wrong about which
	// fields it thinks are tunable.
	UpdateParams(partial json.RawMessage) error

	// Shutdown is called exactly once when the engine tears the node
	// down. It must not emit packets.
	Shutdown(ctx context.Context)
}

// Kind is what the registry stores per kind identifier: the static
// metadata plus a constructor.
type Kind struct {
	Metadata  Metadata
	Construct func(params json.RawMessage) (Instance, error)
}

// Source is additionally implemented by node kinds with no input pins
// (file_reader, http_input, and similar). The engine calls Run once,
// from the node's task goroutine, instead of dispatching Process
// calls; Run returning nil is natural completion (EOF) and drives the
// oneshot "source closes" transition in §4.5.
type Source interface {
	Instance
	Run(ctx context.Context, emit func(pin string, p packet.Packet) error) error
}
