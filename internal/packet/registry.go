// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package packet

import "fmt"

// Rule is the compatibility test a variant's structural fields are
// checked under.
type Rule int

const (
	// RuleExact requires every structural field to match exactly.
	RuleExact Rule = iota
	// RuleWildcardFields allows a zero-valued field on either side to
	// match anything (e.g. sample_rate: 0 means "any sample rate").
	RuleWildcardFields
	// RuleUniversal always matches (used only for Any).
	RuleUniversal
)

var variantRules = map[Variant]Rule{
	VariantRawAudio:      RuleWildcardFields,
	VariantOpus:          RuleExact,
	VariantBinary:        RuleWildcardFields,
	VariantText:          RuleExact,
	VariantTranscription: RuleExact,
	VariantCustom:        RuleWildcardFields,
}

var variantLabels = map[Variant]string{
	VariantRawAudio:      "Raw Audio",
	VariantOpus:          "Opus",
	VariantBinary:        "Binary",
	VariantText:          "Text",
	VariantTranscription: "Transcription",
	VariantCustom:        "Custom",
	VariantAny:           "Any",
	VariantPassthrough:   "Passthrough",
}

var variantColors = map[Variant]string{
	VariantRawAudio:      "#3ba0ff",
	VariantOpus:          "#6c5ce7",
	VariantBinary:        "#95a5a6",
	VariantText:          "#2ecc71",
	VariantTranscription: "#f39c12",
	VariantCustom:        "#e84393",
	VariantAny:           "#7f8c8d",
	VariantPassthrough:   "#636e72",
}

// Format returns a human label for a type. Purely advisory (UI use).
func Format(t Type) string {
	if label, ok := variantLabels[t.Variant]; ok {
		return label
	}
	return string(t.Variant)
}

// Color returns a UI tint for a type. Purely advisory.
func Color(t Type) string {
	if c, ok := variantColors[t.Variant]; ok {
		return c
	}
	return "#000000"
}

// Compatible reports whether a producer's output type may feed a
// consumer's accepted type. Any matches everything; Passthrough on the
// producer side always matches (resolution is deferred to the
// compiler, which must call ResolvePassthrough before wiring runtime
// channels). Otherwise the variant tags must match and the variant's
// rule decides the structural test.
func Compatible(producer, consumer Type) bool {
	if consumer.Variant == VariantAny {
		return true
	}
	if producer.Variant == VariantPassthrough {
		return true
	}
	if producer.Variant != consumer.Variant {
		return false
	}
	switch variantRules[producer.Variant] {
	case RuleUniversal:
		return true
	case RuleExact:
		return producer == consumer
	case RuleWildcardFields:
		return fieldsCompatible(producer, consumer)
	default:
		return producer == consumer
	}
}

func fieldsCompatible(a, b Type) bool {
	if !wildcardInt(a.SampleRate) && !wildcardInt(b.SampleRate) && a.SampleRate != b.SampleRate {
		return false
	}
	if !wildcardInt(a.Channels) && !wildcardInt(b.Channels) && a.Channels != b.Channels {
		return false
	}
	if a.SampleFormat != "" && b.SampleFormat != "" && a.SampleFormat != b.SampleFormat {
		return false
	}
	if a.CustomTypeID != "" && b.CustomTypeID != "" && a.CustomTypeID != b.CustomTypeID {
		return false
	}
	if a.ContentType != "" && b.ContentType != "" && a.ContentType != b.ContentType {
		return false
	}
	return true
}

// Graph is the minimal view of a compiled node graph ResolvePassthrough
// needs: the declared output type of a pin, and which upstream (node,
// pin) feeds a node's first input pin.
type Graph interface {
	OutputType(nodeID, pin string) (Type, bool)
	FirstInputEdge(nodeID string) (fromNode, fromPin string, ok bool)
}

// ErrNoUpstreamEdge is returned when Passthrough resolution reaches a
// node with no incoming edge on its first input pin.
type ErrNoUpstreamEdge struct {
	NodeID string
}

func (e *ErrNoUpstreamEdge) Error() string {
	return fmt.Sprintf("cannot resolve passthrough output of node %q: no incoming edge on its first input pin", e.NodeID)
}

// ResolvePassthrough walks upstream from (nodeID, pin) through any chain
// of Passthrough outputs and returns the first concrete type found.
func ResolvePassthrough(g Graph, nodeID, pin string) (Type, error) {
	return resolvePassthrough(g, nodeID, pin, make(map[string]bool))
}

func resolvePassthrough(g Graph, nodeID, pin string, seen map[string]bool) (Type, error) {
	key := nodeID + "/" + pin
	if seen[key] {
		return Type{}, fmt.Errorf("passthrough resolution cycle at node %q pin %q", nodeID, pin)
	}
	seen[key] = true

	declared, ok := g.OutputType(nodeID, pin)
	if !ok {
		return Type{}, fmt.Errorf("unknown output pin %q on node %q", pin, nodeID)
	}
	if declared.Variant != VariantPassthrough {
		return declared, nil
	}
	fromNode, fromPin, ok := g.FirstInputEdge(nodeID)
	if !ok {
		return Type{}, &ErrNoUpstreamEdge{NodeID: nodeID}
	}
	return resolvePassthrough(g, fromNode, fromPin, seen)
}
