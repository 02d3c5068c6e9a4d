// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package packet

// Type is a runtime descriptor for the type a pin produces or accepts:
// a variant tag plus optional structural fields. Two sentinel variants
// exist: Any (accepts everything) and Passthrough (resolved at compile
// time to "same as this node's input").
type Type struct {
	Variant Variant

	// RawAudio structural fields. A zero value is a wildcard field (any).
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat

	// Custom structural field.
	CustomTypeID string

	// Binary structural field.
	ContentType string
}

// Any is the sentinel accepted-type used on generic sinks.
var Any = Type{Variant: VariantAny}

// Passthrough is the sentinel produced-type resolved during compilation.
var Passthrough = Type{Variant: VariantPassthrough}

func (t Type) String() string {
	return string(t.Variant)
}

// wildcardInt reports whether a structural int field is a wildcard (0 means "any").
func wildcardInt(v int) bool { return v == 0 }
