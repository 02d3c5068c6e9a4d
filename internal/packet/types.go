// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package packet defines the packet variants that flow through a
// compiled pipeline graph and the type-compatibility rules the
// compiler and control plane use to validate wiring.
package packet

import "fmt"

// Variant is the closed set of packet kinds a connection can carry.
type Variant string

const (
	VariantRawAudio      Variant = "raw_audio"
	VariantOpus          Variant = "opus"
	VariantBinary        Variant = "binary"
	VariantText          Variant = "text"
	VariantTranscription Variant = "transcription"
	VariantCustom        Variant = "custom"

	// VariantAny is a sentinel accepted-type entry, not a real payload variant.
	VariantAny Variant = "any"
	// VariantPassthrough is a sentinel produced-type entry resolved at compile time.
	VariantPassthrough Variant = "passthrough"
)

// SampleFormat names the sample encoding of a raw audio frame.
type SampleFormat string

const (
	SampleFormatF32 SampleFormat = "f32"
)

// Timing carries optional, advisory timing metadata for a packet.
type Timing struct {
	TimestampUs int64
	DurationUs  int64
	Sequence    uint64
}

// RawAudio is interleaved float32 PCM.
type RawAudio struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Format     SampleFormat
	Timing     *Timing
}

// Opus is an encoded Opus frame.
type Opus struct {
	Data   []byte
	Timing *Timing
}

// Binary is an untyped byte blob.
type Binary struct {
	Data        []byte
	ContentType string
	Timing      *Timing
}

// Text is a UTF-8 string payload.
type Text struct {
	Value  string
	Timing *Timing
}

// Segment is one timestamped span of a transcription.
type Segment struct {
	Text         string
	StartTimeMs  int64
	EndTimeMs    int64
	SpeakerLabel string
}

// Transcription is a structured speech-to-text result.
type Transcription struct {
	FullText string
	Segments []Segment
	Timing   *Timing
}

// CustomEncoding is the closed set of encodings a Custom packet's Data
// may use. Only "json" is defined; nothing in the module checks a
// Custom packet's Encoding, so other values are not rejected.
type CustomEncoding string

const (
	EncodingJSON CustomEncoding = "json"
)

// Custom carries a namespaced, versioned application-defined payload.
type Custom struct {
	TypeID   string
	Encoding CustomEncoding
	Value    []byte
	Metadata map[string]string
	Timing   *Timing
}

// Packet is the tagged union of everything a connection can carry.
// Exactly one of the typed fields is populated, matching Variant.
type Packet struct {
	Variant       Variant
	RawAudio      *RawAudio
	Opus          *Opus
	Binary        *Binary
	Text          *Text
	Transcription *Transcription
	Custom        *Custom
}

// timing returns the packet's advisory timing metadata, or nil.
func (p Packet) timing() *Timing {
	switch p.Variant {
	case VariantRawAudio:
		if p.RawAudio != nil {
			return p.RawAudio.Timing
		}
	case VariantOpus:
		if p.Opus != nil {
			return p.Opus.Timing
		}
	case VariantBinary:
		if p.Binary != nil {
			return p.Binary.Timing
		}
	case VariantText:
		if p.Text != nil {
			return p.Text.Timing
		}
	case VariantTranscription:
		if p.Transcription != nil {
			return p.Transcription.Timing
		}
	case VariantCustom:
		if p.Custom != nil {
			return p.Custom.Timing
		}
	}
	return nil
}

// Sequence returns the packet's advisory sequence number, or 0 if absent.
func (p Packet) Sequence() uint64 {
	if t := p.timing(); t != nil {
		return t.Sequence
	}
	return 0
}

// TimestampUs returns the packet's advisory timestamp, or 0 if absent.
func (p Packet) TimestampUs() int64 {
	if t := p.timing(); t != nil {
		return t.TimestampUs
	}
	return 0
}

func (p Packet) String() string {
	return fmt.Sprintf("packet{variant=%s}", p.Variant)
}
