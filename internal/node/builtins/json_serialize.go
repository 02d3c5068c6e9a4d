// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindJSONSerialize converts any packet into its wire-form JSON
// envelope (spec.md §6): {"type": "<Variant>", ...variantFields}.
// Binary payloads are base64-encoded; raw audio samples are never
// serialized (only emitted to a sink that explicitly requests them,
// which this reference node does not support).
const KindJSONSerialize = "core::json_serialize"

type jsonSerialize struct{ base }

// NewJSONSerializeKind returns the json_serialize builtin kind.
func NewJSONSerializeKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindJSONSerialize,
			Categories: []string{"core", "codec"},
			InputPins:  []node.Pin{inputPin("in", packet.Any)},
			OutputPins: []node.Pin{outputPin("out", packet.Type{Variant: packet.VariantBinary, ContentType: "application/json"})},
		},
		Construct: func(json.RawMessage) (node.Instance, error) {
			return &jsonSerialize{}, nil
		},
	}
}

type wireEnvelope struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	DataBase64   string            `json:"data_base64,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	FullText     string            `json:"full_text,omitempty"`
	Segments     []packet.Segment  `json:"segments,omitempty"`
	CustomTypeID string            `json:"type_id,omitempty"`
	Encoding     string            `json:"encoding,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	TimestampUs  int64             `json:"timestamp_us,omitempty"`
	DurationUs   int64             `json:"duration_us,omitempty"`
	Sequence     uint64            `json:"sequence,omitempty"`
}

func (jsonSerialize) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	env := wireEnvelope{Type: string(p.Variant)}
	switch p.Variant {
	case packet.VariantText:
		if p.Text != nil {
			env.Text = p.Text.Value
		}
	case packet.VariantBinary:
		if p.Binary != nil {
			env.DataBase64 = base64.StdEncoding.EncodeToString(p.Binary.Data)
			env.ContentType = p.Binary.ContentType
		}
	case packet.VariantOpus:
		if p.Opus != nil {
			env.DataBase64 = base64.StdEncoding.EncodeToString(p.Opus.Data)
		}
	case packet.VariantTranscription:
		if p.Transcription != nil {
			env.FullText = p.Transcription.FullText
			env.Segments = p.Transcription.Segments
		}
	case packet.VariantCustom:
		if p.Custom != nil {
			env.CustomTypeID = p.Custom.TypeID
			env.Encoding = string(p.Custom.Encoding)
			env.DataBase64 = base64.StdEncoding.EncodeToString(p.Custom.Value)
			env.Metadata = p.Custom.Metadata
		}
	case packet.VariantRawAudio:
		// Audio samples are never serialized (spec.md §6).
	}
	env.TimestampUs = p.TimestampUs()
	env.Sequence = p.Sequence()

	data, err := json.Marshal(env)
	if err != nil {
		return node.Failed("ProcessError", "json_serialize: "+err.Error())
	}
	return node.Emitted(node.Emission{Pin: "out", Packet: packet.Packet{
		Variant: packet.VariantBinary,
		Binary:  &packet.Binary{Data: data, ContentType: "application/json"},
	}})
}
