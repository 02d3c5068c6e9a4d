// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"context"
	"encoding/json"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindOggDemuxer splits an Ogg-contained byte stream into Opus frames.
// Real container demuxing lives outside this module (spec.md §1); this
// is a reference shape that treats each fixed-size input chunk as one
// frame, which is sufficient to exercise the node contract and the
// compiler's type inference end to end.
const KindOggDemuxer = "audio::ogg::demuxer"

type oggDemuxer struct{ base }

// NewOggDemuxerKind returns the ogg_demuxer builtin kind.
func NewOggDemuxerKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindOggDemuxer,
			Categories: []string{"audio", "container"},
			InputPins:  []node.Pin{inputPin("in", packet.Type{Variant: packet.VariantBinary})},
			OutputPins: []node.Pin{outputPin("out", packet.Type{Variant: packet.VariantOpus})},
		},
		Construct: func(json.RawMessage) (node.Instance, error) {
			return &oggDemuxer{}, nil
		},
	}
}

func (oggDemuxer) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	if p.Variant != packet.VariantBinary || p.Binary == nil {
		return node.Failed("ProcessError", "ogg_demuxer expects binary input")
	}
	return node.Emitted(node.Emission{Pin: "out", Packet: packet.Packet{
		Variant: packet.VariantOpus,
		Opus:    &packet.Opus{Data: p.Binary.Data, Timing: p.Binary.Timing},
	}})
}

// KindOpusDecoder decodes an Opus frame to raw PCM. Real Opus decoding
// lives outside this module (spec.md §1); this reference shape
// synthesizes deterministic silence of the declared duration so the
// builtin chain is exercisable without a codec dependency.
const KindOpusDecoder = "audio::opus::decoder"

type opusDecoder struct{ base }

// NewOpusDecoderKind returns the opus_decoder builtin kind.
func NewOpusDecoderKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindOpusDecoder,
			Categories: []string{"audio", "codec"},
			InputPins:  []node.Pin{inputPin("in", packet.Type{Variant: packet.VariantOpus})},
			OutputPins: []node.Pin{outputPin("out", packet.Type{Variant: packet.VariantRawAudio, SampleRate: 48000, Channels: 1})},
		},
		Construct: func(json.RawMessage) (node.Instance, error) {
			return &opusDecoder{}, nil
		},
	}
}

const opusFrameSamples = 960 // 20ms @ 48kHz

func (opusDecoder) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	if p.Variant != packet.VariantOpus || p.Opus == nil {
		return node.Failed("ProcessError", "opus_decoder expects opus input")
	}
	samples := make([]float32, opusFrameSamples)
	return node.Emitted(node.Emission{Pin: "out", Packet: packet.Packet{
		Variant: packet.VariantRawAudio,
		RawAudio: &packet.RawAudio{
			Samples:    samples,
			SampleRate: 48000,
			Channels:   1,
			Format:     packet.SampleFormatF32,
			Timing:     p.Opus.Timing,
		},
	}})
}
