// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"context"
	"encoding/json"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindResampler changes a raw audio frame's sample rate via linear
// interpolation. It is a reference implementation only; production
// resampling is out of scope (spec.md §1).
const KindResampler = "audio::resampler"

type resamplerParams struct {
	TargetSampleRate int `json:"target_sample_rate"`
}

type resampler struct {
	base
	params resamplerParams
}

// NewResamplerKind returns the resampler builtin kind.
func NewResamplerKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindResampler,
			Categories: []string{"audio", "filter"},
			InputPins:  []node.Pin{inputPin("in", packet.Type{Variant: packet.VariantRawAudio})},
			OutputPins: []node.Pin{outputPin("out", packet.Type{Variant: packet.VariantRawAudio})},
			ParamSchema: mustSchema(`{
				"type": "object",
				"required": ["target_sample_rate"],
				"properties": {
					"target_sample_rate": {"type": "integer", "x-tunable": false}
				}
			}`),
		},
		Construct: func(params json.RawMessage) (node.Instance, error) {
			var p resamplerParams
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, &node.ConfigError{Kind: KindResampler, Reason: err.Error()}
			}
			if p.TargetSampleRate <= 0 {
				return nil, &node.ConfigError{Kind: KindResampler, Reason: "target_sample_rate must be positive"}
			}
			return &resampler{params: p}, nil
		},
	}
}

func (r *resampler) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	if p.Variant != packet.VariantRawAudio || p.RawAudio == nil {
		return node.Failed("ProcessError", "resampler expects raw_audio input")
	}
	in := p.RawAudio
	if in.SampleRate == r.params.TargetSampleRate || in.SampleRate == 0 {
		out := *in
		out.SampleRate = r.params.TargetSampleRate
		return node.Emitted(node.Emission{Pin: "out", Packet: packet.Packet{Variant: packet.VariantRawAudio, RawAudio: &out}})
	}

	ratio := float64(r.params.TargetSampleRate) / float64(in.SampleRate)
	outLen := int(float64(len(in.Samples)) * ratio)
	resampled := make([]float32, outLen)
	for i := range resampled {
		srcPos := float64(i) / ratio
		lo := int(srcPos)
		if lo >= len(in.Samples)-1 {
			resampled[i] = in.Samples[len(in.Samples)-1]
			continue
		}
		frac := float32(srcPos - float64(lo))
		resampled[i] = in.Samples[lo]*(1-frac) + in.Samples[lo+1]*frac
	}
	out := *in
	out.Samples = resampled
	out.SampleRate = r.params.TargetSampleRate
	return node.Emitted(node.Emission{Pin: "out", Packet: packet.Packet{Variant: packet.VariantRawAudio, RawAudio: &out}})
}
