// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindGain scales a raw audio frame's samples by a tunable factor.
const KindGain = "audio::gain"

type gainParams struct {
	Factor float32 `json:"factor"`
}

type gain struct {
	mu     sync.Mutex
	params gainParams
}

// NewGainKind returns the gain builtin kind.
func NewGainKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindGain,
			Categories: []string{"audio", "filter"},
			InputPins:  []node.Pin{inputPin("in", packet.Type{Variant: packet.VariantRawAudio})},
			OutputPins: []node.Pin{broadcastPin("out", packet.Type{Variant: packet.VariantRawAudio})},
			ParamSchema: mustSchema(`{
				"type": "object",
				"properties": {
					"factor": {"type": "number", "x-tunable": true}
				}
			}`),
		},
		Construct: func(params json.RawMessage) (node.Instance, error) {
			p := gainParams{Factor: 1.0}
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, &node.ConfigError{Kind: KindGain, Reason: err.Error()}
				}
			}
			return &gain{params: p}, nil
		},
	}
}

func (g *gain) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	if p.Variant != packet.VariantRawAudio || p.RawAudio == nil {
		return node.Failed("ProcessError", "gain expects raw_audio input")
	}
	g.mu.Lock()
	factor := g.params.Factor
	g.mu.Unlock()

	scaled := make([]float32, len(p.RawAudio.Samples))
	for i, s := range p.RawAudio.Samples {
		scaled[i] = s * factor
	}
	out := *p.RawAudio
	out.Samples = scaled
	return node.Emitted(node.Emission{Pin: "out", Packet: packet.Packet{
		Variant:  packet.VariantRawAudio,
		RawAudio: &out,
	}})
}

func (g *gain) UpdateParams(partial json.RawMessage) error {
	var p struct {
		Factor *float32 `json:"factor"`
	}
	if err := json.Unmarshal(partial, &p); err != nil {
		return &node.ValidationError{Reason: err.Error()}
	}
	if p.Factor == nil {
		return nil
	}
	g.mu.Lock()
	g.params.Factor = *p.Factor
	g.mu.Unlock()
	return nil
}

func (g *gain) Shutdown(context.Context) {}
