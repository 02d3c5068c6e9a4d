// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"context"
	"encoding/json"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindFeedbackTap forwards raw audio unchanged, declared Bidirectional
// so it may terminate a single breakable loop-back edge (spec.md §4.3
// step 5) — e.g. an echo-reference tap feeding a prior node's
// cancellation input. It carries no cancellation logic itself; it only
// exercises the compiler's loop-back exception.
const KindFeedbackTap = "audio::feedback_tap"

type feedbackTap struct{ base }

// NewFeedbackTapKind returns the feedback_tap builtin kind.
func NewFeedbackTapKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:          KindFeedbackTap,
			Categories:    []string{"audio", "feedback"},
			InputPins:     []node.Pin{inputPin("in", packet.Type{Variant: packet.VariantRawAudio})},
			OutputPins:    []node.Pin{outputPin("out", packet.Type{Variant: packet.VariantRawAudio})},
			Bidirectional: true,
		},
		Construct: func(json.RawMessage) (node.Instance, error) {
			return &feedbackTap{}, nil
		},
	}
}

func (feedbackTap) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	return node.Emitted(node.Emission{Pin: "out", Packet: p})
}
