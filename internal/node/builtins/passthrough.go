// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"context"
	"encoding/json"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindPassthrough forwards its single input to its single output
// unchanged; its declared output type is the Passthrough sentinel,
// resolved by the compiler to whatever feeds "in".
const KindPassthrough = "core::passthrough"

type passthroughNode struct{ base }

// NewPassthroughKind returns the passthrough builtin kind.
func NewPassthroughKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindPassthrough,
			Categories: []string{"core"},
			InputPins:  []node.Pin{inputPin("in", packet.Any)},
			OutputPins: []node.Pin{outputPin("out", packet.Passthrough)},
		},
		Construct: func(json.RawMessage) (node.Instance, error) {
			return &passthroughNode{}, nil
		},
	}
}

func (passthroughNode) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	return node.Emitted(node.Emission{Pin: "out", Packet: p})
}
