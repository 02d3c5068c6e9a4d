// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

func outputPin(name string, produces packet.Type) node.Pin {
	return node.Pin{Name: name, Cardinality: node.CardinalityOne, ProducesType: produces, IsOutput: true}
}

func broadcastPin(name string, produces packet.Type) node.Pin {
	return node.Pin{Name: name, Cardinality: node.CardinalityBroadcast, ProducesType: produces, IsOutput: true}
}

func inputPin(name string, accepts ...packet.Type) node.Pin {
	return node.Pin{Name: name, Cardinality: node.CardinalityOne, AcceptsTypes: accepts}
}

func dynamicInputPin(prefix string, accepts ...packet.Type) node.Pin {
	return node.Pin{Name: prefix, Cardinality: node.CardinalityDynamic, DynamicPrefix: prefix, AcceptsTypes: accepts}
}

func mustSchema(raw string) *node.ParamSchema {
	s, err := node.NewParamSchema([]byte(raw))
	if err != nil {
		panic(err)
	}
	return s
}
