// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package builtins implements the minimal reference node kinds used to
// exercise the compiler, engine, and control plane end to end. They
// are intentionally small: a real deployment's codec/container/ML
// nodes live outside this module (spec.md §1).
package builtins

import (
	"context"
	"encoding/json"

	"github.com/streamkit-oss/streamkit/internal/node"
)

// base gives every builtin a default UpdateParams/Shutdown so each
// kind only implements what it actually customizes.
type base struct{}

func (base) UpdateParams(json.RawMessage) error {
	return &node.NotTunableError{FieldPath: ""}
}

func (base) Shutdown(context.Context) {}
