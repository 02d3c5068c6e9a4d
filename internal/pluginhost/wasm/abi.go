// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package wasm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// Wire is the JSON envelope crossing the guest boundary for every C2
// operation. A full WIT/component-model binding is out of scope here
// (see DESIGN.md); this module talks to the guest through wazero's
// core ABI, passing JSON-encoded payloads over linear memory, which is
// enough to "reduce to the C2 contract" (spec.md §4.7) without a code
// generator.
type wireCall struct {
	Fn      string          `json:"fn"`
	State   json.RawMessage `json:"state,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wireResult struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// callGuest writes req into the guest's linear memory, invokes its
// exported "streamkit_call" entrypoint (ptr, len) -> (ptr, len), reads
// the response back, and frees both buffers via the guest's exported
// allocator pair.
func callGuest(ctx context.Context, mod api.Module, req wireCall) (wireResult, error) {
	var out wireResult

	reqBytes, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("marshal request: %w", err)
	}

	alloc := mod.ExportedFunction("streamkit_alloc")
	free := mod.ExportedFunction("streamkit_free")
	call := mod.ExportedFunction("streamkit_call")
	if alloc == nil || free == nil || call == nil {
		return out, fmt.Errorf("guest module missing streamkit_alloc/free/call exports")
	}

	inPtrRes, err := alloc.Call(ctx, uint64(len(reqBytes)))
	if err != nil {
		return out, fmt.Errorf("guest alloc: %w", err)
	}
	inPtr := uint32(inPtrRes[0])
	defer func() { _, _ = free.Call(ctx, uint64(inPtr), uint64(len(reqBytes))) }()

	if !mod.Memory().Write(inPtr, reqBytes) {
		return out, fmt.Errorf("write request into guest memory")
	}

	res, err := call.Call(ctx, uint64(inPtr), uint64(len(reqBytes)))
	if err != nil {
		return out, fmt.Errorf("guest call: %w", err)
	}
	outPtr, outLen := uint32(res[0]>>32), uint32(res[0])
	defer func() { _, _ = free.Call(ctx, uint64(outPtr), uint64(outLen)) }()

	respBytes, ok := mod.Memory().Read(outPtr, outLen)
	if !ok {
		return out, fmt.Errorf("read response from guest memory")
	}
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return out, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Error != "" {
		return out, fmt.Errorf("guest error: %s", out.Error)
	}
	return out, nil
}
