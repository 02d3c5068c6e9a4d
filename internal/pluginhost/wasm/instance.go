// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// instance adapts one instantiated sandboxed component to
// node.Instance. Trap recovery (wazero surfaces guest traps as Go
// errors, not panics, but a misbehaving host function closure could
// still panic) folds into a Failure result the same way the native
// adapter folds a plugin panic, per spec.md §7's ProcessError family.
// Each instance owns a private wazero.Runtime so its linear memory
// and host module namespace never collide with a sibling instance of
// the same or another sandboxed kind.
type instance struct {
	kind   string
	rt     wazero.Runtime
	mod    api.Module
	host   api.Module
	state  json.RawMessage
	limits HostLimits

	mu               sync.Mutex
	pendingEmissions []node.Emission
}

func (i *instance) recordEmission(pin string, p packet.Packet) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pendingEmissions = append(i.pendingEmissions, node.Emission{Pin: pin, Packet: p})
}

func (i *instance) Process(ctx context.Context, inputPin string, p packet.Packet) (result node.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = node.Failed("SandboxFault", fmt.Sprintf("sandboxed component %s faulted: %v", i.kind, r))
		}
	}()

	i.mu.Lock()
	i.pendingEmissions = nil
	i.mu.Unlock()

	payload, err := json.Marshal(struct {
		InputPin string        `json:"input_pin"`
		Packet   packet.Packet `json:"packet"`
	}{InputPin: inputPin, Packet: p})
	if err != nil {
		return node.Failed("SandboxFault", "marshal process payload: "+err.Error())
	}

	resp, err := callGuest(ctx, i.mod, wireCall{Fn: "process", State: i.state, Payload: payload})
	if err != nil {
		return node.Failed("SandboxFault", err.Error())
	}

	var out struct {
		Dropped bool           `json:"dropped"`
		Failure *node.Failure  `json:"failure"`
		State   json.RawMessage `json:"state"`
	}
	if len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, &out); err != nil {
			return node.Failed("SandboxFault", "unmarshal process result: "+err.Error())
		}
	}
	if out.State != nil {
		i.state = out.State
	}
	if out.Failure != nil {
		return node.Result{Failure: out.Failure}
	}

	i.mu.Lock()
	emissions := i.pendingEmissions
	i.pendingEmissions = nil
	i.mu.Unlock()

	if out.Dropped && len(emissions) == 0 {
		return node.Dropped()
	}
	return node.Emitted(emissions...)
}

func (i *instance) UpdateParams(partial json.RawMessage) error {
	resp, err := callGuest(context.Background(), i.mod, wireCall{Fn: "update_params", State: i.state, Payload: partial})
	if err != nil {
		return err
	}
	if len(resp.Payload) > 0 {
		i.state = resp.Payload
	}
	return nil
}

func (i *instance) Shutdown(ctx context.Context) {
	_, _ = callGuest(ctx, i.mod, wireCall{Fn: "shutdown", State: i.state})
	_ = i.mod.Close(ctx)
	_ = i.host.Close(ctx)
	if i.rt != nil {
		_ = i.rt.Close(ctx)
	}
}
