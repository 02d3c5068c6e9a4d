// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package wasm loads sandboxed WebAssembly components satisfying the
// C2 node contract using github.com/tetratelabs/wazero (pure-Go, no
// cgo — the same portability preference the teacher shows for its
// modernc.org/sqlite driver). Guests exchange JSON-encoded payloads
// with the host over linear memory; see abi.go for why this
// implementation does not generate full component-model bindings.
package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/streamkit-oss/streamkit/internal/node"
)

// Loaded is one compiled component's source, ready to be instantiated
// per node. Every node instance gets its own wazero.Runtime (so one
// sandboxed node's fault or memory corruption cannot reach another's),
// sharing a wazero.CompilationCache so repeated instantiation of the
// same component stays cheap.
type Loaded struct {
	data   []byte
	cache  wazero.CompilationCache
	path   string
	meta   node.Metadata
	limits HostLimits
}

// Open reads a .wasm component from path and queries its metadata
// export via a throwaway runtime.
func Open(ctx context.Context, path string, limits HostLimits) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read component %s: %w", path, err)
	}

	if limits.FetchRateLimit == nil && limits.FetchInFlight == nil {
		allowed := limits.AllowedHosts
		limits = defaultLimits()
		limits.AllowedHosts = allowed
	}

	l := &Loaded{data: data, cache: wazero.NewCompilationCache(), path: path, limits: limits}

	meta, err := l.queryMetadata(ctx)
	if err != nil {
		_ = l.cache.Close(ctx)
		return nil, err
	}
	l.meta = meta
	return l, nil
}

func (l *Loaded) newRuntime(ctx context.Context) (wazero.Runtime, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCompilationCache(l.cache))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}
	return rt, nil
}

// queryMetadata spins up a transient runtime solely to read the
// component's declared node.Metadata before any real node exists.
func (l *Loaded) queryMetadata(ctx context.Context) (node.Metadata, error) {
	rt, err := l.newRuntime(ctx)
	if err != nil {
		return node.Metadata{}, err
	}
	defer rt.Close(ctx)

	probe := &instance{kind: "<metadata-probe>", limits: l.limits}
	host, err := buildHostModule(rt, l.limits, probe)
	if err != nil {
		return node.Metadata{}, fmt.Errorf("build host module: %w", err)
	}
	defer host.Close(ctx)

	mod, err := rt.Instantiate(ctx, l.data)
	if err != nil {
		return node.Metadata{}, fmt.Errorf("instantiate component %s: %w", l.path, err)
	}
	defer mod.Close(ctx)

	resp, err := callGuest(ctx, mod, wireCall{Fn: "metadata"})
	if err != nil {
		return node.Metadata{}, fmt.Errorf("query metadata: %w", err)
	}
	var meta node.Metadata
	if err := json.Unmarshal(resp.Payload, &meta); err != nil {
		return node.Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return meta, nil
}

// Close releases the shared compilation cache. Safe to call once all
// constructed instances have been Shutdown.
func (l *Loaded) Close(ctx context.Context) error {
	return l.cache.Close(ctx)
}

// RawKind is the kind identifier the component itself declares, before
// the host's plugin::wasm:: prefix rewrite (spec.md §4.7).
func (l *Loaded) RawKind() string { return l.meta.Kind }

// Kind adapts the loaded component into a node.Kind registered under
// the given (already-namespaced, e.g. "plugin::wasm::...") identifier.
func (l *Loaded) Kind(registeredKind string) node.Kind {
	meta := l.meta
	meta.Kind = registeredKind
	return node.Kind{
		Metadata: meta,
		Construct: func(params json.RawMessage) (node.Instance, error) {
			ctx := context.Background()
			inst := &instance{kind: registeredKind, limits: l.limits}

			rt, err := l.newRuntime(ctx)
			if err != nil {
				return nil, err
			}
			host, err := buildHostModule(rt, l.limits, inst)
			if err != nil {
				rt.Close(ctx)
				return nil, fmt.Errorf("build host module: %w", err)
			}
			mod, err := rt.Instantiate(ctx, l.data)
			if err != nil {
				host.Close(ctx)
				rt.Close(ctx)
				return nil, fmt.Errorf("instantiate component: %w", err)
			}
			inst.rt, inst.mod, inst.host = rt, mod, host

			resp, err := callGuest(ctx, mod, wireCall{Fn: "construct", Payload: params})
			if err != nil {
				mod.Close(ctx)
				host.Close(ctx)
				rt.Close(ctx)
				return nil, &node.ConfigError{Kind: registeredKind, Reason: err.Error()}
			}
			inst.state = resp.Payload
			return inst, nil
		},
	}
}
