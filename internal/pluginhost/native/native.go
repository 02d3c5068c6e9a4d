// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package native loads Go plugin shared objects exposing the C2 node
// contract and adapts them into node.Kind values the registry can
// serve. There is no ecosystem-standard pure-Go dlopen-to-arbitrary-ABI
// loader in the retrieved corpus, so this one boundary necessarily
// falls back to the standard library's plugin package; see DESIGN.md.
package native

import (
	"context"
	"encoding/json"
	"fmt"
	"plugin"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// Symbol names every plugin .so must export, one Go function value per
// C2 operation (spec.md §4.7's "versioned C ABI that maps one-to-one
// to metadata / construct / process / update_params / shutdown").
const (
	symMetadata     = "Metadata"
	symConstruct    = "Construct"
	symProcess      = "Process"
	symUpdateParams = "UpdateParams"
	symShutdown     = "Shutdown"
)

// Exported function shapes a plugin .so must match. These mirror
// node.Instance's methods one-to-one but as free functions taking an
// opaque state handle, since a shared object cannot export a Go
// interface value across the plugin boundary — only the exported
// function symbols are looked up by name. Both sides import this same
// module's node/packet packages, so the argument and return types
// themselves pass across the boundary as ordinary Go values (the
// standard plugin-package requirement: host and plugin must be built
// from the identical package versions).
type (
	metadataFunc     func() node.Metadata
	constructFunc    func(params json.RawMessage) (any, error)
	processFunc      func(state any, ctx context.Context, inputPin string, p packet.Packet) node.Result
	updateParamsFunc func(state any, partial json.RawMessage) error
	shutdownFunc     func(state any, ctx context.Context)
)

// Loaded is one opened plugin .so: its exported symbols plus a health
// flag that latches closed the first time Process panics (spec.md
// §4.7 PluginPanic: "prevents new instantiations until reload").
type Loaded struct {
	path     string
	rawKind  string
	metadata metadataFunc
	construct constructFunc
	process  processFunc
	update   updateParamsFunc
	shutdown shutdownFunc
	healthy  bool
}

// Open loads a Go plugin shared object and resolves its five exported
// symbols. It does not register the kind; call Kind and pass the
// result to a node.Registry.
func Open(path string) (*Loaded, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}

	l := &Loaded{path: path, healthy: true}

	if l.metadata, err = lookupSymbol[metadataFunc](p, symMetadata); err != nil {
		return nil, err
	}
	if l.construct, err = lookupSymbol[constructFunc](p, symConstruct); err != nil {
		return nil, err
	}
	if l.process, err = lookupSymbol[processFunc](p, symProcess); err != nil {
		return nil, err
	}
	if l.update, err = lookupSymbol[updateParamsFunc](p, symUpdateParams); err != nil {
		return nil, err
	}
	if l.shutdown, err = lookupSymbol[shutdownFunc](p, symShutdown); err != nil {
		return nil, err
	}

	meta := l.metadata()
	l.rawKind = meta.Kind
	return l, nil
}

func lookupSymbol[T any](p *plugin.Plugin, name string) (T, error) {
	var zero T
	sym, err := p.Lookup(name)
	if err != nil {
		return zero, fmt.Errorf("symbol %s: %w", name, err)
	}
	fn, ok := sym.(T)
	if !ok {
		return zero, fmt.Errorf("symbol %s: unexpected type %T", name, sym)
	}
	return fn, nil
}

// RawKind is the kind identifier the plugin itself declares, before
// the host's plugin::native:: prefix rewrite (spec.md §4.7).
func (l *Loaded) RawKind() string { return l.rawKind }

// Path returns the filesystem path this plugin was Open'd from, used
// by the host to find a stale entry to replace on Reload.
func (l *Loaded) Path() string { return l.path }

// Healthy reports whether this plugin may still construct new
// instances. A Process panic latches this false until the plugin is
// reloaded (Open'd again).
func (l *Loaded) Healthy() bool { return l.healthy }

// Kind adapts the loaded plugin into a node.Kind registered under the
// given (already-prefixed) identifier.
func (l *Loaded) Kind(registeredKind string) node.Kind {
	meta := l.metadata()
	meta.Kind = registeredKind
	return node.Kind{
		Metadata: meta,
		Construct: func(params json.RawMessage) (node.Instance, error) {
			if !l.healthy {
				return nil, &node.ConfigError{Kind: registeredKind, Reason: "plugin unhealthy after a prior panic; reload required"}
			}
			state, err := l.construct(params)
			if err != nil {
				return nil, err
			}
			return &instance{loaded: l, state: state}, nil
		},
	}
}

// instance adapts one constructed plugin state handle to node.Instance,
// recovering Process panics into a Failure result and latching the
// plugin unhealthy so no further instances construct until reload
// (spec.md §4.7 / §7's PluginPanic).
type instance struct {
	loaded *Loaded
	state  any
}

func (i *instance) Process(ctx context.Context, inputPin string, p packet.Packet) (result node.Result) {
	defer func() {
		if r := recover(); r != nil {
			i.loaded.healthy = false
			result = node.Failed("PluginPanic", fmt.Sprintf("native plugin %s panicked: %v", i.loaded.path, r))
		}
	}()
	return i.loaded.process(i.state, ctx, inputPin, p)
}

func (i *instance) UpdateParams(partial json.RawMessage) error {
	return i.loaded.update(i.state, partial)
}

func (i *instance) Shutdown(ctx context.Context) {
	i.loaded.shutdown(i.state, ctx)
}
