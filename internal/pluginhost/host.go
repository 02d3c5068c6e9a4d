// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package pluginhost is C7: it loads native (internal/pluginhost/native)
// and sandboxed (internal/pluginhost/wasm) plugins, rewrites their
// declared kind identifiers into the plugin::native:: / plugin::wasm::
// namespaces, and registers/unregisters them against a node.Registry
// (spec.md §4.7). A directory watcher built on the teacher's own
// fsnotify-based reload pattern (internal/config/reload.go) drives
// hot load/unload as files appear, change, or disappear.
package pluginhost

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/streamkit-oss/streamkit/internal/log"
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/pluginhost/native"
	"github.com/streamkit-oss/streamkit/internal/pluginhost/wasm"
)

const (
	nativePrefix = "plugin::native::"
	wasmPrefix   = "plugin::wasm::"
)

// Host owns every loaded plugin and is the single writer of their
// kind registrations, mirroring the registry's own read-mostly /
// write-locked discipline (internal/node/registry.go).
type Host struct {
	reg    *node.Registry
	limits wasm.HostLimits

	mu     sync.Mutex
	native map[string]*native.Loaded // registered kind -> loaded plugin
	sbx    map[string]*wasm.Loaded   // registered kind -> loaded component

	watcher *fsnotify.Watcher
}

// New creates an empty plugin host backed by reg. limits bounds every
// sandboxed component's outbound HTTP (shared across all of them, per
// spec.md §5's "caps concurrent in-flight per process").
func New(reg *node.Registry, limits wasm.HostLimits) *Host {
	return &Host{
		reg:    reg,
		limits: limits,
		native: map[string]*native.Loaded{},
		sbx:    map[string]*wasm.Loaded{},
	}
}

// LoadNative opens a Go plugin .so and registers it under
// plugin::native::<its declared kind>.
func (h *Host) LoadNative(path string) (string, error) {
	l, err := native.Open(path)
	if err != nil {
		return "", err
	}
	kind := nativePrefix + l.RawKind()

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkUnique(kind); err != nil {
		return "", err
	}
	if err := h.reg.Register(l.Kind(kind)); err != nil {
		return "", err
	}
	h.native[kind] = l
	log.WithComponent("pluginhost").Info().Str("kind", kind).Str("path", path).Msg("native plugin loaded")
	return kind, nil
}

// LoadWasm compiles a sandboxed component and registers it under
// plugin::wasm::<its declared kind>.
func (h *Host) LoadWasm(ctx context.Context, path string) (string, error) {
	l, err := wasm.Open(ctx, path, h.limits)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	kind := wasmPrefix + l.RawKind()
	if err := h.checkUnique(kind); err != nil {
		_ = l.Close(ctx)
		return "", err
	}
	if err := h.reg.Register(l.Kind(kind)); err != nil {
		_ = l.Close(ctx)
		return "", err
	}
	h.sbx[kind] = l
	log.WithComponent("pluginhost").Info().Str("kind", kind).Str("path", path).Msg("sandboxed component loaded")
	return kind, nil
}

// checkUnique enforces spec.md §4.7: "kind names must be unique across
// the native+sandboxed namespaces." Must be called with h.mu held.
func (h *Host) checkUnique(kind string) error {
	if _, ok := h.native[kind]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, kind)
	}
	if _, ok := h.sbx[kind]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyLoaded, kind)
	}
	return nil
}

// Unload removes a previously loaded plugin's kind, native or
// sandboxed. It fails while any session still references the kind
// (node.Registry.Unregister's ErrKindInUse), matching spec.md §4.7's
// "unloading fails while any session references the kind."
func (h *Host) Unload(ctx context.Context, kind string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reg.Unregister(kind); err != nil {
		return err
	}
	if l, ok := h.sbx[kind]; ok {
		delete(h.sbx, kind)
		return l.Close(ctx)
	}
	delete(h.native, kind)
	return nil
}

// Reload re-Opens a native plugin in place of one that latched
// unhealthy after a panic, replacing its registry entry so future
// Construct calls use the fresh shared-object instance.
func (h *Host) Reload(path string) (string, error) {
	h.mu.Lock()
	var stale string
	for kind, l := range h.native {
		if loadedPath(l) == path {
			stale = kind
			break
		}
	}
	h.mu.Unlock()

	if stale != "" {
		if err := h.Unload(context.Background(), stale); err != nil {
			return "", fmt.Errorf("unload stale plugin before reload: %w", err)
		}
	}
	return h.LoadNative(path)
}

// loadedPath returns the path a native plugin was opened from, so
// Reload and kindForPath can find the registered entry for a path.
func loadedPath(l *native.Loaded) string {
	return l.Path()
}

// WatchDirectory hot-discovers .so and .wasm files under dir, loading
// new/changed files and unloading removed ones. Debounced the same
// way the teacher's config watcher coalesces rapid edits
// (internal/config/reload.go's watchLoop). Runs until ctx is canceled.
func (h *Host) WatchDirectory(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create plugin watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch plugin dir %s: %w", dir, err)
	}
	h.watcher = watcher

	go h.watchLoop(ctx, dir)
	return nil
}

func (h *Host) watchLoop(ctx context.Context, dir string) {
	logger := log.WithComponent("pluginhost")
	debounce := map[string]*time.Timer{}
	const debounceDuration = 300 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = h.watcher.Close()
			return
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			ext := filepath.Ext(ev.Name)
			if ext != ".so" && ext != ".wasm" {
				continue
			}
			path := ev.Name
			if t, exists := debounce[path]; exists {
				t.Stop()
			}
			debounce[path] = time.AfterFunc(debounceDuration, func() {
				h.handleFileEvent(ctx, ev, path, ext)
			})
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Str("event", "pluginhost.watch_error").Msg("plugin directory watch error")
		}
	}
}

func (h *Host) handleFileEvent(ctx context.Context, ev fsnotify.Event, path, ext string) {
	logger := log.WithComponent("pluginhost")
	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		kind := h.kindForPath(path)
		if kind == "" {
			return
		}
		if err := h.Unload(ctx, kind); err != nil {
			logger.Warn().Err(err).Str("kind", kind).Msg("plugin auto-unload failed")
		}
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		var err error
		if ext == ".wasm" {
			_, err = h.LoadWasm(ctx, path)
		} else {
			_, err = h.LoadNative(path)
		}
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("plugin auto-load failed")
		}
	}
}

// kindForPath finds the registered kind for a loaded native plugin's
// source path. Sandboxed components aren't looked up this way:
// wasm.Loaded does not expose the path it was loaded from, so a removed
// .wasm file requires an explicit Unload by kind.
func (h *Host) kindForPath(path string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for kind, l := range h.native {
		if loadedPath(l) == path {
			return kind
		}
	}
	return ""
}
