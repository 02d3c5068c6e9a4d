// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package pluginhost

import "errors"

// ErrAlreadyLoaded is returned when a plugin's declared kind collides
// with one already registered in either the native or sandboxed
// namespace (spec.md §4.7: "kind names must be unique across the
// native+sandboxed namespaces").
var ErrAlreadyLoaded = errors.New("plugin kind already loaded")
