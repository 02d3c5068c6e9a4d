// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package scenario runs the end-to-end scenarios from spec.md §8
// against a live engine and control plane, rather than against Compile
// alone. internal/pipelinecore's own compile_test.go already exercises
// S2 (passthrough type inference), S5 (cycle rejection), and the
// structural half of S1 at the compiler boundary; internal/engine's
// engine_test.go and internal/controlplane's controlplane_test.go
// already exercise node lifecycle and live mutation rejection
// (including S6's untunable-field rejection) in isolation. This
// package adds the scenarios those package-local suites cannot: a
// full oneshot run observed through its actual sink output (S1), a
// broadcast fan-out under load with a slow best-effort consumer (S3),
// and a live disconnect/reconnect observed through packet delivery
// rather than bookkeeping alone (S4).
package scenario
