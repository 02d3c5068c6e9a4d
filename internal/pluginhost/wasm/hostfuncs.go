// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package wasm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/streamkit-oss/streamkit/internal/log"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// HostLimits bounds what a sandboxed component may do: which hosts its
// http_fetch import may reach, and how many outbound calls may be
// in flight or issued per second across all sandboxed instances
// sharing this Host (spec.md §5: "the scheduler caps concurrent
// in-flight per process").
type HostLimits struct {
	AllowedHosts   []string
	FetchRateLimit *rate.Limiter
	FetchInFlight  *semaphore.Weighted
	FetchTimeout   time.Duration
}

func defaultLimits() HostLimits {
	return HostLimits{
		FetchRateLimit: rate.NewLimiter(5, 5),
		FetchInFlight:  semaphore.NewWeighted(4),
		FetchTimeout:   10 * time.Second,
	}
}

func (l HostLimits) hostAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, h := range l.AllowedHosts {
		if h == u.Hostname() {
			return true
		}
	}
	return false
}

// buildHostModule registers the emit/log/http_fetch imports a
// sandboxed component's "env" module can call into, scoped to one
// instance so emit() can attribute packets to that node's task.
func buildHostModule(rt wazero.Runtime, limits HostLimits, inst *instance) (api.Module, error) {
	builder := rt.NewHostModuleBuilder("env")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, pin uint32, pinLen uint32, payload uint32, payloadLen uint32) {
			pinBytes, _ := mod.Memory().Read(pin, pinLen)
			data, _ := mod.Memory().Read(payload, payloadLen)
			var p packet.Packet
			if err := json.Unmarshal(data, &p); err != nil {
				return
			}
			inst.recordEmission(string(pinBytes), p)
		}).
		Export("emit")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, level uint32, msg uint32, msgLen uint32) {
			text, _ := mod.Memory().Read(msg, msgLen)
			logger := log.WithComponent("pluginhost.wasm")
			ev := logger.Info()
			if level >= 2 {
				ev = logger.Error()
			} else if level == 1 {
				ev = logger.Warn()
			}
			ev.Str("kind", inst.kind).Msg(string(text))
		}).
		Export("log")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, urlPtr uint32, urlLen uint32) uint64 {
			raw, _ := mod.Memory().Read(urlPtr, urlLen)
			body, err := fetch(ctx, limits, string(raw))
			if err != nil {
				body = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
			}
			return writeResultBuffer(ctx, mod, body)
		}).
		Export("http_fetch")

	return builder.Instantiate(context.Background())
}

func fetch(ctx context.Context, limits HostLimits, rawURL string) ([]byte, error) {
	if !limits.hostAllowed(rawURL) {
		return nil, fmt.Errorf("host_fetch: %q is not on the allowlist", rawURL)
	}
	if limits.FetchRateLimit != nil && !limits.FetchRateLimit.Allow() {
		return nil, fmt.Errorf("http_fetch: rate limited")
	}
	if limits.FetchInFlight != nil {
		if err := limits.FetchInFlight.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("http_fetch: %w", err)
		}
		defer limits.FetchInFlight.Release(1)
	}

	reqCtx, cancel := context.WithTimeout(ctx, limits.FetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// writeResultBuffer allocates space in the guest and writes body into
// it, returning a packed (ptr<<32 | len) the guest can read back the
// same way callGuest unpacks streamkit_call's return value.
func writeResultBuffer(ctx context.Context, mod api.Module, body []byte) uint64 {
	alloc := mod.ExportedFunction("streamkit_alloc")
	if alloc == nil {
		return 0
	}
	res, err := alloc.Call(ctx, uint64(len(body)))
	if err != nil {
		return 0
	}
	ptr := uint32(res[0])
	mod.Memory().Write(ptr, body)
	return uint64(ptr)<<32 | uint64(len(body))
}
