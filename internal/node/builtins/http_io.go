// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindHTTPInput is a source fed by the out-of-scope HTTP control
// surface: whatever request body the caller posted arrives here as a
// single Binary packet. The core only specifies the node shape; the
// out-of-process HTTP handler is responsible for calling Feed.
const KindHTTPInput = "media::http_input"

type httpInput struct {
	base
	feed chan packet.Packet
}

// NewHTTPInputKind returns the http_input builtin kind. The returned
// Instance also implements Feed(p) so an external collaborator (the
// HTTP surface, out of scope per spec.md §1) can push one request body
// into the running pipeline.
func NewHTTPInputKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindHTTPInput,
			Categories: []string{"source", "http"},
			OutputPins: []node.Pin{outputPin("out", packet.Type{Variant: packet.VariantBinary})},
		},
		Construct: func(json.RawMessage) (node.Instance, error) {
			return &httpInput{feed: make(chan packet.Packet, 1)}, nil
		},
	}
}

// Feed delivers one inbound request body to the pipeline. It is safe
// to call exactly once for a oneshot session.
func (h *httpInput) Feed(p packet.Packet) {
	h.feed <- p
	close(h.feed)
}

func (h *httpInput) Process(context.Context, string, packet.Packet) node.Result {
	return node.Failed("ProcessError", "http_input has no input pins")
}

func (h *httpInput) Run(ctx context.Context, emit func(pin string, p packet.Packet) error) error {
	select {
	case p, ok := <-h.feed:
		if !ok {
			return nil
		}
		return emit("out", p)
	case <-ctx.Done():
		return nil
	}
}

// KindHTTPOutput is a sink that hands its final received packet to
// whatever out-of-process collaborator is waiting on the response
// (the HTTP control surface). The core only specifies the node shape.
const KindHTTPOutput = "media::http_output"

type httpOutput struct {
	base

	mu        sync.Mutex
	latest    packet.Packet
	hasValue  bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewHTTPOutputKind returns the http_output builtin kind. The returned
// Instance also implements Latest() and Done() for an external
// collaborator to observe the sink's terminal payload once the
// pipeline shuts the node down.
func NewHTTPOutputKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindHTTPOutput,
			Categories: []string{"sink", "http"},
			InputPins:  []node.Pin{inputPin("in", packet.Any)},
		},
		Construct: func(json.RawMessage) (node.Instance, error) {
			return &httpOutput{done: make(chan struct{})}, nil
		},
	}
}

// Process retains the most recently received packet. Producers like
// whisper_stt emit a cumulative result on every call, so the sink must
// keep the latest value rather than the first.
func (h *httpOutput) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	h.mu.Lock()
	h.latest = p
	h.hasValue = true
	h.mu.Unlock()
	return node.Dropped()
}

// Shutdown signals Done, unblocking an external collaborator waiting
// on the sink's terminal payload.
func (h *httpOutput) Shutdown(context.Context) {
	h.closeOnce.Do(func() { close(h.done) })
}

// Latest returns the most recently received packet, if any.
func (h *httpOutput) Latest() (packet.Packet, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.hasValue
}

// Done is closed once the node has been shut down, signaling that
// Latest will not change again.
func (h *httpOutput) Done() <-chan struct{} {
	return h.done
}
