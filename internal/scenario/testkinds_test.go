// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package scenario_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// burstSource emits "count" raw_audio frames back to back and
// completes, used by S3 to drive a broadcast fan-out harder than any
// builtin source can on its own.
const kindBurstSource = "test::burst_source"

type burstSourceParams struct {
	Count int `json:"count"`
}

type burstSource struct {
	count int
}

func newBurstSourceKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       kindBurstSource,
			OutputPins: []node.Pin{{Name: "out", Cardinality: node.CardinalityOne, ProducesType: packet.Type{Variant: packet.VariantRawAudio, SampleRate: 48000, Channels: 1}, IsOutput: true}},
		},
		Construct: func(params json.RawMessage) (node.Instance, error) {
			var p burstSourceParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
			}
			return &burstSource{count: p.Count}, nil
		},
	}
}

func (b *burstSource) Process(context.Context, string, packet.Packet) node.Result {
	return node.Failed("ProcessError", "burst_source has no input pins")
}
func (b *burstSource) UpdateParams(json.RawMessage) error { return &node.NotTunableError{} }
func (b *burstSource) Shutdown(context.Context)            {}

func (b *burstSource) Run(ctx context.Context, emit func(pin string, p packet.Packet) error) error {
	for i := 0; i < b.count; i++ {
		if ctx.Err() != nil {
			return nil
		}
		pkt := packet.Packet{
			Variant: packet.VariantRawAudio,
			RawAudio: &packet.RawAudio{
				Samples:    []float32{float32(i)},
				SampleRate: 48000,
				Channels:   1,
				Format:     packet.SampleFormatF32,
				Timing:     &packet.Timing{Sequence: uint64(i)},
			},
		}
		if err := emit("out", pkt); err != nil {
			return nil
		}
	}
	return nil
}

// recordingSink appends every packet it receives (in delivery order)
// under a mutex and, if delayPerPacket is set, sleeps that long inside
// Process to simulate a slow consumer (S3's best-effort-under-load
// harness).
const kindRecordingSink = "test::recording_sink"

type recordingSinkParams struct {
	DelayMs int `json:"delay_ms"`
}

type recordingSink struct {
	mu    sync.Mutex
	seqs  []uint64
	delay time.Duration
}

func newRecordingSinkKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:      kindRecordingSink,
			InputPins: []node.Pin{{Name: "in", Cardinality: node.CardinalityOne, AcceptsTypes: []packet.Type{packet.Any}}},
		},
		Construct: func(params json.RawMessage) (node.Instance, error) {
			var p recordingSinkParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
			}
			return &recordingSink{delay: time.Duration(p.DelayMs) * time.Millisecond}, nil
		},
	}
}

func (s *recordingSink) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.seqs = append(s.seqs, p.Sequence())
	s.mu.Unlock()
	return node.Dropped()
}
func (s *recordingSink) UpdateParams(json.RawMessage) error { return &node.NotTunableError{} }
func (s *recordingSink) Shutdown(context.Context)            {}

func (s *recordingSink) received() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.seqs))
	copy(out, s.seqs)
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seqs)
}

// tickerSource emits one text packet per interval until canceled, used
// by S4 to drive a long-lived dynamic session through a live rewire.
const kindTickerSource = "test::ticker_source"

type tickerSourceParams struct {
	IntervalMs int `json:"interval_ms"`
}

type tickerSource struct {
	interval time.Duration
}

func newTickerSourceKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       kindTickerSource,
			OutputPins: []node.Pin{{Name: "out", Cardinality: node.CardinalityBroadcast, ProducesType: packet.Type{Variant: packet.VariantText}, IsOutput: true}},
		},
		Construct: func(params json.RawMessage) (node.Instance, error) {
			var p tickerSourceParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, err
				}
			}
			if p.IntervalMs <= 0 {
				p.IntervalMs = 1
			}
			return &tickerSource{interval: time.Duration(p.IntervalMs) * time.Millisecond}, nil
		},
	}
}

func (t *tickerSource) Process(context.Context, string, packet.Packet) node.Result {
	return node.Failed("ProcessError", "ticker_source has no input pins")
}
func (t *tickerSource) UpdateParams(json.RawMessage) error { return &node.NotTunableError{} }
func (t *tickerSource) Shutdown(context.Context)             {}

func (t *tickerSource) Run(ctx context.Context, emit func(pin string, p packet.Packet) error) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pkt := packet.Packet{
				Variant: packet.VariantText,
				Text:    &packet.Text{Value: fmt.Sprintf("tick-%d", seq), Timing: &packet.Timing{Sequence: seq}},
			}
			seq++
			if err := emit("out", pkt); err != nil {
				return nil
			}
		}
	}
}
