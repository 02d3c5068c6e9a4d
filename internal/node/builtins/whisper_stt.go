// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindWhisperSTT is a reference speech-to-text node shape. The real
// transcription model is out of scope for this module (spec.md §1);
// this stand-in accumulates the raw audio it has seen across calls and
// emits a cumulative transcription so downstream nodes and the control
// plane can exercise the real node contract end to end.
const KindWhisperSTT = "ml::whisper_stt"

type whisperSTT struct {
	base
	totalDurationMs int64
	segments        []packet.Segment
}

// NewWhisperSTTKind returns the whisper_stt reference builtin kind.
func NewWhisperSTTKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindWhisperSTT,
			Categories: []string{"ml", "speech"},
			InputPins:  []node.Pin{inputPin("in", packet.Type{Variant: packet.VariantRawAudio})},
			OutputPins: []node.Pin{outputPin("out", packet.Type{Variant: packet.VariantTranscription})},
		},
		Construct: func(json.RawMessage) (node.Instance, error) {
			return &whisperSTT{}, nil
		},
	}
}

func (w *whisperSTT) Process(_ context.Context, _ string, p packet.Packet) node.Result {
	if p.Variant != packet.VariantRawAudio || p.RawAudio == nil {
		return node.Failed("ProcessError", "whisper_stt expects raw_audio input")
	}
	audio := p.RawAudio
	if audio.SampleRate <= 0 || audio.Channels <= 0 {
		return node.Failed("ProcessError", "whisper_stt requires a concrete sample rate and channel count")
	}
	frames := len(audio.Samples) / audio.Channels
	durationMs := int64(frames) * 1000 / int64(audio.SampleRate)

	start := w.totalDurationMs
	end := start + durationMs
	w.segments = append(w.segments, packet.Segment{
		Text:        fmt.Sprintf("utterance_%d", len(w.segments)),
		StartTimeMs: start,
		EndTimeMs:   end,
	})
	w.totalDurationMs = end

	fullText := ""
	for i, seg := range w.segments {
		if i > 0 {
			fullText += " "
		}
		fullText += seg.Text
	}

	segments := make([]packet.Segment, len(w.segments))
	copy(segments, w.segments)

	return node.Emitted(node.Emission{Pin: "out", Packet: packet.Packet{
		Variant: packet.VariantTranscription,
		Transcription: &packet.Transcription{
			FullText: fullText,
			Segments: segments,
		},
	}})
}
