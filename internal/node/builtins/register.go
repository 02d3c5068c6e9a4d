// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import "github.com/streamkit-oss/streamkit/internal/node"

// RegisterAll registers every reference builtin kind into r. Intended
// for demo hosts and tests; a production deployment would register
// only the kinds its node implementations actually cover.
func RegisterAll(r *node.Registry) error {
	kinds := []node.Kind{
		NewFileReaderKind(),
		NewHTTPInputKind(),
		NewHTTPOutputKind(),
		NewOggDemuxerKind(),
		NewOpusDecoderKind(),
		NewResamplerKind(),
		NewPassthroughKind(),
		NewGainKind(),
		NewJSONSerializeKind(),
		NewWhisperSTTKind(),
		NewFeedbackTapKind(),
	}
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			return err
		}
	}
	return nil
}
