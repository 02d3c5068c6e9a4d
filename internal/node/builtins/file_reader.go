// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

// KindFileReader reads a file from local disk and emits its contents on
// "out" as Binary packets of at most chunk_size bytes (default 64 KiB),
// then completes.
const KindFileReader = "media::file_reader"

type fileReaderParams struct {
	Path      string `json:"path"`
	ChunkSize int    `json:"chunk_size,omitempty"`
}

type fileReader struct {
	base
	params fileReaderParams
}

// NewFileReaderKind returns the file_reader builtin kind.
func NewFileReaderKind() node.Kind {
	return node.Kind{
		Metadata: node.Metadata{
			Kind:       KindFileReader,
			Categories: []string{"source", "io"},
			OutputPins: []node.Pin{outputPin("out", packet.Type{Variant: packet.VariantBinary})},
			ParamSchema: mustSchema(`{
				"type": "object",
				"required": ["path"],
				"properties": {
					"path": {"type": "string"},
					"chunk_size": {"type": "integer", "x-tunable": false}
				}
			}`),
		},
		Construct: func(params json.RawMessage) (node.Instance, error) {
			var p fileReaderParams
			if len(params) > 0 {
				if err := json.Unmarshal(params, &p); err != nil {
					return nil, &node.ConfigError{Kind: KindFileReader, Reason: err.Error()}
				}
			}
			if p.Path == "" {
				return nil, &node.ConfigError{Kind: KindFileReader, Reason: "path is required"}
			}
			if p.ChunkSize <= 0 {
				p.ChunkSize = 64 * 1024
			}
			return &fileReader{params: p}, nil
		},
	}
}

func (f *fileReader) Process(context.Context, string, packet.Packet) node.Result {
	return node.Failed("ProcessError", "file_reader has no input pins")
}

func (f *fileReader) Run(ctx context.Context, emit func(pin string, p packet.Packet) error) error {
	file, err := os.Open(f.params.Path)
	if err != nil {
		return fmt.Errorf("open %q: %w", f.params.Path, err)
	}
	defer file.Close()

	buf := make([]byte, f.params.ChunkSize)
	var seq uint64
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, readErr := file.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p := packet.Packet{Variant: packet.VariantBinary, Binary: &packet.Binary{
				Data:   chunk,
				Timing: &packet.Timing{Sequence: seq},
			}}
			seq++
			if emitErr := emit("out", p); emitErr != nil {
				return emitErr
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
