// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package pipelinecore

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/node/builtins"
	"github.com/streamkit-oss/streamkit/internal/packet"
)

func newRegistry(t *testing.T) *node.Registry {
	t.Helper()
	reg := node.NewRegistry()
	require.NoError(t, builtins.RegisterAll(reg))
	return reg
}

// S1: file_reader -> ogg_demuxer -> opus_decoder -> whisper_stt -> json_serialize -> http_output.
func TestCompile_OneshotTranscodeChain(t *testing.T) {
	doc, err := ParseDocument([]byte(`
mode: oneshot
steps:
  - kind: media::file_reader
    params: { path: /tmp/clip.ogg }
  - kind: audio::ogg::demuxer
  - kind: audio::opus::decoder
  - kind: ml::whisper_stt
  - kind: core::json_serialize
  - kind: media::http_output
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	plan, err := Compile(doc, reg)
	require.NoError(t, err)
	assert.Len(t, plan.Nodes, 6)
	assert.Len(t, plan.Connections, 5)
	assert.Equal(t, "media::file_reader_0", plan.Nodes[0].ID)
}

// S2: file_reader -> passthrough -> http_output; the Binary type flows
// through the Passthrough sentinel unchanged.
func TestCompile_PassthroughTypeInference(t *testing.T) {
	doc, err := ParseDocument([]byte(`
mode: oneshot
steps:
  - kind: media::file_reader
    params: { path: /tmp/clip.bin }
  - kind: core::passthrough
  - kind: media::http_output
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	plan, err := Compile(doc, reg)
	require.NoError(t, err)
	require.Len(t, plan.Connections, 2)
	for _, c := range plan.Connections {
		assert.Equal(t, packet.VariantBinary, c.Type.Variant)
	}
}

// S5: a direct two-node cycle with neither node declared bidirectional
// (two core::passthrough nodes feeding each other) must be rejected
// with a typed Cycle error.
func TestCompile_CycleRejected(t *testing.T) {
	doc, err := ParseDocument([]byte(`
mode: dynamic
nodes:
  a:
    kind: core::passthrough
    needs: b
  b:
    kind: core::passthrough
    needs: a
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	_, err = Compile(doc, reg)
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Nodes)
}

// A cycle through a node declared Bidirectional is accepted: the edge
// into it is treated as a breakable loop-back, not a hard cycle.
func TestCompile_LoopBackThroughBidirectionalNodeAccepted(t *testing.T) {
	doc, err := ParseDocument([]byte(`
mode: dynamic
nodes:
  gain_a:
    kind: audio::gain
    params: { factor: 1.0 }
    needs: tap
  tap:
    kind: audio::feedback_tap
    needs: gain_a
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	plan, err := Compile(doc, reg)
	require.NoError(t, err)
	assert.Len(t, plan.Nodes, 2)
	assert.Len(t, plan.Connections, 2)
}

func TestCompile_UnknownKindRejected(t *testing.T) {
	doc, err := ParseDocument([]byte(`
mode: oneshot
steps:
  - kind: does::not::exist
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	_, err = Compile(doc, reg)
	require.Error(t, err)
	var unknownErr *UnknownKindError
	require.ErrorAs(t, err, &unknownErr)
}

func TestCompile_TypeMismatchRejected(t *testing.T) {
	doc, err := ParseDocument([]byte(`
mode: oneshot
steps:
  - kind: media::file_reader
    params: { path: /tmp/x.bin }
  - kind: ml::whisper_stt
  - kind: media::http_output
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	_, err = Compile(doc, reg)
	require.Error(t, err)
	var mismatch *TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestCompile_OneshotRequiresExactlyOneSourceAndSink(t *testing.T) {
	doc, err := ParseDocument([]byte(`
mode: oneshot
steps:
  - kind: core::passthrough
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	_, err = Compile(doc, reg)
	require.Error(t, err)
	var structErr *StructuralError
	require.ErrorAs(t, err, &structErr)
}

// DAG shape: a single "needs" entry wires dep.out -> target.in
// directly, with no sequential suffix (spec.md §4.3).
func TestCompile_DAGSingleNeedsWiresDefaultPin(t *testing.T) {
	doc, err := ParseDocument([]byte(`
mode: dynamic
nodes:
  src_a:
    kind: media::file_reader
    params: { path: /tmp/a.bin }
  src_b:
    kind: media::file_reader
    params: { path: /tmp/b.bin }
  sink:
    kind: media::http_output
    needs: [src_a]
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	plan, err := Compile(doc, reg)
	require.NoError(t, err)
	require.Len(t, plan.Connections, 1)

	want := PlanConnection{
		FromNode: "src_a", FromPin: "out",
		ToNode: "sink", ToPin: "in",
		Type: packet.Type{Variant: packet.VariantBinary},
		Mode: ModeReliable,
	}
	if diff := cmp.Diff(want, plan.Connections[0]); diff != "" {
		t.Fatalf("single `needs` entry must default to the sink's only input pin (-want +got):\n%s", diff)
	}
}
