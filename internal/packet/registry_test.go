// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompatible_AnyAcceptsEverything(t *testing.T) {
	assert.True(t, Compatible(Type{Variant: VariantText}, Any))
	assert.True(t, Compatible(Type{Variant: VariantRawAudio, SampleRate: 48000}, Any))
}

func TestCompatible_PassthroughAlwaysMatchesAtProducer(t *testing.T) {
	assert.True(t, Compatible(Passthrough, Type{Variant: VariantBinary}))
}

func TestCompatible_VariantMismatchRejected(t *testing.T) {
	assert.False(t, Compatible(Type{Variant: VariantText}, Type{Variant: VariantBinary}))
}

func TestCompatible_RawAudioWildcardFields(t *testing.T) {
	producer := Type{Variant: VariantRawAudio, SampleRate: 48000, Channels: 2}
	consumer := Type{Variant: VariantRawAudio, SampleRate: 0, Channels: 2}
	assert.True(t, Compatible(producer, consumer), "sample_rate=0 on consumer is a wildcard")

	mismatched := Type{Variant: VariantRawAudio, SampleRate: 16000, Channels: 2}
	assert.False(t, Compatible(producer, mismatched))
}

func TestCompatible_OpusIsExact(t *testing.T) {
	assert.True(t, Compatible(Type{Variant: VariantOpus}, Type{Variant: VariantOpus}))
}

type fakeGraph struct {
	outputs map[string]Type
	edges   map[string][2]string
}

func (g fakeGraph) OutputType(nodeID, pin string) (Type, bool) {
	t, ok := g.outputs[nodeID+"/"+pin]
	return t, ok
}

func (g fakeGraph) FirstInputEdge(nodeID string) (string, string, bool) {
	e, ok := g.edges[nodeID]
	return e[0], e[1], ok
}

func TestResolvePassthrough_Direct(t *testing.T) {
	g := fakeGraph{
		outputs: map[string]Type{
			"a/out": {Variant: VariantBinary, ContentType: "application/octet-stream"},
			"b/out": Passthrough,
		},
		edges: map[string][2]string{
			"b": {"a", "out"},
		},
	}
	got, err := ResolvePassthrough(g, "b", "out")
	require.NoError(t, err)
	assert.Equal(t, VariantBinary, got.Variant)
}

func TestResolvePassthrough_Chained(t *testing.T) {
	g := fakeGraph{
		outputs: map[string]Type{
			"a/out": {Variant: VariantText},
			"b/out": Passthrough,
			"c/out": Passthrough,
		},
		edges: map[string][2]string{
			"b": {"a", "out"},
			"c": {"b", "out"},
		},
	}
	got, err := ResolvePassthrough(g, "c", "out")
	require.NoError(t, err)
	assert.Equal(t, VariantText, got.Variant)
}

func TestResolvePassthrough_NoUpstreamEdge(t *testing.T) {
	g := fakeGraph{
		outputs: map[string]Type{"a/out": Passthrough},
		edges:   map[string][2]string{},
	}
	_, err := ResolvePassthrough(g, "a", "out")
	require.Error(t, err)
	var target *ErrNoUpstreamEdge
	assert.ErrorAs(t, err, &target)
}

func TestFormatAndColorAreAdvisoryOnly(t *testing.T) {
	assert.NotEmpty(t, Format(Type{Variant: VariantOpus}))
	assert.NotEmpty(t, Color(Type{Variant: VariantOpus}))
}
