// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package engine_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/streamkit-oss/streamkit/internal/engine"
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/node/builtins"
	"github.com/streamkit-oss/streamkit/internal/pipelinecore"
)

func newRegistry(t *testing.T) *node.Registry {
	t.Helper()
	reg := node.NewRegistry()
	require.NoError(t, builtins.RegisterAll(reg))
	return reg
}

// nopObserver discards lifecycle notifications; tests that care about
// them install their own.
type nopObserver struct{}

func (nopObserver) NodeStateChanged(string, engine.State, engine.StopReason) {}
func (nopObserver) NodeStatsUpdated(string, engine.StatsSnapshot)            {}
func (nopObserver) ConnectionClosed(string, string, string, string)         {}

func TestEngine_OneshotChainRunsToCompletion(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	f, err := os.CreateTemp(t.TempDir(), "clip-*.bin")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello streamkit"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	doc, err := pipelinecore.ParseDocument([]byte(`
mode: oneshot
steps:
  - kind: media::file_reader
    params: { path: ` + f.Name() + ` }
  - kind: core::passthrough
  - kind: media::http_output
`))
	require.NoError(t, err)

	reg := newRegistry(t)
	plan, err := pipelinecore.Compile(doc, reg)
	require.NoError(t, err)

	e := engine.New(reg, nopObserver{}, 8, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Start(ctx, plan))
	e.Wait()

	for _, n := range plan.Nodes {
		state, ok := e.NodeState(n.ID)
		require.True(t, ok)
		assert.NotEqual(t, engine.Failed, state, "node %s", n.ID)
	}

	require.NoError(t, e.Stop(context.Background()))
}

func TestEngine_StopCancelsRunningNodes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := newRegistry(t)
	doc, err := pipelinecore.ParseDocument([]byte(`
mode: dynamic
steps:
  - kind: media::http_input
  - kind: core::passthrough
  - kind: media::http_output
`))
	require.NoError(t, err)
	plan, err := pipelinecore.Compile(doc, reg)
	require.NoError(t, err)

	e := engine.New(reg, nopObserver{}, 8, time.Second)
	ctx := context.Background()
	require.NoError(t, e.Start(ctx, plan))

	// http_input blocks on its feed channel until fed or canceled; Stop
	// must unblock it within the shutdown deadline.
	done := make(chan struct{})
	go func() {
		require.NoError(t, e.Stop(context.Background()))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; running node task leaked")
	}
}

func TestEngine_RemoveNodeDetachesAndDrains(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := newRegistry(t)
	doc, err := pipelinecore.ParseDocument([]byte(`
mode: dynamic
steps:
  - kind: media::http_input
  - kind: media::http_output
`))
	require.NoError(t, err)
	plan, err := pipelinecore.Compile(doc, reg)
	require.NoError(t, err)

	e := engine.New(reg, nopObserver{}, 8, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, e.Start(ctx, plan))

	sinkID := plan.Nodes[1].ID
	require.NoError(t, e.RemoveNode(context.Background(), sinkID))

	_, ok := e.NodeState(sinkID)
	assert.False(t, ok)

	require.NoError(t, e.Stop(context.Background()))
}
