// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package controlplane_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/streamkit-oss/streamkit/internal/controlplane"
	"github.com/streamkit-oss/streamkit/internal/engine"
	"github.com/streamkit-oss/streamkit/internal/fabric"
	"github.com/streamkit-oss/streamkit/internal/node"
	"github.com/streamkit-oss/streamkit/internal/node/builtins"
)

type nopObserver struct{}

func (nopObserver) NodeStateChanged(string, engine.State, engine.StopReason) {}
func (nopObserver) NodeStatsUpdated(string, engine.StatsSnapshot)            {}
func (nopObserver) ConnectionClosed(string, string, string, string)         {}

// recordingPublisher counts each event kind it receives, guarded by a
// mutex since the control plane's Run goroutine calls it.
type recordingPublisher struct {
	mu                     sync.Mutex
	added, removed         int
	connAdded, connRemoved int
	paramsChanged          int
}

func (p *recordingPublisher) NodeAdded(string, string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added++
}
func (p *recordingPublisher) NodeRemoved(string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed++
}
func (p *recordingPublisher) ConnectionAdded(string, string, string, string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connAdded++
}
func (p *recordingPublisher) ConnectionRemoved(string, string, string, string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connRemoved++
}
func (p *recordingPublisher) NodeParamsChanged(string, string, json.RawMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paramsChanged++
}

func newTestHarness(t *testing.T, limiter *rate.Limiter) (*controlplane.ControlPlane, *recordingPublisher, func()) {
	t.Helper()
	reg := node.NewRegistry()
	require.NoError(t, builtins.RegisterAll(reg))

	eng := engine.New(reg, nopObserver{}, 8, time.Second)
	pub := &recordingPublisher{}
	cp := controlplane.New("sess-1", eng, reg, pub, limiter)

	ctx, cancel := context.WithCancel(context.Background())
	go cp.Run(ctx)

	cleanup := func() {
		cancel()
		require.NoError(t, eng.Stop(context.Background()))
	}
	return cp, pub, cleanup
}

func TestControlPlane_AddConnectDisconnectRemove(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cp, pub, cleanup := newTestHarness(t, nil)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cp.AddNode(ctx, "a", "core::passthrough", nil))
	require.NoError(t, cp.AddNode(ctx, "b", "media::http_output", nil))

	require.NoError(t, cp.Connect(ctx, "a", "out", "b", "in", fabric.Reliable))
	assert.Equal(t, 1, pub.connAdded)

	require.NoError(t, cp.Disconnect(ctx, "a", "out", "b", "in"))
	assert.Equal(t, 1, pub.connRemoved)

	require.NoError(t, cp.RemoveNode(ctx, "a"))
	require.NoError(t, cp.RemoveNode(ctx, "b"))
	assert.Equal(t, 2, pub.removed)
	assert.Equal(t, 2, pub.added)
}

func TestControlPlane_AddNodeRejectsDuplicate(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cp, _, cleanup := newTestHarness(t, nil)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cp.AddNode(ctx, "a", "core::passthrough", nil))
	err := cp.AddNode(ctx, "a", "core::passthrough", nil)
	assert.Error(t, err)
	assert.IsType(t, &engine.DuplicateNodeError{}, err)
}

func TestControlPlane_ConnectRejectsCardinalityViolation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cp, _, cleanup := newTestHarness(t, nil)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cp.AddNode(ctx, "p1", "core::passthrough", nil))
	require.NoError(t, cp.AddNode(ctx, "p2", "core::passthrough", nil))
	require.NoError(t, cp.AddNode(ctx, "sink", "core::passthrough", nil))

	require.NoError(t, cp.Connect(ctx, "p1", "out", "sink", "in", fabric.Reliable))
	err := cp.Connect(ctx, "p2", "out", "sink", "in", fabric.Reliable)
	assert.Error(t, err)
	assert.IsType(t, &controlplane.CardinalityViolationError{}, err)
}

func TestControlPlane_ConnectRejectsCycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cp, _, cleanup := newTestHarness(t, nil)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cp.AddNode(ctx, "a", "core::passthrough", nil))
	require.NoError(t, cp.AddNode(ctx, "b", "core::passthrough", nil))

	require.NoError(t, cp.Connect(ctx, "a", "out", "b", "in", fabric.Reliable))
	err := cp.Connect(ctx, "b", "out", "a", "in", fabric.Reliable)
	assert.Error(t, err)
	assert.IsType(t, &controlplane.CycleError{}, err)
}

func TestControlPlane_TuneParamsRejectsUntunableNode(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cp, _, cleanup := newTestHarness(t, nil)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cp.AddNode(ctx, "a", "core::passthrough", nil))
	err := cp.TuneParams(ctx, "a", []byte(`{"anything":1}`))
	assert.Error(t, err)
	assert.IsType(t, &node.NotTunableError{}, err)
}

func TestControlPlane_TuneParamsAppliesTunableField(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cp, pub, cleanup := newTestHarness(t, nil)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cp.AddNode(ctx, "g", "audio::gain", []byte(`{"factor":1.0}`)))
	require.NoError(t, cp.TuneParams(ctx, "g", []byte(`{"factor":2.5}`)))
	assert.Equal(t, 1, pub.paramsChanged)
}

func TestControlPlane_RateLimitExceeded(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	limiter := rate.NewLimiter(0, 1) // one token, never refills
	cp, _, cleanup := newTestHarness(t, limiter)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, cp.AddNode(ctx, "a", "core::passthrough", nil))
	err := cp.AddNode(ctx, "b", "core::passthrough", nil)
	assert.Error(t, err)
	assert.IsType(t, &controlplane.RateLimitedError{}, err)
}
