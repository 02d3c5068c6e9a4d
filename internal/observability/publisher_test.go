// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package observability

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamkit-oss/streamkit/internal/engine"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestSessionPublisher_NodeStateChanged(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("sess-1")
	defer unsubscribe()

	p := NewSessionPublisher("sess-1", b)
	p.NodeStateChanged("node-1", engine.Running, engine.ReasonShutdown)

	ev := recv(t, ch)
	require.Equal(t, EventNodeStateChanged, ev.Type)
	require.Equal(t, "sess-1", ev.SessionID)
	require.Equal(t, "node-1", ev.NodeID)
	require.Equal(t, engine.Running.String(), ev.State)
	require.Equal(t, string(engine.ReasonShutdown), ev.Reason)
}

func TestSessionPublisher_NodeStatsUpdated(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("sess-1")
	defer unsubscribe()

	p := NewSessionPublisher("sess-1", b)
	p.NodeStatsUpdated("node-1", engine.StatsSnapshot{Received: 3, Sent: 2, Discarded: 1, Errored: 0, WallClockMs: 42})

	ev := recv(t, ch)
	require.Equal(t, EventNodeStatsUpdated, ev.Type)
	require.NotNil(t, ev.Stats)
	require.Equal(t, uint64(3), ev.Stats.Received)
	require.Equal(t, uint64(2), ev.Stats.Sent)
	require.Equal(t, uint64(1), ev.Stats.Discarded)
	require.Equal(t, int64(42), ev.Stats.WallClockMs)
}

func TestSessionPublisher_ControlPlaneCallbacks(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("sess-1")
	defer unsubscribe()

	p := NewSessionPublisher("sess-1", b)

	p.NodeAdded("sess-1", "node-1", "core::passthrough")
	ev := recv(t, ch)
	require.Equal(t, EventNodeAdded, ev.Type)
	require.Equal(t, "core::passthrough", ev.Kind)

	p.NodeRemoved("sess-1", "node-1")
	ev = recv(t, ch)
	require.Equal(t, EventNodeRemoved, ev.Type)

	p.ConnectionAdded("sess-1", "node-1", "out", "node-2", "in")
	ev = recv(t, ch)
	require.Equal(t, EventConnectionAdded, ev.Type)
	require.Equal(t, "node-1", ev.FromNode)
	require.Equal(t, "out", ev.FromPin)
	require.Equal(t, "node-2", ev.ToNode)
	require.Equal(t, "in", ev.ToPin)

	p.ConnectionRemoved("sess-1", "node-1", "out", "node-2", "in")
	ev = recv(t, ch)
	require.Equal(t, EventConnectionRemoved, ev.Type)

	params := json.RawMessage(`{"gain":1.5}`)
	p.NodeParamsChanged("sess-1", "node-1", params)
	ev = recv(t, ch)
	require.Equal(t, EventNodeParamsChanged, ev.Type)
	require.JSONEq(t, `{"gain":1.5}`, string(ev.Params))
}

func TestSessionPublisher_PublishTelemetryTruncates(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe("sess-1")
	defer unsubscribe()

	p := NewSessionPublisher("sess-1", b)
	big := make([]byte, maxTelemetryBytes+10)
	p.PublishTelemetry("node-1", "vu_meter", big, 12345)

	ev := recv(t, ch)
	require.Equal(t, EventNodeTelemetry, ev.Type)
	require.Equal(t, "vu_meter", ev.TelemetryType)
	require.True(t, ev.Truncated)
	require.Len(t, ev.Data, maxTelemetryBytes)
	require.Equal(t, int64(12345), ev.TimestampUnix)
}
