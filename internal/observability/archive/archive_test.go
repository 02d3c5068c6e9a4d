// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package archive

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamkit-oss/streamkit/internal/observability"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestArchive_AppendAndRecent(t *testing.T) {
	a := openTestArchive(t)

	require.NoError(t, a.Append(observability.Event{Type: observability.EventNodeAdded, SessionID: "s1", NodeID: "n1"}))
	require.NoError(t, a.Append(observability.Event{Type: observability.EventNodeRemoved, SessionID: "s1", NodeID: "n1"}))

	got, err := a.Recent("s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, observability.EventNodeAdded, got[0].Type)
	require.Equal(t, observability.EventNodeRemoved, got[1].Type)
}

func TestArchive_RecentIsolatesBySession(t *testing.T) {
	a := openTestArchive(t)

	require.NoError(t, a.Append(observability.Event{Type: observability.EventNodeAdded, SessionID: "s1"}))
	require.NoError(t, a.Append(observability.Event{Type: observability.EventNodeAdded, SessionID: "s2"}))

	got, err := a.Recent("s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestArchive_TrimsOldestBeyondCapacity(t *testing.T) {
	a := openTestArchive(t)
	a.capacity = 3

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Append(observability.Event{
			Type: observability.EventNodeTelemetry, SessionID: "s1",
			TelemetryType: fmt.Sprintf("evt-%d", i),
		}))
	}

	got, err := a.Recent("s1", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "evt-2", got[0].TelemetryType)
	require.Equal(t, "evt-3", got[1].TelemetryType)
	require.Equal(t, "evt-4", got[2].TelemetryType)
}

func TestArchive_RecentLimitsToMostRecent(t *testing.T) {
	a := openTestArchive(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Append(observability.Event{
			Type: observability.EventNodeTelemetry, SessionID: "s1",
			TelemetryType: fmt.Sprintf("evt-%d", i),
		}))
	}

	got, err := a.Recent("s1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "evt-3", got[0].TelemetryType)
	require.Equal(t, "evt-4", got[1].TelemetryType)
}
