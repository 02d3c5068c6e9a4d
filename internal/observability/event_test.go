// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncate_LeavesSmallPayloadUntouched(t *testing.T) {
	data := []byte("small payload")
	out, truncated := truncate(data)
	require.False(t, truncated)
	require.Equal(t, data, out)
}

func TestTruncate_CapsOversizedPayload(t *testing.T) {
	data := bytes.Repeat([]byte("x"), maxTelemetryBytes+100)
	out, truncated := truncate(data)
	require.True(t, truncated)
	require.Len(t, out, maxTelemetryBytes)
	require.Equal(t, data[:maxTelemetryBytes], out)
}

func TestTruncate_ExactBoundaryNotTruncated(t *testing.T) {
	data := bytes.Repeat([]byte("y"), maxTelemetryBytes)
	out, truncated := truncate(data)
	require.False(t, truncated)
	require.Equal(t, data, out)
}
