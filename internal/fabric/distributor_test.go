// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package fabric

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamkit-oss/streamkit/internal/packet"
)

func TestDistributor_ReliableBlocksUntilConsumerDrains(t *testing.T) {
	d := NewDistributor("node", "out")
	ch := NewChannel(packet.VariantBinary, 1)
	d.Attach("consumer-1", ch, Reliable)

	ref1 := packet.NewRef(packet.Packet{Variant: packet.VariantBinary}, nil)
	require.NoError(t, d.Publish(context.Background(), ref1))

	done := make(chan error, 1)
	ref2 := packet.NewRef(packet.Packet{Variant: packet.VariantBinary}, nil)
	go func() { done <- d.Publish(context.Background(), ref2) }()

	select {
	case <-done:
		t.Fatal("Publish should have blocked with the consumer channel full")
	case <-time.After(20 * time.Millisecond):
	}

	<-ch.Recv()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Publish did not unblock after the consumer drained")
	}
}

func TestDistributor_ReliablePublishRespectsCancellation(t *testing.T) {
	d := NewDistributor("node", "out")
	ch := NewChannel(packet.VariantBinary, 1)
	d.Attach("consumer-1", ch, Reliable)

	ref1 := packet.NewRef(packet.Packet{Variant: packet.VariantBinary}, nil)
	require.NoError(t, d.Publish(context.Background(), ref1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ref2 := packet.NewRef(packet.Packet{Variant: packet.VariantBinary}, nil)
	err := d.Publish(ctx, ref2)
	require.Error(t, err)
}

func TestDistributor_BestEffortDropsWithoutBlocking(t *testing.T) {
	d := NewDistributor("node", "out")
	ch := NewChannel(packet.VariantBinary, 1)
	d.Attach("consumer-1", ch, BestEffort)

	ref1 := packet.NewRef(packet.Packet{Variant: packet.VariantBinary}, nil)
	require.NoError(t, d.Publish(context.Background(), ref1))

	ref2 := packet.NewRef(packet.Packet{Variant: packet.VariantBinary}, nil)
	require.NoError(t, d.Publish(context.Background(), ref2))

	first := <-ch.Recv()
	assert.NotNil(t, first)
	select {
	case <-ch.Recv():
		t.Fatal("expected the second packet to have been dropped, not queued")
	default:
	}
}

func TestDistributor_FanOutToMultipleConsumersIsZeroCopy(t *testing.T) {
	d := NewDistributor("node", "out")
	chA := NewChannel(packet.VariantBinary, 1)
	chB := NewChannel(packet.VariantBinary, 1)
	d.Attach("a", chA, Reliable)
	d.Attach("b", chB, BestEffort)

	ref := packet.NewRef(packet.Packet{Variant: packet.VariantBinary, Binary: &packet.Binary{Data: []byte("x")}}, nil)
	require.NoError(t, d.Publish(context.Background(), ref))

	a := <-chA.Recv()
	b := <-chB.Recv()
	assert.Equal(t, a.Packet().Binary.Data, b.Packet().Binary.Data)
	assert.Same(t, a.Packet().Binary, b.Packet().Binary)
}
