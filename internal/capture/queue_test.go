package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netscope.xyz/netscope/internal/core"
	"netscope.xyz/netscope/internal/metrics"
)

func rawWithByte(b byte) core.RawPacket {
	return core.RawPacket{Data: []byte{b}, Timestamp: time.Now(), CaptureLen: 1, OrigLen: 1}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(8, time.Millisecond)
	for i := byte(0); i < 5; i++ {
		require.NoError(t, q.Push(rawWithByte(i)))
	}

	ctx := context.Background()
	for i := byte(0); i < 5; i++ {
		p, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, p.Data[0])
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueueEvictsOldestWhenFull(t *testing.T) {
	q := NewQueue(2, time.Millisecond)
	require.NoError(t, q.Push(rawWithByte(0)))
	require.NoError(t, q.Push(rawWithByte(1)))
	// Queue full and no consumer: after the bounded block the oldest entry
	// is evicted, never the push silently discarded.
	require.NoError(t, q.Push(rawWithByte(2)))

	assert.Equal(t, uint64(1), q.Dropped())

	p, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(1), p.Data[0], "oldest entry should have been evicted")
}

func TestQueueBlocksUntilConsumerDrains(t *testing.T) {
	q := NewQueue(1, 500*time.Millisecond)
	require.NoError(t, q.Push(rawWithByte(0)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Push(rawWithByte(1))
	}()

	// Consume while the producer is blocked; no packet should be dropped.
	time.Sleep(20 * time.Millisecond)
	_, err := q.Pop(context.Background())
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push did not complete after drain")
	}
	assert.Equal(t, uint64(0), q.Dropped())
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(4, time.Millisecond)
	require.NoError(t, q.Push(rawWithByte(0)))
	q.Close()

	assert.ErrorIs(t, q.Push(rawWithByte(1)), core.ErrQueueClosed)

	// Remaining entries drain before the closed error surfaces.
	ctx := context.Background()
	_, err := q.Pop(ctx)
	require.NoError(t, err)
	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, core.ErrQueueClosed)
}

func TestQueuePopRespectsContext(t *testing.T) {
	q := NewQueue(4, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestQueueDiscard(t *testing.T) {
	q := NewQueue(8, time.Millisecond)
	for i := byte(0); i < 5; i++ {
		require.NoError(t, q.Push(rawWithByte(i)))
	}
	q.Discard()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, uint64(5), q.Dropped())
}

func TestQueueDropsReachDroppedMetric(t *testing.T) {
	before := testutil.ToFloat64(metrics.DroppedPacketsTotal)

	q := NewQueue(1, time.Millisecond)
	require.NoError(t, q.Push(rawWithByte(0)))
	require.NoError(t, q.Push(rawWithByte(1))) // evicts packet 0

	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.DroppedPacketsTotal))
}

func TestQueueDiscardAfterCloseCountsResidue(t *testing.T) {
	q := NewQueue(8, time.Millisecond)
	for i := byte(0); i < 3; i++ {
		require.NoError(t, q.Push(rawWithByte(i)))
	}
	q.Close()

	// Frames still buffered at close time are accounted for, not lost.
	q.Discard()
	assert.Equal(t, uint64(3), q.Dropped())
	assert.Equal(t, 0, q.Len())
}
