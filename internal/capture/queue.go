package capture

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"netscope.xyz/netscope/internal/core"
	"netscope.xyz/netscope/internal/metrics"
)

const defaultBlockWait = 250 * time.Millisecond

// Queue is the bounded buffer between the capture source and the pipeline
// worker. When full, the producer blocks up to blockWait; after that the
// oldest unconsumed entry is evicted and counted as dropped. Packets are
// never dropped silently; the counter is surfaced in StatsSnapshot.
type Queue struct {
	ch        chan core.RawPacket
	blockWait time.Duration
	dropped   atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a queue with the given capacity. blockWait <= 0 selects
// the default producer block time.
func NewQueue(capacity int, blockWait time.Duration) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	if blockWait <= 0 {
		blockWait = defaultBlockWait
	}
	return &Queue{
		ch:        make(chan core.RawPacket, capacity),
		blockWait: blockWait,
	}
}

// Push delivers a packet to the queue. It blocks up to the configured wait
// when the queue is full, then evicts the oldest entry to make room.
// Returns core.ErrQueueClosed after Close.
func (q *Queue) Push(p core.RawPacket) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return core.ErrQueueClosed
	}

	select {
	case q.ch <- p:
		return nil
	default:
	}

	timer := time.NewTimer(q.blockWait)
	defer timer.Stop()

	select {
	case q.ch <- p:
		return nil
	case <-timer.C:
		// Evict the oldest unconsumed entry, then retry once. If a reader
		// raced us and the queue is full again, the new packet is the drop.
		select {
		case <-q.ch:
			q.drop()
		default:
		}
		select {
		case q.ch <- p:
		default:
			q.drop()
		}
		return nil
	}
}

// Pop blocks until a packet is available, the context is cancelled, or the
// queue is closed and drained.
func (q *Queue) Pop(ctx context.Context) (core.RawPacket, error) {
	select {
	case p, ok := <-q.ch:
		if !ok {
			return core.RawPacket{}, core.ErrQueueClosed
		}
		return p, nil
	case <-ctx.Done():
		return core.RawPacket{}, ctx.Err()
	}
}

// Len returns the number of unconsumed packets.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns the total number of evicted packets.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Discard removes all in-flight packets, counting each as dropped. Used by
// callers that need an immediate halt instead of a graceful drain.
func (q *Queue) Discard() {
	for {
		select {
		case _, ok := <-q.ch:
			if !ok {
				return
			}
			q.drop()
		default:
			return
		}
	}
}

func (q *Queue) drop() {
	q.dropped.Add(1)
	metrics.DroppedPacketsTotal.Inc()
}

// Close stops accepting packets. Consumers drain the remaining entries and
// then receive core.ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
