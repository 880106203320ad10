// Package stats maintains rolling capture statistics and rate estimation.
package stats

import (
	"sync"
	"time"

	"netscope.xyz/netscope/internal/core"
)

const defaultWindow = 10 * time.Second

// Aggregator holds the rolling counters for the pipeline. It is owned by the
// pipeline engine and passed by handle to readers; lifecycle is tied to
// pipeline start/stop, not process globals. Record is called by the single
// pipeline worker; Snapshot may be called concurrently by many readers. Both
// hold the lock only for a short bounded section.
type Aggregator struct {
	mu     sync.Mutex
	window time.Duration
	total  int64
	bytes  int64
	counts map[core.Protocol]int64
	times  []time.Time // trailing window of record timestamps, oldest first

	// dropFn reports the capture queue's dropped counter, surfaced in
	// snapshots. Nil until wired by the engine.
	dropFn func() uint64
}

// New creates an aggregator with the given trailing rate window.
func New(window time.Duration) *Aggregator {
	if window <= 0 {
		window = defaultWindow
	}
	return &Aggregator{
		window: window,
		counts: make(map[core.Protocol]int64),
	}
}

// SetDropCounter wires the source of the dropped-packet count.
func (a *Aggregator) SetDropCounter(fn func() uint64) {
	a.mu.Lock()
	a.dropFn = fn
	a.mu.Unlock()
}

// Record folds one classified packet into the counters and appends its
// timestamp to the rate window, evicting entries older than the window.
func (a *Aggregator) Record(rec core.PacketRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.bytes += int64(rec.Size)
	a.counts[rec.Protocol]++

	a.times = append(a.times, rec.Timestamp)
	a.prune(time.Now())
}

// prune drops window entries older than the cutoff. Caller holds the lock.
func (a *Aggregator) prune(now time.Time) {
	cutoff := now.Add(-a.window)
	i := 0
	for i < len(a.times) && a.times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		a.times = append(a.times[:0], a.times[i:]...)
	}
}

// Snapshot returns an immutable point-in-time copy computed under a single
// consistent read. Rate is window entries over window seconds; an empty
// window yields zero.
func (a *Aggregator) Snapshot() core.StatsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	a.prune(now)

	counts := make(map[core.Protocol]int64, len(a.counts))
	for p, c := range a.counts {
		counts[p] = c
	}

	var rate float64
	if len(a.times) > 0 {
		rate = float64(len(a.times)) / a.window.Seconds()
	}

	var dropped uint64
	if a.dropFn != nil {
		dropped = a.dropFn()
	}

	return core.StatsSnapshot{
		TotalPackets:   a.total,
		TotalBytes:     a.bytes,
		ProtocolCounts: counts,
		CaptureRate:    rate,
		Window:         a.window,
		DroppedPackets: dropped,
		TakenAt:        now,
	}
}

// Total returns the running packet total without building a full snapshot.
func (a *Aggregator) Total() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Reset clears all counters and the rate window. Called at session start.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total = 0
	a.bytes = 0
	a.counts = make(map[core.Protocol]int64)
	a.times = a.times[:0]
}
