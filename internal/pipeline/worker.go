package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"netscope.xyz/netscope/internal/classify"
	"netscope.xyz/netscope/internal/core"
	"netscope.xyz/netscope/internal/metrics"
)

// worker is the single processing goroutine of a capture run: queue pop,
// classify, tag, stats, store, optional publish. Statistics are updated
// strictly before the store write so a snapshot never lags the store.
func (e *Engine) worker(ctx context.Context, r *captureRun) {
	defer r.wg.Done()

	for {
		raw, err := r.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, core.ErrQueueClosed) && !errors.Is(err, context.Canceled) {
				slog.Error("queue pop failed", "error", err)
			}
			return
		}
		metrics.QueueDepth.Set(float64(r.queue.Len()))

		e.process(raw, r)

		if r.maxPackets > 0 {
			r.processed++
			if r.processed >= r.maxPackets {
				// Hard budget: anything still queued is discarded (and
				// counted as dropped) rather than processed past the limit.
				r.queue.Discard()
				go e.autoStop(r, "packet budget reached")
				return
			}
		}
	}
}

// process handles one raw frame. Failures never abort the run: a failed store
// write degrades the session and a failed publish is logged and counted.
func (e *Engine) process(raw core.RawPacket, r *captureRun) {
	start := time.Now()

	rec := classify.Classify(raw)
	rec = e.sessions.Tag(rec)

	metrics.CapturedPacketsTotal.WithLabelValues(r.source.Name(), string(rec.Protocol)).Inc()
	e.stats.Record(rec)

	id, err := e.store.Append(rec)
	if err != nil {
		metrics.StoreWritesTotal.WithLabelValues(metrics.ResultError).Inc()
		if errors.Is(err, core.ErrStoreWrite) {
			e.sessions.Degrade()
		}
		slog.Error("store append failed", "session_id", r.sessionID, "error", err)
	} else {
		metrics.StoreWritesTotal.WithLabelValues(metrics.ResultOK).Inc()
		rec.ID = id
	}

	if e.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := e.publisher.Publish(pubCtx, rec); err != nil {
			metrics.PublishedRecordsTotal.WithLabelValues(metrics.ResultError).Inc()
			slog.Warn("publish failed", "error", err)
		} else {
			metrics.PublishedRecordsTotal.WithLabelValues(metrics.ResultOK).Inc()
		}
		cancel()
	}

	metrics.PipelineLatencySeconds.Observe(time.Since(start).Seconds())
}
