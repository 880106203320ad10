// Package pipeline wires capture, classification, statistics, storage and
// publishing into one single-worker processing chain, and exposes the Engine
// facade the CLI talks to.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"netscope.xyz/netscope/internal/capture"
	"netscope.xyz/netscope/internal/config"
	"netscope.xyz/netscope/internal/core"
	"netscope.xyz/netscope/internal/export"
	"netscope.xyz/netscope/internal/metrics"
	"netscope.xyz/netscope/internal/publish"
	"netscope.xyz/netscope/internal/session"
	"netscope.xyz/netscope/internal/stats"
	"netscope.xyz/netscope/internal/store"
)

const publishTimeout = 2 * time.Second

// Engine owns every pipeline component and serializes capture lifecycle
// transitions. All methods are safe for concurrent use.
type Engine struct {
	cfg       *config.GlobalConfig
	store     *store.Store
	sessions  *session.Manager
	stats     *stats.Aggregator
	exporter  *export.Engine
	publisher *publish.Publisher // nil when publishing is disabled

	mu  sync.Mutex
	run *captureRun // nil while idle
}

// captureRun is the state of one active capture: its source, queue, worker
// goroutine and auto-stop bookkeeping.
type captureRun struct {
	source    capture.Source
	queue     *capture.Queue
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopTimer *time.Timer
	stopOnce  sync.Once
	sessionID string

	maxPackets int64
	processed  int64 // worker-goroutine only
}

// NewEngine opens the store and builds the pipeline components from config.
func NewEngine(cfg *config.GlobalConfig) (*Engine, error) {
	st, err := store.Open(cfg.Store.Path, store.Options{
		RetryAttempts: cfg.Store.RetryAttempts,
		RetryBackoff:  cfg.Store.RetryBackoff,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		store:    st,
		sessions: session.NewManager(st),
		stats:    stats.New(cfg.Stats.Window),
		exporter: export.NewEngine(st),
	}

	if cfg.Publish.Enabled {
		pub, err := publish.New(cfg.Publish)
		if err != nil {
			st.Close()
			return nil, err
		}
		e.publisher = pub
	}
	return e, nil
}

// Close stops any active capture and releases the store and publisher.
func (e *Engine) Close() error {
	if _, err := e.StopCapture(); err != nil && !errors.Is(err, core.ErrNotCapturing) {
		slog.Error("stopping capture during shutdown", "error", err)
	}
	if e.publisher != nil {
		if err := e.publisher.Close(); err != nil {
			slog.Error("closing publisher", "error", err)
		}
	}
	return e.store.Close()
}

// GetStats returns a point-in-time snapshot of the rolling statistics.
func (e *Engine) GetStats() core.StatsSnapshot {
	return e.stats.Snapshot()
}

// GetRecentPackets returns up to limit records, most recent first.
func (e *Engine) GetRecentPackets(limit int) ([]core.PacketRecord, error) {
	return e.store.RecentPackets(limit)
}

// ListSessions returns session history, most recently started first.
func (e *Engine) ListSessions() ([]core.Session, error) {
	return e.store.ListSessions()
}

// QueryPackets returns one page of stored records matching the filter.
func (e *Engine) QueryPackets(f core.QueryFilter, cur store.Cursor, limit int) ([]core.PacketRecord, store.Cursor, bool, error) {
	return e.store.Query(f, cur, limit)
}

// StartCapture opens a session and starts the capture source and the worker.
// A live interface that cannot be opened degrades to simulated capture rather
// than failing the start; any other source error aborts it.
func (e *Engine) StartCapture(filter core.FilterConfig) (core.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.run != nil {
		return core.Session{}, fmt.Errorf("%w: capture already running", core.ErrAlreadyCapturing)
	}

	if filter.BufferSize <= 0 {
		filter.BufferSize = e.cfg.Capture.BufferSize
	}
	if filter.Interface == "" {
		filter.Interface = e.cfg.Capture.Interface
	}
	if filter.SimRate <= 0 {
		filter.SimRate = e.cfg.Capture.Simulate.Rate
	}
	if len(filter.SimWeights) == 0 {
		filter.SimWeights = e.cfg.Capture.Simulate.Weights
	}

	sess, err := e.sessions.Start(filter)
	if err != nil {
		return core.Session{}, err
	}
	e.stats.Reset()

	src := e.buildSource(filter)
	q := capture.NewQueue(filter.BufferSize, e.cfg.Capture.BlockWait)
	e.stats.SetDropCounter(q.Dropped)

	ctx, cancel := context.WithCancel(context.Background())
	r := &captureRun{
		source:     src,
		queue:      q,
		cancel:     cancel,
		sessionID:  sess.ID,
		maxPackets: filter.MaxPackets,
	}

	if err := src.Start(ctx, filter, q); err != nil {
		// Opening the interface can still fail at start time (permissions,
		// device gone since the probe); that degrades to simulation too.
		if errors.Is(err, core.ErrSourceUnavailable) {
			slog.Warn("live capture failed to start, falling back to simulation", "error", err)
			src = capture.NewSimulatedSource(filter.SimRate, filter.SimWeights, e.cfg.Capture.Simulate.Seed)
			r.source = src
			err = src.Start(ctx, filter, q)
		}
		if err != nil {
			cancel()
			q.Close()
			e.stats.SetDropCounter(nil)
			if _, stopErr := e.sessions.Stop(); stopErr != nil {
				slog.Error("rolling back session after source failure", "error", stopErr)
			}
			return core.Session{}, err
		}
	}

	r.wg.Add(1)
	go e.worker(ctx, r)

	if filter.Duration > 0 {
		r.stopTimer = time.AfterFunc(filter.Duration, func() {
			e.autoStop(r, "duration reached")
		})
	}

	e.run = r
	metrics.CaptureActive.Set(1)
	slog.Info("capture started",
		"session_id", sess.ID,
		"source", src.Name(),
		"protocol", filter.Protocol,
		"buffer_size", filter.BufferSize,
	)
	return sess, nil
}

// buildSource opens the live source when an interface is configured and falls
// back to the simulator when the capability check fails.
func (e *Engine) buildSource(filter core.FilterConfig) capture.Source {
	if filter.Interface != "" {
		live, err := capture.NewLiveSource(filter.Interface, e.cfg.Capture.SnapLen, e.cfg.Capture.Promiscuous)
		if err == nil {
			return live
		}
		if errors.Is(err, core.ErrSourceUnavailable) {
			slog.Warn("live capture unavailable, falling back to simulation",
				"interface", filter.Interface, "error", err)
		} else {
			slog.Error("live source failed, falling back to simulation", "error", err)
		}
	}
	return capture.NewSimulatedSource(filter.SimRate, filter.SimWeights, e.cfg.Capture.Simulate.Seed)
}

// StopCapture halts the source, drains the queue and closes the session.
func (e *Engine) StopCapture() (core.Session, error) {
	e.mu.Lock()
	r := e.run
	e.run = nil
	e.mu.Unlock()

	if r == nil {
		return core.Session{}, core.ErrNotCapturing
	}

	if r.stopTimer != nil {
		r.stopTimer.Stop()
	}
	if err := r.source.Stop(); err != nil {
		slog.Error("stopping capture source", "error", err)
	}
	// Closing the queue lets the worker drain whatever the source already
	// emitted before it exits; the context is cancelled only once the worker
	// is done, so the drain is never cut short.
	r.queue.Close()
	r.wg.Wait()
	// A worker that hit its packet budget exits before the source stops;
	// frames pushed in that window are residue and count as dropped.
	r.queue.Discard()
	r.cancel()
	metrics.CaptureActive.Set(0)
	metrics.QueueDepth.Set(0)

	sess, err := e.sessions.Stop()
	if err != nil {
		return core.Session{}, err
	}
	slog.Info("capture stopped",
		"session_id", sess.ID,
		"packets", sess.PacketCount,
		"dropped", r.queue.Dropped(),
	)

	if e.cfg.Store.MaxSessionHistory > 0 {
		if err := e.store.PruneSessions(e.cfg.Store.MaxSessionHistory); err != nil {
			slog.Error("pruning session history", "error", err)
		}
	}
	return sess, nil
}

// autoStop stops the capture from inside a run (auto-stop timer or packet
// budget). It ignores the case where an explicit stop won the race.
func (e *Engine) autoStop(r *captureRun, reason string) {
	r.stopOnce.Do(func() {
		e.mu.Lock()
		racing := e.run != r
		e.mu.Unlock()
		if racing {
			return
		}
		slog.Info("auto-stopping capture", "session_id", r.sessionID, "reason", reason)
		if _, err := e.StopCapture(); err != nil && !errors.Is(err, core.ErrNotCapturing) {
			slog.Error("auto-stop failed", "error", err)
		}
	})
}

// ExportPackets writes matching records to path in the named format.
func (e *Engine) ExportPackets(path, format string, filter core.QueryFilter) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	if err := e.exporter.Export(path, f, filter); err != nil {
		metrics.ExportsTotal.WithLabelValues(string(f), metrics.ResultError).Inc()
		return err
	}
	metrics.ExportsTotal.WithLabelValues(string(f), metrics.ResultOK).Inc()
	return nil
}

// Active reports whether a capture session is running. The session manager is
// the authority: during a stop it flips only after the worker has drained and
// the session summary is persisted.
func (e *Engine) Active() bool {
	return e.sessions.Active()
}
