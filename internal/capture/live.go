package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/gopacket/pcap"

	"netscope.xyz/netscope/internal/core"
)

const (
	defaultSnapLen = 65535
	readTimeout    = 500 * time.Millisecond
	acquireTimeout = 5 * time.Second
)

// LiveSource attaches to a network interface via libpcap. Construction
// performs an explicit capability check: a missing interface or unavailable
// pcap support yields core.ErrSourceUnavailable, which callers recover from
// by selecting SimulatedSource instead.
type LiveSource struct {
	iface   string
	snapLen int
	promisc bool

	mu     sync.Mutex
	handle *pcap.Handle
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLiveSource verifies that iface exists and pcap is usable, then returns
// a source bound to it.
func NewLiveSource(iface string, snapLen int, promisc bool) (*LiveSource, error) {
	if iface == "" {
		return nil, fmt.Errorf("%w: no interface given", core.ErrSourceUnavailable)
	}
	if snapLen <= 0 {
		snapLen = defaultSnapLen
	}

	devs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)
	}
	found := false
	for _, d := range devs {
		if d.Name == iface {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: interface %q not found", core.ErrSourceUnavailable, iface)
	}

	return &LiveSource{
		iface:   iface,
		snapLen: snapLen,
		promisc: promisc,
	}, nil
}

// Name returns "live".
func (s *LiveSource) Name() string { return "live" }

// Start opens the interface, applies the filter expression derived from cfg,
// and begins pushing packets into q.
func (s *LiveSource) Start(ctx context.Context, cfg core.FilterConfig, q *Queue) error {
	handle, err := s.open()
	if err != nil {
		return err
	}

	if expr := BuildBPF(cfg); expr != "" {
		if err := handle.SetBPFFilter(expr); err != nil {
			handle.Close()
			return fmt.Errorf("set bpf filter %q: %w", expr, err)
		}
		slog.Debug("bpf filter applied", "interface", s.iface, "filter", expr)
	}

	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.handle = handle
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(runCtx, handle, q)

	slog.Info("live capture started", "interface", s.iface, "snap_len", s.snapLen, "promiscuous", s.promisc)
	return nil
}

// open acquires the pcap handle with a bounded timeout so an unresponsive
// interface fails over to simulation instead of hanging.
func (s *LiveSource) open() (*pcap.Handle, error) {
	type result struct {
		handle *pcap.Handle
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		h, err := pcap.OpenLive(s.iface, int32(s.snapLen), s.promisc, readTimeout)
		ch <- result{h, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%w: open %q: %v", core.ErrSourceUnavailable, s.iface, res.err)
		}
		return res.handle, nil
	case <-time.After(acquireTimeout):
		return nil, fmt.Errorf("%w: open %q timed out", core.ErrSourceUnavailable, s.iface)
	}
}

// readLoop pulls frames from the handle until the context is cancelled or
// the handle is closed.
func (s *LiveSource) readLoop(ctx context.Context, handle *pcap.Handle, q *Queue) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, ci, err := handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				continue
			}
			if ctx.Err() == nil {
				slog.Error("live capture read failed", "interface", s.iface, "error", err)
			}
			return
		}

		raw := core.RawPacket{
			Data:       data,
			Timestamp:  ci.Timestamp,
			CaptureLen: uint32(ci.CaptureLength),
			OrigLen:    uint32(ci.Length),
		}
		if err := q.Push(raw); err != nil {
			return
		}
	}
}

// Stop closes the handle and waits for the read loop to exit. No packet is
// pushed after Stop returns.
func (s *LiveSource) Stop() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("live capture stopped", "interface", s.iface)
	return nil
}
