package capture

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"netscope.xyz/netscope/internal/core"
)

const defaultSimRate = 100

// SimulatedSource generates synthetic wire-format frames at a configurable
// rate following a declared protocol-weight distribution. It is the fallback
// when no capture interface is available and the workhorse for tests. Frames
// are real Ethernet/IP/transport bytes so the classifier exercises the same
// path as live capture.
type SimulatedSource struct {
	rate    int
	weights map[string]float64
	seed    int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulatedSource creates a simulated source. A zero seed selects a
// time-based seed; tests pass a fixed seed for determinism.
func NewSimulatedSource(rate int, weights map[string]float64, seed int64) *SimulatedSource {
	if rate <= 0 {
		rate = defaultSimRate
	}
	return &SimulatedSource{
		rate:    rate,
		weights: weights,
		seed:    seed,
	}
}

// Name returns "simulated".
func (s *SimulatedSource) Name() string { return "simulated" }

// Start begins synthetic production into q. FilterConfig narrows the
// distribution: a protocol filter collapses the weights to that protocol,
// SimRate/SimWeights override the construction-time values.
func (s *SimulatedSource) Start(ctx context.Context, cfg core.FilterConfig, q *Queue) error {
	rate := s.rate
	if cfg.SimRate > 0 {
		rate = cfg.SimRate
	}

	weights := s.weights
	if len(cfg.SimWeights) > 0 {
		weights = cfg.SimWeights
	}
	if cfg.Protocol != "" {
		weights = map[string]float64{string(cfg.Protocol): 1}
	}

	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	gen, err := newGenerator(weights, cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.produce(runCtx, gen, rate, q)

	slog.Info("simulated capture started", "rate", rate, "weights", weights)
	return nil
}

// produce emits frames on a fixed tick, spreading the configured rate across
// ticks with a fractional accumulator.
func (s *SimulatedSource) produce(ctx context.Context, gen *generator, rate int, q *Queue) {
	defer s.wg.Done()

	const tick = 10 * time.Millisecond
	perTick := float64(rate) * tick.Seconds()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	var acc float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			acc += perTick
			n := int(acc)
			acc -= float64(n)
			for i := 0; i < n; i++ {
				data := gen.Frame()
				raw := core.RawPacket{
					Data:       data,
					Timestamp:  time.Now(),
					CaptureLen: uint32(len(data)),
					OrigLen:    uint32(len(data)),
				}
				if err := q.Push(raw); err != nil {
					return
				}
			}
		}
	}
}

// Stop halts production and waits for the generator goroutine to exit.
func (s *SimulatedSource) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	slog.Info("simulated capture stopped")
	return nil
}

// pickTable is a cumulative-weight lookup used to draw protocols according
// to the configured distribution.
type pickTable struct {
	protocols []core.Protocol
	cum       []float64
	total     float64
}

func newPickTable(weights map[string]float64) pickTable {
	if len(weights) == 0 {
		weights = map[string]float64{string(core.ProtoTCP): 0.5, string(core.ProtoUDP): 0.5}
	}

	// Sort keys so the same seed always yields the same draw order.
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var t pickTable
	for _, k := range keys {
		w := weights[k]
		if w <= 0 {
			continue
		}
		proto := core.Protocol(k)
		if !proto.Valid() {
			proto = core.ProtoUnknown
		}
		t.total += w
		t.protocols = append(t.protocols, proto)
		t.cum = append(t.cum, t.total)
	}
	if len(t.protocols) == 0 {
		t.protocols = []core.Protocol{core.ProtoTCP}
		t.cum = []float64{1}
		t.total = 1
	}
	return t
}

func (t pickTable) pick(r *rand.Rand) core.Protocol {
	x := r.Float64() * t.total
	for i, c := range t.cum {
		if x < c {
			return t.protocols[i]
		}
	}
	return t.protocols[len(t.protocols)-1]
}
