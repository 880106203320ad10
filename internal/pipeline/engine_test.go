package pipeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netscope.xyz/netscope/internal/config"
	"netscope.xyz/netscope/internal/core"
	"netscope.xyz/netscope/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "netscope.db")
	cfg.Store.MaxSessionHistory = 50
	cfg.Capture.Simulate.Seed = 99

	e, err := NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// waitIdle polls until the engine's capture run has wound down.
func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !e.Active() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("capture did not stop before deadline")
}

func TestCaptureStopsAtPacketBudget(t *testing.T) {
	e := newTestEngine(t)

	sess, err := e.StartCapture(core.FilterConfig{
		Protocol:   core.ProtoTCP,
		MaxPackets: 100,
		SimRate:    5000,
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	waitIdle(t, e)

	sessions, err := e.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)
	assert.False(t, sessions[0].Active())
	assert.Equal(t, int64(100), sessions[0].PacketCount)

	// Every stored record carries the session tag and the requested protocol.
	recs, _, _, err := e.QueryPackets(core.QueryFilter{SessionID: sess.ID}, store.Cursor{}, 200)
	require.NoError(t, err)
	require.Len(t, recs, 100)
	for _, rec := range recs {
		assert.Equal(t, core.ProtoTCP, rec.Protocol)
		assert.Equal(t, sess.ID, rec.SessionID)
		assert.NotEmpty(t, rec.Raw)
	}
}

func TestCaptureStopsAfterDuration(t *testing.T) {
	e := newTestEngine(t)

	sess, err := e.StartCapture(core.FilterConfig{
		Duration: 300 * time.Millisecond,
		SimRate:  200,
	})
	require.NoError(t, err)

	waitIdle(t, e)

	sessions, err := e.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)
	assert.False(t, sessions[0].Active())
}

func TestStartWhileCapturing(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.StartCapture(core.FilterConfig{SimRate: 50})
	require.NoError(t, err)

	_, err = e.StartCapture(core.FilterConfig{SimRate: 50})
	assert.ErrorIs(t, err, core.ErrAlreadyCapturing)

	_, err = e.StopCapture()
	require.NoError(t, err)
}

func TestStopWhileIdle(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.StopCapture()
	assert.ErrorIs(t, err, core.ErrNotCapturing)
}

func TestRestartAfterStop(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.StartCapture(core.FilterConfig{SimRate: 50})
	require.NoError(t, err)
	_, err = e.StopCapture()
	require.NoError(t, err)

	second, err := e.StartCapture(core.FilterConfig{SimRate: 50})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = e.StopCapture()
	require.NoError(t, err)
}

func TestStatsReflectCapturedPackets(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.StartCapture(core.FilterConfig{MaxPackets: 50, SimRate: 2000})
	require.NoError(t, err)
	waitIdle(t, e)

	snap := e.GetStats()
	assert.Equal(t, int64(50), snap.TotalPackets)
	assert.Positive(t, snap.TotalBytes)

	var sum int64
	for _, c := range snap.ProtocolCounts {
		sum += c
	}
	assert.Equal(t, snap.TotalPackets, sum, "protocol counts sum to the total")
}

func TestStatsResetOnNewSession(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.StartCapture(core.FilterConfig{MaxPackets: 30, SimRate: 2000})
	require.NoError(t, err)
	waitIdle(t, e)
	require.Equal(t, int64(30), e.GetStats().TotalPackets)

	_, err = e.StartCapture(core.FilterConfig{MaxPackets: 10, SimRate: 2000})
	require.NoError(t, err)
	waitIdle(t, e)

	assert.Equal(t, int64(10), e.GetStats().TotalPackets,
		"a new session starts from zero, history stays in the store")

	n, err := e.store.Count(core.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(40), n)
}

func TestGetRecentPackets(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.StartCapture(core.FilterConfig{MaxPackets: 40, SimRate: 2000})
	require.NoError(t, err)
	waitIdle(t, e)

	recs, err := e.GetRecentPackets(10)
	require.NoError(t, err)
	require.Len(t, recs, 10)
	for i := 1; i < len(recs); i++ {
		assert.False(t, recs[i].Timestamp.After(recs[i-1].Timestamp),
			"recent packets are most recent first")
	}
}

func TestExportPackets(t *testing.T) {
	e := newTestEngine(t)

	sess, err := e.StartCapture(core.FilterConfig{MaxPackets: 25, SimRate: 2000})
	require.NoError(t, err)
	waitIdle(t, e)

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, e.ExportPackets(path, "json", core.QueryFilter{SessionID: sess.ID}))

	err = e.ExportPackets(filepath.Join(t.TempDir(), "out.xml"), "xml", core.QueryFilter{})
	assert.ErrorIs(t, err, core.ErrUnknownFormat)
}

func TestFallbackToSimulationWhenInterfaceMissing(t *testing.T) {
	e := newTestEngine(t)

	// A nonexistent interface must degrade to simulated capture, not fail.
	_, err := e.StartCapture(core.FilterConfig{
		Interface:  "does-not-exist-0",
		MaxPackets: 10,
		SimRate:    2000,
	})
	require.NoError(t, err)
	waitIdle(t, e)

	n, err := e.store.Count(core.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}
