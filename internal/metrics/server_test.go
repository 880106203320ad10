package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netscope.xyz/netscope/internal/config"
)

func TestServerServesExposition(t *testing.T) {
	s := NewServer(config.MetricsConfig{Listen: "127.0.0.1:0"})
	ts := httptest.NewServer(s.server.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "netscope_dropped_packets_total")
}

func TestServerDefaultsPath(t *testing.T) {
	s := NewServer(config.MetricsConfig{})
	assert.Equal(t, "/metrics", s.path)

	s = NewServer(config.MetricsConfig{Path: "/telemetry"})
	ts := httptest.NewServer(s.server.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/telemetry")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(config.MetricsConfig{Listen: "127.0.0.1:0"})
	s.Start()
	assert.NoError(t, s.Stop(context.Background()))
}
