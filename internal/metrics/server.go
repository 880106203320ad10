package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netscope.xyz/netscope/internal/config"
)

// Scrapes are small and the exposition handler is fast; tight timeouts keep a
// stalled scraper from pinning listener goroutines while capture runs.
const (
	scrapeReadTimeout  = 5 * time.Second
	scrapeWriteTimeout = 10 * time.Second
	scrapeIdleTimeout  = 30 * time.Second
	shutdownGrace      = 5 * time.Second
)

// Server exposes the pipeline collectors over HTTP for Prometheus scraping.
// It runs beside the capture loop and its failures never stop a capture.
type Server struct {
	path   string
	server *http.Server
}

// NewServer builds the scrape listener from the metrics config block.
func NewServer(cfg config.MetricsConfig) *Server {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return &Server{
		path: path,
		server: &http.Server{
			Addr:         cfg.Listen,
			Handler:      mux,
			ReadTimeout:  scrapeReadTimeout,
			WriteTimeout: scrapeWriteTimeout,
			IdleTimeout:  scrapeIdleTimeout,
		},
	}
}

// Start begins serving in the background. A listen failure is logged rather
// than returned so an occupied port cannot abort the capture run.
func (s *Server) Start() {
	slog.Info("metrics listener starting", "addr", s.server.Addr, "path", s.path)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener failed", "error", err)
		}
	}()
}

// Stop lets in-flight scrapes finish within the grace period, then closes the
// listener.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics listener shutdown: %w", err)
	}
	return nil
}
