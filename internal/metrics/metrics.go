// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturedPacketsTotal counts packets accepted off a capture source.
	CapturedPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscope_captured_packets_total",
			Help: "Total number of packets captured",
		},
		[]string{"source", "protocol"},
	)

	// DroppedPacketsTotal counts packets evicted from the bounded queue under
	// backpressure.
	DroppedPacketsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netscope_dropped_packets_total",
			Help: "Total number of packets dropped under backpressure",
		},
	)

	// StoreWritesTotal counts store appends by result.
	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscope_store_writes_total",
			Help: "Total number of packet store writes",
		},
		[]string{"result"},
	)

	// PublishedRecordsTotal counts records published to Kafka by result.
	PublishedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscope_published_records_total",
			Help: "Total number of records published to Kafka",
		},
		[]string{"result"},
	)

	// QueueDepth tracks the current fill level of the capture queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netscope_queue_depth",
			Help: "Current number of packets waiting in the capture queue",
		},
	)

	// CaptureActive reports whether a capture session is running.
	CaptureActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netscope_capture_active",
			Help: "Whether a capture session is currently active (0 or 1)",
		},
	)

	// PipelineLatencySeconds measures the classify-and-store path per packet.
	PipelineLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netscope_pipeline_latency_seconds",
			Help:    "Latency of per-packet classify and store processing in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1us to ~1s
		},
	)

	// ExportsTotal counts export runs by format and result.
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netscope_exports_total",
			Help: "Total number of export runs",
		},
		[]string{"format", "result"},
	)
)

// Result label values for the *_total vectors.
const (
	ResultOK    = "ok"
	ResultError = "error"
)
