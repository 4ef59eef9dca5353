// Package metrics is the Prometheus registry shared across Ingest,
// Transcoder, and Edge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the pipeline exposes.
type Metrics struct {
	// Connection (ingest) metrics
	ActiveConnections prometheus.Gauge
	ConnectionsTotal   prometheus.Counter
	ConnectionErrors   *prometheus.CounterVec
	BytesReceived      prometheus.Counter
	ClaimWaitSeconds   prometheus.Histogram
	ClaimTimeouts      prometheus.Counter
	TranscoderFailovers prometheus.Counter

	// Transcoder pipeline metrics
	PartsCut         *prometheus.CounterVec
	SegmentsCut      *prometheus.CounterVec
	PartCutSeconds   *prometheus.HistogramVec
	StoreWriteErrors *prometheus.CounterVec
	StoreWriteRetries prometheus.Counter
	CodecConfigErrors *prometheus.CounterVec
	FFmpegRestarts   prometheus.Counter

	// Edge HTTP metrics
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	BlockingReloadWaitSeconds prometheus.Histogram
	TokenDenials      *prometheus.CounterVec
}

// New creates and registers every collector against the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates and registers every collector against reg,
// letting tests use a throwaway registry instead of the process-wide
// default (which panics on duplicate registration).
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streamforge_active_connections",
			Help: "Number of currently publishing ingest connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamforge_connections_total",
			Help: "Total ingest connections accepted since start",
		}),
		ConnectionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_connection_errors_total",
			Help: "Total ingest connection errors by category",
		}, []string{"category"}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamforge_rtmp_bytes_received_total",
			Help: "Total bytes received over RTMP",
		}),
		ClaimWaitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamforge_transcoder_claim_wait_seconds",
			Help:    "Time a connection waited for a transcoder claim",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ClaimTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamforge_transcoder_claim_timeouts_total",
			Help: "Total connections that exceeded the claim-wait bound",
		}),
		TranscoderFailovers: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamforge_transcoder_failovers_total",
			Help: "Total transcoder failovers observed by ingest",
		}),

		PartsCut: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_parts_cut_total",
			Help: "Total CMAF parts cut by rendition",
		}, []string{"rendition"}),
		SegmentsCut: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_segments_cut_total",
			Help: "Total CMAF segments cut by rendition",
		}, []string{"rendition"}),
		PartCutSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamforge_part_cut_duration_seconds",
			Help:    "Wall-clock duration between successive part cuts",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5},
		}, []string{"rendition"}),
		StoreWriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_store_write_errors_total",
			Help: "Total Meta/Media Store write failures by store",
		}, []string{"store"}),
		StoreWriteRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamforge_store_write_retries_total",
			Help: "Total bounded retry attempts against Meta/Media Store",
		}),
		CodecConfigErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_codec_config_errors_total",
			Help: "Total malformed codec configuration records by codec",
		}, []string{"codec"}),
		FFmpegRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "streamforge_ffmpeg_restarts_total",
			Help: "Total FFmpeg subprocess restarts after a crash",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_edge_http_requests_total",
			Help: "Total edge HTTP requests by route and status class",
		}, []string{"route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "streamforge_edge_http_request_duration_seconds",
			Help:    "Edge HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		BlockingReloadWaitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamforge_edge_blocking_reload_wait_seconds",
			Help:    "Time an LL-HLS blocking-reload request waited before serving",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
		}),
		TokenDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streamforge_edge_token_denials_total",
			Help: "Total playback token denials by reason",
		}, []string{"reason"}),
	}
}

// RecordConnectionStart marks a new ingest connection.
func (m *Metrics) RecordConnectionStart() {
	m.ActiveConnections.Inc()
	m.ConnectionsTotal.Inc()
}

// RecordConnectionEnd marks an ingest connection closing.
func (m *Metrics) RecordConnectionEnd() {
	m.ActiveConnections.Dec()
}

// RecordHTTPRequest records one edge HTTP request/response.
func (m *Metrics) RecordHTTPRequest(route string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(route, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(durationSeconds)
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
