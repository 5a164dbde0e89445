package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoftp/pkg/metrics"
)

// ftpMetrics is the Prometheus implementation of metrics.FTPMetrics.
type ftpMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	connectionsClosed   prometheus.Counter
	activeSessions      prometheus.Gauge
	authAttempts        *prometheus.CounterVec
	commands            *prometheus.CounterVec
	transferBytes       *prometheus.HistogramVec
	transferDuration    *prometheus.HistogramVec
	transfers           *prometheus.CounterVec
}

// NewFTPMetrics creates a new Prometheus-backed FTPMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewFTPMetrics() metrics.FTPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &ftpMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoftp_connections_accepted_total",
				Help: "Total number of accepted control connections",
			},
		),
		connectionsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoftp_connections_rejected_total",
				Help: "Total number of rejected control connections by reason",
			},
			[]string{"reason"}, // "max_connections"
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoftp_connections_closed_total",
				Help: "Total number of closed control connections",
			},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoftp_active_sessions",
				Help: "Current number of live FTP sessions",
			},
		),
		authAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoftp_auth_attempts_total",
				Help: "Total number of authentication attempts by outcome",
			},
			[]string{"outcome", "anonymous"}, // outcome: "success", "failure"
		),
		commands: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoftp_commands_total",
				Help: "Total number of processed control commands by verb and reply code",
			},
			[]string{"verb", "code"},
		),
		transferBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoftp_transfer_bytes",
				Help: "Distribution of bytes moved per data transfer",
				Buckets: []float64{
					1024,      // 1KB - directory listings
					32768,     // 32KB
					262144,    // 256KB
					1048576,   // 1MB
					10485760,  // 10MB
					104857600, // 100MB
				},
			},
			[]string{"direction"},
		),
		transferDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoftp_transfer_duration_milliseconds",
				Help: "Duration of data transfers in milliseconds",
				Buckets: []float64{
					1,     // 1ms - tiny listings
					10,    // 10ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s
					30000, // 30s - large files
				},
			},
			[]string{"direction"},
		),
		transfers: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoftp_transfers_total",
				Help: "Total number of data transfers by direction and outcome",
			},
			[]string{"direction", "outcome"}, // outcome: "complete", "failed", "aborted"
		),
	}
}

func (m *ftpMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

func (m *ftpMetrics) RecordConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.connectionsRejected.WithLabelValues(reason).Inc()
}

func (m *ftpMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsClosed.Inc()
}

func (m *ftpMetrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

func (m *ftpMetrics) RecordAuth(outcome string, anonymous bool) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(outcome, strconv.FormatBool(anonymous)).Inc()
}

func (m *ftpMetrics) RecordCommand(verb string, code int) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(verb, strconv.Itoa(code)).Inc()
}

func (m *ftpMetrics) RecordTransfer(direction string, outcome string, bytes int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(direction, outcome).Inc()
	if bytes >= 0 {
		m.transferBytes.WithLabelValues(direction).Observe(float64(bytes))
	}
	m.transferDuration.WithLabelValues(direction).Observe(duration.Seconds() * 1000)
}
