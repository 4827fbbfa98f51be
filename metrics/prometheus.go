package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements the Collector interface using Prometheus metrics.
type PrometheusCollector struct {
	sessionsTotal  prometheus.Counter
	sessionsActive prometheus.Gauge

	authAttemptsTotal *prometheus.CounterVec

	commandsTotal *prometheus.CounterVec

	transfersTotal    *prometheus.CounterVec
	transferSizeBytes prometheus.Histogram
}

// NewPrometheusCollector creates a new PrometheusCollector with all metrics registered.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ftpserver_sessions_total",
			Help: "Total number of control connections accepted.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ftpserver_sessions_active",
			Help: "Number of currently active control connections.",
		}),

		authAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ftpserver_auth_attempts_total",
			Help: "Total number of authentication attempts.",
		}, []string{"result"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ftpserver_commands_total",
			Help: "Total number of FTP commands processed.",
		}, []string{"command"}),

		transfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ftpserver_transfers_total",
			Help: "Total number of completed data transfers.",
		}, []string{"command"}),
		transferSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ftpserver_transfer_size_bytes",
			Help:    "Size of completed data transfers in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}

	reg.MustRegister(
		c.sessionsTotal,
		c.sessionsActive,
		c.authAttemptsTotal,
		c.commandsTotal,
		c.transfersTotal,
		c.transferSizeBytes,
	)

	return c
}

// SessionOpened increments the session counters.
func (c *PrometheusCollector) SessionOpened() {
	c.sessionsTotal.Inc()
	c.sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func (c *PrometheusCollector) SessionClosed() {
	c.sessionsActive.Dec()
}

// AuthAttempt records an authentication attempt by result.
func (c *PrometheusCollector) AuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}

	c.authAttemptsTotal.WithLabelValues(result).Inc()
}

// CommandProcessed records a processed command by name.
func (c *PrometheusCollector) CommandProcessed(command string) {
	c.commandsTotal.WithLabelValues(command).Inc()
}

// TransferCompleted records a completed transfer and its size.
func (c *PrometheusCollector) TransferCompleted(command string, sizeBytes int64) {
	c.transfersTotal.WithLabelValues(command).Inc()
	c.transferSizeBytes.Observe(float64(sizeBytes))
}
