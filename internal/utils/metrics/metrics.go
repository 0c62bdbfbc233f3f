package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// S2S auth metrics
	S2SAuthTotal *prometheus.CounterVec

	// Queue metrics
	QueueMessagesTotal   *prometheus.CounterVec
	QueueHandleDuration  *prometheus.HistogramVec
	QueuePublishTotal    *prometheus.CounterVec
	BrokerReconnectTotal *prometheus.CounterVec

	// Order metrics
	StatusUpdatesTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered with the default registry.
func New(namespace string) *Metrics {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance registered with reg.
func NewWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "paystatus"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		S2SAuthTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "s2s",
				Name:      "auth_total",
				Help:      "Total number of server-to-server authentication attempts",
			},
			[]string{"result", "reason"}, // result: accepted, rejected
		),

		QueueMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "messages_total",
				Help:      "Total number of consumed messages by outcome",
			},
			[]string{"queue", "outcome"}, // outcome: ack, requeue, drop, dead_letter
		),
		QueueHandleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "handle_duration_seconds",
				Help:      "Message handling duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"queue"},
		),
		QueuePublishTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "publish_total",
				Help:      "Total number of publish attempts",
			},
			[]string{"queue", "status"}, // status: success, error
		),
		BrokerReconnectTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "broker",
				Name:      "reconnects_total",
				Help:      "Total number of broker reconnections",
			},
			[]string{"queue"},
		),

		StatusUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "order",
				Name:      "status_updates_total",
				Help:      "Total number of order status updates by source and outcome",
			},
			[]string{"source", "outcome"}, // source: webhook, queue
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordS2SAuth records the result of a signature check.
func (m *Metrics) RecordS2SAuth(accepted bool, reason string) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.S2SAuthTotal.WithLabelValues(result, reason).Inc()
}

// RecordQueueMessage records a consumed message and its handling time.
func (m *Metrics) RecordQueueMessage(queue, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueueMessagesTotal.WithLabelValues(queue, outcome).Inc()
	m.QueueHandleDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// RecordPublish records a publish attempt.
func (m *Metrics) RecordPublish(queue string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.QueuePublishTotal.WithLabelValues(queue, status).Inc()
}

// RecordReconnect records a broker reconnection.
func (m *Metrics) RecordReconnect(queue string) {
	if m == nil {
		return
	}
	m.BrokerReconnectTotal.WithLabelValues(queue).Inc()
}

// RecordStatusUpdate records the outcome of a status update.
func (m *Metrics) RecordStatusUpdate(source, outcome string) {
	if m == nil {
		return
	}
	m.StatusUpdatesTotal.WithLabelValues(source, outcome).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
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
