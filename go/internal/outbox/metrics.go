package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(string, bool, time.Duration) {}
func (n *NoOpMetricsCollector) RecordBatchProcessed(int, time.Duration)          {}
func (n *NoOpMetricsCollector) RecordOutboxLag(int)                              {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(string, int, bool)           {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	eventCounter    *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	batchSize       prometheus.Histogram
	batchDuration   prometheus.Histogram
	outboxLag       prometheus.Gauge
	publishAttempts *prometheus.CounterVec
}

// NewPrometheusMetrics creates the outbox collectors and registers them with reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		eventCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pong",
			Subsystem: "outbox",
			Name:      "events_processed_total",
			Help:      "Outbox events relayed to the bus, by type and status.",
		}, []string{"event_type", "status"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pong",
			Subsystem: "outbox",
			Name:      "event_duration_seconds",
			Help:      "Time spent relaying one outbox event, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pong",
			Subsystem: "outbox",
			Name:      "batch_size",
			Help:      "Events published per fallback sweep.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pong",
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Duration of a fallback sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		outboxLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pong",
			Subsystem: "outbox",
			Name:      "unsent_events",
			Help:      "Outbox rows not yet published.",
		}),
		publishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pong",
			Subsystem: "outbox",
			Name:      "publish_attempts_total",
			Help:      "Publish attempts, by type and status.",
		}, []string{"event_type", "status"}),
	}
	reg.MustRegister(
		m.eventCounter,
		m.eventDuration,
		m.batchSize,
		m.batchDuration,
		m.outboxLag,
		m.publishAttempts,
	)
	return m
}

func (m *PrometheusMetrics) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	m.eventCounter.WithLabelValues(eventType, status(success)).Inc()
	m.eventDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordBatchProcessed(count int, duration time.Duration) {
	m.batchSize.Observe(float64(count))
	m.batchDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordOutboxLag(lag int) {
	m.outboxLag.Set(float64(lag))
}

func (m *PrometheusMetrics) RecordPublishAttempt(eventType string, _ int, success bool) {
	m.publishAttempts.WithLabelValues(eventType, status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
