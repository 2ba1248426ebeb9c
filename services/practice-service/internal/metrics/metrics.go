// Package metrics exposes Prometheus counters for billing, lifecycle and
// outbox outcomes. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "practicepulse"

type Metrics struct {
	registry *prometheus.Registry

	webhookEvents    *prometheus.CounterVec
	lifecycleOps     *prometheus.CounterVec
	lifecycleLatency *prometheus.HistogramVec
	auditFailures    prometheus.Counter
	cacheInvalidate  *prometheus.CounterVec
	outboxMessages   *prometheus.CounterVec
	outboxPruned     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Billing provider events by type and outcome.",
		}, []string{"event_type", "outcome"}),
		lifecycleOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Lifecycle operations by name and result code.",
		}, []string{"operation", "result"}),
		lifecycleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit or login rows that could not be written.",
		}),
		cacheInvalidate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Practice page cache invalidations by result.",
		}, []string{"result"}),
		outboxMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "messages_total",
			Help:      "Outbox rows handed to Kafka, by result.",
		}, []string{"result"}),
		outboxPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "pruned_total",
			Help:      "Published outbox rows deleted after the retention window.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhookEvents,
		m.lifecycleOps,
		m.lifecycleLatency,
		m.auditFailures,
		m.cacheInvalidate,
		m.outboxMessages,
		m.outboxPruned,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) WebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(label(eventType), outcome).Inc()
}

func (m *Metrics) LifecycleOp(operation, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.lifecycleOps.WithLabelValues(operation, result).Inc()
	m.lifecycleLatency.WithLabelValues(operation).Observe(took.Seconds())
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

func (m *Metrics) CacheInvalidation(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.cacheInvalidate.WithLabelValues(result).Inc()
}

// OutboxBatch records a publish attempt of n rows.
func (m *Metrics) OutboxBatch(n int, err error) {
	if m == nil || n == 0 {
		return
	}
	result := "published"
	if err != nil {
		result = "failed"
	}
	m.outboxMessages.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) OutboxPruned(n int64) {
	if m == nil {
		return
	}
	m.outboxPruned.Add(float64(n))
}

// label bounds cardinality of provider-controlled values.
func label(s string) string {
	if s == "" {
		return "unknown"
	}
	if len(s) > 64 {
		return s[:64]
	}
	return s
}
