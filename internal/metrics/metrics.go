package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	enqueued            *prometheus.CounterVec
	queued              *prometheus.CounterVec
	sent                *prometheus.CounterVec
	failed              *prometheus.CounterVec
	retries             *prometheus.CounterVec
	sendLatency         *prometheus.HistogramVec
	outcomes            *prometheus.CounterVec
	circuitOpen         *prometheus.CounterVec
	circuitState        *prometheus.GaugeVec
	queueDepth          *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		enqueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_enqueued_total",
				Help: "Total number of notifications entering the dispatch pipeline",
			},
			[]string{"channel", "tenant"},
		),
		queued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_queued_total",
				Help: "Total number of notifications published to the durable queue",
			},
			[]string{"channel", "tenant"},
		),
		sent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_sent_total",
				Help: "Total number of notifications sent successfully",
			},
			[]string{"channel", "provider", "tenant", "template_id"},
		),
		failed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_failed_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel", "provider", "tenant", "template_id", "reason"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_retry_total",
				Help: "Total number of provider call retries",
			},
			[]string{"channel", "provider", "tenant", "template_id"},
		),
		sendLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifications_send_latency_seconds",
				Help:    "Provider send latency including retries",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"channel", "provider"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_outcome_total",
				Help: "Terminal dispatch outcomes",
			},
			[]string{"channel", "outcome"},
		),
		circuitOpen: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_circuit_open_total",
				Help: "Number of times a provider circuit opened",
			},
			[]string{"channel", "provider"},
		),
		circuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "provider_circuit_state",
				Help: "Circuit state per provider (0 closed, 1 open, 2 half-open)",
			},
			[]string{"channel", "provider"},
		),
		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "notification_queue_depth",
				Help: "Current depth of the notification queues",
			},
			[]string{"queue"},
		),
	}
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEnqueued counts a request handed to the dispatcher, sync or from the queue
func (m *Metrics) RecordEnqueued(channel, tenant string) {
	m.enqueued.WithLabelValues(channel, tenant).Inc()
}

func (m *Metrics) RecordQueued(channel, tenant string) {
	m.queued.WithLabelValues(channel, tenant).Inc()
}

func (m *Metrics) RecordSent(channel, provider, tenant, templateID string) {
	m.sent.WithLabelValues(channel, provider, tenant, templateID).Inc()
}

func (m *Metrics) RecordFailed(channel, provider, tenant, templateID, reason string) {
	m.failed.WithLabelValues(channel, provider, tenant, templateID, reason).Inc()
}

func (m *Metrics) RecordRetry(channel, provider, tenant, templateID string) {
	m.retries.WithLabelValues(channel, provider, tenant, templateID).Inc()
}

// ObserveSendLatency records the time spent in the provider call, retries included
func (m *Metrics) ObserveSendLatency(channel, provider string, took time.Duration) {
	m.sendLatency.WithLabelValues(channel, provider).Observe(took.Seconds())
}

func (m *Metrics) RecordOutcome(channel, outcome string) {
	m.outcomes.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) RecordCircuitOpen(channel, provider string) {
	m.circuitOpen.WithLabelValues(channel, provider).Inc()
}

func (m *Metrics) SetCircuitState(channel, provider string, state float64) {
	m.circuitState.WithLabelValues(channel, provider).Set(state)
}

// SetQueueDepth sets the current depth of a named queue
func (m *Metrics) SetQueueDepth(queue string, depth float64) {
	m.queueDepth.WithLabelValues(queue).Set(depth)
}
