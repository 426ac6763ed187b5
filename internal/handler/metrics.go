package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insider-one/dispatch-service/internal/domain"
	"github.com/insider-one/dispatch-service/internal/resilience"
)

// DepthRecorder keeps the queue depth gauge current
type DepthRecorder interface {
	SetQueueDepth(queue string, depth float64)
}

// MetricsHandler handles metrics endpoints
type MetricsHandler struct {
	gatherer prometheus.Gatherer
	metrics  DepthRecorder
	queue    domain.Queue
	breakers *resilience.Registry
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler(gatherer prometheus.Gatherer, metrics DepthRecorder, queue domain.Queue, breakers *resilience.Registry) *MetricsHandler {
	return &MetricsHandler{
		gatherer: gatherer,
		metrics:  metrics,
		queue:    queue,
		breakers: breakers,
	}
}

// Handler returns the Prometheus HTTP handler for the service registry
func (h *MetricsHandler) Handler() http.Handler {
	return promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})
}

// RealtimeMetrics is a point-in-time view of queues and breakers
type RealtimeMetrics struct {
	Queues    map[string]int64    `json:"queues"`
	Breakers  []resilience.Status `json:"breakers"`
	Timestamp time.Time           `json:"timestamp"`
}

// RealtimeMetrics handles real-time metrics requests
// @Summary Real-time metrics
// @Description Get queue depths per priority and breaker states per provider
// @Tags metrics
// @Produce json
// @Success 200 {object} Response{data=RealtimeMetrics}
// @Failure 500 {object} Response
// @Router /metrics/realtime [get]
func (h *MetricsHandler) RealtimeMetrics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	depths, err := h.queue.Depths(ctx)
	if err != nil {
		JSONError(w, http.StatusInternalServerError, "METRICS_ERROR", "Failed to get queue depths", nil)
		return
	}

	// Update Prometheus gauges
	for queue, depth := range depths {
		h.metrics.SetQueueDepth(queue, float64(depth))
	}

	JSON(w, http.StatusOK, RealtimeMetrics{
		Queues:    depths,
		Breakers:  h.breakers.Snapshot(),
		Timestamp: time.Now().UTC(),
	})
}
