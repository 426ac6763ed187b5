package handler

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker is implemented by the postgres and redis clients
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checkers map[string]HealthChecker
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		checkers: make(map[string]HealthChecker),
	}
}

// AddChecker adds a health checker
func (h *HealthHandler) AddChecker(name string, checker HealthChecker) {
	h.checkers[name] = checker
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentStatus `json:"components,omitempty"`
}

// ComponentStatus represents a component's health status
type ComponentStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// check probes every component; ok is false when any probe failed
func (h *HealthHandler) check(ctx context.Context) (components map[string]ComponentStatus, ok bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	components = make(map[string]ComponentStatus, len(h.checkers))
	ok = true
	for name, checker := range h.checkers {
		start := time.Now()
		component := ComponentStatus{Status: "healthy"}
		if err := checker.Health(ctx); err != nil {
			component.Status = "unhealthy"
			component.Message = err.Error()
			ok = false
		}
		component.LatencyMs = time.Since(start).Milliseconds()
		components[name] = component
	}
	return components, ok
}

// Health handles health check requests
// @Summary Health check
// @Description Check the health of the service, Postgres and Redis
// @Tags health
// @Produce json
// @Success 200 {object} HealthStatus
// @Failure 503 {object} HealthStatus
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	components, ok := h.check(r.Context())

	status := HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Components: components,
	}

	code := http.StatusOK
	if !ok {
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	JSON(w, code, status)
}

// Liveness handles liveness probe requests
// @Summary Liveness probe
// @Description Simple liveness check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health/live [get]
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{
		"status": "alive",
	})
}

// Readiness handles readiness probe requests
// @Summary Readiness probe
// @Description Check if the service is ready to accept traffic
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /health/ready [get]
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	components, ok := h.check(r.Context())
	if ok {
		JSON(w, http.StatusOK, map[string]any{
			"status": "ready",
		})
		return
	}

	failing := make([]string, 0, len(components))
	for name, c := range components {
		if c.Status != "healthy" {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	JSON(w, http.StatusServiceUnavailable, map[string]any{
		"status":     "not ready",
		"components": failing,
	})
}
