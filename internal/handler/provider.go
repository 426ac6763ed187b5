package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/insider-one/dispatch-service/internal/domain"
	"github.com/insider-one/dispatch-service/internal/resilience"
)

// ProviderLister reports the driver configured per channel
type ProviderLister interface {
	Providers() map[domain.Channel]string
}

// ProviderHandler exposes provider configuration and breaker state
type ProviderHandler struct {
	providers ProviderLister
	breakers  *resilience.Registry
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(providers ProviderLister, breakers *resilience.Registry) *ProviderHandler {
	return &ProviderHandler{
		providers: providers,
		breakers:  breakers,
	}
}

// RegisterRoutes registers provider routes
func (h *ProviderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/breakers", h.Breakers)
}

// List returns the provider configured for each channel
// @Summary List providers
// @Description Provider name configured for each channel
// @Tags providers
// @Produce json
// @Success 200 {object} Response{data=map[string]string}
// @Router /api/v1/providers [get]
func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.providers.Providers())
}

// Breakers returns the state of every circuit breaker
// @Summary List circuit breakers
// @Description Breaker state per (channel, provider) pair seen since start
// @Tags providers
// @Produce json
// @Success 200 {object} Response{data=[]resilience.Status}
// @Router /api/v1/providers/breakers [get]
func (h *ProviderHandler) Breakers(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.breakers.Snapshot())
}
