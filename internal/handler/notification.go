package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/insider-one/dispatch-service/internal/domain"
	"github.com/insider-one/dispatch-service/internal/middleware"
)

// IdempotencyKeyHeader fills idempotency_key when the body omits it
const IdempotencyKeyHeader = "Idempotency-Key"

// Dispatcher sends one notification synchronously
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.NotificationRequest) domain.Outcome
}

// EnqueueRecorder counts requests published to the queue
type EnqueueRecorder interface {
	RecordQueued(channel, tenant string)
}

// NotificationHandler handles notification HTTP requests
type NotificationHandler struct {
	dispatcher Dispatcher
	queue      domain.Queue
	metrics    EnqueueRecorder
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(dispatcher Dispatcher, queue domain.Queue, metrics EnqueueRecorder, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		queue:      queue,
		metrics:    metrics,
		validate:   validator.New(),
		logger:     logger,
	}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Send)
	r.Post("/queue", h.Enqueue)
}

// RecipientInput holds the destination addresses of a request
type RecipientInput struct {
	Email       string `json:"email,omitempty" validate:"omitempty,email,max=320" example:"ada@example.com"`
	Phone       string `json:"phone,omitempty" validate:"omitempty,max=32" example:"+905551234567"`
	DeviceToken string `json:"device_token,omitempty" validate:"omitempty,max=4096"`
}

// SendNotificationRequest represents a request to send a notification
// @Description Request to send a notification
type SendNotificationRequest struct {
	TenantID       string          `json:"tenant_id,omitempty" validate:"omitempty,max=64" example:"acme"`
	IdempotencyKey string          `json:"idempotency_key,omitempty" validate:"omitempty,max=255" example:"order-123-welcome"`
	Channel        domain.Channel  `json:"channel" example:"email"`
	TemplateID     string          `json:"template_id" validate:"max=128" example:"welcome"`
	Locale         string          `json:"locale,omitempty" validate:"omitempty,max=16" example:"en-GB"`
	To             RecipientInput  `json:"to"`
	Variables      map[string]any  `json:"variables,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Priority       domain.Priority `json:"priority,omitempty" validate:"omitempty,oneof=high normal low" example:"normal"`
}

// EnqueueResponse is returned when a request is accepted onto the queue
type EnqueueResponse struct {
	ID         uuid.UUID       `json:"id"`
	Priority   domain.Priority `json:"priority"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// toDomain builds the dispatch request. The tenant and idempotency headers
// apply only when the body leaves those fields empty.
func (req SendNotificationRequest) toDomain(r *http.Request) domain.NotificationRequest {
	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		tenantID = middleware.GetTenantID(r.Context())
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	}

	return domain.NotificationRequest{
		TenantID:       tenantID,
		IdempotencyKey: idempotencyKey,
		Channel:        domain.Channel(strings.ToLower(string(req.Channel))),
		TemplateID:     strings.TrimSpace(req.TemplateID),
		Locale:         req.Locale,
		To: domain.Recipient{
			Email:       req.To.Email,
			Phone:       req.To.Phone,
			DeviceToken: req.To.DeviceToken,
		},
		Variables:     req.Variables,
		Metadata:      req.Metadata,
		Priority:      req.Priority.OrDefault(),
		CorrelationID: middleware.GetCorrelationID(r.Context()),
	}
}

func (h *NotificationHandler) decode(r *http.Request) (domain.NotificationRequest, error) {
	var req SendNotificationRequest
	if err := DecodeJSON(r, &req); err != nil {
		return domain.NotificationRequest{}, err
	}
	if err := h.validate.Struct(req); err != nil {
		return domain.NotificationRequest{}, err
	}
	return req.toDomain(r), nil
}

// Send dispatches a notification synchronously. The dispatch is detached from
// the client connection and bounded by the dispatcher's own timeout, so a
// disconnect cannot strand an accepted idempotency key or count against a provider.
// @Summary Send notification
// @Description Run a notification through the dispatch pipeline and return its outcome
// @Tags notifications
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string false "Tenant ID"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param notification body SendNotificationRequest true "Notification request"
// @Success 202 {object} Response{data=domain.Outcome} "sent"
// @Success 200 {object} Response{data=domain.Outcome} "duplicate"
// @Failure 400 {object} Response
// @Failure 429 {object} Response
// @Failure 502 {object} Response
// @Router /api/v1/notifications [post]
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(r)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteOutcome(w, h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), req))
}

// Enqueue publishes a notification for asynchronous dispatch
// @Summary Enqueue notification
// @Description Publish a notification onto the durable queue; a worker dispatches it
// @Tags notifications
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string false "Tenant ID"
// @Param Idempotency-Key header string false "Idempotency key"
// @Param notification body SendNotificationRequest true "Notification request"
// @Success 202 {object} Response{data=EnqueueResponse}
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/notifications/queue [post]
func (h *NotificationHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	req, err := h.decode(r)
	if err != nil {
		HandleError(w, err)
		return
	}

	if !req.Channel.IsValid() {
		HandleError(w, domain.NewValidationError("channel", "unsupported channel"))
		return
	}

	item := domain.NewQueueItem(req)
	if err := h.queue.Enqueue(r.Context(), item); err != nil {
		h.logger.Error("failed to enqueue notification",
			"error", err,
			"channel", req.Channel,
			"tenant", req.TenantLabel(),
			"correlation_id", middleware.GetCorrelationID(r.Context()),
		)
		HandleError(w, err)
		return
	}

	h.metrics.RecordQueued(string(req.Channel), req.TenantLabel())

	JSON(w, http.StatusAccepted, EnqueueResponse{
		ID:         item.ID,
		Priority:   req.Priority,
		EnqueuedAt: item.EnqueuedAt,
	})
}
