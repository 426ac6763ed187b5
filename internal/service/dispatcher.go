package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/insider-one/dispatch-service/internal/domain"
	"github.com/insider-one/dispatch-service/internal/metrics"
	"github.com/insider-one/dispatch-service/internal/resilience"
)

const defaultTenantScope = "default"

// DriverSource returns the active driver for a channel
type DriverSource interface {
	Driver(channel domain.Channel) (domain.Driver, bool)
}

// Limits are the token bucket caps per scope; capacity equals the per-minute refill
type Limits struct {
	TenantPerMinute    int
	RecipientPerMinute int
}

// DispatcherConfig bounds one dispatch
type DispatcherConfig struct {
	Limits Limits

	// Timeout bounds a whole dispatch, retries included. Zero disables it.
	Timeout time.Duration

	// HistoryTimeout bounds the write to the event sink
	HistoryTimeout time.Duration
}

// Dispatcher runs the dispatch pipeline. It is safe for concurrent use.
type Dispatcher struct {
	policy   *ChannelPolicy
	gate     domain.IdempotencyGate
	limiter  domain.RateLimiter
	content  domain.ContentResolver
	drivers  DriverSource
	executor *resilience.Executor
	sink     domain.EventSink
	metrics  *metrics.Metrics
	cfg      DispatcherConfig
	logger   *slog.Logger

	eventBroadcast func(event *domain.DispatchEvent)
}

// NewDispatcher creates a new Dispatcher. sink may be nil.
func NewDispatcher(
	policy *ChannelPolicy,
	gate domain.IdempotencyGate,
	limiter domain.RateLimiter,
	content domain.ContentResolver,
	drivers DriverSource,
	executor *resilience.Executor,
	sink domain.EventSink,
	m *metrics.Metrics,
	cfg DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		policy:   policy,
		gate:     gate,
		limiter:  limiter,
		content:  content,
		drivers:  drivers,
		executor: executor,
		sink:     sink,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetEventBroadcast sets the function that receives every dispatch event
func (d *Dispatcher) SetEventBroadcast(fn func(event *domain.DispatchEvent)) {
	d.eventBroadcast = fn
}

// Dispatch runs one request through the pipeline and returns its terminal
// outcome. It never panics and never returns an error: every failure is an
// Outcome. Exactly one event is emitted per call.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.NotificationRequest) (out domain.Outcome) {
	start := time.Now()
	recipient, _ := req.Address()
	d.metrics.RecordEnqueued(string(req.Channel), req.TenantLabel())
	var provider string

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("dispatch panic recovered",
				"panic", r,
				"stack", string(debug.Stack()),
				"channel", req.Channel,
				"provider", provider,
			)
			out = domain.ProviderFailed(provider, fmt.Sprintf("internal error: %v", r))
		}
		d.emit(ctx, req, recipient, out, time.Since(start))
	}()

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	return d.run(ctx, req, &provider)
}

func (d *Dispatcher) run(ctx context.Context, req domain.NotificationRequest, provider *string) domain.Outcome {
	// 1. recipient and request shape
	if !req.Channel.IsValid() {
		return domain.ValidationFailed(fmt.Sprintf("unsupported channel %q", req.Channel))
	}
	addr, ok := req.Address()
	if !ok {
		return domain.ValidationFailed(fmt.Sprintf("recipient missing for channel %s", req.Channel))
	}
	if req.TemplateID == "" {
		return domain.ValidationFailed("template_id required")
	}

	// 2. tenant policy
	if !d.policy.ChannelEnabled(req.TenantID, req.Channel) {
		return domain.ChannelDisabled(req.Channel)
	}

	// 3. idempotency, opt-in per request
	if req.IdempotencyKey != "" {
		accepted, err := d.gate.Accept(ctx, req.IdempotencyKey)
		if err != nil {
			return domain.ProviderFailed("", fmt.Sprintf("idempotency store unavailable: %v", err))
		}
		if !accepted {
			return domain.Duplicate()
		}
	}

	// 4. tenant throttle
	if out, blocked := d.throttle(ctx, tenantScopeKey(req.TenantID), d.cfg.Limits.TenantPerMinute, domain.ScopeTenant); blocked {
		return out
	}

	// 5. recipient throttle
	if out, blocked := d.throttle(ctx, "rcpt:"+domain.RecipientKey(req.Channel, addr), d.cfg.Limits.RecipientPerMinute, domain.ScopeRecipient); blocked {
		return out
	}

	// 6. content
	raw, err := d.content.Resolve(ctx, req.TemplateID, req.Locale, req.Channel, req.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			return domain.ValidationFailed(err.Error())
		}
		return domain.ProviderFailed("", fmt.Sprintf("content resolution failed: %v", err))
	}

	content, err := Shape(req.Channel, req.TemplateID, *raw, req.Variables)
	if err != nil {
		return domain.ValidationFailed(err.Error())
	}

	// 7. driver
	driver, ok := d.drivers.Driver(req.Channel)
	if !ok {
		return domain.ValidationFailed(fmt.Sprintf("no provider configured for channel %s", req.Channel))
	}
	*provider = driver.Name()

	// 8. resilient send
	return d.send(ctx, req, driver, addr, content)
}

func (d *Dispatcher) throttle(ctx context.Context, key string, perMinute int, scope domain.ThrottleScope) (domain.Outcome, bool) {
	allowed, err := d.limiter.Allow(ctx, key, perMinute, perMinute)
	if err != nil {
		return domain.ProviderFailed("", fmt.Sprintf("throttle store unavailable: %v", err)), true
	}
	if !allowed {
		return domain.Throttled(scope), true
	}
	return domain.Outcome{}, false
}

func (d *Dispatcher) send(ctx context.Context, req domain.NotificationRequest, driver domain.Driver, addr string, content domain.Content) domain.Outcome {
	channel, provider := string(req.Channel), driver.Name()
	tenant := req.TenantLabel()

	onRetry := func(attempt int, err error, wait time.Duration) {
		d.metrics.RecordRetry(channel, provider, tenant, req.TemplateID)
	}

	start := time.Now()
	id, err := resilience.Execute(ctx, d.executor, channel, provider, func(ctx context.Context) (string, error) {
		return driver.Send(ctx, addr, content, req.Metadata)
	}, onRetry)
	d.metrics.ObserveSendLatency(channel, provider, time.Since(start))

	if err != nil {
		d.metrics.RecordFailed(channel, provider, tenant, req.TemplateID, failureReason(err))
		return domain.ProviderFailed(provider, err.Error())
	}

	d.metrics.RecordSent(channel, provider, tenant, req.TemplateID)
	return domain.Sent(provider, id)
}

// emit logs, counts, stores and broadcasts the terminal outcome
func (d *Dispatcher) emit(ctx context.Context, req domain.NotificationRequest, recipient string, out domain.Outcome, took time.Duration) {
	event := domain.NewDispatchEvent(req, recipient, out, took)

	logFn := d.logger.Info
	switch out.Kind {
	case domain.OutcomeProviderFailed:
		logFn = d.logger.Error
	case domain.OutcomeThrottled, domain.OutcomeValidationFailed, domain.OutcomeChannelDisabled:
		logFn = d.logger.Warn
	}
	logFn("dispatch completed",
		"event_id", event.ID,
		"correlation_id", req.CorrelationID,
		"channel", req.Channel,
		"provider", out.Provider,
		"tenant", req.TenantLabel(),
		"template_id", req.TemplateID,
		"outcome", out.Kind,
		"scope", out.Scope,
		"reason", out.Reason,
		"provider_message_id", out.ProviderMessageID,
		"duration_ms", took.Milliseconds(),
	)

	d.metrics.RecordOutcome(string(req.Channel), string(out.Kind))

	if d.sink != nil {
		d.record(ctx, event)
	}

	if d.eventBroadcast != nil {
		d.eventBroadcast(event)
	}
}

// record writes the event to the sink. History is best effort and outlives
// the caller's cancellation.
func (d *Dispatcher) record(ctx context.Context, event *domain.DispatchEvent) {
	ctx = context.WithoutCancel(ctx)
	if d.cfg.HistoryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.HistoryTimeout)
		defer cancel()
	}

	if err := d.sink.Record(ctx, event); err != nil {
		d.logger.Warn("failed to record dispatch event",
			"event_id", event.ID,
			"error", err,
		)
	}
}

func tenantScopeKey(tenantID string) string {
	if tenantID == "" {
		return "tenant:" + defaultTenantScope
	}
	return "tenant:" + tenantID
}

// failureReason is a low-cardinality label for a provider failure
func failureReason(err error) string {
	var providerErr domain.ProviderError
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &providerErr) && !providerErr.Retryable:
		return "rejected"
	case errors.As(err, &providerErr):
		return "provider_error"
	default:
		return "error"
	}
}
