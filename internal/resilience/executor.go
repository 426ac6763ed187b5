package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/insider-one/dispatch-service/internal/domain"
)

// ErrCircuitOpen is returned without calling the provider when its breaker rejects the call
var ErrCircuitOpen = errors.New("circuit open")

// RetryConfig bounds the retry loop around one provider call
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

// DefaultRetryConfig returns 3 attempts, backoff from 300ms capped at 3s
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 300 * time.Millisecond,
		MaxInterval:     3 * time.Second,
		AttemptTimeout:  10 * time.Second,
	}
}

// RetryObserver is told about each failed attempt that will be retried
type RetryObserver func(attempt int, err error, wait time.Duration)

// Executor wraps provider calls with breaker gating and bounded retry
type Executor struct {
	registry *Registry
	cfg      RetryConfig
	logger   *slog.Logger
}

// NewExecutor creates an Executor over registry
func NewExecutor(registry *Registry, cfg RetryConfig, logger *slog.Logger) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Executor{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
}

// Registry returns the breaker registry the executor gates on
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Execute runs call for (channel, provider). The breaker is consulted once up
// front; an open circuit fails fast with ErrCircuitOpen. Failed attempts are
// recorded on the breaker and retried with jittered exponential backoff. A
// domain.ProviderError marked non-retryable ends the loop at once and counts
// as a breaker success: the provider is reachable and answered. When ctx itself
// is cancelled or expires the loop stops and the breaker records nothing; an
// attempt that only outlives AttemptTimeout still counts as a failure.
func Execute[T any](
	ctx context.Context,
	e *Executor,
	channel, provider string,
	call func(ctx context.Context) (T, error),
	onRetry RetryObserver,
) (T, error) {
	var zero T

	breaker := e.registry.Get(channel, provider)
	if !breaker.AllowCall() {
		return zero, fmt.Errorf("%w for provider=%s channel=%s", ErrCircuitOpen, provider, channel)
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++

		attemptCtx := ctx
		if e.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
			defer cancel()
		}

		result, err := call(attemptCtx)
		if err == nil {
			return result, nil
		}
		if domain.IsPermanent(err) {
			return zero, backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(err)
		}
		breaker.RecordFailure()
		return zero, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.InitialInterval
	policy.MaxInterval = e.cfg.MaxInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.5

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(e.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.logger.Warn("provider call failed, retrying",
				"channel", channel,
				"provider", provider,
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
			if onRetry != nil {
				onRetry(attempt, err, wait)
			}
		}),
	)
	if err != nil {
		switch {
		case domain.IsPermanent(err):
			breaker.RecordSuccess()
		case ctx.Err() != nil:
			breaker.ReleaseCall()
		}
		return zero, err
	}

	breaker.RecordSuccess()
	return result, nil
}
