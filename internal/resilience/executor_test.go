package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insider-one/dispatch-service/internal/domain"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		AttemptTimeout:  time.Second,
	}
}

func newTestExecutor(clock *fakeClock) *Executor {
	return NewExecutor(newTestRegistry(clock), fastRetryConfig(), discardLogger())
}

func TestExecute_SucceedsOnThirdAttempt(t *testing.T) {
	exec := newTestExecutor(newFakeClock())
	calls := 0
	retries := 0

	id, err := Execute(context.Background(), exec, "email", "smtp", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "msg-1", nil
	}, func(attempt int, err error, wait time.Duration) {
		retries++
	})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)

	status := exec.Registry().Get("email", "smtp").Status()
	assert.Equal(t, uint64(1), status.Successes)
	assert.Equal(t, uint64(2), status.Failures)
	assert.Equal(t, "closed", status.State)
	assert.Equal(t, 0, status.RecentFailures)
}

func TestExecute_AllAttemptsFail(t *testing.T) {
	exec := newTestExecutor(newFakeClock())
	calls := 0
	boom := errors.New("timeout")

	_, err := Execute(context.Background(), exec, "sms", "twilio", func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)

	status := exec.Registry().Get("sms", "twilio").Status()
	assert.Equal(t, uint64(3), status.Failures)
	assert.Equal(t, uint64(0), status.Successes)
}

func TestExecute_OpenCircuitSkipsCall(t *testing.T) {
	clock := newFakeClock()
	exec := newTestExecutor(clock)
	breaker := exec.Registry().Get("email", "smtp")
	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}

	called := false
	_, err := Execute(context.Background(), exec, "email", "smtp", func(ctx context.Context) (string, error) {
		called = true
		return "x", nil
	}, nil)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, uint64(5), breaker.Status().Failures)
}

func TestExecute_TwoFailedDispatchesOpenTheCircuit(t *testing.T) {
	exec := newTestExecutor(newFakeClock())
	failing := func(ctx context.Context) (string, error) {
		return "", errors.New("503")
	}

	_, err := Execute(context.Background(), exec, "email", "smtp", failing, nil)
	require.Error(t, err)
	_, err = Execute(context.Background(), exec, "email", "smtp", failing, nil)
	require.Error(t, err)

	_, err = Execute(context.Background(), exec, "email", "smtp", failing, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestExecute_PermanentErrorStopsRetrying(t *testing.T) {
	exec := newTestExecutor(newFakeClock())
	calls := 0

	_, err := Execute(context.Background(), exec, "sms", "twilio", func(ctx context.Context) (string, error) {
		calls++
		return "", domain.NewProviderError(400, "invalid phone number", false)
	}, nil)

	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
	assert.Equal(t, 1, calls)

	status := exec.Registry().Get("sms", "twilio").Status()
	assert.Equal(t, uint64(0), status.Failures)
	assert.Equal(t, "closed", status.State)
}

func TestExecute_RetryableProviderErrorIsRetried(t *testing.T) {
	exec := newTestExecutor(newFakeClock())
	calls := 0

	_, err := Execute(context.Background(), exec, "push", "webhook", func(ctx context.Context) (string, error) {
		calls++
		return "", domain.NewProviderError(503, "unavailable", true)
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_AttemptTimeout(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.AttemptTimeout = 5 * time.Millisecond
	exec := NewExecutor(newTestRegistry(newFakeClock()), cfg, discardLogger())
	calls := 0

	_, err := Execute(context.Background(), exec, "email", "slow", func(ctx context.Context) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 3, calls)
	assert.Equal(t, uint64(3), exec.Registry().Get("email", "slow").Status().Failures)
}

func TestExecute_CancelledContextStopsLoop(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.InitialInterval = time.Second
	cfg.MaxInterval = time.Second
	exec := NewExecutor(newTestRegistry(newFakeClock()), cfg, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Execute(ctx, exec, "email", "smtp", func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", errors.New("fail")
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_CallerCancellationIsNotAProviderFailure(t *testing.T) {
	exec := newTestExecutor(newFakeClock())

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := Execute(ctx, exec, "email", "smtp", func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}, nil)
		cancel()
		require.Error(t, err)
	}

	status := exec.Registry().Get("email", "smtp").Status()
	assert.Equal(t, "closed", status.State)
	assert.Equal(t, uint64(0), status.Failures)
	assert.Equal(t, 0, status.RecentFailures)
}

func TestExecute_CancelledHalfOpenTrialKeepsBreakerHalfOpen(t *testing.T) {
	clock := newFakeClock()
	exec := newTestExecutor(clock)
	breaker := exec.Registry().Get("email", "smtp")
	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}
	clock.Advance(20 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := Execute(ctx, exec, "email", "smtp", func(ctx context.Context) (string, error) {
		cancel()
		return "", ctx.Err()
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateHalfOpen, breaker.State())

	id, err := Execute(context.Background(), exec, "email", "smtp", func(ctx context.Context) (string, error) {
		return "msg-1", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, StateClosed, breaker.State())
}
