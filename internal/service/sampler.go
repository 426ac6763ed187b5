package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/insider-one/dispatch-service/internal/domain"
	"github.com/insider-one/dispatch-service/internal/metrics"
	"github.com/insider-one/dispatch-service/internal/resilience"
)

// GaugeSampler periodically refreshes the queue depth and breaker state gauges
type GaugeSampler struct {
	queue    domain.Queue
	breakers *resilience.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration

	cron gocron.Scheduler
}

// NewGaugeSampler creates a new GaugeSampler
func NewGaugeSampler(
	queue domain.Queue,
	breakers *resilience.Registry,
	m *metrics.Metrics,
	logger *slog.Logger,
	interval time.Duration,
) (*GaugeSampler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &GaugeSampler{
		queue:    queue,
		breakers: breakers,
		metrics:  m,
		logger:   logger,
		interval: interval,
		cron:     cron,
	}, nil
}

// Start registers the sampling job and starts the scheduler
func (s *GaugeSampler) Start(ctx context.Context) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.Sample(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule gauge sampling: %w", err)
	}

	s.cron.Start()
	s.logger.Info("gauge sampler started", "interval", s.interval)
	return nil
}

// Stop stops the scheduler
func (s *GaugeSampler) Stop() {
	if err := s.cron.Shutdown(); err != nil {
		s.logger.Error("failed to stop gauge sampler", "error", err)
		return
	}
	s.logger.Info("gauge sampler stopped")
}

// Sample reads queue depths and breaker states once
func (s *GaugeSampler) Sample(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	depths, err := s.queue.Depths(ctx)
	if err != nil {
		s.logger.Error("failed to get queue depths", "error", err)
	} else {
		for name, depth := range depths {
			s.metrics.SetQueueDepth(name, float64(depth))
		}
	}

	for _, status := range s.breakers.Snapshot() {
		s.metrics.SetCircuitState(status.Channel, status.Provider, stateValue(status.State))
	}
}

// BreakerTransitions returns a registry hook that keeps the circuit metrics current
func BreakerTransitions(m *metrics.Metrics) resilience.TransitionFunc {
	return func(channel, provider string, from, to resilience.State, reason string) {
		if to == resilience.StateOpen {
			m.RecordCircuitOpen(channel, provider)
		}
		m.SetCircuitState(channel, provider, stateValue(to.String()))
	}
}

func stateValue(state string) float64 {
	switch state {
	case resilience.StateOpen.String():
		return 1
	case resilience.StateHalfOpen.String():
		return 2
	default:
		return 0
	}
}
