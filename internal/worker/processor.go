package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/insider-one/dispatch-service/internal/config"
	"github.com/insider-one/dispatch-service/internal/domain"
)

// Dispatcher sends one notification and reports its outcome
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.NotificationRequest) domain.Outcome
}

// Processor consumes the durable queue and hands each item to the dispatcher.
// Items whose outcome is transient (throttled, provider failed) are moved to
// the dead-letter list instead of being requeued; the rest are acknowledged.
// Items leased by a worker that died before settling are put back by the
// recovery loop once their lease expires.
type Processor struct {
	queue      domain.Queue
	dispatcher Dispatcher
	logger     *slog.Logger
	cfg        config.WorkerConfig

	mu         sync.Mutex
	running    bool
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

// NewProcessor creates a new Processor
func NewProcessor(queue domain.Queue, dispatcher Dispatcher, logger *slog.Logger, cfg config.WorkerConfig) *Processor {
	if cfg.Count < 1 {
		cfg.Count = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.RecoverInterval <= 0 {
		cfg.RecoverInterval = 30 * time.Second
	}
	return &Processor{
		queue:      queue,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start starts the worker pool
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	ctx, p.cancelFunc = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Count; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	p.wg.Add(1)
	go p.recoverLoop(ctx)

	p.logger.Info("processor started",
		"workers", p.cfg.Count,
		"poll_interval", p.cfg.PollInterval,
	)

	return nil
}

// Stop stops the worker pool. Items already dequeued are finished first.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	if p.cancelFunc != nil {
		p.cancelFunc()
	}

	// Wait for all workers to finish
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("processor stopped gracefully")
	case <-time.After(30 * time.Second):
		p.logger.Warn("processor stop timed out")
	}
}

// worker is the main worker loop
func (p *Processor) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", workerID)
	logger.Info("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return
		default:
		}

		processed, err := p.ProcessNext(ctx, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("failed to process queue item", "error", err)
		}

		if !processed || err != nil {
			select {
			case <-ctx.Done():
			case <-time.After(p.cfg.PollInterval):
			}
		}
	}
}

// recoverLoop requeues expired leases, once at start and then every RecoverInterval
func (p *Processor) recoverLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.RecoverInterval)
	defer ticker.Stop()

	for {
		n, err := p.queue.Recover(ctx)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			p.logger.Error("failed to recover expired leases", "error", err)
		case n > 0:
			p.logger.Warn("requeued expired queue items", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessNext takes one item off the queue, dispatches it and settles it.
// It reports false when the queue was empty.
func (p *Processor) ProcessNext(ctx context.Context, logger *slog.Logger) (bool, error) {
	item, err := p.queue.Dequeue(ctx)
	if errors.Is(err, domain.ErrQueueEmpty) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// A dequeued item is owned by this worker; finish it even during shutdown.
	ctx = context.WithoutCancel(ctx)

	out := p.dispatcher.Dispatch(ctx, item.Request)
	return true, p.settle(ctx, item, out, logger)
}

// settle acknowledges terminal outcomes and dead-letters transient ones
func (p *Processor) settle(ctx context.Context, item *domain.QueueItem, out domain.Outcome, logger *slog.Logger) error {
	logger = logger.With(
		"item_id", item.ID,
		"correlation_id", item.Request.CorrelationID,
		"channel", item.Request.Channel,
		"outcome", out.Kind,
		"queued_for", time.Since(item.EnqueuedAt).Round(time.Millisecond),
	)

	if !out.Transient() {
		if err := p.queue.Ack(ctx, item); err != nil {
			return err
		}
		logger.Debug("queue item acknowledged")
		return nil
	}

	reason := string(out.Kind)
	if out.Reason != "" {
		reason += ": " + out.Reason
	}

	if err := p.queue.DeadLetter(ctx, &domain.DeadLetter{
		Item:     item,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	logger.Warn("queue item dead-lettered", "reason", reason)
	return nil
}
