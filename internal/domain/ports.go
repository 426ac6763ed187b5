package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IdempotencyGate records first acceptance of a caller-supplied key
type IdempotencyGate interface {
	// Accept returns true only the first time key is seen within its TTL
	Accept(ctx context.Context, key string) (bool, error)
}

// RateLimiter is a keyed token bucket
type RateLimiter interface {
	// Allow takes one token from the bucket for scopeKey, creating it full on first use
	Allow(ctx context.Context, scopeKey string, capacity, refillPerMinute int) (bool, error)
}

// EventSink persists dispatch events
type EventSink interface {
	Record(ctx context.Context, event *DispatchEvent) error
}

// QueueItem is a request waiting on the durable queue
type QueueItem struct {
	ID         uuid.UUID           `json:"id"`
	Request    NotificationRequest `json:"request"`
	EnqueuedAt time.Time           `json:"enqueued_at"`

	// Receipt is the queue's handle for settling a dequeued item
	Receipt string `json:"-"`
}

// NewQueueItem wraps a request for enqueueing
func NewQueueItem(req NotificationRequest) *QueueItem {
	return &QueueItem{
		ID:         uuid.New(),
		Request:    req,
		EnqueuedAt: time.Now().UTC(),
	}
}

// DeadLetter is a queue item that was negatively acknowledged
type DeadLetter struct {
	Item     *QueueItem `json:"item,omitempty"`
	Raw      string     `json:"raw,omitempty"`
	Reason   string     `json:"reason"`
	FailedAt time.Time  `json:"failed_at"`
}

// Queue is the durable inbound queue feeding the asynchronous consumer
type Queue interface {
	// Enqueue adds a request to the queue for its priority
	Enqueue(ctx context.Context, item *QueueItem) error

	// Dequeue leases the next item, highest priority first; ErrQueueEmpty when idle
	Dequeue(ctx context.Context) (*QueueItem, error)

	// Ack settles a dequeued item
	Ack(ctx context.Context, item *QueueItem) error

	// DeadLetter parks a rejected item without requeueing it and settles its lease
	DeadLetter(ctx context.Context, letter *DeadLetter) error

	// Recover requeues dequeued items whose lease expired without being settled
	Recover(ctx context.Context) (int, error)

	// Depths returns the number of items per priority queue and in the dead-letter list
	Depths(ctx context.Context) (map[string]int64, error)
}
