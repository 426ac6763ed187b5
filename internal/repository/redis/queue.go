package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/insider-one/dispatch-service/internal/domain"
)

const (
	queueKeyPrefix = "dispatch:queue:"
	processingKey  = "dispatch:processing"
	deadLetterKey  = "dispatch:dlq"

	// DefaultLease is how long a dequeued item may stay unsettled before it is requeued
	DefaultLease = 2 * time.Minute
)

// claimScript pops the oldest member of the first non-empty queue and leases it.
// KEYS queues in priority order, then the processing set; ARGV lease deadline (ms).
var claimScript = redis.NewScript(`
local processing = KEYS[#KEYS]
for i = 1, #KEYS - 1 do
  local popped = redis.call('ZPOPMIN', KEYS[i])
  if #popped > 0 then
    redis.call('ZADD', processing, ARGV[1], popped[1])
    return popped[1]
  end
end
return false
`)

// requeueScript returns an expired lease to its queue unless it was settled meanwhile.
// KEYS processing set, target queue; ARGV member, queue score.
var requeueScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 1 then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
  return 1
end
return 0
`)

// Queue implements domain.Queue with one sorted set per priority, scored by
// enqueue time, plus a dead-letter list. Dequeued items are leased in a
// processing set until Ack or DeadLetter settles them; Recover puts expired
// leases back, so a worker crash mid-dispatch redelivers instead of losing the item.
type Queue struct {
	client *Client
	lease  time.Duration
	now    func() time.Time
}

// NewQueue creates a new Queue with DefaultLease
func NewQueue(client *Client) *Queue {
	return &Queue{
		client: client,
		lease:  DefaultLease,
		now:    time.Now,
	}
}

// WithLease sets how long a dequeued item stays leased
func (q *Queue) WithLease(lease time.Duration) *Queue {
	if lease > 0 {
		q.lease = lease
	}
	return q
}

// WithClock replaces the lease clock, for tests
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// queueKey returns the Redis key for a priority's queue
func queueKey(priority domain.Priority) string {
	return queueKeyPrefix + string(priority)
}

// Enqueue adds a request to the queue for its priority
func (q *Queue) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal queue item: %w", err)
	}

	key := queueKey(item.Request.Priority.OrDefault())
	if err := q.client.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(item.EnqueuedAt.UnixMicro()),
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue item: %w", err)
	}

	return nil
}

// Dequeue leases the oldest item of the highest non-empty priority. Payloads
// that cannot be decoded are moved to the dead-letter list and reported as an error.
func (q *Queue) Dequeue(ctx context.Context) (*domain.QueueItem, error) {
	keys := make([]string, 0, len(domain.Priorities)+1)
	for _, priority := range domain.Priorities {
		keys = append(keys, queueKey(priority))
	}
	keys = append(keys, processingKey)

	deadline := q.now().Add(q.lease).UnixMilli()
	raw, err := claimScript.Run(ctx, q.client.client, keys, deadline).Text()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue item: %w", err)
	}

	var item domain.QueueItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		letter := &domain.DeadLetter{
			Raw:      raw,
			Reason:   "undecodable payload: " + err.Error(),
			FailedAt: time.Now().UTC(),
		}
		if dlqErr := q.DeadLetter(ctx, letter); dlqErr != nil {
			return nil, errors.Join(err, dlqErr)
		}
		return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
	}

	item.Receipt = raw
	return &item, nil
}

// Ack settles a dequeued item by dropping its lease
func (q *Queue) Ack(ctx context.Context, item *domain.QueueItem) error {
	if item.Receipt == "" {
		return nil
	}
	if err := q.client.client.ZRem(ctx, processingKey, item.Receipt).Err(); err != nil {
		return fmt.Errorf("failed to ack queue item: %w", err)
	}
	return nil
}

// DeadLetter pushes a rejected item onto the dead-letter list and drops its
// lease in the same transaction
func (q *Queue) DeadLetter(ctx context.Context, letter *domain.DeadLetter) error {
	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	receipt := letter.Raw
	if letter.Item != nil && letter.Item.Receipt != "" {
		receipt = letter.Item.Receipt
	}

	_, err = q.client.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if receipt != "" {
			pipe.ZRem(ctx, processingKey, receipt)
		}
		pipe.LPush(ctx, deadLetterKey, string(data))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	return nil
}

// Recover requeues items whose lease has expired, keeping their original
// position, and reports how many were put back
func (q *Queue) Recover(ctx context.Context) (int, error) {
	expired, err := q.client.client.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list expired leases: %w", err)
	}

	recovered := 0
	for _, raw := range expired {
		var item domain.QueueItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			if dlqErr := q.DeadLetter(ctx, &domain.DeadLetter{
				Raw:      raw,
				Reason:   "undecodable payload: " + err.Error(),
				FailedAt: time.Now().UTC(),
			}); dlqErr != nil {
				return recovered, dlqErr
			}
			continue
		}

		keys := []string{processingKey, queueKey(item.Request.Priority.OrDefault())}
		moved, err := requeueScript.Run(ctx, q.client.client, keys, raw, item.EnqueuedAt.UnixMicro()).Int()
		if err != nil {
			return recovered, fmt.Errorf("failed to requeue expired lease: %w", err)
		}
		recovered += moved
	}

	return recovered, nil
}

// Depths returns queue depths per priority, the in-flight count and the dead-letter count
func (q *Queue) Depths(ctx context.Context) (map[string]int64, error) {
	pipe := q.client.client.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(domain.Priorities)+2)

	for _, priority := range domain.Priorities {
		cmds[string(priority)] = pipe.ZCard(ctx, queueKey(priority))
	}
	cmds["processing"] = pipe.ZCard(ctx, processingKey)
	cmds["dead_letter"] = pipe.LLen(ctx, deadLetterKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get queue depths: %w", err)
	}

	depths := make(map[string]int64, len(cmds))
	for name, cmd := range cmds {
		depths[name] = cmd.Val()
	}
	return depths, nil
}
