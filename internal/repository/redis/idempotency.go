package redis

import (
	"context"
	"fmt"
	"time"
)

const (
	idempotencyKeyPrefix = "idem:"
	idempotencySentinel  = "1"
)

// IdempotencyStore implements domain.IdempotencyGate with SET NX EX, so the
// first writer of a key wins atomically on the server
type IdempotencyStore struct {
	client *Client
	ttl    time.Duration
}

// NewIdempotencyStore creates a new IdempotencyStore
func NewIdempotencyStore(client *Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		ttl:    ttl,
	}
}

// Accept returns true if this call stored the key, false if it already existed
func (s *IdempotencyStore) Accept(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.client.SetNX(ctx, idempotencyKeyPrefix+key, idempotencySentinel, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return ok, nil
}
