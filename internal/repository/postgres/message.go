package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/insider-one/dispatch-service/internal/domain"
)

// MessageRepository implements domain.EventSink, keeping one messages row per
// dispatch and its outcome in message_events
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Record stores a dispatch event in a single transaction
func (r *MessageRepository) Record(ctx context.Context, event *domain.DispatchEvent) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil || event.Metadata == nil {
		metadata = []byte("{}")
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	messageQuery := `
		INSERT INTO messages (
			id, tenant_id, idempotency_key, correlation_id, channel, provider, template_id,
			locale, recipient, priority, status, provider_message_id, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err = tx.Exec(ctx, messageQuery,
		event.ID, nullable(event.TenantID), nullable(event.IdempotencyKey), nullable(event.CorrelationID), event.Channel,
		nullable(event.Provider), event.TemplateID, nullable(event.Locale), nullable(event.Recipient),
		event.Priority, event.Outcome, nullable(event.ProviderMessageID), metadata, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	eventQuery := `
		INSERT INTO message_events (message_id, event_type, scope, reason, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = tx.Exec(ctx, eventQuery,
		event.ID, event.Outcome, nullable(string(event.Scope)), nullable(event.Reason),
		event.Duration.Milliseconds(), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// nullable maps empty strings to SQL NULL
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
