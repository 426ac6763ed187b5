package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/insider-one/dispatch-service/internal/domain"
)

// TemplateRepository implements domain.TemplateRepository using PostgreSQL
type TemplateRepository struct {
	db *DB
}

// NewTemplateRepository creates a new TemplateRepository
func NewTemplateRepository(db *DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Find retrieves the template for key, channel and locale. A template owned by
// tenantID wins over the global one (tenant_id IS NULL).
func (r *TemplateRepository) Find(ctx context.Context, key string, channel domain.Channel, tenantID, locale string) (*domain.Template, error) {
	query := `
		SELECT id, key, COALESCE(tenant_id, ''), channel, locale, subject, html, text_body,
			variables, created_at, updated_at
		FROM templates
		WHERE key = $1 AND channel = $2 AND locale = $3
			AND (tenant_id IS NULL OR tenant_id = $4)
		ORDER BY tenant_id NULLS LAST
		LIMIT 1
	`

	row := r.db.Pool.QueryRow(ctx, query, key, channel, locale, tenantID)

	t := &domain.Template{}
	var variables []byte

	err := row.Scan(
		&t.ID, &t.Key, &t.TenantID, &t.Channel, &t.Locale,
		&t.Content.Subject, &t.Content.HTML, &t.Content.Text,
		&variables, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			t.ExtractVariables()
		}
	}

	return t, nil
}

// Upsert creates or replaces a template for its key, channel, locale and tenant
func (r *TemplateRepository) Upsert(ctx context.Context, t *domain.Template) error {
	t.ExtractVariables()
	variables, err := json.Marshal(t.Variables)
	if err != nil {
		variables = []byte("[]")
	}

	query := `
		INSERT INTO templates (
			id, key, tenant_id, channel, locale, subject, html, text_body, variables, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (key, channel, locale, COALESCE(tenant_id, '')) DO UPDATE SET
			subject = EXCLUDED.subject,
			html = EXCLUDED.html,
			text_body = EXCLUDED.text_body,
			variables = EXCLUDED.variables,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.Pool.Exec(ctx, query,
		t.ID, t.Key, nullable(t.TenantID), t.Channel, t.Locale,
		t.Content.Subject, t.Content.HTML, t.Content.Text, variables, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert template: %w", err)
	}

	return nil
}
