package domain

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Content is message content for one channel. Template storage returns it
// with {{placeholders}}; Render produces the copy handed to a driver.
type Content struct {
	Subject string `json:"subject,omitempty"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// IsEmpty reports whether the content has neither html nor text body
func (c Content) IsEmpty() bool {
	return c.HTML == "" && c.Text == ""
}

// variablePattern matches template variables like {{variable_name}} or {{ name }}
var variablePattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Render substitutes variables into every part of the content.
// Placeholders without a matching variable are left as-is.
func (c Content) Render(vars map[string]any) Content {
	return Content{
		Subject: renderString(c.Subject, vars),
		HTML:    renderString(c.HTML, vars),
		Text:    renderString(c.Text, vars),
	}
}

func renderString(s string, vars map[string]any) string {
	if s == "" || len(vars) == 0 {
		return s
	}
	return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok || value == nil {
			return match
		}
		return fmt.Sprint(value)
	})
}

// Template is a stored, locale-specific message template
type Template struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Channel   Channel   `json:"channel"`
	Locale    string    `json:"locale"`
	Content   Content   `json:"content"`
	Variables []string  `json:"variables"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTemplate creates a new template
func NewTemplate(key string, channel Channel, locale string, content Content) *Template {
	now := time.Now().UTC()
	t := &Template{
		ID:        uuid.New(),
		Key:       key,
		Channel:   channel,
		Locale:    locale,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.ExtractVariables()
	return t
}

// ExtractVariables extracts variable names from subject, html and text
func (t *Template) ExtractVariables() {
	seen := make(map[string]bool)
	variables := make([]string, 0)

	for _, part := range []string{t.Content.Subject, t.Content.HTML, t.Content.Text} {
		for _, match := range variablePattern.FindAllStringSubmatch(part, -1) {
			if len(match) > 1 && !seen[match[1]] {
				variables = append(variables, match[1])
				seen[match[1]] = true
			}
		}
	}
	t.Variables = variables
}

// TemplateRepository looks up stored templates. Find prefers a tenant-specific
// template over the global one and returns ErrNotFound when neither exists.
type TemplateRepository interface {
	Find(ctx context.Context, key string, channel Channel, tenantID, locale string) (*Template, error)
}

// ContentResolver resolves the unrendered content for a template, applying
// locale fallback. It returns ErrTemplateNotFound when nothing matches.
type ContentResolver interface {
	Resolve(ctx context.Context, templateID, locale string, channel Channel, tenantID string) (*Content, error)
}
