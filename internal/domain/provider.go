package domain

import (
	"context"
	"time"
)

// Driver sends rendered content through one external provider.
// One driver is active per channel, chosen at startup.
type Driver interface {
	// Name identifies the provider in metrics, logs and breaker keys
	Name() string

	// Send delivers content to recipient and returns the provider's message id
	Send(ctx context.Context, recipient string, content Content, metadata map[string]any) (string, error)
}

// ProviderRequest is the JSON body posted to webhook-style providers
type ProviderRequest struct {
	To       string         `json:"to"`
	Channel  string         `json:"channel"`
	Subject  string         `json:"subject,omitempty"`
	Content  string         `json:"content"`
	HTML     string         `json:"html,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ProviderResponse represents a response from the external notification provider
type ProviderResponse struct {
	MessageID string    `json:"messageId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
