package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeKind tags the terminal result of one dispatch
type OutcomeKind string

const (
	OutcomeSent             OutcomeKind = "sent"
	OutcomeDuplicate        OutcomeKind = "duplicate"
	OutcomeThrottled        OutcomeKind = "throttled"
	OutcomeChannelDisabled  OutcomeKind = "channel_disabled"
	OutcomeValidationFailed OutcomeKind = "validation_failed"
	OutcomeProviderFailed   OutcomeKind = "provider_failed"
)

// ThrottleScope names the bucket that rejected a request
type ThrottleScope string

const (
	ScopeTenant    ThrottleScope = "tenant"
	ScopeRecipient ThrottleScope = "recipient"
)

// Outcome is the result of a dispatch. Only the fields relevant to Kind are set.
type Outcome struct {
	Kind              OutcomeKind   `json:"status"`
	Provider          string        `json:"provider,omitempty"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	Scope             ThrottleScope `json:"scope,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

func Sent(provider, providerMessageID string) Outcome {
	return Outcome{Kind: OutcomeSent, Provider: provider, ProviderMessageID: providerMessageID}
}

func Duplicate() Outcome {
	return Outcome{Kind: OutcomeDuplicate}
}

func Throttled(scope ThrottleScope) Outcome {
	return Outcome{Kind: OutcomeThrottled, Scope: scope, Reason: string(scope) + " throttle exceeded"}
}

func ChannelDisabled(channel Channel) Outcome {
	return Outcome{Kind: OutcomeChannelDisabled, Reason: "channel " + string(channel) + " disabled for tenant"}
}

func ValidationFailed(reason string) Outcome {
	return Outcome{Kind: OutcomeValidationFailed, Reason: reason}
}

func ProviderFailed(provider, reason string) Outcome {
	return Outcome{Kind: OutcomeProviderFailed, Provider: provider, Reason: reason}
}

// Succeeded reports whether callers should treat the outcome as delivered
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSent || o.Kind == OutcomeDuplicate
}

// Transient reports whether the same request may succeed if retried later
func (o Outcome) Transient() bool {
	return o.Kind == OutcomeThrottled || o.Kind == OutcomeProviderFailed
}

// DispatchEvent is the structured record emitted once per terminal outcome
type DispatchEvent struct {
	ID                uuid.UUID      `json:"id"`
	TenantID          string         `json:"tenant_id,omitempty"`
	IdempotencyKey    string         `json:"idempotency_key,omitempty"`
	CorrelationID     string         `json:"correlation_id,omitempty"`
	Channel           Channel        `json:"channel"`
	Provider          string         `json:"provider,omitempty"`
	TemplateID        string         `json:"template_id"`
	Locale            string         `json:"locale,omitempty"`
	Recipient         string         `json:"recipient,omitempty"`
	Priority          Priority       `json:"priority"`
	Outcome           OutcomeKind    `json:"outcome"`
	Scope             ThrottleScope  `json:"scope,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Duration          time.Duration  `json:"duration_ns"`
	CreatedAt         time.Time      `json:"created_at"`
}

// NewDispatchEvent builds the event for a request and its outcome
func NewDispatchEvent(req NotificationRequest, recipient string, out Outcome, took time.Duration) *DispatchEvent {
	return &DispatchEvent{
		ID:                uuid.New(),
		TenantID:          req.TenantID,
		IdempotencyKey:    req.IdempotencyKey,
		CorrelationID:     req.CorrelationID,
		Channel:           req.Channel,
		Provider:          out.Provider,
		TemplateID:        req.TemplateID,
		Locale:            req.Locale,
		Recipient:         recipient,
		Priority:          req.Priority.OrDefault(),
		Outcome:           out.Kind,
		Scope:             out.Scope,
		Reason:            out.Reason,
		ProviderMessageID: out.ProviderMessageID,
		Metadata:          req.Metadata,
		Duration:          took,
		CreatedAt:         time.Now().UTC(),
	}
}
