package domain

import (
	"strings"
)

// Channel represents the notification delivery channel
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelPush     Channel = "push"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelInApp    Channel = "inapp"
)

// Channels lists every supported channel in a stable order.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelWhatsApp, ChannelInApp}

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWhatsApp, ChannelInApp:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Priorities lists priorities from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// OrDefault returns the priority, or normal when it is empty or unknown
func (p Priority) OrDefault() Priority {
	if p.IsValid() {
		return p
	}
	return PriorityNormal
}

// Recipient holds the possible destination addresses of a request
type Recipient struct {
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DeviceToken string `json:"device_token,omitempty"`
}

// NotificationRequest is a single outbound notification. Callers build it
// once and hand it to the dispatcher; it is never mutated afterwards.
type NotificationRequest struct {
	TenantID       string         `json:"tenant_id,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Channel        Channel        `json:"channel"`
	TemplateID     string         `json:"template_id"`
	Locale         string         `json:"locale,omitempty"`
	To             Recipient      `json:"to"`
	Variables      map[string]any `json:"variables,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Priority       Priority       `json:"priority,omitempty"`

	// CorrelationID ties the dispatch back to the inbound HTTP request
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Address resolves the destination for the request's channel.
// Email, sms and whatsapp address a person; push and inapp address a device.
func (r NotificationRequest) Address() (string, bool) {
	var addr string
	switch r.Channel {
	case ChannelEmail:
		addr = r.To.Email
	case ChannelSMS, ChannelWhatsApp:
		addr = r.To.Phone
	case ChannelPush, ChannelInApp:
		addr = r.To.DeviceToken
	}
	addr = strings.TrimSpace(addr)
	return addr, addr != ""
}

// RecipientKey normalizes an address for per-recipient throttling
func RecipientKey(channel Channel, address string) string {
	if channel == ChannelEmail {
		return strings.ToLower(address)
	}
	return address
}

// TenantLabel returns the tenant id or "n/a" for metrics and logs
func (r NotificationRequest) TenantLabel() string {
	if r.TenantID == "" {
		return "n/a"
	}
	return r.TenantID
}
