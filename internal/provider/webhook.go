package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/insider-one/dispatch-service/internal/config"
	"github.com/insider-one/dispatch-service/internal/domain"
)

// WebhookDriver implements domain.Driver by posting JSON to an HTTP endpoint
type WebhookDriver struct {
	client  *http.Client
	baseURL string
	channel domain.Channel
}

// NewWebhookDriver creates a new WebhookDriver for one channel
func NewWebhookDriver(cfg config.WebhookConfig, channel domain.Channel) *WebhookDriver {
	return &WebhookDriver{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.URL,
		channel: channel,
	}
}

func (p *WebhookDriver) Name() string { return BackendWebhook }

// Send posts the content to the webhook endpoint
func (p *WebhookDriver) Send(ctx context.Context, recipient string, content domain.Content, metadata map[string]any) (string, error) {
	body, err := json.Marshal(&domain.ProviderRequest{
		To:       recipient,
		Channel:  string(p.channel),
		Subject:  content.Subject,
		Content:  content.Text,
		HTML:     content.HTML,
		Metadata: metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", domain.NewProviderError(0, fmt.Sprintf("request failed: %v", err), true)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", domain.NewProviderError(resp.StatusCode, string(respBody), retryableStatus(resp.StatusCode))
	}

	// Endpoints that answer without a message id still accepted the send
	var providerResp domain.ProviderResponse
	if err := json.Unmarshal(respBody, &providerResp); err != nil || providerResp.MessageID == "" {
		return "webhook-" + uuid.NewString(), nil
	}

	return providerResp.MessageID, nil
}

// retryableStatus reports whether an HTTP failure status may succeed on retry
func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
