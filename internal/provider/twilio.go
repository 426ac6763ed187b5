package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/insider-one/dispatch-service/internal/config"
	"github.com/insider-one/dispatch-service/internal/domain"
)

const whatsAppPrefix = "whatsapp:"

// TwilioDriver sends SMS or WhatsApp messages through the Twilio Messages API
type TwilioDriver struct {
	client  *http.Client
	baseURL string
	sid     string
	token   string
	from    string
	channel domain.Channel
}

// NewTwilioDriver creates a new TwilioDriver for the sms or whatsapp channel
func NewTwilioDriver(cfg config.TwilioConfig, channel domain.Channel) *TwilioDriver {
	from := cfg.From
	if channel == domain.ChannelWhatsApp && cfg.WhatsAppFrom != "" {
		from = cfg.WhatsAppFrom
	}

	return &TwilioDriver{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		sid:     cfg.AccountSID,
		token:   cfg.AuthToken,
		from:    from,
		channel: channel,
	}
}

func (p *TwilioDriver) Name() string { return BackendTwilio }

type twilioResponse struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
}

// Send creates a message resource and returns its sid
func (p *TwilioDriver) Send(ctx context.Context, recipient string, content domain.Content, metadata map[string]any) (string, error) {
	body := content.Text
	if body == "" {
		body = content.HTML
	}

	to, from := recipient, p.from
	if p.channel == domain.ChannelWhatsApp {
		to, from = withWhatsAppPrefix(to), withWhatsAppPrefix(from)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", p.baseURL, url.PathEscape(p.sid))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.SetBasicAuth(p.sid, p.token)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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

	var parsed twilioResponse
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := parsed.Message
		if message == "" {
			message = string(respBody)
		}
		return "", domain.NewProviderError(resp.StatusCode, message, retryableStatus(resp.StatusCode))
	}

	if parsed.SID == "" {
		return "unknown", nil
	}
	return parsed.SID, nil
}

func withWhatsAppPrefix(addr string) string {
	if strings.HasPrefix(addr, whatsAppPrefix) {
		return addr
	}
	return whatsAppPrefix + addr
}
