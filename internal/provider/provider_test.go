package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insider-one/dispatch-service/internal/config"
	"github.com/insider-one/dispatch-service/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWebhookDriver_Send(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantID        string
		wantErr       bool
		wantPermanent bool
	}{
		{name: "accepted with id", status: http.StatusAccepted, body: `{"messageId":"wh-1","status":"accepted"}`, wantID: "wh-1"},
		{name: "ok without body", status: http.StatusOK, body: ``},
		{name: "server error is retryable", status: http.StatusBadGateway, body: `bad gateway`, wantErr: true},
		{name: "too many requests is retryable", status: http.StatusTooManyRequests, body: `slow down`, wantErr: true},
		{name: "bad request is permanent", status: http.StatusBadRequest, body: `invalid`, wantErr: true, wantPermanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got domain.ProviderRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			driver := NewWebhookDriver(config.WebhookConfig{URL: server.URL, Timeout: time.Second}, domain.ChannelPush)
			id, err := driver.Send(context.Background(), "device-1", domain.Content{Subject: "Hi", Text: "Hello"}, map[string]any{"k": "v"})

			assert.Equal(t, "device-1", got.To)
			assert.Equal(t, "push", got.Channel)
			assert.Equal(t, "Hello", got.Content)
			assert.Equal(t, "Hi", got.Subject)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrProviderError)
				assert.Equal(t, tt.wantPermanent, domain.IsPermanent(err))
				return
			}

			require.NoError(t, err)
			if tt.wantID != "" {
				assert.Equal(t, tt.wantID, id)
			} else {
				assert.True(t, strings.HasPrefix(id, "webhook-"))
			}
		})
	}
}

func TestWebhookDriver_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	driver := NewWebhookDriver(config.WebhookConfig{URL: server.URL, Timeout: time.Second}, domain.ChannelEmail)
	_, err := driver.Send(context.Background(), "a@example.com", domain.Content{Text: "x"}, nil)

	require.Error(t, err)
	assert.False(t, domain.IsPermanent(err))
}

func TestTwilioDriver_Send(t *testing.T) {
	var (
		gotPath string
		gotForm map[string]string
		gotUser string
		gotPass string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		assert.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":   r.PostForm.Get("To"),
			"From": r.PostForm.Get("From"),
			"Body": r.PostForm.Get("Body"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123"}`))
	}))
	defer server.Close()

	cfg := config.TwilioConfig{
		AccountSID:   "AC1",
		AuthToken:    "secret",
		From:         "+15550001",
		WhatsAppFrom: "+15550002",
		BaseURL:      server.URL + "/",
		Timeout:      time.Second,
	}

	t.Run("sms", func(t *testing.T) {
		id, err := NewTwilioDriver(cfg, domain.ChannelSMS).Send(context.Background(), "+447700900123", domain.Content{Text: "code 1234"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "SM123", id)
		assert.Equal(t, "/Accounts/AC1/Messages.json", gotPath)
		assert.Equal(t, "AC1", gotUser)
		assert.Equal(t, "secret", gotPass)
		assert.Equal(t, map[string]string{"To": "+447700900123", "From": "+15550001", "Body": "code 1234"}, gotForm)
	})

	t.Run("whatsapp", func(t *testing.T) {
		_, err := NewTwilioDriver(cfg, domain.ChannelWhatsApp).Send(context.Background(), "+447700900123", domain.Content{HTML: "<b>hi</b>"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "whatsapp:+447700900123", gotForm["To"])
		assert.Equal(t, "whatsapp:+15550002", gotForm["From"])
		assert.Equal(t, "<b>hi</b>", gotForm["Body"])
	})
}

func TestTwilioDriver_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantPermanent bool
	}{
		{name: "invalid number", status: http.StatusBadRequest, wantPermanent: true},
		{name: "auth failure", status: http.StatusUnauthorized, wantPermanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests},
		{name: "outage", status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"code":21211,"message":"rejected"}`))
			}))
			defer server.Close()

			driver := NewTwilioDriver(config.TwilioConfig{AccountSID: "AC1", BaseURL: server.URL, Timeout: time.Second}, domain.ChannelSMS)
			_, err := driver.Send(context.Background(), "+1555", domain.Content{Text: "x"}, nil)

			require.Error(t, err)
			var providerErr domain.ProviderError
			require.True(t, errors.As(err, &providerErr))
			assert.Equal(t, tt.status, providerErr.StatusCode)
			assert.Equal(t, "rejected", providerErr.Message)
			assert.Equal(t, tt.wantPermanent, domain.IsPermanent(err))
		})
	}
}

func TestConsoleDriver_Send(t *testing.T) {
	driver := NewConsoleDriver(domain.ChannelEmail, discardLogger())

	id, err := driver.Send(context.Background(), "ada@example.com", domain.Content{Subject: "Hi", Text: "Hi Ada"}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "console-"))
	assert.Equal(t, "console", driver.Name())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = driver.Send(ctx, "ada@example.com", domain.Content{Text: "x"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSMTPDriver_InvalidRecipientIsPermanent(t *testing.T) {
	driver, err := NewSMTPDriver(config.SMTPConfig{Host: "localhost", Port: 2525, From: "no-reply@example.com"})
	require.NoError(t, err)

	_, err = driver.Send(context.Background(), "not an address", domain.Content{Subject: "Hi", Text: "x"}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}

func TestSMTPDriver_BuildMessage(t *testing.T) {
	driver, err := NewSMTPDriver(config.SMTPConfig{From: "no-reply@example.com"})
	require.NoError(t, err)

	m, id, err := driver.buildMessage("ada@example.com", domain.Content{Subject: "Hi", Text: "Hi Ada", HTML: "<p>Hi Ada</p>"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, strings.HasSuffix(id, "@dispatch"))
}

func TestNewSMTPDriver_RejectsInvalidSender(t *testing.T) {
	_, err := NewSMTPDriver(config.SMTPConfig{Host: "localhost", Port: 25, From: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP_FROM")
}

func TestSMTPDriver_InvalidSenderIsPermanent(t *testing.T) {
	// a driver built without the constructor skips the startup check
	driver := &SMTPDriver{cfg: config.SMTPConfig{Host: "localhost", Port: 2525, From: "broken"}}

	_, err := driver.Send(context.Background(), "ada@example.com", domain.Content{Text: "x"}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err))
}

func TestNewFromConfig(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Provider: config.ProviderConfig{
				Email:    "smtp",
				SMS:      "twilio",
				Push:     "webhook",
				WhatsApp: "Twilio",
				InApp:    "console",
			},
			Webhook: config.WebhookConfig{URL: "http://localhost", Timeout: time.Second},
			Twilio:  config.TwilioConfig{BaseURL: "http://localhost", Timeout: time.Second},
			SMTP:    config.SMTPConfig{Host: "localhost", Port: 25, From: "a@example.com"},
		}
	}

	t.Run("all backends", func(t *testing.T) {
		registry, err := NewFromConfig(base(), discardLogger())
		require.NoError(t, err)

		assert.Equal(t, map[domain.Channel]string{
			domain.ChannelEmail:    "smtp",
			domain.ChannelSMS:      "twilio",
			domain.ChannelPush:     "webhook",
			domain.ChannelWhatsApp: "twilio",
			domain.ChannelInApp:    "console",
		}, registry.Providers())

		driver, ok := registry.Driver(domain.ChannelSMS)
		require.True(t, ok)
		assert.IsType(t, &TwilioDriver{}, driver)
	})

	t.Run("empty backend leaves channel without driver", func(t *testing.T) {
		cfg := base()
		cfg.Provider.InApp = ""
		registry, err := NewFromConfig(cfg, discardLogger())
		require.NoError(t, err)

		_, ok := registry.Driver(domain.ChannelInApp)
		assert.False(t, ok)
	})

	invalid := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown backend", mutate: func(c *config.Config) { c.Provider.Email = "ses" }},
		{name: "smtp for sms", mutate: func(c *config.Config) { c.Provider.SMS = "smtp" }},
		{name: "twilio for push", mutate: func(c *config.Config) { c.Provider.Push = "twilio" }},
	}

	t.Run("invalid smtp sender", func(t *testing.T) {
		cfg := base()
		cfg.SMTP.From = "broken"
		_, err := NewFromConfig(cfg, discardLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SMTP_FROM")
	})
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			_, err := NewFromConfig(cfg, discardLogger())
			assert.ErrorIs(t, err, domain.ErrUnknownBackend)
		})
	}
}
