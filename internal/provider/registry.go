package provider

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/insider-one/dispatch-service/internal/config"
	"github.com/insider-one/dispatch-service/internal/domain"
)

// Backend names accepted in PROVIDER_<CHANNEL>
const (
	BackendConsole = "console"
	BackendWebhook = "webhook"
	BackendSMTP    = "smtp"
	BackendTwilio  = "twilio"
)

// Registry holds the single active driver per channel
type Registry struct {
	drivers map[domain.Channel]domain.Driver
}

// NewRegistry creates a Registry from an explicit channel to driver map
func NewRegistry(drivers map[domain.Channel]domain.Driver) *Registry {
	copied := make(map[domain.Channel]domain.Driver, len(drivers))
	for ch, d := range drivers {
		copied[ch] = d
	}
	return &Registry{drivers: copied}
}

// NewFromConfig builds one driver per channel from the configured backends
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	backends := cfg.Provider.Backends()
	drivers := make(map[domain.Channel]domain.Driver, len(domain.Channels))

	for _, channel := range domain.Channels {
		backend := strings.ToLower(strings.TrimSpace(backends[string(channel)]))
		if backend == "" {
			continue
		}

		driver, err := newDriver(cfg, channel, backend, logger)
		if err != nil {
			return nil, err
		}
		drivers[channel] = driver

		logger.Info("provider configured", "channel", channel, "provider", driver.Name())
	}

	return &Registry{drivers: drivers}, nil
}

func newDriver(cfg *config.Config, channel domain.Channel, backend string, logger *slog.Logger) (domain.Driver, error) {
	switch backend {
	case BackendConsole:
		return NewConsoleDriver(channel, logger), nil
	case BackendWebhook:
		return NewWebhookDriver(cfg.Webhook, channel), nil
	case BackendSMTP:
		if channel == domain.ChannelEmail {
			driver, err := NewSMTPDriver(cfg.SMTP)
			if err != nil {
				return nil, err
			}
			return driver, nil
		}
	case BackendTwilio:
		if channel == domain.ChannelSMS || channel == domain.ChannelWhatsApp {
			return NewTwilioDriver(cfg.Twilio, channel), nil
		}
	}
	return nil, fmt.Errorf("%w: %q for channel %s", domain.ErrUnknownBackend, backend, channel)
}

// Driver returns the active driver for a channel
func (r *Registry) Driver(channel domain.Channel) (domain.Driver, bool) {
	d, ok := r.drivers[channel]
	return d, ok
}

// Providers returns the provider name per configured channel
func (r *Registry) Providers() map[domain.Channel]string {
	names := make(map[domain.Channel]string, len(r.drivers))
	for ch, d := range r.drivers {
		names[ch] = d.Name()
	}
	return names
}
