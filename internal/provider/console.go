package provider

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/insider-one/dispatch-service/internal/domain"
)

// ConsoleDriver logs messages instead of delivering them. It is the default
// backend for every channel in development.
type ConsoleDriver struct {
	channel domain.Channel
	logger  *slog.Logger
}

// NewConsoleDriver creates a new ConsoleDriver
func NewConsoleDriver(channel domain.Channel, logger *slog.Logger) *ConsoleDriver {
	return &ConsoleDriver{channel: channel, logger: logger}
}

func (p *ConsoleDriver) Name() string { return BackendConsole }

func (p *ConsoleDriver) Send(ctx context.Context, recipient string, content domain.Content, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := "console-" + uuid.NewString()
	p.logger.Info("console delivery",
		"channel", p.channel,
		"to", recipient,
		"subject", content.Subject,
		"text", content.Text,
		"html_bytes", len(content.HTML),
		"message_id", id,
	)
	return id, nil
}
