package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"

	"github.com/insider-one/dispatch-service/internal/config"
	"github.com/insider-one/dispatch-service/internal/domain"
)

// SMTPDriver delivers email through an SMTP relay using go-mail
type SMTPDriver struct {
	cfg config.SMTPConfig
}

// NewSMTPDriver creates a new SMTPDriver. The sender address is checked here
// so a misconfigured relay fails at startup rather than on every send.
func NewSMTPDriver(cfg config.SMTPConfig) (*SMTPDriver, error) {
	if err := mail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid SMTP_FROM %q: %w", cfg.From, err)
	}
	return &SMTPDriver{cfg: cfg}, nil
}

func (p *SMTPDriver) Name() string { return BackendSMTP }

// Send builds a multipart message and delivers it. Addressing errors and
// permanent SMTP replies are reported as non-retryable.
func (p *SMTPDriver) Send(ctx context.Context, recipient string, content domain.Content, metadata map[string]any) (string, error) {
	m, id, err := p.buildMessage(recipient, content)
	if err != nil {
		return "", err
	}

	c, err := mail.NewClient(p.cfg.Host, p.clientOptions()...)
	if err != nil {
		return "", fmt.Errorf("failed to create mail client: %w", err)
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return "", domain.NewProviderError(0, sendErr.Error(), false)
		}
		return "", domain.NewProviderError(0, fmt.Sprintf("smtp delivery failed: %v", err), true)
	}

	return id, nil
}

func (p *SMTPDriver) buildMessage(recipient string, content domain.Content) (*mail.Msg, string, error) {
	m := mail.NewMsg()
	if err := m.From(p.cfg.From); err != nil {
		return nil, "", domain.NewProviderError(0, fmt.Sprintf("invalid from address: %v", err), false)
	}
	if err := m.To(recipient); err != nil {
		return nil, "", domain.NewProviderError(0, fmt.Sprintf("invalid recipient %q: %v", recipient, err), false)
	}

	id := uuid.NewString() + "@dispatch"
	m.SetMessageIDWithValue(id)
	m.Subject(content.Subject)

	switch {
	case content.Text != "" && content.HTML != "":
		m.SetBodyString(mail.TypeTextPlain, content.Text)
		m.AddAlternativeString(mail.TypeTextHTML, content.HTML)
	case content.HTML != "":
		m.SetBodyString(mail.TypeTextHTML, content.HTML)
	default:
		m.SetBodyString(mail.TypeTextPlain, content.Text)
	}

	return m, id, nil
}

func (p *SMTPDriver) clientOptions() []mail.Option {
	opts := []mail.Option{mail.WithPort(p.cfg.Port)}
	if p.cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(p.cfg.Timeout))
	}
	if p.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if p.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(p.cfg.Username),
			mail.WithPassword(p.cfg.Password),
		)
	}
	return opts
}
