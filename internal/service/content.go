package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/insider-one/dispatch-service/internal/domain"
)

// ContentService resolves template content with locale fallback
type ContentService struct {
	repo          domain.TemplateRepository
	defaultLocale string
	logger        *slog.Logger
}

// NewContentService creates a new ContentService
func NewContentService(repo domain.TemplateRepository, defaultLocale string, logger *slog.Logger) *ContentService {
	return &ContentService{
		repo:          repo,
		defaultLocale: defaultLocale,
		logger:        logger,
	}
}

// Resolve tries the exact locale, then its base language, then the default locale
func (s *ContentService) Resolve(ctx context.Context, templateID, locale string, channel domain.Channel, tenantID string) (*domain.Content, error) {
	for _, candidate := range localeCandidates(locale, s.defaultLocale) {
		t, err := s.repo.Find(ctx, templateID, channel, tenantID, candidate)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to get template: %w", err)
		}

		if candidate != locale {
			s.logger.Debug("template locale fallback",
				"template_id", templateID,
				"requested", locale,
				"resolved", candidate,
			)
		}
		content := t.Content
		return &content, nil
	}

	return nil, fmt.Errorf("%w: %s (%s)", domain.ErrTemplateNotFound, templateID, channel)
}

// localeCandidates lists lookup locales in order without duplicates
func localeCandidates(locale, defaultLocale string) []string {
	candidates := make([]string, 0, 3)
	add := func(l string) {
		if l == "" {
			return
		}
		for _, c := range candidates {
			if strings.EqualFold(c, l) {
				return
			}
		}
		candidates = append(candidates, l)
	}

	add(locale)
	add(baseLanguage(locale))
	add(defaultLocale)
	return candidates
}

// baseLanguage returns "en" for "en-US" or "en_US", and "" when there is no region
func baseLanguage(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return locale[:i]
	}
	return ""
}

// Shape renders content and applies the per-channel requirements. It returns
// a domain.ValidationError when the channel's required parts are missing.
func Shape(channel domain.Channel, templateID string, raw domain.Content, vars map[string]any) (domain.Content, error) {
	content := raw.Render(vars)

	switch channel {
	case domain.ChannelEmail:
		if content.Subject == "" {
			if subject := stringVar(vars, "subject"); subject != "" {
				content.Subject = subject
			} else {
				content.Subject = "Notification: " + templateID
			}
		}
		if content.IsEmpty() {
			return domain.Content{}, domain.NewValidationError("content", "email template missing (html or text required)")
		}

	case domain.ChannelSMS:
		body := stringVar(vars, "body")
		if body == "" {
			body = stringVar(vars, "text")
		}
		if body == "" {
			body = strings.TrimSpace(content.Text)
		}
		if body == "" {
			return domain.Content{}, domain.NewValidationError("content", "sms body missing (variables.body or text template required)")
		}
		content = domain.Content{Text: body}

	case domain.ChannelPush:
		if content.Text == "" {
			return domain.Content{}, domain.NewValidationError("content", "push template missing text")
		}
		content.HTML = ""

	case domain.ChannelWhatsApp, domain.ChannelInApp:
		if content.IsEmpty() {
			return domain.Content{}, domain.NewValidationError("content", fmt.Sprintf("%s template missing (html or text required)", channel))
		}

	default:
		return domain.Content{}, domain.NewValidationError("channel", "unsupported channel")
	}

	if err := validateContentLength(channel, content); err != nil {
		return domain.Content{}, err
	}

	return content, nil
}

func stringVar(vars map[string]any, name string) string {
	v, ok := vars[name]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// validateContentLength validates content length based on channel
func validateContentLength(channel domain.Channel, content domain.Content) error {
	var maxLen int
	switch channel {
	case domain.ChannelSMS:
		maxLen = 160 * 4 // Allow up to 4 SMS segments
	case domain.ChannelEmail:
		maxLen = 100000 // 100KB
	case domain.ChannelPush:
		maxLen = 4096 // 4KB
	default:
		return nil
	}

	if len(content.Text) > maxLen || len(content.HTML) > maxLen {
		return domain.NewValidationError("content",
			fmt.Sprintf("content exceeds maximum length of %d characters for %s channel", maxLen, channel))
	}

	return nil
}

// TemplateSeed is one entry of the template seed file
type TemplateSeed struct {
	Key      string `yaml:"key"`
	TenantID string `yaml:"tenant_id"`
	Channel  string `yaml:"channel"`
	Locale   string `yaml:"locale"`
	Subject  string `yaml:"subject"`
	HTML     string `yaml:"html"`
	Text     string `yaml:"text"`
}

// TemplateWriter stores seeded templates
type TemplateWriter interface {
	Upsert(ctx context.Context, t *domain.Template) error
}

// SeedTemplates loads templates from a YAML file ("templates: [...]") and
// upserts them. It returns the number of templates written.
func SeedTemplates(ctx context.Context, path string, repo TemplateWriter, logger *slog.Logger) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read template seed file: %w", err)
	}

	var file struct {
		Templates []TemplateSeed `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse template seed file: %w", err)
	}

	for i, seed := range file.Templates {
		channel := domain.Channel(strings.ToLower(seed.Channel))
		if seed.Key == "" || seed.Locale == "" || !channel.IsValid() {
			return i, domain.NewValidationError("templates", fmt.Sprintf("entry %d needs key, locale and a valid channel", i))
		}

		t := domain.NewTemplate(seed.Key, channel, seed.Locale, domain.Content{
			Subject: seed.Subject,
			HTML:    seed.HTML,
			Text:    seed.Text,
		})
		t.TenantID = seed.TenantID

		if err := repo.Upsert(ctx, t); err != nil {
			return i, fmt.Errorf("failed to seed template %s: %w", seed.Key, err)
		}
	}

	logger.Info("templates seeded", "count", len(file.Templates), "path", path)
	return len(file.Templates), nil
}
