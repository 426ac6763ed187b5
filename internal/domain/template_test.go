package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewTemplate(t *testing.T) {
	content := Content{
		Subject: "Hi {{name}}",
		Text:    "Hello {{name}}, welcome to {{company}}!",
	}

	tmpl := NewTemplate("welcome", ChannelEmail, "en-GB", content)

	assert.NotNil(t, tmpl)
	assert.NotEmpty(t, tmpl.ID)
	assert.Equal(t, "welcome", tmpl.Key)
	assert.Equal(t, ChannelEmail, tmpl.Channel)
	assert.Equal(t, "en-GB", tmpl.Locale)
	assert.Equal(t, content, tmpl.Content)
	assert.ElementsMatch(t, []string{"name", "company"}, tmpl.Variables)
}

func TestTemplate_ExtractVariables(t *testing.T) {
	tests := []struct {
		name     string
		content  Content
		wantVars []string
	}{
		{
			name:     "single variable",
			content:  Content{Text: "Hello {{name}}!"},
			wantVars: []string{"name"},
		},
		{
			name:     "variables across parts",
			content:  Content{Subject: "Code {{code}}", HTML: "<p>{{name}}</p>", Text: "{{name}} {{code}}"},
			wantVars: []string{"code", "name"},
		},
		{
			name:     "whitespace inside braces",
			content:  Content{Text: "Hello {{ first_name }}"},
			wantVars: []string{"first_name"},
		},
		{
			name:     "no variables",
			content:  Content{Text: "Hello World!"},
			wantVars: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := &Template{Content: tt.content}
			tmpl.ExtractVariables()

			assert.ElementsMatch(t, tt.wantVars, tmpl.Variables)
		})
	}
}

func TestContent_Render(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		vars    map[string]any
		want    Content
	}{
		{
			name:    "subject and text",
			content: Content{Subject: "Hi {{name}}", Text: "Hello {{name}}"},
			vars:    map[string]any{"name": "Ada"},
			want:    Content{Subject: "Hi Ada", Text: "Hello Ada"},
		},
		{
			name:    "non-string values",
			content: Content{Text: "Your code is {{code}}, valid {{minutes}} min"},
			vars:    map[string]any{"code": 123456, "minutes": 5.5},
			want:    Content{Text: "Your code is 123456, valid 5.5 min"},
		},
		{
			name:    "missing variable left intact",
			content: Content{Text: "Hello {{name}}, {{greeting}}"},
			vars:    map[string]any{"name": "John"},
			want:    Content{Text: "Hello John, {{greeting}}"},
		},
		{
			name:    "nil value left intact",
			content: Content{Text: "Hello {{name}}"},
			vars:    map[string]any{"name": nil},
			want:    Content{Text: "Hello {{name}}"},
		},
		{
			name:    "spaced placeholder",
			content: Content{HTML: "<b>{{ name }}</b>"},
			vars:    map[string]any{"name": "Ada"},
			want:    Content{HTML: "<b>Ada</b>"},
		},
		{
			name:    "no variables",
			content: Content{Text: "Hello World!"},
			vars:    nil,
			want:    Content{Text: "Hello World!"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.content.Render(tt.vars))
		})
	}
}

func TestContent_IsEmpty(t *testing.T) {
	assert.True(t, Content{}.IsEmpty())
	assert.True(t, Content{Subject: "only subject"}.IsEmpty())
	assert.False(t, Content{Text: "body"}.IsEmpty())
	assert.False(t, Content{HTML: "<p>body</p>"}.IsEmpty())
}
