package classifier

import (
	"bytes"
	"fmt"
	"text/template"

	"newswire/internal/utils"
)

const systemPrompt = "You are a financial news classifier. Answer with JSON only."

const defaultPrompt = `Classify each news item into exactly one primary label.

Allowed labels:
{{- range .Labels }}
- {{ . }}
{{- end }}

For every item also list the stock ticker symbols it is specifically about as "entities"
(an empty list when it is not company specific).

Respond with a JSON array and nothing else, one object per item, in this shape:
[{"id": "<item id>", "label": "<one allowed label>", "entities": ["TICKER"]}]

Items:
{{ json .Items }}
`

type promptData struct {
	Labels []string
	Items  []Item
}

// PromptBuilder renders the batch instruction. A custom template receives
// .Labels and .Items and may use the json and join functions.
type PromptBuilder struct {
	tmpl *template.Template
}

func NewPromptBuilder(templatePath string) (*PromptBuilder, error) {
	if templatePath == "" {
		tmpl, err := utils.ParseTemplate("classify", defaultPrompt)
		if err != nil {
			return nil, err
		}
		return &PromptBuilder{tmpl: tmpl}, nil
	}

	tmpl, err := utils.LoadTemplate(templatePath)
	if err != nil {
		return nil, err
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

func (p *PromptBuilder) Build(labels []string, items []Item) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, promptData{Labels: labels, Items: items}); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}
