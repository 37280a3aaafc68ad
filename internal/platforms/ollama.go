package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"newswire/internal/classifier"
	"newswire/internal/types"
)

type OllamaPlatform struct {
	client *api.Client
	model  string
}

// NewOllamaPlatform connects to baseURL, or to OLLAMA_HOST when baseURL is
// empty.
func NewOllamaPlatform(baseURL, model string) (*OllamaPlatform, error) {
	if model == "" {
		return nil, fmt.Errorf("failed to create Ollama client, model cannot be empty")
	}

	var client *api.Client
	if baseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		client = c
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid Ollama base url: %w", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	}

	return &OllamaPlatform{
		client: client,
		model:  model,
	}, nil
}

func (o *OllamaPlatform) Client() *api.Client { return o.client }

func (o *OllamaPlatform) Name() string {
	return "ollama"
}

func (o *OllamaPlatform) Chat(ctx context.Context, req classifier.Request) (string, error) {
	stream := false
	messages := make([]api.Message, 0, 2)
	if req.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	request := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options:  map[string]any{"temperature": req.Temperature},
	}
	if req.JSON {
		request.Format = json.RawMessage(`"json"`)
	}

	var out strings.Builder
	err := o.client.Chat(ctx, request, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return "", types.NewStatusError(statusErr.StatusCode, statusErr.ErrorMessage)
		}
		return "", err
	}

	return out.String(), nil
}
