package platforms

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"newswire/internal/classifier"
	"newswire/internal/types"
)

// OpenAIPlatform talks to any OpenAI compatible chat completions endpoint.
// Retries are left to the classifier client.
type OpenAIPlatform struct {
	client openai.Client
	model  string
}

func NewOpenAIPlatform(apiKey, baseURL, model string) (*OpenAIPlatform, error) {
	if model == "" {
		return nil, fmt.Errorf("openai platform: model is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai platform: api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIPlatform{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (p *OpenAIPlatform) Name() string {
	return "openai"
}

func (p *OpenAIPlatform) Chat(ctx context.Context, req classifier.Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", types.NewStatusError(apiErr.StatusCode, apiErr.Error())
		}
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", &types.ClassifierError{Code: types.CodeMalformedResponse, Message: "completion has no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}
