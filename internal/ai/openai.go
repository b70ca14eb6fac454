package ai

import (
	"context"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to any OpenAI-compatible chat/completions endpoint.
type OpenAIAdapter struct {
	name     string
	client   *openai.Client
	jsonMode bool
}

// NewOpenAIAdapter creates an adapter. An empty baseURL keeps the OpenAI
// default. jsonMode requests response_format=json_object.
func NewOpenAIAdapter(name, apiKey, baseURL string, jsonMode bool) *OpenAIAdapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAdapter{
		name:     name,
		client:   openai.NewClientWithConfig(cfg),
		jsonMode: jsonMode,
	}
}

// Name returns the roster name of the provider.
func (a *OpenAIAdapter) Name() string { return a.name }

// Complete sends the system and user messages and returns the first choice.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Reply, error) {
	creq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if a.jsonMode {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := a.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, eris.Wrapf(err, "ai: %s completion", a.name)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, eris.Errorf("ai: %s returned no content", a.name)
	}

	return &Reply{
		Content:   resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
		Model:     resp.Model,
	}, nil
}
