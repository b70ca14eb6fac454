package ai

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/pkg/anthropic"
)

// AnthropicAdapter sends prompts through the Messages API.
type AnthropicAdapter struct {
	name   string
	client anthropic.Client
}

// NewAnthropicAdapter wraps an anthropic client.
func NewAnthropicAdapter(name string, client anthropic.Client) *AnthropicAdapter {
	return &AnthropicAdapter{name: name, client: client}
}

// Name returns the roster name of the provider.
func (a *AnthropicAdapter) Name() string { return a.name }

// Complete sends a single user turn.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Reply, error) {
	temp := req.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   int64(req.MaxTokens),
		System:      []anthropic.SystemBlock{{Text: req.System}},
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "ai: %s completion", a.name)
	}
	text := resp.Text()
	if text == "" {
		return nil, eris.Errorf("ai: %s returned no content", a.name)
	}
	return &Reply{
		Content:   text,
		TokensIn:  int(resp.Usage.InputTokens),
		TokensOut: int(resp.Usage.OutputTokens),
		Model:     resp.Model,
	}, nil
}
