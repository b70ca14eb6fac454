// Package ai turns extracted document text into structured financial fields
// using a priority-ordered roster of language-model providers.
package ai

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/pkg/anthropic"
)

// Provider kinds understood by NewAdapter.
const (
	KindOpenAI    = "openai"
	KindGLM       = "glm"
	KindAnthropic = "anthropic"
)

// GLMBaseURL is the OpenAI-compatible endpoint of the GLM platform.
const GLMBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// Adapter sends one prompt to one provider.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Reply, error)
}

// Request is a provider-neutral completion request.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Reply is the raw provider answer with token usage.
type Reply struct {
	Content   string
	TokensIn  int
	TokensOut int
	Model     string
}

// Credentials holds provider API keys.
type Credentials struct {
	OpenAI    string
	GLM       string
	Anthropic string
}

// NewAdapter builds the adapter for a roster entry. Kind defaults to Name.
func NewAdapter(p model.ProviderConfig, creds Credentials) (Adapter, error) {
	kind := p.Kind
	if kind == "" {
		kind = p.Name
	}
	switch kind {
	case KindOpenAI:
		return NewOpenAIAdapter(p.Name, creds.OpenAI, p.BaseURL, true), nil
	case KindGLM:
		base := p.BaseURL
		if base == "" {
			base = GLMBaseURL
		}
		return NewOpenAIAdapter(p.Name, creds.GLM, base, false), nil
	case KindAnthropic:
		var opts []anthropic.Option
		if p.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(p.BaseURL))
		}
		return NewAnthropicAdapter(p.Name, anthropic.NewClient(creds.Anthropic, opts...)), nil
	default:
		return nil, eris.Errorf("ai: unknown provider kind %q for %q", kind, p.Name)
	}
}

// NewAdapters builds one adapter per roster entry, keyed by provider name.
func NewAdapters(providers []model.ProviderConfig, creds Credentials) (map[string]Adapter, error) {
	out := make(map[string]Adapter, len(providers))
	for _, p := range providers {
		a, err := NewAdapter(p, creds)
		if err != nil {
			return nil, err
		}
		out[p.Name] = a
	}
	return out, nil
}
