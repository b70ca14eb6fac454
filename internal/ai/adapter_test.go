package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/pkg/anthropic"
)

func chatServer(t *testing.T, content string, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{ //nolint:errcheck
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
			},
			Usage: openai.Usage{PromptTokens: 321, CompletionTokens: 45, TotalTokens: 366},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestOpenAIAdapter_JSONMode(t *testing.T) {
	var body map[string]any
	ts := chatServer(t, validReply, &body)

	a := NewOpenAIAdapter("openai", "test-key", ts.URL, true)
	reply, err := a.Complete(context.Background(), Request{
		System: SystemPrompt, Prompt: "doc", Model: "gpt-4o-mini", Temperature: 0.1, MaxTokens: 1500,
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", a.Name())
	assert.Equal(t, validReply, reply.Content)
	assert.Equal(t, 321, reply.TokensIn)
	assert.Equal(t, 45, reply.TokensOut)
	assert.Equal(t, "gpt-4o-mini", reply.Model)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.EqualValues(t, 1500, body["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "doc", msgs[1].(map[string]any)["content"])
}

func TestOpenAIAdapter_PlainModeForGLM(t *testing.T) {
	var body map[string]any
	ts := chatServer(t, validReply, &body)

	a, err := NewAdapter(model.ProviderConfig{Name: "glm", Kind: KindGLM, BaseURL: ts.URL}, Credentials{GLM: "test-key"})
	require.NoError(t, err)
	_, err = a.Complete(context.Background(), Request{Prompt: "doc", Model: "glm-4.5", MaxTokens: 10})
	require.NoError(t, err)
	assert.NotContains(t, body, "response_format")
}

func TestOpenAIAdapter_Errors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := NewOpenAIAdapter("openai", "k", ts.URL, true).Complete(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai: openai completion")
	assert.Equal(t, model.FallbackProviderError, Classify(err))

	var body map[string]any
	empty := chatServer(t, "", &body)
	_, err = NewOpenAIAdapter("openai", "test-key", empty.URL, false).Complete(context.Background(), Request{Model: "m"})
	assert.ErrorContains(t, err, "returned no content")
}

type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func TestAnthropicAdapter(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 1500 &&
			len(req.System) == 1 && req.System[0].Text == SystemPrompt &&
			len(req.Messages) == 1 && req.Messages[0].Content == "doc" &&
			req.Temperature != nil && *req.Temperature == 0.1
	})).Return(&anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: validReply}},
		Usage:   anthropic.TokenUsage{InputTokens: 50, OutputTokens: 20},
	}, nil)

	a := NewAnthropicAdapter("claude", client)
	reply, err := a.Complete(context.Background(), Request{
		System: SystemPrompt, Prompt: "doc", Model: "claude-haiku-4-5-20251001", Temperature: 0.1, MaxTokens: 1500,
	})
	require.NoError(t, err)
	assert.Equal(t, validReply, reply.Content)
	assert.Equal(t, 50, reply.TokensIn)
	assert.Equal(t, 20, reply.TokensOut)
	client.AssertExpectations(t)
}

func TestAnthropicAdapter_Error(t *testing.T) {
	client := &mockAnthropic{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)

	_, err := NewAnthropicAdapter("claude", client).Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, model.FallbackTimeout, Classify(err))
}

func TestNewAdapters(t *testing.T) {
	adapters, err := NewAdapters(append(DefaultProviders(), model.ProviderConfig{
		Name: "claude", Kind: KindAnthropic, Model: "claude-haiku-4-5-20251001",
	}), Credentials{})
	require.NoError(t, err)
	assert.Len(t, adapters, 3)
	assert.IsType(t, &AnthropicAdapter{}, adapters["claude"])
	assert.IsType(t, &OpenAIAdapter{}, adapters["glm"])

	_, err = NewAdapter(model.ProviderConfig{Name: "x", Kind: "mistral"}, Credentials{})
	assert.Error(t, err)
}
