package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageServer(t *testing.T, status int, body map[string]any, calls *int32) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body) //nolint:errcheck
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestCreateMessage(t *testing.T) {
	var calls int32
	ts := messageServer(t, http.StatusOK, map[string]any{
		"id":   "msg_001",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": `{"valor": "R$ 10,00",`},
			{"type": "text", "text": ` "confidence": 90}`},
		},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 120, "output_tokens": 30},
	}, &calls)

	temp := 0.1
	client := NewClient("test-key", WithBaseURL(ts.URL))
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   1500,
		System:      []SystemBlock{{Text: "Responda em JSON."}},
		Messages:    []Message{{Role: "user", Content: "Documento"}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_001", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"valor": "R$ 10,00", "confidence": 90}`, resp.Text())
	assert.Equal(t, int64(120), resp.Usage.InputTokens)
	assert.Equal(t, int64(30), resp.Usage.OutputTokens)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateMessage_ErrorIsNotRetried(t *testing.T) {
	var calls int32
	ts := messageServer(t, http.StatusInternalServerError, map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "api_error", "message": "Internal server error"},
	}, &calls)

	client := NewClient("test-key", WithBaseURL(ts.URL))
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 100,
		Messages:  []Message{{Role: "user", Content: "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFromSDKMessage(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{
		ID:         "msg_x",
		Model:      "claude-sonnet-4-5",
		StopReason: "max_tokens",
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "a"},
			{Type: "thinking", Text: "ignored"},
		},
		Usage: sdk.Usage{InputTokens: 7, OutputTokens: 3},
	})
	assert.Equal(t, "claude-sonnet-4-5", resp.Model)
	assert.Equal(t, "max_tokens", resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "a", resp.Text())
	assert.Equal(t, int64(7), resp.Usage.InputTokens)
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi"},
		{Role: "other", Content: "?"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, sdk.MessageParamRoleUser, msgs[2].Role)
}

func TestToSDKSystemBlocks(t *testing.T) {
	blocks := toSDKSystemBlocks([]SystemBlock{{Text: "one"}, {Text: "two"}})
	require.Len(t, blocks, 2)
	assert.Equal(t, "two", blocks[1].Text)
}
