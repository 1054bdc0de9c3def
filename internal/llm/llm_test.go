package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/docchat/internal/config"
	"github.com/fyrsmithlabs/docchat/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "palm", APIKey: "x"})
	assert.Error(t, err)
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "openai"})
	assert.Error(t, err)

	_, err = New(config.LLMConfig{Provider: "anthropic"})
	assert.Error(t, err)
}

func TestOpenAIChat(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Refunds are processed within 14 days."}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := New(config.LLMConfig{Provider: "openai", APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Chat(context.Background(), []schema.ChatMessage{
		{Role: schema.RoleSystem, Content: "You are a friendly and helpful assistant."},
		{Role: schema.RoleUser, Content: "What is the refund policy?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Refunds are processed within 14 days.", out)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestOpenAIChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "ok"}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := New(config.LLMConfig{Provider: "openai", APIKey: "k", BaseURL: srv.URL, MaxRetries: 2})
	require.NoError(t, err)

	out, err := client.Chat(context.Background(), []schema.ChatMessage{{Role: schema.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIChatDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer srv.Close()

	client, err := New(config.LLMConfig{Provider: "openai", APIKey: "k", BaseURL: srv.URL, MaxRetries: 3})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []schema.ChatMessage{{Role: schema.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad request")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIChatEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client, err := New(config.LLMConfig{Provider: "openai", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), []schema.ChatMessage{{Role: schema.RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropicChatLiftsSystemPrompt(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := map[string]any{
			"content": []map[string]any{{"type": "text", "text": "hello"}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := New(config.LLMConfig{Provider: "anthropic", APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.Chat(context.Background(), []schema.ChatMessage{
		{Role: schema.RoleSystem, Content: "Be terse."},
		{Role: schema.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "Be terse.", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestChatNoMessages(t *testing.T) {
	client, err := New(config.LLMConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoMessages)
}
