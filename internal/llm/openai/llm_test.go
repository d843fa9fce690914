package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalqa/internal/domain"
	"legalqa/internal/retry"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req["model"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "llama3.2",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "Clause 4 governs termination."},
				"finish_reason": "stop",
			}},
		})
	})
	mux.HandleFunc("GET /v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama3.2","object":"model"},{"id":"qwen2.5:7b","object":"model"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestChat(t *testing.T) {
	srv := newServer(t)
	c := NewClient(Config{BaseURL: srv.URL + "/v1", Model: "llama3.2"})

	out, err := c.Chat(context.Background(), []domain.Message{{Role: "user", Content: "Which clause covers termination?"}},
		domain.ChatOptions{Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "Clause 4 governs termination.", out)
}

func TestModels(t *testing.T) {
	srv := newServer(t)
	c := NewClient(Config{BaseURL: srv.URL + "/v1", Model: "llama3.2"})

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2", "qwen2.5:7b"}, models)

	c.SetModel("qwen2.5:7b")
	assert.Equal(t, "qwen2.5:7b", c.Model())
}

func TestChatUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url + "/v1", Model: "llama3.2"})
	c.SetRetryPolicy(retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond})

	_, err := c.Chat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, domain.ChatOptions{})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}
