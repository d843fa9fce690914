package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legalqa/internal/domain"
	"legalqa/internal/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen2.5:3b", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		require.NotNil(t, req.Options)
		require.NotNil(t, req.Options.Temperature)
		assert.Equal(t, 0.0, *req.Options.Temperature)
		assert.Equal(t, 4096, req.Options.NumCtx)
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: "  The notice period is 30 days. "}, Done: true})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	c.SetModel("qwen2.5:3b")

	out, err := c.Chat(context.Background(), []domain.Message{
		{Role: "system", Content: "You are a legal assistant."},
		{Role: "user", Content: "What is the notice period?"},
	}, domain.ChatOptions{Temperature: 0, NumCtx: 4096})
	require.NoError(t, err)
	assert.Equal(t, "The notice period is 30 days.", out)
	assert.Equal(t, "qwen2.5:3b", c.Model())
}

func TestChatRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "ok"}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	c.SetRetryPolicy(fastRetry)

	out, err := c.Chat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, domain.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatModelMissingNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"model 'nope' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "nope"})
	c.SetRetryPolicy(fastRetry)

	_, err := c.Chat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, domain.ChatOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, MaxRetries: 1})

	_, err := c.Chat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, domain.ChatOptions{})
	assert.ErrorIs(t, err, domain.ErrModelTimeout)
}

func TestChatUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url})
	c.SetRetryPolicy(fastRetry)

	_, err := c.Chat(context.Background(), []domain.Message{{Role: "user", Content: "hi"}}, domain.ChatOptions{})
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
	assert.ErrorIs(t, c.Ping(context.Background()), domain.ErrModelUnavailable)
}

func TestModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:latest"},{"name":"gemma2:2b"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	models, err := c.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:latest", "gemma2:2b"}, models)
	assert.NoError(t, c.Ping(context.Background()))
}
