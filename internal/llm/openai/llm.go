// Package openai provides a chat model client for local OpenAI-compatible servers.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"legalqa/internal/domain"
	"legalqa/internal/openaicompat"
	"legalqa/internal/retry"
)

// Config configures the chat client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client implements domain.LLM with go-openai.
type Client struct {
	client *openai.Client
	policy retry.Policy

	mu    sync.RWMutex
	model string
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	policy := retry.Policy{MaxAttempts: 3, InitialInterval: 3 * time.Second, MaxInterval: 10 * time.Second}
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	return &Client{
		client: openaicompat.NewClient(openaicompat.Config{
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Timeout:   cfg.Timeout,
		}),
		policy: policy,
		model:  cfg.Model,
	}
}

// SetRetryPolicy overrides the retry policy.
func (c *Client) SetRetryPolicy(p retry.Policy) { c.policy = p }

func (c *Client) Name() string { return "openai" }

func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

func (c *Client) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}

func (c *Client) Chat(ctx context.Context, messages []domain.Message, opts domain.ChatOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.Model(),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	var answer string
	err := retry.Do(ctx, c.policy, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return openaicompat.RetryableError(err)
		}
		if len(resp.Choices) == 0 {
			return errors.New("no choices in response")
		}
		answer = strings.TrimSpace(resp.Choices[0].Message.Content)
		if answer == "" {
			return errors.New("empty response from model")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", retry.Classify(err))
	}
	return answer, nil
}

func (c *Client) Models(ctx context.Context) ([]string, error) {
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return nil, retry.Classify(err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Models(ctx)
	return err
}
