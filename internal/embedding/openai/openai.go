// Package openai implements domain.Embedder over an OpenAI-compatible
// embeddings endpoint served on this machine.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"legalqa/internal/openaicompat"
	"legalqa/internal/retry"
)

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
}

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	client *openai.Client
	model  string
	policy retry.Policy

	mu        sync.RWMutex
	dimension int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	policy := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	return &Client{
		client: openaicompat.NewClient(openaicompat.Config{
			BaseURL:   cfg.BaseURL,
			APIKeyEnv: cfg.APIKeyEnv,
			Timeout:   cfg.Timeout,
		}),
		model:     cfg.Model,
		policy:    policy,
		dimension: cfg.Dimension,
	}
}

// SetRetryPolicy overrides the retry policy.
func (c *Client) SetRetryPolicy(p retry.Policy) { c.policy = p }

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the vector size, learned from the first response when not configured.
func (c *Client) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var raw []float32
	err := retry.Do(ctx, c.policy, func() error {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.model),
		})
		if err != nil {
			return openaicompat.RetryableError(err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return errors.New("no embedding returned")
		}
		raw = resp.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", retry.Classify(err))
	}

	vec := make([]float64, len(raw))
	for i, v := range raw {
		vec[i] = float64(v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension == 0 {
		c.dimension = len(vec)
	}
	return vec, nil
}
