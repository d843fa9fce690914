// Package openaicompat builds go-openai clients for local OpenAI-compatible
// servers (Ollama /v1, llama.cpp, LM Studio) and classifies their errors.
package openaicompat

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"legalqa/internal/retry"
)

// placeholderKey is sent when no key is configured; local servers ignore it.
const placeholderKey = "local"

// Config holds connection details.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient returns a go-openai client pointed at cfg.BaseURL.
func NewClient(cfg Config) *openai.Client {
	key := ""
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		key = placeholderKey
	}
	oc := openai.DefaultConfig(key)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return openai.NewClientWithConfig(oc)
}

// RetryableError marks client errors (4xx other than 429) as permanent so
// retry.Do gives up immediately.
func RetryableError(err error) error {
	if code := statusCode(err); code >= 400 && code < 500 && code != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
