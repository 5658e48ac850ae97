// Package generate turns report chunks into validated multiple-choice
// questions by prompting an LLM provider.
package generate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Completer sends a single prompt to a text-generation service and returns
// its raw text reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Provider names accepted by NewCompleter.
const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// DefaultModels holds the model used when none is configured.
var DefaultModels = map[string]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderClaude: "claude-3-5-haiku-latest",
	ProviderGemini: "gemini-2.0-flash",
}

// ClientConfig carries provider credentials and sampling settings.
type ClientConfig struct {
	APIKey      string
	BaseURL     string // overrides the provider endpoint
	Model       string
	Temperature float32
	MaxTokens   int
}

// NewCompleter builds the completer for a provider name.
func NewCompleter(ctx context.Context, provider string, cfg ClientConfig) (Completer, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if cfg.Model == "" {
		cfg.Model = DefaultModels[provider]
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	switch provider {
	case ProviderOpenAI, "":
		if cfg.Model == "" {
			cfg.Model = DefaultModels[ProviderOpenAI]
		}
		return NewOpenAIClient(cfg), nil
	case ProviderClaude, "anthropic":
		return NewClaudeClient(cfg), nil
	case ProviderGemini, "google":
		return NewGeminiClient(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("retryable error: %s", truncate(e.Message, 200))
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}

// classifyStatus wraps a provider error that carries an HTTP status.
func classifyStatus(provider string, code int, err error) error {
	if transientStatus(code) {
		return &RetryableError{StatusCode: code, Message: err.Error()}
	}
	return fmt.Errorf("%s api status %d: %w", provider, code, err)
}

// classifyTransport handles errors that never produced an HTTP response.
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return &RetryableError{Message: err.Error()}
	}
	return fmt.Errorf("%s api: %w", provider, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
