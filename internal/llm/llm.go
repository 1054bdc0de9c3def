// Package llm provides the chat completion capability used by the query
// rewriter and the response synthesizer.
//
// Clients are injected into the pipeline at construction time; nothing in
// this package reads process-wide state.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/docchat/internal/config"
	"github.com/fyrsmithlabs/docchat/internal/schema"
)

// Sentinel errors for chat operations.
var (
	// ErrEmptyResponse is returned when the API produced no usable text.
	ErrEmptyResponse = errors.New("empty response from API")

	// ErrNoMessages is returned when Chat is called without messages.
	ErrNoMessages = errors.New("no messages provided")
)

// ChatClient generates a chat completion from a fully-formed message list
// (system, history, final user message). Implementations must be safe for
// concurrent use.
type ChatClient interface {
	Chat(ctx context.Context, messages []schema.ChatMessage) (string, error)
}

// Defaults shared by the HTTP clients.
const (
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
	defaultRateLimit   = 10 // requests per second
	defaultBurst       = 5
	defaultMaxTokens   = 2048

	defaultOpenAIModel      = "gpt-4o-mini"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultAnthropicModel   = "claude-sonnet-4-5"
	defaultAnthropicBaseURL = "https://api.anthropic.com"
)

// New creates a ChatClient from config.
func New(cfg config.LLMConfig) (ChatClient, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// retryableError marks transient failures worth retrying.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// isRetryableError reports whether the error is transient (rate limit,
// server error, network failure).
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
