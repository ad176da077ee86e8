package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMUsage is the provider-neutral token accounting of one response.
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage logs usage at debug level.
func LogUsage(model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.Debug("LLM usage",
		"model", model,
		"prompt", usage.PromptTokens,
		"completion", usage.CompletionTokens,
		"total", usage.TotalTokens,
		"thoughts", usage.ThoughtsTokens,
		"cached", usage.CachedTokens,
		"stop_reason", usage.StopReason,
	)
}

// LLMClient is a reasoning engine that streams responses.
type LLMClient interface {
	// StreamChat sends the history and the callable tools and returns the
	// response as a chunk stream. The channel closes after the final chunk
	// or after a chunk carrying RawError.
	StreamChat(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan StreamChunk, error)

	// IsTransientError reports whether err is worth retrying (503, rate limit).
	IsTransientError(err error) bool
}

// ErrAllProvidersFailed is returned when every client of a FallbackClient failed.
var ErrAllProvidersFailed = errors.New("all fallback providers failed")

// FallbackClient tries its clients in order, retrying transient errors.
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan StreamChunk, error) {
	maxRetries := f.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.Warn("Previous provider failed, trying fallback", "index", i+1)
		}

		for attempt := 1; attempt <= maxRetries; attempt++ {
			if attempt > 1 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(attempt-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages, tools)
			if err == nil {
				return ch, nil
			}
			lastErr = err

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if client.IsTransientError(err) && attempt < maxRetries {
				slog.Warn("Provider transient error, retrying", "index", i+1, "attempt", attempt, "error", err)
				continue
			}
			slog.Error("Provider failed", "index", i+1, "error", err)
			break
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}

// IsTransientError is always false: the group already retried its members.
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
