// Package llm wraps the completion provider used for section draft
// assistance, and gates it so that no draft is ever produced without
// grounding evidence.
package llm

import (
	"context"
)

// Message is one turn of a chat completion.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingOptions tune the provider. The drafter pins temperature low for
// reproducible output.
type SamplingOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Client is the completion provider contract. Available is a cheap probe;
// when it reports false the caller degrades gracefully instead of surfacing
// an error to the user.
type Client interface {
	Complete(ctx context.Context, messages []Message, options *SamplingOptions) (string, error)
	Available(ctx context.Context) bool
}

// EstimateTokens approximates the token count of a prompt for budget checks.
// Four bytes per token is the usual rule of thumb for English prose.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
