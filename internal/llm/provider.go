// Package llm defines the single-prompt completion contract used for
// transaction extraction. Each subpackage adapts one SDK to it.
//
// Providers must be safe for concurrent use and must not retry on their own:
// every Complete call reaches the backend at most once.
package llm

import "context"

// Usage holds token accounting reported by the backend. Zero when the backend
// reports nothing.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request is one prompt sent as a single user message.
type Request struct {
	Prompt      string
	Temperature float64
	// MaxTokens caps the completion. Zero leaves the provider default.
	MaxTokens int
}

// Response is the raw model output.
type Response struct {
	Content string
	Usage   Usage
}

// Provider is a hosted or local model reachable with one prompt.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Name identifies the backend and model for logs and health output.
	Name() string
}
