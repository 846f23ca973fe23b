// Package provider defines the AI completion interface behind the judged
// verification tier.
package provider

import "context"

// Request is a single one-shot completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a completed provider response.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Provider is an AI completion backend. Implementations are tried in cost
// order by the verification judge, so cheap models come first.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "openai", "mock").
	Name() string

	// Complete sends a one-shot request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}
