// Package llm provides chat-completion clients and the prompt-driven
// operations the pipeline stages run against them: relevance scoring,
// summarization, translation and structured analysis.
//
// Providers perform exactly one API attempt per call and classify failures
// through APIError.IsTransient; the retry budget is owned by the caller, so
// a provider never multiplies the configured attempt bound.
package llm

import "context"

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single message in a chat conversation.
type Message struct {
	Role    string
	Content string
}

// Request is a provider-agnostic chat completion request.
type Request struct {
	// Model overrides the client's default model when set.
	Model string

	// Messages is the conversation to complete.
	Messages []Message

	// MaxTokens bounds the completion length (0 uses the client default).
	MaxTokens int

	// JSONResponse asks the provider for a JSON object response where the
	// API supports enforcing it.
	JSONResponse bool
}

// Usage contains token usage information.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a provider-agnostic chat completion response.
type Response struct {
	// Content is the completion text.
	Content string

	// Model is the model that produced the completion.
	Model string

	// Usage is the token usage reported by the provider.
	Usage Usage
}

// Client is a chat-completion client for one LLM provider.
type Client interface {
	// Complete performs a single completion attempt.
	// Failures are returned as *APIError where the provider responded.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Provider returns the provider name (e.g. "openai", "anthropic").
	Provider() string

	// Model returns the default model identifier.
	Model() string
}
