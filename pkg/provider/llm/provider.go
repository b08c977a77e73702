// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote model API (OpenAI, an OpenRouter-hosted model,
// Google Gemini, or any backend reachable through any-llm-go) and exposes a
// uniform request/response shape so the coaching layer can build prompts and
// account for tokens without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use and must honour context
// cancellation. Implementations never retry on their own; a failed call is
// reported to the caller as-is.
package llm

import (
	"context"
)

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation history. Providers without a dedicated system field prepend
	// it as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness. Nil means the provider default;
	// a pointer to 0 requests deterministic decoding.
	Temperature *float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// JSON asks the backend to constrain its output to a single JSON object
	// (OpenAI response_format json_object, Gemini responseMimeType).
	JSON bool

	// Attachments are binary inputs (audio recordings) sent alongside the last
	// user message. Only providers whose Capabilities report SupportsAudio
	// accept them; others return an error.
	Attachments []Attachment
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Failures reported by the remote API are returned as *APIError. Returns
	// an error if ctx is cancelled before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what this provider's
	// underlying model supports. The result is constant for the lifetime of
	// the Provider instance.
	Capabilities() ModelCapabilities
}

// Temperature returns a pointer to v for use in [CompletionRequest.Temperature].
func Temperature(v float64) *float64 { return &v }
