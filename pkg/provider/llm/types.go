package llm

import (
	"fmt"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Attachment is an inline binary input, e.g. an uploaded sales call recording.
type Attachment struct {
	// MIMEType is the IANA media type of Data (e.g. "audio/mpeg").
	MIMEType string

	// Name is the original file name, used for display only.
	Name string

	// Data holds the raw bytes.
	Data []byte
}

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between providers
// for the same textual content.
//
// Usage values form a commutative monoid under [Usage.Add] with the zero value
// as identity.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt.
	PromptTokens int `json:"promptTokens"`

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int `json:"completionTokens"`

	// TotalTokens is reported by the provider; it is not recomputed from the parts.
	TotalTokens int `json:"totalTokens"`
}

// Add returns the field-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// IsZero reports whether u is the identity element.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// SumUsage folds all usages with [Usage.Add]. An empty call returns the zero Usage.
func SumUsage(usages ...Usage) Usage {
	var total Usage
	for _, u := range usages {
		total = total.Add(u)
	}
	return total
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsAudio indicates the model accepts inline audio attachments.
	SupportsAudio bool

	// SupportsJSONMode indicates the backend can constrain output to JSON.
	SupportsJSONMode bool
}

// APIError is returned when the remote backend rejects a request or cannot be
// reached. StatusCode is zero for transport-level failures.
type APIError struct {
	// Provider names the backend that failed (e.g. "openrouter", "gemini").
	Provider string

	// StatusCode is the HTTP status returned by the backend, if any.
	StatusCode int

	// Message is the backend's own error text when it supplied one.
	Message string

	// Err is the underlying SDK or transport error.
	Err error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s api error: %s", e.Provider, msg)
}

func (e *APIError) Unwrap() error { return e.Err }
