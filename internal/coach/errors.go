package coach

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// APIError is returned when an upstream backend fails. It is the llm
// package's error so callers need only one errors.As target.
type APIError = llm.APIError

// ErrCaseStudyUnsupported is returned by adapters that do not generate case
// studies. The [Dispatcher] never surfaces it because it reroutes the call.
var ErrCaseStudyUnsupported = errors.New("coach: case study generation not supported by this provider")

// ErrEmptyInput is returned when a request carries no content to work on.
var ErrEmptyInput = errors.New("coach: empty input")

// UnsupportedMediaError is returned when a text-only provider receives audio.
type UnsupportedMediaError struct {
	Provider  ProviderID
	MediaType string
}

func (e *UnsupportedMediaError) Error() string {
	return fmt.Sprintf("coach: provider %s does not support %s input", e.Provider, e.MediaType)
}

// ParseError is returned when a provider response is not valid JSON after
// code fences are stripped.
type ParseError struct {
	Provider  ProviderID
	Operation string
	// Raw is the response text that failed to parse.
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("coach: %s: %s returned malformed JSON: %v", e.Operation, e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StructureError is returned when a parsed response lacks required fields.
type StructureError struct {
	Provider  ProviderID
	Operation string
	Missing   []string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("coach: %s: %s response missing required fields: %s",
		e.Operation, e.Provider, strings.Join(e.Missing, ", "))
}
