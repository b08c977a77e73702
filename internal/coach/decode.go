package coach

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	leadingFence  = regexp.MustCompile("^```json\\s*")
	trailingFence = regexp.MustCompile("\\s*```$")
)

// stripFences removes a leading ```json and a trailing ``` that some models
// wrap around JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = leadingFence.ReplaceAllString(s, "")
	s = trailingFence.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// decodeJSON parses a model response into v, returning a *ParseError on
// failure.
func (a *Adapter) decodeJSON(op, raw string, v any) error {
	if err := json.Unmarshal([]byte(stripFences(raw)), v); err != nil {
		return &ParseError{Provider: a.id, Operation: op, Raw: raw, Err: err}
	}
	return nil
}
