package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a model response holds no JSON object at all.
var ErrNoJSON = errors.New("llm: no json object in response")

// DecodeJSON unmarshals the outermost JSON object in raw into v. Markdown
// fences and prose around the object are ignored.
func DecodeJSON(raw string, v any) error {
	obj := extractObject(raw)
	if obj == "" {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("llm: decode json: %w", err)
	}
	return nil
}

// Parse decodes raw into a T and fails loudly. Used where no safe default
// exists.
func Parse[T any](raw string) (T, error) {
	var v T
	if err := DecodeJSON(raw, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// ParseOr decodes raw into a T, returning fallback and false when raw does not
// parse.
func ParseOr[T any](raw string, fallback T) (T, bool) {
	v, err := Parse[T](raw)
	if err != nil {
		return fallback, false
	}
	return v, true
}

func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
