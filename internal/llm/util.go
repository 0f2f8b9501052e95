package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// Text returns the response text, nil-safe.
func Text(resp *Response) string {
	if resp == nil {
		return ""
	}
	return resp.Content
}

// ParseJSON extracts the first JSON object from raw model output into
// out, tolerating markdown code fences around it.
func ParseJSON(raw string, out any) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return errors.New("empty output")
	}

	if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
		if strings.HasPrefix(s, "json") {
			s = strings.TrimSpace(strings.TrimPrefix(s, "json"))
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = strings.TrimSpace(s[:idx])
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < 0 || start >= end {
		return errors.New("missing JSON object")
	}

	s = s[start : end+1]
	return json.Unmarshal([]byte(s), out)
}
