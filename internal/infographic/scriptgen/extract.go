package scriptgen

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSON recovers a single JSON object from free-form model output.
// Fenced code blocks holding exactly one object are preferred, the last one
// winning; otherwise the first balanced object in the raw text is used. It
// returns false when no candidate parses, and never attempts to repair
// malformed JSON.
func ExtractJSON(text string) (map[string]any, bool) {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		body := strings.TrimSpace(matches[i][1])
		if !strings.HasPrefix(body, "{") {
			// code in other languages may contain braces too
			continue
		}
		if obj, ok := decodeObject(body); ok {
			return obj, true
		}
	}
	return parseCandidate(text)
}

func parseCandidate(text string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	if obj, ok := decodeObject(trimmed); ok {
		return obj, true
	}

	start := strings.IndexByte(trimmed, '{')
	if start < 0 {
		return nil, false
	}
	end := matchBrace(trimmed, start)
	if end < 0 {
		return nil, false
	}
	return decodeObject(trimmed[start : end+1])
}

// matchBrace returns the index of the brace closing the one at start,
// skipping over string literals and escape sequences, or -1.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
