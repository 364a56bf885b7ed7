package sanitize

import (
	"encoding/json"
	"strings"
)

// Result is the outcome of best-effort JSON recovery. Callers branch on OK
// instead of testing for nil sentinels.
type Result struct {
	Value any
	OK    bool
}

func (r Result) AsMap() (map[string]any, bool) {
	if !r.OK {
		return nil, false
	}
	m, ok := r.Value.(map[string]any)
	return m, ok
}

func (r Result) AsSlice() ([]any, bool) {
	if !r.OK {
		return nil, false
	}
	s, ok := r.Value.([]any)
	return s, ok
}

// RecoverJSON parses model output believed to contain a JSON value. The text
// may be wrapped in code fences or truncated mid-structure by a token budget.
// It never panics: either a parsed value or an explicit failure comes back.
func RecoverJSON(raw string) Result {
	text := StripFences(raw)
	if text == "" {
		return Result{}
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return Result{Value: v, OK: true}
	}

	// Truncated output: cut back to the last plausible closing delimiter and
	// retry. Recovers the longest parseable prefix of an interrupted value.
	for idx := lastDelimiter(text); idx >= 0; idx = lastDelimiter(text[:idx]) {
		candidate := text[:idx+1]
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return Result{Value: v, OK: true}
		}
	}
	return Result{}
}

// StripFences removes markdown code-fence wrapping and surrounding space.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = text[3:]
		// Fence may carry a language tag ("```json").
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(text[:nl])
			if firstLine == "" || isFenceTag(firstLine) {
				text = text[nl+1:]
			}
		} else {
			// Single-line fence ("```json```"): drop the closing fence before
			// testing for a bare language tag.
			text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
			if isFenceTag(text) {
				return ""
			}
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return s != ""
}

func lastDelimiter(s string) int {
	brace := strings.LastIndexByte(s, '}')
	bracket := strings.LastIndexByte(s, ']')
	if brace > bracket {
		return brace
	}
	return bracket
}
