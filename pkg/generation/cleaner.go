package generation

import (
	"strings"
)

// DefaultMinCodeLength is the shortest cleaned output accepted as code.
const DefaultMinCodeLength = 50

// explanationWords mark a leading comment line as model chatter rather than code.
//
//nolint:gochecknoglobals // fixed word list
var explanationWords = []string{"here", "this", "implementation", "solution"}

// CleanOutput strips a markdown fence wrapping the model output and drops
// leading comment lines that only explain the code.
func CleanOutput(raw string) string {
	code := strings.TrimSpace(raw)

	if strings.HasPrefix(code, "```") {
		code = unfence(code)
	}

	lines := strings.Split(code, "\n")
	for len(lines) > 0 && isExplanationComment(lines[0]) {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// unfence drops the opening fence with its info string and everything from
// the last closing fence on.
func unfence(code string) string {
	body := strings.TrimPrefix(code, "```")
	if _, rest, found := strings.Cut(body, "\n"); found {
		body = rest
	}
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isExplanationComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, w := range explanationWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// TooShort reports whether cleaned output is empty or below minLength
// non-space characters.
func TooShort(code string, minLength int) bool {
	if minLength <= 0 {
		minLength = DefaultMinCodeLength
	}
	trimmed := strings.TrimSpace(code)
	return trimmed == "" || len(trimmed) < minLength
}
