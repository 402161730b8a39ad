// Package classify provides ordered, case-insensitive (pattern -> classification)
// rule lists used to interpret free-text error output.
package classify

import (
	"strings"
)

// Rule maps a substring to a classification. The pattern is matched
// case-insensitively.
type Rule[K any] struct {
	Pattern string
	Kind    K
	// Description is shown when the rule matches.
	Description string
}

// Match is a rule hit together with the matched excerpt.
type Match[K any] struct {
	Rule    Rule[K]
	Excerpt string
}

// Rules is an ordered rule list; the first matching rule wins.
type Rules[K any] struct {
	rules []Rule[K]
}

// New builds a rule list in evaluation order.
func New[K any](rules ...Rule[K]) *Rules[K] {
	r := &Rules[K]{rules: make([]Rule[K], 0, len(rules))}
	for _, rule := range rules {
		r.Append(rule)
	}
	return r
}

// Append adds a rule with the lowest priority.
func (r *Rules[K]) Append(rule Rule[K]) {
	rule.Pattern = strings.ToLower(rule.Pattern)
	r.rules = append(r.rules, rule)
}

// Prepend adds a rule with the highest priority.
func (r *Rules[K]) Prepend(rule Rule[K]) {
	rule.Pattern = strings.ToLower(rule.Pattern)
	r.rules = append([]Rule[K]{rule}, r.rules...)
}

// Len returns the number of rules.
func (r *Rules[K]) Len() int { return len(r.rules) }

// List returns a copy of the rules in order.
func (r *Rules[K]) List() []Rule[K] {
	return append([]Rule[K](nil), r.rules...)
}

// First returns the first rule whose pattern occurs in any of texts.
func (r *Rules[K]) First(texts ...string) (Match[K], bool) {
	lowered := make([]string, len(texts))
	for i, t := range texts {
		lowered[i] = strings.ToLower(t)
	}

	for _, rule := range r.rules {
		for i, text := range lowered {
			if rule.Pattern == "" {
				continue
			}
			if idx := strings.Index(text, rule.Pattern); idx >= 0 {
				return Match[K]{Rule: rule, Excerpt: lineAround(texts[i], idx)}, true
			}
		}
	}
	var zero Match[K]
	return zero, false
}

// lineAround returns the full line of text containing byte offset idx.
func lineAround(text string, idx int) string {
	if idx > len(text) {
		// Lowercasing can change byte lengths outside ASCII.
		idx = len(text)
	}
	start := strings.LastIndexByte(text[:idx], '\n') + 1
	end := strings.IndexByte(text[idx:], '\n')
	if end < 0 {
		return strings.TrimSpace(text[start:])
	}
	return strings.TrimSpace(text[start : idx+end])
}
