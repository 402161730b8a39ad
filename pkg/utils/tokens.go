// Package utils provides token counting and text preview helpers shared by
// the generation adapter and the orchestrator.
package utils

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens with a tiktoken codec. Every model is
// approximated with the GPT-4 encoding; Claude, Gemini and local models
// tokenize close enough for diagnostics and metrics.
type TokenCounter struct {
	codec tokenizer.Codec
	model string
}

// NewTokenCounter creates a counter for the given model name.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec, model: model}, nil
}

// Model returns the model name the counter was created for.
func (tc *TokenCounter) Model() string {
	return tc.model
}

// CountTokens returns the number of tokens in text. Without a codec, or when
// encoding fails, it estimates 4 characters per token.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

//nolint:gochecknoglobals // shared codec, built lazily
var (
	defaultCounter     *TokenCounter
	defaultCounterOnce sync.Once
)

// CountTokensSimple counts tokens with a shared GPT-4 counter.
func CountTokensSimple(text string) int {
	defaultCounterOnce.Do(func() {
		defaultCounter, _ = NewTokenCounter("gpt-4")
	})
	return defaultCounter.CountTokens(text)
}

// TruncateToTokenLimit shortens text so it fits within limit tokens. The cut
// is proportional to the character count with a 10% margin and lands on a
// rune boundary; "..." marks a truncation.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	current := tc.CountTokens(text)
	if current <= limit {
		return text
	}
	ratio := float64(limit) / float64(current)
	charLimit := int(float64(len(text)) * ratio * 0.9)
	if charLimit >= len(text) {
		return text
	}
	return cutAtRune(text, charLimit) + "..."
}

// Preview returns at most n bytes of text, cut on a rune boundary, followed by
// "..." when anything was dropped.
func Preview(text string, n int) string {
	if n < 0 || len(text) <= n {
		return text
	}
	return cutAtRune(text, n) + "..."
}

// FirstLine returns the first non-blank line of text, trimmed.
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func cutAtRune(text string, n int) string {
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
