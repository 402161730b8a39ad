package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", counter.Model())

	tests := []struct {
		name      string
		text      string
		minTokens int
		maxTokens int
	}{
		{"empty", "", 0, 0},
		{"single word", "Hello", 1, 2},
		{"two words", "Hello world", 2, 3},
		{"sentence", "This is a longer sentence with more words.", 8, 12},
		{"repeated", strings.Repeat("word ", 100), 90, 110},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := counter.CountTokens(tt.text)
			assert.GreaterOrEqual(t, tokens, tt.minTokens)
			assert.LessOrEqual(t, tokens, tt.maxTokens)
		})
	}
}

func TestCountTokensNilCounterFallsBack(t *testing.T) {
	var counter *TokenCounter
	assert.Equal(t, 3, counter.CountTokens("twelve chars"))
}

func TestCountTokensSimple(t *testing.T) {
	tokens := CountTokensSimple("Hello world")
	assert.GreaterOrEqual(t, tokens, 2)
	assert.LessOrEqual(t, tokens, 3)
}

func TestTruncateToTokenLimit(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	require.NoError(t, err)

	assert.Equal(t, "short", counter.TruncateToTokenLimit("short", 10))

	longText := strings.Repeat("This is a sentence. ", 50)
	truncated := counter.TruncateToTokenLimit(longText, 10)
	assert.Less(t, len(truncated), len(longText))
	assert.True(t, strings.HasSuffix(truncated, "..."))
	assert.LessOrEqual(t, counter.CountTokens(truncated), 15)
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want string
	}{
		{"shorter than limit", "abc", 10, "abc"},
		{"exact", "abcde", 5, "abcde"},
		{"cut", "abcdefgh", 3, "abc..."},
		{"multibyte boundary", "héllo", 2, "h..."},
		{"negative keeps all", "abc", -1, "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preview(tt.text, tt.n))
		})
	}
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "second", FirstLine("\n   \n  second  \nthird"))
	assert.Empty(t, FirstLine("  \n"))
}
