package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		want   ErrorType
	}{
		{"status 401", errors.New("boom"), 401, ErrorTypeAuth},
		{"status 403", errors.New("boom"), 403, ErrorTypeAuth},
		{"status 429", errors.New("boom"), 429, ErrorTypeRateLimit},
		{"status 503", errors.New("boom"), 503, ErrorTypeTransient},
		{"status 400", errors.New("boom"), 400, ErrorTypeBadPrompt},
		{"rate limit text", errors.New("Rate limit reached for requests"), 0, ErrorTypeRateLimit},
		{"RateLimitError name", errors.New("RateLimitError: too many"), 0, ErrorTypeRateLimit},
		{"auth text", errors.New("Authentication failed"), 0, ErrorTypeAuth},
		{"invalid key", errors.New("Invalid API key provided"), 0, ErrorTypeAuth},
		{"connection refused", errors.New("dial tcp: connection refused"), 0, ErrorTypeTransient},
		{"unexpected eof", errors.New("unexpected EOF"), 0, ErrorTypeTransient},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), 0, ErrorTypeTransient},
		{"canceled", context.Canceled, 0, ErrorTypeUnknown},
		{"unknown", errors.New("something odd"), 0, ErrorTypeUnknown},
		{"already classified", NewError(ErrorTypeEmptyResponse, "empty"), 500, ErrorTypeEmptyResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err, tt.status)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
		})
	}
	assert.Nil(t, Classify(nil, 0))
}

func TestClassifyRateLimitWait(t *testing.T) {
	err := Classify(errors.New("429 Too Many Requests: Please wait 5400 seconds before retrying."), 0)
	assert.Equal(t, ErrorTypeRateLimit, err.Type)
	assert.Equal(t, 90*time.Minute, err.RetryAfter)
	assert.Equal(t, "1h 30m", FormatWait(err.RetryAfter))
}

func TestFormatWait(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "unknown"},
		{59 * time.Second, "0m"},
		{125 * time.Second, "2m"},
		{3600 * time.Second, "1h 0m"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatWait(tt.d))
		})
	}
}

func TestParseWait(t *testing.T) {
	assert.Equal(t, 30*time.Second, ParseWait("please Wait 30 seconds"))
	assert.Zero(t, ParseWait("no hint here"))
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("root")
	err := fmt.Errorf("wrapped: %w", NewErrorWithCause(ErrorTypeAuth, cause, "bad key"))

	assert.True(t, Is(err, ErrorTypeAuth))
	assert.False(t, Is(err, ErrorTypeRateLimit))
	assert.Equal(t, ErrorTypeAuth, TypeOf(err))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
	assert.ErrorIs(t, err, cause)

	llmErr, ok := As(err)
	require.True(t, ok)
	assert.Contains(t, llmErr.Error(), "auth")
	assert.False(t, llmErr.IsTransient())
	assert.True(t, NewError(ErrorTypeTransient, "x").IsTransient())
	assert.Equal(t, "unavailable", NewUnavailableError(nil, "no client").Type.String())
}
