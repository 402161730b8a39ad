package llmerrors

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"time"

	"devagent/pkg/classify"
)

// Rules decides the type of a backend error from its text. Status codes are
// checked first by Classify; these rules cover SDKs and proxies that only
// surface a message. Order matters: the first match wins.
//
//nolint:gochecknoglobals // shared, extendable rule list
var Rules = classify.New(
	classify.Rule[ErrorType]{Pattern: "ratelimiterror", Kind: ErrorTypeRateLimit, Description: "rate limit exceeded"},
	classify.Rule[ErrorType]{Pattern: "429", Kind: ErrorTypeRateLimit, Description: "rate limit exceeded"},
	classify.Rule[ErrorType]{Pattern: "rate limit", Kind: ErrorTypeRateLimit, Description: "rate limit exceeded"},
	classify.Rule[ErrorType]{Pattern: "quota exceeded", Kind: ErrorTypeRateLimit, Description: "quota exceeded"},
	classify.Rule[ErrorType]{Pattern: "resource_exhausted", Kind: ErrorTypeRateLimit, Description: "quota exceeded"},
	classify.Rule[ErrorType]{Pattern: "401", Kind: ErrorTypeAuth, Description: "authentication failed - check API key"},
	classify.Rule[ErrorType]{Pattern: "authentication", Kind: ErrorTypeAuth, Description: "authentication failed - check API key"},
	classify.Rule[ErrorType]{Pattern: "unauthorized", Kind: ErrorTypeAuth, Description: "authentication failed - check API key"},
	classify.Rule[ErrorType]{Pattern: "invalid api key", Kind: ErrorTypeAuth, Description: "invalid API key"},
	classify.Rule[ErrorType]{Pattern: "incorrect api key", Kind: ErrorTypeAuth, Description: "invalid API key"},
	classify.Rule[ErrorType]{Pattern: "api key not valid", Kind: ErrorTypeAuth, Description: "invalid API key"},
	classify.Rule[ErrorType]{Pattern: "permission denied", Kind: ErrorTypeAuth, Description: "permission denied - check API access"},
	classify.Rule[ErrorType]{Pattern: "connection refused", Kind: ErrorTypeTransient, Description: "server not reachable"},
	classify.Rule[ErrorType]{Pattern: "connection reset", Kind: ErrorTypeTransient, Description: "network or connection error"},
	classify.Rule[ErrorType]{Pattern: "timeout", Kind: ErrorTypeTransient, Description: "request timeout"},
	classify.Rule[ErrorType]{Pattern: "eof", Kind: ErrorTypeTransient, Description: "network or connection error"},
	classify.Rule[ErrorType]{Pattern: "temporarily", Kind: ErrorTypeTransient, Description: "service temporarily unavailable"},
	classify.Rule[ErrorType]{Pattern: "overloaded", Kind: ErrorTypeTransient, Description: "service overloaded"},
	classify.Rule[ErrorType]{Pattern: "502", Kind: ErrorTypeTransient, Description: "server error"},
	classify.Rule[ErrorType]{Pattern: "503", Kind: ErrorTypeTransient, Description: "server error"},
	classify.Rule[ErrorType]{Pattern: "504", Kind: ErrorTypeTransient, Description: "server error"},
	classify.Rule[ErrorType]{Pattern: "context length", Kind: ErrorTypeBadPrompt, Description: "prompt too long"},
	classify.Rule[ErrorType]{Pattern: "too large", Kind: ErrorTypeBadPrompt, Description: "prompt too long"},
	classify.Rule[ErrorType]{Pattern: "malformed", Kind: ErrorTypeBadPrompt, Description: "malformed request"},
	classify.Rule[ErrorType]{Pattern: "model not found", Kind: ErrorTypeBadPrompt, Description: "model not found"},
)

var waitPattern = regexp.MustCompile(`(?i)wait (\d+) seconds`)

// TypeForStatus maps an HTTP status to an error type. ok is false for
// statuses that carry no classification.
func TypeForStatus(status int) (ErrorType, bool) {
	switch {
	case status == 401 || status == 403:
		return ErrorTypeAuth, true
	case status == 429:
		return ErrorTypeRateLimit, true
	case status == 400 || status == 404 || status == 413:
		return ErrorTypeBadPrompt, true
	case status >= 500 && status <= 599:
		return ErrorTypeTransient, true
	}
	return ErrorTypeUnknown, false
}

// Classify turns a raw backend error into a classified *Error. status is the
// HTTP status the SDK reported, or 0. Already classified errors pass through.
func Classify(err error, status int) *Error {
	if err == nil {
		return nil
	}
	if llmErr, ok := As(err); ok {
		return llmErr
	}

	msg := err.Error()
	out := &Error{Err: err, StatusCode: status, Type: ErrorTypeUnknown, Message: "unclassified error"}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Type, out.Message = ErrorTypeTransient, "request timeout"
	case errors.Is(err, context.Canceled):
		// Cancellation comes from the caller; retrying would ignore it.
		out.Type, out.Message = ErrorTypeUnknown, "request canceled"
	default:
		if t, ok := TypeForStatus(status); ok {
			out.Type = t
			out.Message = statusMessage(t)
		} else if m, ok := Rules.First(msg); ok {
			out.Type = m.Rule.Kind
			out.Message = m.Rule.Description
		}
	}

	if out.Type == ErrorTypeRateLimit {
		out.RetryAfter = ParseWait(msg)
	}
	return out
}

func statusMessage(t ErrorType) string {
	switch t {
	case ErrorTypeAuth:
		return "authentication failed - check API key"
	case ErrorTypeRateLimit:
		return "rate limit exceeded"
	case ErrorTypeBadPrompt:
		return "bad request - check prompt format and parameters"
	case ErrorTypeTransient:
		return "server error"
	default:
		return "unclassified error"
	}
}

// ParseWait extracts "wait N seconds" from a rate-limit message.
func ParseWait(msg string) time.Duration {
	m := waitPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	seconds, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// FormatWait renders a wait for display: "Xh Ym" when at least an hour,
// "Ym" otherwise, and "unknown" when no wait was reported.
func FormatWait(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}
	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
	}
	return strconv.Itoa(minutes) + "m"
}
