package orchestrator

import (
	"fmt"
	"strings"

	"devagent/pkg/proto"
	"devagent/pkg/templates"
)

// DefaultPreviewChars bounds the failing code shown per error block.
const DefaultPreviewChars = 800

// TruncationMarker follows a truncated code preview.
const TruncationMarker = "...CODE TRUNCATED..."

const noCodeGenerated = "No code generated"

// Preview returns the first limit runes of code, marking truncation.
func Preview(code string, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewChars
	}
	runes := []rune(code)
	if len(runes) <= limit {
		return code
	}
	return string(runes[:limit]) + "\n" + TruncationMarker
}

// ErrorHistory accumulates one block per failed attempt. It is append-only
// for the life of a request.
type ErrorHistory struct {
	renderer     *templates.Renderer
	previewChars int
	blocks       []string
	last         string
}

// NewErrorHistory returns an empty history.
func NewErrorHistory(renderer *templates.Renderer, previewChars int) *ErrorHistory {
	if previewChars <= 0 {
		previewChars = DefaultPreviewChars
	}
	return &ErrorHistory{renderer: renderer, previewChars: previewChars}
}

// Append formats a failed attempt and adds it. code is nil when nothing was
// generated. The attempt index is 0-based; blocks number attempts from 1.
func (h *ErrorHistory) Append(attempt int, errType proto.ErrorType, message string, code *string, trace string) error {
	preview := noCodeGenerated
	if code != nil && strings.TrimSpace(*code) != "" {
		preview = Preview(*code, h.previewChars)
	}
	if strings.TrimSpace(trace) == "" {
		trace = message
	}

	block, err := h.renderer.ErrorBlock(&templates.ErrorBlockData{
		Attempt:     attempt + 1,
		ErrorType:   string(errType),
		Message:     message,
		CodePreview: preview,
		Trace:       trace,
	})
	if err != nil {
		// Keep the history usable even if the template fails.
		block = fmt.Sprintf("ATTEMPT %d FAILED:\nError Type: %s\nError Message: %s\n", attempt+1, errType, message)
	}

	h.blocks = append(h.blocks, strings.TrimRight(block, "\n"))
	h.last = message
	return err
}

// String returns the accumulated history, or "" when nothing failed.
func (h *ErrorHistory) String() string {
	if len(h.blocks) == 0 {
		return ""
	}
	return "\n" + strings.Join(h.blocks, "\n\n") + "\n"
}

// Len returns the number of recorded blocks.
func (h *ErrorHistory) Len() int { return len(h.blocks) }

// LastError returns the message of the latest block.
func (h *ErrorHistory) LastError() string { return h.last }
