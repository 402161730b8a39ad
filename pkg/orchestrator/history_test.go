package orchestrator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devagent/pkg/proto"
	"devagent/pkg/templates"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 800))

	long := strings.Repeat("x", 801)
	got := Preview(long, 800)
	assert.Equal(t, strings.Repeat("x", 800)+"\n"+TruncationMarker, got)

	// Multi-byte runes are never split.
	assert.Equal(t, "éé\n"+TruncationMarker, Preview("ééé", 2))
}

func TestErrorHistoryAccumulates(t *testing.T) {
	h := NewErrorHistory(templates.MustNewRenderer(), 10)
	assert.Empty(t, h.String())

	code := "print('this line is longer than ten characters')"
	require.NoError(t, h.Append(0, proto.ErrSyntaxFailure, "SyntaxError: bad", &code, ""))
	require.NoError(t, h.Append(1, proto.ErrExecutionFailure, "NameError: x", nil, "Traceback (most recent call last):\nNameError: x"))

	out := h.String()
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, "NameError: x", h.LastError())

	first := strings.Index(out, "ATTEMPT 1 FAILED:")
	second := strings.Index(out, "ATTEMPT 2 FAILED:")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second, "blocks keep attempt order")

	assert.Contains(t, out, "Error Type: SyntaxFailure")
	assert.Contains(t, out, "print('thi\n"+TruncationMarker)
	assert.Contains(t, out, "No code generated")
	assert.Contains(t, out, "Traceback (most recent call last):\nNameError: x")
}
