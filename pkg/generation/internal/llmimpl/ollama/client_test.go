package ollama

import (
	"errors"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devagent/pkg/generation/llmerrors"
)

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewOllamaClientWithModel("localhost", "llama3")
	assert.Error(t, err)

	client, err := NewOllamaClientWithModel("http://localhost:11434", "llama3")
	require.NoError(t, err)
	assert.Equal(t, "llama3", client.GetModelName())
}

func TestGetStopReason(t *testing.T) {
	tests := []struct {
		resp api.ChatResponse
		want string
	}{
		{api.ChatResponse{Done: false}, "incomplete"},
		{api.ChatResponse{Done: true, DoneReason: "stop"}, "end_turn"},
		{api.ChatResponse{Done: true}, "end_turn"},
		{api.ChatResponse{Done: true, DoneReason: "length"}, "max_tokens"},
		{api.ChatResponse{Done: true, DoneReason: "load"}, "load"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getStopReason(&tt.resp))
	}
}

func TestClassifyError(t *testing.T) {
	err := classifyError(errors.New("dial tcp 127.0.0.1:11434: connect: connection refused"))
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeTransient))

	err = classifyError(api.StatusError{StatusCode: 404, ErrorMessage: "model \"x\" not found"})
	assert.Equal(t, llmerrors.ErrorTypeBadPrompt, llmerrors.TypeOf(err))
}
