package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasoningModel(t *testing.T) {
	assert.True(t, reasoningModel("o3-mini"))
	assert.True(t, reasoningModel("O1"))
	assert.True(t, reasoningModel("o4-mini"))
	assert.False(t, reasoningModel("gpt-4o"))
	assert.False(t, reasoningModel("AI21-Jamba-1.5-Large"))
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, "end_turn", stopReason("stop"))
	assert.Equal(t, "max_tokens", stopReason("length"))
	assert.Equal(t, "content_filter", stopReason("content_filter"))
}

func TestGetModelName(t *testing.T) {
	client := NewClientWithModel("key", "https://models.inference.ai.azure.com", "gpt-4o")
	assert.Equal(t, "gpt-4o", client.GetModelName())
}
