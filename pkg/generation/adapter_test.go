package generation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devagent/internal/mocks"
	"devagent/pkg/config"
	"devagent/pkg/generation/llm"
	"devagent/pkg/generation/llmerrors"
	"devagent/pkg/proto"
	"devagent/pkg/templates"
)

type lineSink struct {
	lines  []string
	errors []string
}

func (s *lineSink) Record(text string, isError bool) {
	s.lines = append(s.lines, text)
	if isError {
		s.errors = append(s.errors, text)
	}
}

const validModule = `import slicer
from slicer.ScriptedLoadableModule import *

class Widget(ScriptedLoadableModuleWidget):
    pass
`

func newTestAdapter(t *testing.T, client llm.LLMClient) (*Adapter, *lineSink) {
	t.Helper()
	renderer, err := templates.NewRenderer()
	require.NoError(t, err)
	cfg := config.Default(t.TempDir()).Generation
	sink := &lineSink{}
	return NewAdapter(cfg, StaticClient(client), renderer, sink), sink
}

func moduleRequest() *proto.Request {
	return &proto.Request{
		TargetKind:       proto.TargetNewModule,
		TaskDescription:  "threshold the active volume",
		TargetIdentifier: "Thresholder",
		MaxAttempts:      2,
	}
}

func TestGenerateReturnsCleanedCode(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith("```python\n" + validModule + "```")
	adapter, _ := newTestAdapter(t, client)

	result := adapter.Generate(context.Background(), moduleRequest(), 0, "# boilerplate", "")

	assert.Equal(t, proto.GenerationCode, result.Kind)
	assert.False(t, result.FellBack)
	assert.Equal(t, strings.TrimSpace(validModule), result.Text)
	require.Equal(t, 1, client.CallCount())

	req := client.CompleteCalls[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "MODULE REQUIREMENTS")
	user := client.LastUserMessage(0)
	assert.Contains(t, user, "## Task: Create a complete 3D Slicer module named 'Thresholder'")
	assert.Contains(t, user, "# boilerplate")
	assert.InDelta(t, 0.1, req.Temperature, 1e-6)
	assert.Equal(t, 8000, req.MaxTokens)
}

func TestGenerateDebugPromptCarriesHistory(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith(validModule)
	adapter, _ := newTestAdapter(t, client)

	history := "ATTEMPT 0 FAILED:\nError Type: SyntaxFailure"
	result := adapter.Generate(context.Background(), moduleRequest(), 1, validModule, history)

	assert.Equal(t, proto.GenerationCode, result.Kind)
	user := client.LastUserMessage(0)
	assert.Contains(t, user, "Debug and fix the 3D Slicer module code")
	assert.Contains(t, user, "Debug Attempt 1/2")
	assert.Contains(t, user, history)
}

func TestGenerateFallsBackOnShortOutput(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith("```python\n# Here you go\npass\n```")
	adapter, sink := newTestAdapter(t, client)

	result := adapter.Generate(context.Background(), moduleRequest(), 0, "previous code", "")

	assert.Equal(t, proto.GenerationCode, result.Kind)
	assert.True(t, result.FellBack)
	assert.Equal(t, "previous code", result.Text)
	assert.Equal(t, "pass", result.RawText)
	assert.NotEmpty(t, sink.errors)
}

func TestGenerateWarnsOnMissingImport(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith("import os\n\nprint('no host api used in this long enough script')\n")
	adapter, sink := newTestAdapter(t, client)

	result := adapter.Generate(context.Background(), moduleRequest(), 0, "", "")

	assert.Equal(t, proto.GenerationCode, result.Kind)
	assert.False(t, result.FellBack)
	require.NotEmpty(t, sink.errors)
	assert.Contains(t, sink.errors[len(sink.errors)-1], "Missing essential import: import slicer")
}

func TestGenerateClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind proto.GenerationKind
		wantWait string
	}{
		{
			name:     "rate limit with wait",
			err:      errors.New("RateLimitError: 429 Please wait 3900 seconds before retrying"),
			wantKind: proto.GenerationRateLimited,
			wantWait: "1h 5m",
		},
		{
			name:     "rate limit without wait",
			err:      llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, "rate limited"),
			wantKind: proto.GenerationRateLimited,
			wantWait: "unknown",
		},
		{
			name:     "auth",
			err:      errors.New("401 Unauthorized: invalid api key"),
			wantKind: proto.GenerationAuthFailure,
		},
		{
			name:     "unavailable",
			err:      llmerrors.NewUnavailableError(nil, "no credential"),
			wantKind: proto.GenerationBackendUnavailable,
		},
		{
			name:     "other",
			err:      errors.New("something odd happened"),
			wantKind: proto.GenerationOtherFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mocks.NewMockLLMClient()
			client.FailCompleteWith(tt.err)
			adapter, sink := newTestAdapter(t, client)

			result := adapter.Generate(context.Background(), moduleRequest(), 0, "ctx", "")

			assert.Equal(t, tt.wantKind, result.Kind)
			assert.Equal(t, tt.wantWait, result.WaitTime)
			assert.NotEmpty(t, result.Detail)
			assert.Empty(t, result.Text)
			assert.NotEmpty(t, sink.errors)
		})
	}
}

func TestGenerateClientSourceFailure(t *testing.T) {
	renderer := templates.MustNewRenderer()
	source := func(proto.ModelSelector) (llm.LLMClient, error) {
		return nil, llmerrors.NewUnavailableError(nil, "unsupported provider: cohere")
	}
	adapter := NewAdapter(config.Default(t.TempDir()).Generation, source, renderer, nil)

	result := adapter.Generate(context.Background(), moduleRequest(), 0, "ctx", "")
	assert.Equal(t, proto.GenerationBackendUnavailable, result.Kind)
	assert.Contains(t, result.Detail, "cohere")
}

func TestScriptPromptUsesScriptRequirements(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith(validModule)
	adapter, _ := newTestAdapter(t, client)

	req := &proto.Request{
		TargetKind:       proto.TargetNewScript,
		TaskDescription:  "print hello",
		TargetIdentifier: "hello",
	}
	adapter.Generate(context.Background(), req, 0, "", "")

	require.Equal(t, 1, client.CallCount())
	assert.Contains(t, client.CompleteCalls[0].Messages[0].Content, "SCRIPT REQUIREMENTS")
	assert.Contains(t, client.LastUserMessage(0), "Create a complete Python script named 'hello'")
}
