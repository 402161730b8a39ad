package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devagent/pkg/generation/llm"
	"devagent/pkg/generation/llmerrors"
)

type observation struct {
	model            string
	prompt, complete int
	success          bool
	errorType        string
}

type captureRecorder struct {
	observations []observation
}

func (c *captureRecorder) ObserveLLMRequest(model string, p, cpl int, success bool, errorType string, _ time.Duration) {
	c.observations = append(c.observations, observation{model, p, cpl, success, errorType})
}

type fixedClient struct {
	content string
	err     error
}

func (f fixedClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
	return llm.CompletionResponse{Content: f.content}, f.err
}

func (f fixedClient) GetModelName() string { return "gpt-4o" }

func TestMiddlewareRecordsSuccess(t *testing.T) {
	rec := &captureRecorder{}
	usage := func(llm.CompletionRequest, llm.CompletionResponse) (int, int) { return 11, 7 }
	client := llm.Chain(fixedClient{content: "print(1)"}, Middleware(rec, usage, nil))

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "print(1)", resp.Content)

	require.Len(t, rec.observations, 1)
	assert.Equal(t, observation{"gpt-4o", 11, 7, true, ""}, rec.observations[0])
}

func TestMiddlewareRecordsFailure(t *testing.T) {
	rec := &captureRecorder{}
	failure := llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429")
	client := llm.Chain(fixedClient{err: failure}, Middleware(rec, nil, nil))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	assert.Same(t, failure, err)
	require.Len(t, rec.observations, 1)
	assert.False(t, rec.observations[0].success)
	assert.Equal(t, "rate_limit", rec.observations[0].errorType)
	assert.Zero(t, rec.observations[0].prompt)
}

func TestDefaultUsageExtractor(t *testing.T) {
	req := llm.CompletionRequest{Messages: []llm.CompletionMessage{llm.NewUserMessage("Hello world")}}
	p, c := DefaultUsageExtractor(req, llm.CompletionResponse{Content: "Hello"})
	assert.Positive(t, p)
	assert.Positive(t, c)
}

func TestErrorLabel(t *testing.T) {
	assert.Equal(t, "", ErrorLabel(nil))
	assert.Equal(t, "timeout", ErrorLabel(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, "canceled", ErrorLabel(context.Canceled))
	assert.Equal(t, "auth", ErrorLabel(llmerrors.NewError(llmerrors.ErrorTypeAuth, "no")))
	assert.Equal(t, "unknown", ErrorLabel(errors.New("x")))
}
