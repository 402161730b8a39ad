package timeout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"devagent/pkg/generation/llm"
)

type blockingClient struct{}

func (blockingClient) Complete(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	<-ctx.Done()
	return llm.CompletionResponse{}, ctx.Err()
}

func (blockingClient) GetModelName() string { return "blocking" }

func TestMiddlewareTimesOut(t *testing.T) {
	client := llm.Chain(blockingClient{}, Middleware(20*time.Millisecond))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "blocking", client.GetModelName())
}

func TestMiddlewareDisabled(t *testing.T) {
	base := blockingClient{}
	client := llm.Chain(base, Middleware(0))
	assert.Equal(t, base, client)
}
