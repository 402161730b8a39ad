package retry

import (
	"context"
	"fmt"

	"devagent/pkg/generation/llm"
	"devagent/pkg/logx"
)

// Middleware returns a middleware that retries transient failures according
// to policy. The last error is returned unchanged once retries run out.
func Middleware(policy *Policy) llm.Middleware {
	logger := logx.NewLogger("llm-retry")
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error
				maxAttempts := policy.Config.MaxAttempts
				if maxAttempts < 1 {
					maxAttempts = 1
				}

				for attempt := 1; attempt <= maxAttempts; attempt++ {
					if attempt > 1 {
						delay := policy.CalculateDelay(attempt)
						logger.Warn("🔁 Retrying %s after transient error (attempt %d/%d, delay %v): %v",
							next.GetModelName(), attempt, maxAttempts, delay, lastErr)
						if err := policy.Sleep(ctx, delay); err != nil {
							return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", err)
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) {
						break
					}
				}
				return llm.CompletionResponse{}, lastErr
			},
			next.GetModelName,
		)
	}
}
