// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveLLMRequest records metrics for a completed LLM request.
	ObserveLLMRequest(
		model string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveLLMRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveLLMRequest(_ string, _, _ int, _ bool, _ string, _ time.Duration) {}
