// Package generation implements the Generation Client Adapter: it renders
// prompts, calls a model backend through a middleware chain, cleans the output
// and normalizes every outcome into a proto.GenerationResult.
package generation

import (
	"fmt"

	"devagent/pkg/config"
	"devagent/pkg/generation/internal/llmimpl/anthropic"
	"devagent/pkg/generation/internal/llmimpl/google"
	"devagent/pkg/generation/internal/llmimpl/ollama"
	"devagent/pkg/generation/internal/llmimpl/openai"
	"devagent/pkg/generation/llm"
	"devagent/pkg/generation/llmerrors"
	"devagent/pkg/generation/middleware/metrics"
	"devagent/pkg/generation/middleware/retry"
	"devagent/pkg/generation/middleware/timeout"
	"devagent/pkg/logx"
	"devagent/pkg/proto"
)

// ClientFactory creates LLM clients with the configured middleware chain.
type ClientFactory struct {
	config   config.GenerationConfig
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewClientFactory creates a factory. A nil recorder disables LLM metrics.
func NewClientFactory(cfg config.GenerationConfig, recorder metrics.Recorder) *ClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &ClientFactory{
		config:   cfg,
		recorder: recorder,
		logger:   logx.NewLogger("llm-factory"),
	}
}

// Resolve fills an empty selector from the configured provider and model.
// A model without a provider has its provider inferred from the model name.
func (f *ClientFactory) Resolve(selector proto.ModelSelector) proto.ModelSelector {
	if selector.Model == "" && selector.Provider == "" {
		return proto.ModelSelector{Provider: f.config.Provider, Model: f.config.Model}
	}
	if selector.Provider == "" {
		if provider, err := config.GetModelProvider(selector.Model); err == nil {
			selector.Provider = provider
		} else {
			selector.Provider = f.config.Provider
		}
	}
	if selector.Model == "" {
		if selector.Provider == f.config.Provider {
			selector.Model = f.config.Model
		} else {
			selector.Model = config.DefaultModelFor(selector.Provider)
		}
	}
	return selector
}

// CreateClient builds the backend for selector and wraps it with the
// middleware chain. Any failure to build a client is an ErrorTypeUnavailable
// *llmerrors.Error.
func (f *ClientFactory) CreateClient(selector proto.ModelSelector, credential string) (llm.LLMClient, error) {
	selector = f.Resolve(selector)

	if name, needed := config.SecretNameFor(selector.Provider); needed && credential == "" {
		return nil, llmerrors.NewUnavailableError(nil,
			fmt.Sprintf("no credential for provider %s (set %s or pass --token)", selector.Provider, name))
	}

	rawClient, err := f.newRawClient(selector, credential)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Created %s client for model %s", selector.Provider, selector.Model)

	// Metrics -> Retry -> Timeout -> RawClient
	return llm.Chain(rawClient,
		metrics.Middleware(f.recorder, nil, f.logger),
		retry.Middleware(retry.NewPolicy(retry.ConfigForRetries(f.config.Retries()), nil)),
		timeout.Middleware(f.config.Timeout),
	), nil
}

func (f *ClientFactory) baseURLFor(provider string) string {
	if provider == f.config.Provider && f.config.BaseURL != "" {
		return f.config.BaseURL
	}
	switch provider {
	case config.ProviderGitHub:
		return config.GitHubModelsBaseURL
	case config.ProviderOllama:
		return config.OllamaDefaultHost
	default:
		return ""
	}
}

func (f *ClientFactory) newRawClient(selector proto.ModelSelector, credential string) (llm.LLMClient, error) {
	baseURL := f.baseURLFor(selector.Provider)

	switch selector.Provider {
	case config.ProviderGitHub, config.ProviderOpenAI:
		return openai.NewClientWithModel(credential, baseURL, selector.Model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(credential, selector.Model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(credential, selector.Model), nil
	case config.ProviderOllama:
		client, err := ollama.NewOllamaClientWithModel(baseURL, selector.Model)
		if err != nil {
			return nil, llmerrors.NewUnavailableError(err, "failed to create Ollama client")
		}
		return client, nil
	default:
		return nil, llmerrors.NewUnavailableError(nil, fmt.Sprintf("unsupported provider: %s", selector.Provider))
	}
}
