package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devagent/pkg/config"
	"devagent/pkg/generation/llmerrors"
	"devagent/pkg/proto"
)

func TestResolveSelector(t *testing.T) {
	cfg := config.Default(t.TempDir()).Generation
	factory := NewClientFactory(cfg, nil)

	tests := []struct {
		name string
		in   proto.ModelSelector
		want proto.ModelSelector
	}{
		{"empty uses config", proto.ModelSelector{}, proto.ModelSelector{Provider: config.ProviderGitHub, Model: "gpt-4o"}},
		{"model infers provider", proto.ModelSelector{Model: "claude-sonnet-4-20250514"}, proto.ModelSelector{Provider: config.ProviderAnthropic, Model: "claude-sonnet-4-20250514"}},
		{"provider picks default model", proto.ModelSelector{Provider: config.ProviderGoogle}, proto.ModelSelector{Provider: config.ProviderGoogle, Model: "gemini-2.5-pro"}},
		{"explicit kept", proto.ModelSelector{Provider: config.ProviderGitHub, Model: "AI21-Jamba-1.5-Large"}, proto.ModelSelector{Provider: config.ProviderGitHub, Model: "AI21-Jamba-1.5-Large"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, factory.Resolve(tt.in))
		})
	}
}

func TestCreateClientUnavailable(t *testing.T) {
	cfg := config.Default(t.TempDir()).Generation
	factory := NewClientFactory(cfg, nil)

	_, err := factory.CreateClient(proto.ModelSelector{Provider: config.ProviderOpenAI, Model: "gpt-4o"}, "")
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeUnavailable))
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	_, err = factory.CreateClient(proto.ModelSelector{Provider: "cohere", Model: "command-r"}, "token")
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeUnavailable))
}

func TestCreateClientOllamaBadURL(t *testing.T) {
	cfg := config.Default(t.TempDir()).Generation
	cfg.Provider = config.ProviderOllama
	cfg.BaseURL = "not a url"
	factory := NewClientFactory(cfg, nil)

	_, err := factory.CreateClient(proto.ModelSelector{Provider: config.ProviderOllama, Model: "qwen2.5-coder"}, "")
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeUnavailable))
}

func TestCreateClientBuildsEachProvider(t *testing.T) {
	cfg := config.Default(t.TempDir()).Generation
	factory := NewClientFactory(cfg, nil)

	selectors := []proto.ModelSelector{
		{Provider: config.ProviderGitHub, Model: "gpt-4o"},
		{Provider: config.ProviderOpenAI, Model: "o3-mini"},
		{Provider: config.ProviderAnthropic, Model: "claude-sonnet-4-20250514"},
		{Provider: config.ProviderGoogle, Model: "gemini-2.5-pro"},
		{Provider: config.ProviderOllama, Model: "qwen2.5-coder"},
	}
	for _, sel := range selectors {
		t.Run(sel.String(), func(t *testing.T) {
			client, err := factory.CreateClient(sel, "test-credential")
			require.NoError(t, err)
			assert.Equal(t, sel.Model, client.GetModelName())
		})
	}
}

func TestFactorySource(t *testing.T) {
	cfg := config.Default(t.TempDir()).Generation
	source := FactorySource(NewClientFactory(cfg, nil), "tok")

	a, err := source(proto.ModelSelector{})
	require.NoError(t, err)
	b, err := source(proto.ModelSelector{Provider: config.ProviderGitHub, Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, a.GetModelName(), b.GetModelName())

	_, err = source(proto.ModelSelector{Provider: "cohere"})
	assert.Error(t, err)
}
