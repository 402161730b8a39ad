package config

import (
	"fmt"
	"strings"
)

// ModelInfo describes a known model.
type ModelInfo struct {
	Provider         string // API provider
	MaxContextTokens int    // Maximum context window size
	MaxOutputTokens  int    // Maximum output tokens per request
}

// KnownModels holds provider and limit information for common models.
// Unknown models are resolved through ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"gpt-4o":                     {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	"gpt-4o-mini":                {Provider: ProviderOpenAI, MaxContextTokens: 128000, MaxOutputTokens: 16384},
	"gpt-4.1":                    {Provider: ProviderOpenAI, MaxContextTokens: 1047576, MaxOutputTokens: 32768},
	"o3-mini":                    {Provider: ProviderOpenAI, MaxContextTokens: 200000, MaxOutputTokens: 100000},
	"AI21-Jamba-1.5-Large":       {Provider: ProviderGitHub, MaxContextTokens: 256000, MaxOutputTokens: 4096},
	"claude-sonnet-4-20250514":   {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 64000},
	"claude-3-7-sonnet-20250219": {Provider: ProviderAnthropic, MaxContextTokens: 200000, MaxOutputTokens: 64000},
	"gemini-2.5-pro":             {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
	"gemini-2.5-flash":           {Provider: ProviderGoogle, MaxContextTokens: 1048576, MaxOutputTokens: 65536},
	"qwen2.5-coder:14b":          {Provider: ProviderOllama, MaxContextTokens: 32768, MaxOutputTokens: 8192},
	"llama3.1:8b":                {Provider: ProviderOllama, MaxContextTokens: 131072, MaxOutputTokens: 8192},
}

// ProviderPattern infers a provider from a model name prefix.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
}

// defaultModels is the model used when only a provider is configured.
//
//nolint:gochecknoglobals // Static defaults
var defaultModels = map[string]string{
	ProviderGitHub:    "gpt-4o",
	ProviderOpenAI:    "gpt-4o",
	ProviderAnthropic: "claude-sonnet-4-20250514",
	ProviderGoogle:    "gemini-2.5-pro",
	ProviderOllama:    "qwen2.5-coder:14b",
}

// secretNames maps a provider to the secret holding its credential.
//
//nolint:gochecknoglobals // Static mapping
var secretNames = map[string]string{
	ProviderGitHub:    "GITHUB_TOKEN",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGoogle:    "GEMINI_API_KEY",
}

// GetModelProvider returns the provider for a model, first from KnownModels
// and then by prefix.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	lower := strings.ToLower(modelName)
	for i := range ProviderPatterns {
		if strings.HasPrefix(lower, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("cannot infer provider for model %q; set generation.provider explicitly", modelName)
}

// GetModelInfo returns the registry entry for a model, or a zero-limit entry
// with the inferred provider and false when the model is unknown.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider, _ := GetModelProvider(modelName)
	return ModelInfo{Provider: provider}, false
}

// DefaultModelFor returns the default model for a provider.
func DefaultModelFor(provider string) string {
	if m, ok := defaultModels[provider]; ok {
		return m
	}
	return defaultModels[ProviderGitHub]
}

// SecretNameFor returns the credential secret name for a provider. The second
// return is false for providers that need no credential.
func SecretNameFor(provider string) (string, bool) {
	name, ok := secretNames[provider]
	return name, ok
}

// ClampMaxTokens caps requested output tokens at the model's known limit.
func ClampMaxTokens(modelName string, requested int) int {
	info, ok := GetModelInfo(modelName)
	if !ok || info.MaxOutputTokens == 0 || requested <= info.MaxOutputTokens {
		return requested
	}
	return info.MaxOutputTokens
}
