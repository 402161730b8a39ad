package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"devagent/pkg/config"
	"devagent/pkg/generation/llm"
	"devagent/pkg/generation/llmerrors"
	"devagent/pkg/logx"
	"devagent/pkg/proto"
	"devagent/pkg/templates"
	"devagent/pkg/utils"
)

// LineRecorder receives the adapter's diagnostic lines. The session log
// implements it.
type LineRecorder interface {
	Record(text string, isError bool)
}

// ClientSource returns the LLM client for a model selector.
type ClientSource func(selector proto.ModelSelector) (llm.LLMClient, error)

// FactorySource adapts a ClientFactory into a ClientSource. Clients are
// cached per resolved selector.
func FactorySource(factory *ClientFactory, credential string) ClientSource {
	var mu sync.Mutex
	cache := make(map[proto.ModelSelector]llm.LLMClient)
	return func(selector proto.ModelSelector) (llm.LLMClient, error) {
		selector = factory.Resolve(selector)
		mu.Lock()
		defer mu.Unlock()
		if client, ok := cache[selector]; ok {
			return client, nil
		}
		client, err := factory.CreateClient(selector, credential)
		if err != nil {
			return nil, err
		}
		cache[selector] = client
		return client, nil
	}
}

// StaticClient always returns client.
func StaticClient(client llm.LLMClient) ClientSource {
	return func(proto.ModelSelector) (llm.LLMClient, error) {
		return client, nil
	}
}

// Adapter is the Generation Client Adapter.
type Adapter struct {
	clients  ClientSource
	renderer *templates.Renderer
	config   config.GenerationConfig
	lines    LineRecorder
	logger   *logx.Logger
}

// NewAdapter creates an adapter. lines may be nil.
func NewAdapter(cfg config.GenerationConfig, clients ClientSource, renderer *templates.Renderer, lines LineRecorder) *Adapter {
	if cfg.MinCodeLength <= 0 {
		cfg.MinCodeLength = DefaultMinCodeLength
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8000
	}
	return &Adapter{
		clients:  clients,
		renderer: renderer,
		config:   cfg,
		lines:    lines,
		logger:   logx.NewLogger("generation"),
	}
}

// SetLineRecorder replaces the diagnostic line recorder.
func (a *Adapter) SetLineRecorder(lines LineRecorder) {
	a.lines = lines
}

func (a *Adapter) diag(isError bool, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if a.lines != nil {
		a.lines.Record(msg, isError)
		return
	}
	if isError {
		a.logger.Warn("%s", msg)
	} else {
		a.logger.Debug("%s", msg)
	}
}

// Generate asks the model for a new version of the artifact. attempt is the
// 0-based attempt index, codeContext the current best code and errorHistory
// the accumulated failures (empty on the first attempt). It never returns
// empty code: output that cleans to less than the minimum length falls back
// to codeContext with FellBack set.
func (a *Adapter) Generate(ctx context.Context, req *proto.Request, attempt int, codeContext, errorHistory string) proto.GenerationResult {
	client, err := a.clients(req.ModelSelector)
	if err != nil {
		return a.failure(err)
	}

	messages, err := a.buildMessages(req, attempt, codeContext, errorHistory)
	if err != nil {
		return proto.GenerationFailed(proto.GenerationOtherFailure, fmt.Sprintf("failed to render prompt: %v", err))
	}

	completion := llm.NewCompletionRequest(messages)
	completion.MaxTokens = config.ClampMaxTokens(client.GetModelName(), a.config.MaxTokens)
	completion.Temperature = float32(a.config.Temperature)
	if err := completion.Validate(); err != nil {
		return proto.GenerationFailed(proto.GenerationOtherFailure, err.Error())
	}

	userMessage := messages[len(messages)-1].Content
	a.diag(false, "SENDING TO AI - Full message length: %d chars (~%d tokens)",
		len(userMessage), utils.CountTokensSimple(userMessage))
	a.diag(false, "Using AI model: %s", client.GetModelName())

	resp, err := client.Complete(ctx, completion)
	if err != nil {
		return a.failure(err)
	}

	raw := strings.TrimSpace(resp.Content)
	a.diag(false, "RECEIVED FROM AI - Code length: %d chars", len(raw))
	if resp.StopReason == "max_tokens" {
		a.diag(true, "⚠️ Response hit the max token limit and may be truncated")
	}

	code := CleanOutput(raw)
	if TooShort(code, a.config.MinCodeLength) {
		a.diag(true, "⚠️ Generated code is empty or shorter than %d characters; falling back to code context", a.config.MinCodeLength)
		return proto.GenerationResult{
			Kind:     proto.GenerationCode,
			Text:     codeContext,
			FellBack: true,
			RawText:  code,
			Detail:   fmt.Sprintf("model returned %d characters of code after cleanup (minimum %d)", len(code), a.config.MinCodeLength),
		}
	}

	if a.config.RequiredImport != "" && !strings.Contains(code, a.config.RequiredImport) {
		a.diag(true, "Code validation warnings: Missing essential import: %s", a.config.RequiredImport)
	}
	return proto.Code(code)
}

func (a *Adapter) buildMessages(req *proto.Request, attempt int, codeContext, errorHistory string) ([]llm.CompletionMessage, error) {
	systemPrompt, err := a.renderer.SystemPrompt(req.TargetKind, req.TargetIdentifier)
	if err != nil {
		return nil, err
	}

	data := &templates.TemplateData{
		Kind:         string(req.TargetKind),
		Name:         req.TargetIdentifier,
		TaskContent:  req.TaskDescription,
		ErrorHistory: errorHistory,
		CodeContext:  codeContext,
		Debugging:    errorHistory != "",
		Attempt:      attempt,
		MaxAttempts:  req.MaxAttempts,
	}
	task, err := a.renderer.TaskPrompt(data)
	if err != nil {
		return nil, err
	}
	data.Task = task
	userPrompt, err := a.renderer.UserPrompt(data)
	if err != nil {
		return nil, err
	}

	a.diag(false, "%s", strings.Repeat("=", 80))
	a.diag(false, "AI CALL DIAGNOSTIC")
	a.diag(false, "Request Type: %s", req.TargetKind.Noun())
	a.diag(false, "Prompt (first 200 chars): %s", utils.Preview(task, 200))
	a.diag(false, "Code Context Length: %d chars", len(codeContext))
	a.diag(false, "Error History Length: %d chars", len(errorHistory))
	if errorHistory != "" {
		a.diag(false, "Error History (first 500 chars): %s", utils.Preview(errorHistory, 500))
	}
	a.diag(false, "%s", strings.Repeat("=", 80))

	return []llm.CompletionMessage{
		llm.NewSystemMessage(systemPrompt),
		llm.NewUserMessage(userPrompt),
	}, nil
}

// failure maps a classified backend error to a GenerationResult.
func (a *Adapter) failure(err error) proto.GenerationResult {
	llmErr := llmerrors.Classify(err, 0)

	switch llmErr.Type {
	case llmerrors.ErrorTypeRateLimit:
		wait := llmerrors.FormatWait(llmErr.RetryAfter)
		a.diag(true, "❌ RATE LIMIT ERROR DETECTED")
		a.diag(true, "You have exceeded your API quota. Wait time: %s", wait)
		a.diag(true, "Full error: %v", err)
		result := proto.GenerationFailed(proto.GenerationRateLimited, err.Error())
		result.WaitTime = wait
		return result
	case llmerrors.ErrorTypeAuth:
		a.diag(true, "❌ AUTHENTICATION ERROR")
		a.diag(true, "Your API credential may be invalid or expired.")
		a.diag(true, "Full error: %v", err)
		return proto.GenerationFailed(proto.GenerationAuthFailure, err.Error())
	case llmerrors.ErrorTypeUnavailable:
		a.diag(true, "❌ Generation backend unavailable: %v", err)
		return proto.GenerationFailed(proto.GenerationBackendUnavailable, err.Error())
	default:
		a.diag(true, "❌ AI API call failed: %v", err)
		return proto.GenerationFailed(proto.GenerationOtherFailure, err.Error())
	}
}
