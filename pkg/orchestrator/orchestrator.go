// Package orchestrator drives the generate, persist, validate, execute and
// regenerate loop for one request at a time.
//
// Each request walks a small state machine:
//
//	START → GENERATE → VALIDATE → EXECUTE → DONE_SUCCESS
//	                ↘          ↘          ↘
//	                 RECORD_ERROR → GENERATE | DONE_FAILURE
//
// Backend failures that regeneration cannot repair (unavailable backend,
// rate limit, auth) and artifact I/O failures go straight to DONE_FAILURE.
// A ModifyModule request that fails after writing restores the original file.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"devagent/pkg/artifact"
	"devagent/pkg/generation"
	"devagent/pkg/logx"
	"devagent/pkg/metrics"
	"devagent/pkg/probe"
	"devagent/pkg/proto"
	"devagent/pkg/sessionlog"
	"devagent/pkg/templates"
)

// Generator produces code for one attempt.
type Generator interface {
	Generate(ctx context.Context, req *proto.Request, attempt int, codeContext, errorHistory string) proto.GenerationResult
	SetLineRecorder(lines generation.LineRecorder)
}

// ArtifactStore persists artifacts.
type ArtifactStore interface {
	Write(path, text string) error
	Read(path string) (string, error)
	Snapshot(path string) (artifact.Snapshot, error)
	Restore(path string, snap artifact.Snapshot) error
}

// Validator is the syntax gate.
type Validator interface {
	Validate(ctx context.Context, text string) proto.ValidationOutcome
}

// Prober is the execution gate.
type Prober interface {
	Execute(ctx context.Context, req *proto.Request, path, code string) proto.ExecutionOutcome
	SetLineRecorder(lines probe.LineRecorder)
}

// PathResolver locates modules already known to the host.
type PathResolver interface {
	ModulePath(name string) (string, bool)
}

// Recorder receives loop metrics.
type Recorder interface {
	ObserveAttempt(kind proto.TargetKind, stage, outcome string)
	ObserveSession(kind proto.TargetKind, success bool, errorType proto.ErrorType)
}

// SessionStore persists session rows. The row is created before any
// transcript line reaches the sink.
type SessionStore interface {
	CreateSession(sessionID string, req *proto.Request, startedAt time.Time) error
	CompleteSession(result *proto.SessionResult, endedAt time.Time) error
}

// Deps are the stage implementations.
type Deps struct {
	Generator Generator
	Store     ArtifactStore
	Validator Validator
	Prober    Prober
	Renderer  *templates.Renderer
}

// Options configure an Orchestrator.
type Options struct {
	// OutputRoot is used when a request has no OutputLocation.
	OutputRoot   string
	PreviewChars int
	Paths        PathResolver
	Recorder     Recorder
	Sessions     SessionStore
	Sink         sessionlog.Sink
	Pump         sessionlog.Pump
	Observers    []sessionlog.Observer
	NewID        func() string
	Clock        func() time.Time
}

// Orchestrator runs requests sequentially.
type Orchestrator struct {
	deps   Deps
	opts   Options
	layout artifact.Layout
	logger *logx.Logger

	// One request at a time; a second Run waits for the first.
	running sync.Mutex
}

// New validates deps and returns an Orchestrator.
func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Generator == nil:
		return nil, fmt.Errorf("orchestrator requires a generator")
	case deps.Store == nil:
		return nil, fmt.Errorf("orchestrator requires an artifact store")
	case deps.Validator == nil:
		return nil, fmt.Errorf("orchestrator requires a validator")
	case deps.Prober == nil:
		return nil, fmt.Errorf("orchestrator requires a prober")
	}
	if deps.Renderer == nil {
		renderer, err := templates.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("failed to load templates: %w", err)
		}
		deps.Renderer = renderer
	}
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = DefaultPreviewChars
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		layout: artifact.Layout{Root: opts.OutputRoot},
		logger: logx.NewLogger("orchestrator"),
	}, nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(proto.TargetKind, string, string)        {}
func (nopRecorder) ObserveSession(proto.TargetKind, bool, proto.ErrorType) {}

// session is the per-request state owned by Run.
type session struct {
	id      string
	req     *proto.Request
	log     *sessionlog.Log
	machine *StateMachine
	history *ErrorHistory

	path     string
	snapshot *artifact.Snapshot
	wrote    bool
	attempt  int
}

// Run executes req to completion and returns its terminal result. It never
// panics; an unexpected panic becomes a failed result of type InternalError.
func (o *Orchestrator) Run(ctx context.Context, req *proto.Request, observers ...sessionlog.Observer) *proto.SessionResult {
	o.running.Lock()
	defer o.running.Unlock()

	s := &session{
		id:      o.opts.NewID(),
		req:     req,
		machine: NewStateMachine(o.logger),
		history: NewErrorHistory(o.deps.Renderer, o.opts.PreviewChars),
	}

	logOpts := []sessionlog.Option{sessionlog.WithClock(o.opts.Clock)}
	if o.opts.Sink != nil {
		logOpts = append(logOpts, sessionlog.WithSink(o.opts.Sink))
	}
	if o.opts.Pump != nil {
		logOpts = append(logOpts, sessionlog.WithPump(o.opts.Pump))
	}
	for _, obs := range append(append([]sessionlog.Observer(nil), o.opts.Observers...), observers...) {
		logOpts = append(logOpts, sessionlog.WithObserver(obs))
	}
	s.log = sessionlog.New(s.id, logOpts...)

	o.deps.Generator.SetLineRecorder(s.log)
	o.deps.Prober.SetLineRecorder(s.log)

	if o.opts.Sessions != nil {
		if err := o.opts.Sessions.CreateSession(s.id, req, o.opts.Clock()); err != nil {
			o.logger.Warn("⚠️ Failed to persist session %s: %v", s.id, err)
		}
	}

	result := o.runSafely(ctx, s)
	o.finish(s, result)
	return result
}

func (o *Orchestrator) runSafely(ctx context.Context, s *session) (result *proto.SessionResult) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		stack := string(debug.Stack())
		o.logger.Error("💥 Unexpected panic in session %s: %v", s.id, r)
		s.log.Recordf(true, "Unexpected error: %v", r)
		if _, live := s.log.Live(); live {
			_, _ = s.log.SealAttempt()
		}
		result = o.failure(ctx, s, proto.ErrInternal, fmt.Sprintf("Unexpected error: %v\n\n%s", r, stack))
	}()
	return o.drive(ctx, s)
}

// to advances the state machine. A rejected transition is a bug in the loop
// and is surfaced through the panic recovery in runSafely.
func (s *session) to(next State) {
	if err := s.machine.TransitionTo(next, s.attempt); err != nil {
		panic(err)
	}
}

func (o *Orchestrator) drive(ctx context.Context, s *session) *proto.SessionResult {
	req := s.req
	if err := req.Validate(); err != nil {
		s.log.Recordf(true, "Invalid request: %v", err)
		s.to(StateDoneFailure)
		return o.failure(ctx, s, proto.ErrInternal, fmt.Sprintf("Invalid request: %v", err))
	}

	s.log.Recordf(false, "🚀 Starting %s '%s' (max debug attempts: %d)", req.TargetKind, req.TargetIdentifier, req.MaxAttempts)

	codeContext, err := o.prepare(s)
	if err != nil {
		message := "Failed to prepare artifact: " + err.Error()
		s.log.Record(message, true)
		s.to(StateDoneFailure)
		return o.failure(ctx, s, proto.ErrArtifactIOFailure, message)
	}

	for attempt := 0; attempt <= req.MaxAttempts; attempt++ {
		s.attempt = attempt
		if err := ctx.Err(); err != nil {
			s.log.Recordf(true, "Request canceled: %v", err)
			s.to(StateDoneFailure)
			return o.failure(ctx, s, proto.ErrInternal, fmt.Sprintf("Request canceled: %v", err))
		}

		s.to(StateGenerate)
		if err := s.log.StartAttempt(attempt); err != nil {
			panic(err)
		}
		if attempt > 0 {
			s.log.Recordf(false, "🔁 Debug attempt %d/%d", attempt, req.MaxAttempts)
		}

		s.log.Recordf(false, "Attempt %d: Generating code...", attempt+1)
		gen := o.deps.Generator.Generate(ctx, req, attempt, codeContext, s.history.String())

		if gen.IsFatal() {
			o.opts.Recorder.ObserveAttempt(req.TargetKind, metrics.StageGenerate, string(gen.Kind))
			_ = s.log.SetGenerated(nil)
			_, _ = s.log.SealAttempt()
			s.to(StateDoneFailure)
			return o.failure(ctx, s, proto.ErrorTypeForGeneration(gen.Kind), generationFailureMessage(gen))
		}

		if gen.Kind != proto.GenerationCode || gen.FellBack {
			errType, message, raw := proto.ErrGenerationFailure, gen.Detail, (*string)(nil)
			outcome := string(gen.Kind)
			if gen.FellBack {
				errType = proto.ErrGenerationEmptyOrInvalid
				message = "Generated output was empty or too short; nothing was written. " + gen.Detail
				rawText := gen.RawText
				raw = &rawText
				outcome = "fallback"
			}
			o.opts.Recorder.ObserveAttempt(req.TargetKind, metrics.StageGenerate, outcome)
			_ = s.log.SetGenerated(nil)
			if done := o.recordError(s, errType, message, raw, ""); done {
				return o.exhausted(ctx, s)
			}
			continue
		}
		o.opts.Recorder.ObserveAttempt(req.TargetKind, metrics.StageGenerate, string(proto.StatusPass))

		code := gen.Text
		_ = s.log.SetGenerated(&code)
		s.log.Recordf(false, "Attempt %d: Writing %d characters to %s", attempt+1, len(code), s.path)
		if err := o.deps.Store.Write(s.path, code); err != nil {
			message := fmt.Sprintf("Failed to write artifact: %v", err)
			s.log.Record(message, true)
			_, _ = s.log.SealAttempt()
			s.to(StateDoneFailure)
			return o.failure(ctx, s, proto.ErrArtifactIOFailure, message)
		}
		s.wrote = true
		codeContext = code

		s.to(StateValidate)
		s.log.Recordf(false, "Attempt %d: Validating syntax...", attempt+1)
		validation := o.deps.Validator.Validate(ctx, code)
		_ = s.log.SetValidation(validation)
		o.opts.Recorder.ObserveAttempt(req.TargetKind, metrics.StageValidate, string(validation.Status))
		if !validation.Passed() {
			message := validation.Message
			trace := fmt.Sprintf("%s (line %d, column %d)", validation.Message, validation.Line, validation.Column)
			if done := o.recordError(s, proto.ErrSyntaxFailure, message, &code, trace); done {
				return o.exhausted(ctx, s)
			}
			continue
		}

		s.to(StateExecute)
		s.log.Recordf(false, "Attempt %d: Executing %s in host...", attempt+1, req.TargetKind.Noun())
		execution := o.deps.Prober.Execute(ctx, req, s.path, code)
		_ = s.log.SetExecution(execution)
		o.opts.Recorder.ObserveAttempt(req.TargetKind, metrics.StageExecute, string(execution.Status))
		if !execution.Passed() {
			o.recordFailedCode(s, code)
			if done := o.recordError(s, proto.ErrExecutionFailure, execution.Detail, &code, execution.Trace); done {
				return o.exhausted(ctx, s)
			}
			continue
		}

		if _, err := s.log.SealAttempt(); err != nil {
			panic(err)
		}
		s.to(StateDoneSuccess)
		return o.success(s)
	}

	// Unreachable: the final failed attempt always returns from recordError.
	panic(fmt.Errorf("attempt loop ended without a terminal state"))
}

// prepare resolves the artifact path and the initial code context. For
// ModifyModule it captures the snapshot used for rollback.
func (o *Orchestrator) prepare(s *session) (string, error) {
	req := s.req
	if req.TargetKind == proto.TargetModifyModule && o.opts.Paths != nil {
		if path, ok := o.opts.Paths.ModulePath(req.TargetIdentifier); ok {
			s.path = path
		}
	}
	if s.path == "" {
		path, err := o.layout.Resolve(req)
		if err != nil {
			return "", fmt.Errorf("failed to resolve artifact path: %w", err)
		}
		s.path = path
	}

	if req.TargetKind != proto.TargetModifyModule {
		code, err := o.deps.Renderer.InitialContext(req.TargetKind, req.TargetIdentifier)
		if err != nil {
			return "", fmt.Errorf("failed to render starter code: %w", err)
		}
		return code, nil
	}

	snap, err := o.deps.Store.Snapshot(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to snapshot module '%s': %w", req.TargetIdentifier, err)
	}
	if !snap.Existed {
		return "", fmt.Errorf("module '%s' not found at %s", req.TargetIdentifier, s.path)
	}
	s.snapshot = &snap
	s.log.Recordf(false, "📸 Captured original module content (%d chars) from %s", len(snap.Text), s.path)
	return snap.Text, nil
}

// recordError enters RECORD_ERROR, appends the failure to the history and
// seals the attempt. It returns true when the budget is spent.
func (o *Orchestrator) recordError(s *session, errType proto.ErrorType, message string, code *string, trace string) bool {
	s.to(StateRecordError)
	s.log.Recordf(true, "Attempt %d failed (%s): %s", s.attempt+1, errType, message)
	if err := s.history.Append(s.attempt, errType, message, code, trace); err != nil {
		o.logger.Warn("⚠️ Failed to render error block: %v", err)
	}
	if _, err := s.log.SealAttempt(); err != nil {
		panic(err)
	}

	if s.attempt >= s.req.MaxAttempts {
		s.to(StateDoneFailure)
		return true
	}
	return false
}

func (o *Orchestrator) recordFailedCode(s *session, code string) {
	s.log.Record(fmt.Sprintf("Generated code that failed (first %d chars):", o.opts.PreviewChars), false)
	s.log.Record("---START CODE---", false)
	s.log.Record(Preview(code, o.opts.PreviewChars), false)
	s.log.Record("---END CODE---", false)
}

func (o *Orchestrator) exhausted(ctx context.Context, s *session) *proto.SessionResult {
	return o.failure(ctx, s, proto.ErrAttemptBudgetExhausted, s.history.LastError())
}

// failure builds the failed result and rolls back a modified module.
func (o *Orchestrator) failure(ctx context.Context, s *session, errType proto.ErrorType, finalError string) *proto.SessionResult {
	req := s.req
	action := "create/load module"
	switch req.TargetKind {
	case proto.TargetNewScript:
		action = "create script"
	case proto.TargetModifyModule:
		action = "modify module"
	}

	var message string
	if errType == proto.ErrAttemptBudgetExhausted {
		message = fmt.Sprintf("Failed to %s after %d debug attempts. Final error: %s", action, req.MaxAttempts, finalError)
	} else {
		message = fmt.Sprintf("Failed to %s (%s) on attempt %d. Final error: %s", action, errType, s.attempt+1, finalError)
	}

	if note := o.rollback(ctx, s); note != "" {
		message += "\n\n" + note
	}
	if history := s.history.String(); history != "" {
		message += "\n\nError History:\n" + history
	}

	s.log.Recordf(true, "❌ %s '%s' failed: %s", req.TargetKind, req.TargetIdentifier, errType)
	return &proto.SessionResult{
		Success:   false,
		Error:     message,
		ErrorType: errType,
	}
}

// rollback restores the snapshot of a modified module and re-probes it. It
// returns a note for the failure message, or "" when nothing was restored.
func (o *Orchestrator) rollback(ctx context.Context, s *session) (note string) {
	if s.snapshot == nil || !s.wrote {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Recordf(true, "Rollback failed: %v", r)
			note = fmt.Sprintf("Rollback failed: %v", r)
		}
	}()

	s.log.Recordf(false, "↩️ Restoring original module content to %s", s.path)
	if err := o.deps.Store.Restore(s.path, *s.snapshot); err != nil {
		s.log.Recordf(true, "Rollback failed: %v", err)
		return fmt.Sprintf("Rollback failed: %v", err)
	}

	// Best effort: leave the host with the original module loaded.
	if outcome := o.deps.Prober.Execute(ctx, s.req, s.path, s.snapshot.Text); !outcome.Passed() {
		s.log.Recordf(true, "Reload of restored module reported: %s", outcome.Detail)
		return "Original module content restored (reload reported errors: " + outcome.Detail + ")."
	}
	return "Original module content restored."
}

func (o *Orchestrator) success(s *session) *proto.SessionResult {
	req := s.req
	root := req.OutputLocation
	if root == "" {
		root = o.opts.OutputRoot
	}

	var message string
	switch req.TargetKind {
	case proto.TargetModifyModule:
		message = fmt.Sprintf("Module '%s' modified successfully", req.TargetIdentifier)
		if s.attempt > 0 {
			message += fmt.Sprintf(" after %d debug attempts", s.attempt)
		}
		message += ". Saved in: " + s.path
	case proto.TargetNewScript:
		message = fmt.Sprintf("Script '%s' created and tested successfully", req.TargetIdentifier)
		if s.attempt > 0 {
			message += fmt.Sprintf(" after %d debug attempts", s.attempt)
		}
		message += ".\n\nScript structure created:\n" + artifact.Tree(root, s.path)
	default:
		message = fmt.Sprintf("Module '%s' created, loaded, and tested successfully", req.TargetIdentifier)
		if s.attempt > 0 {
			message += fmt.Sprintf(" after %d debug attempts", s.attempt)
		}
		message += ".\n\nModule structure created:\n" + artifact.Tree(root, s.path)
	}

	s.log.Record("✅ "+firstLine(message), false)
	return &proto.SessionResult{Success: true, Message: message}
}

// finish fills the fields every result carries and publishes the outcome.
func (o *Orchestrator) finish(s *session, result *proto.SessionResult) {
	result.SessionID = s.id
	result.AttemptsUsed = s.attempt
	result.ArtifactPath = s.path
	result.ErrorHistory = s.history.String()
	result.Attempts = s.log.Attempts()
	result.Transcript = s.log.Transcript()

	o.opts.Recorder.ObserveSession(s.req.TargetKind, result.Success, result.ErrorType)
	if o.opts.Sessions != nil {
		if err := o.opts.Sessions.CompleteSession(result, o.opts.Clock()); err != nil {
			o.logger.Warn("⚠️ Failed to persist result of session %s: %v", s.id, err)
		}
	}
	o.logger.Info("🏁 Session %s finished: success=%t attempts_used=%d", s.id, result.Success, result.AttemptsUsed)
}

func generationFailureMessage(gen proto.GenerationResult) string {
	switch gen.Kind {
	case proto.GenerationRateLimited:
		wait := gen.WaitTime
		if wait == "" {
			wait = "unknown"
		}
		return fmt.Sprintf("AI API rate limit reached (wait time: %s). %s", wait, gen.Detail)
	case proto.GenerationAuthFailure:
		return "AI API authentication failed. Check your API token. " + gen.Detail
	default:
		return "AI backend unavailable. " + gen.Detail
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
