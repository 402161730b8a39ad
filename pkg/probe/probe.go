// Package probe loads or runs an artifact against the host and judges whether
// it works. Module artifacts go through the registry and a smoke test; script
// artifacts are executed directly and their output is scanned for error
// signatures.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devagent/pkg/classify"
	"devagent/pkg/host"
	"devagent/pkg/logx"
	"devagent/pkg/proto"
)

// LineRecorder receives progress lines. The session log implements it.
type LineRecorder interface {
	Record(text string, isError bool)
}

// Options configures the probes.
type Options struct {
	// SettleInterval is how long the module smoke test waits after setup for
	// asynchronous errors.
	SettleInterval time.Duration
	// ErrorSeverities are the log severities that fail the smoke test.
	ErrorSeverities []string
	// ScriptBindings are pre-imported into a script's namespace.
	ScriptBindings []string
	// Signatures overrides ScriptSignatures.
	Signatures *classify.Rules[string]
}

// Prober dispatches to the module or script probe by target kind.
type Prober struct {
	session    host.Session
	opts       Options
	severities map[host.Severity]bool
	lines      LineRecorder
	logger     *logx.Logger

	// Sleep waits for the settle interval; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Prober for session. lines may be nil.
func New(session host.Session, opts Options, lines LineRecorder) *Prober {
	if opts.Signatures == nil {
		opts.Signatures = ScriptSignatures
	}
	severities := make(map[host.Severity]bool, len(opts.ErrorSeverities))
	for _, s := range opts.ErrorSeverities {
		severities[host.ParseSeverity(s)] = true
	}
	return &Prober{
		session:    session,
		opts:       opts,
		severities: severities,
		lines:      lines,
		logger:     logx.NewLogger("probe"),
		Sleep:      sleep,
	}
}

// SetLineRecorder replaces the progress line recorder.
func (p *Prober) SetLineRecorder(lines LineRecorder) {
	p.lines = lines
}

func (p *Prober) say(isError bool, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.lines != nil {
		p.lines.Record(msg, isError)
		return
	}
	p.logger.Debug("%s", msg)
}

// Execute probes the artifact at path written for req. code is the text that
// was written there.
func (p *Prober) Execute(ctx context.Context, req *proto.Request, path, code string) proto.ExecutionOutcome {
	switch req.TargetKind {
	case proto.TargetNewModule:
		return p.ProbeNewModule(ctx, req.TargetIdentifier, path)
	case proto.TargetModifyModule:
		return p.ProbeModifiedModule(ctx, req.TargetIdentifier, path)
	case proto.TargetNewScript:
		return p.ProbeScript(ctx, req.TargetIdentifier, code)
	default:
		return proto.ExecutionFailure(fmt.Sprintf("unknown target kind %q", req.TargetKind), "")
	}
}

// failureFromError turns a host error into a Failure, keeping any trace the
// host attached.
func failureFromError(prefix string, err error) proto.ExecutionOutcome {
	var scriptErr *host.ScriptError
	if errors.As(err, &scriptErr) {
		return proto.ExecutionFailure(prefix+scriptErr.Error(), scriptErr.Trace)
	}
	return proto.ExecutionFailure(prefix+err.Error(), "")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
