// Package host defines the boundary between the generation loop and the
// application that loads and runs generated artifacts. The probes only see
// these interfaces; a Session is passed in explicitly so tests can substitute
// an in-memory fake.
package host

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Severity of a host log event.
type Severity string

const (
	SeverityDebug   Severity = "DEBUG"
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
	SeverityFatal   Severity = "FATAL"
)

// ParseSeverity maps a level name to a Severity. CRITICAL is reported as FATAL.
func ParseSeverity(s string) Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return SeverityDebug
	case "INFO":
		return SeverityInfo
	case "WARNING", "WARN":
		return SeverityWarning
	case "ERROR":
		return SeverityError
	case "FATAL", "CRITICAL":
		return SeverityFatal
	default:
		return Severity(strings.ToUpper(s))
	}
}

// LogEvent is one entry on the host error/log stream.
type LogEvent struct {
	Time     time.Time
	Severity Severity
	Message  string
}

func (e LogEvent) String() string {
	return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
}

// ErrorLog is the host's subscribable error/log stream.
type ErrorLog interface {
	// Subscribe registers fn for every subsequent event and returns a
	// function that removes it.
	Subscribe(fn func(LogEvent)) (unsubscribe func())
}

// Module is the capability the probe requires of a loaded module's UI
// representation.
type Module interface {
	Name() string
	HasSetup() bool
	HasLogicDelegate() bool
	Setup(ctx context.Context) error
}

// ModuleRegistry is the host's module registry and loader.
type ModuleRegistry interface {
	RegisterModule(ctx context.Context, path string) error
	LoadModules(ctx context.Context, names []string) error
	SelectModule(ctx context.Context, name string) error
	// Module returns the UI representation of a loaded module.
	Module(ctx context.Context, name string) (Module, error)
	// ReloadModule reloads name and returns everything written to stdout and
	// stderr while doing so. A "Traceback" in the output means failure.
	ReloadModule(ctx context.Context, name string) (string, error)
	// ModulePath returns the source path of a registered module.
	ModulePath(name string) (string, bool)
}

// ScriptResult is the captured output of a script execution.
type ScriptResult struct {
	Stdout string
	Stderr string
}

// ScriptError is an exception raised by host-executed code.
type ScriptError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

func (e *ScriptError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// CompileError is a syntax error reported by the host's own compiler.
type CompileError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s: %s (line %d, column %d)", e.Type, e.Message, e.Line, e.Column)
}

// Session is a handle on one host instance.
type Session interface {
	Modules() ModuleRegistry
	Errors() ErrorLog
	// ProcessEvents pumps the host event loop once.
	ProcessEvents()
	// ClearScene resets shared document state before a script runs.
	ClearScene(ctx context.Context) error
	// RunScript executes code with the named bindings pre-imported. A raised
	// exception is returned as *ScriptError alongside the captured output.
	RunScript(ctx context.Context, name, code string, bindings []string) (ScriptResult, error)
}
