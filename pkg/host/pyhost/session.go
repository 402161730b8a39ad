// Package pyhost is a host.Session backed by a Python interpreter. Every
// operation runs in a fresh interpreter process driven by an embedded harness
// script, so no state leaks between attempts.
package pyhost

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"devagent/pkg/host"
	"devagent/pkg/logx"
)

//go:embed harness.py
var harnessSource string

// Output markers written by the harness on stderr.
const (
	markerLog    = "@@LOG "
	markerExc    = "@@EXC "
	markerResult = "@@RESULT "
)

// Options configures a Session.
type Options struct {
	// Interpreter is the python executable. Empty means discover python3,
	// then python, on PATH.
	Interpreter string
	// ExtraPaths are prepended to PYTHONPATH.
	ExtraPaths []string
	// ExecTimeout bounds each interpreter run. Zero means no limit.
	ExecTimeout time.Duration
}

// Session implements host.Session.
type Session struct {
	interpreter string
	opts        Options
	subscribers host.Subscribers
	logger      *logx.Logger

	mu       sync.Mutex
	modules  map[string]string
	loaded   map[string]bool
	selected string
}

// FindInterpreter resolves the configured interpreter or discovers one on PATH.
func FindInterpreter(configured string) (string, error) {
	if configured != "" {
		path, err := exec.LookPath(configured)
		if err != nil {
			return "", fmt.Errorf("python interpreter %q not found: %w", configured, err)
		}
		return path, nil
	}
	for _, name := range []string{"python3", "python"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New("no python interpreter found on PATH (set host.interpreter)")
}

// NewSession creates a session using the interpreter selected by opts.
func NewSession(opts Options) (*Session, error) {
	interpreter, err := FindInterpreter(opts.Interpreter)
	if err != nil {
		return nil, err
	}
	s := &Session{
		interpreter: interpreter,
		opts:        opts,
		logger:      logx.NewLogger("pyhost"),
		modules:     make(map[string]string),
		loaded:      make(map[string]bool),
	}
	s.logger.Info("Using python interpreter %s", interpreter)
	return s, nil
}

// Interpreter returns the resolved interpreter path.
func (s *Session) Interpreter() string { return s.interpreter }

func (s *Session) Modules() host.ModuleRegistry { return s }
func (s *Session) Errors() host.ErrorLog        { return &s.subscribers }

// ProcessEvents is a no-op: events are delivered as each run completes.
func (s *Session) ProcessEvents() {}

// ClearScene is a no-op because every run starts a fresh interpreter.
func (s *Session) ClearScene(context.Context) error { return nil }

// runOutput is the parsed result of one harness run.
type runOutput struct {
	stdout string
	stderr string
	exc    *host.ScriptError
	result json.RawMessage
}

func (s *Session) run(ctx context.Context, stdin string, args ...string) (*runOutput, error) {
	if s.opts.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ExecTimeout)
		defer cancel()
	}

	cmdArgs := append([]string{"-c", harnessSource}, args...)
	cmd := exec.CommandContext(ctx, s.interpreter, cmdArgs...)
	cmd.Env = s.environ()
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.logger.Debug("Running harness %s", strings.Join(args, " "))
	runErr := cmd.Run()

	out := s.parse(stdout.String(), stderr.String())
	if ctx.Err() != nil {
		return out, &host.ScriptError{
			Type:    "TimeoutError",
			Message: fmt.Sprintf("python execution did not finish: %v", ctx.Err()),
			Trace:   out.stderr,
		}
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return nil, fmt.Errorf("failed to run %s: %w", s.interpreter, runErr)
	}
	if runErr != nil && out.exc == nil {
		out.exc = &host.ScriptError{
			Type:    "ProcessError",
			Message: fmt.Sprintf("interpreter exited with code %d", exitErr.ExitCode()),
			Trace:   out.stderr,
		}
	}
	return out, nil
}

func (s *Session) environ() []string {
	env := os.Environ()
	if len(s.opts.ExtraPaths) == 0 {
		return env
	}
	paths := append([]string(nil), s.opts.ExtraPaths...)
	if existing := os.Getenv("PYTHONPATH"); existing != "" {
		paths = append(paths, existing)
	}
	return append(env, "PYTHONPATH="+strings.Join(paths, string(os.PathListSeparator)))
}

// parse strips harness markers from stderr, publishing log events as it goes.
func (s *Session) parse(stdout, stderr string) *runOutput {
	out := &runOutput{stdout: stdout}
	var kept strings.Builder

	scanner := bufio.NewScanner(strings.NewReader(stderr))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, markerLog):
			level, msg, _ := strings.Cut(strings.TrimPrefix(line, markerLog), " ")
			s.subscribers.Publish(host.LogEvent{
				Time:     time.Now(),
				Severity: host.ParseSeverity(level),
				Message:  strings.ReplaceAll(msg, `\n`, "\n"),
			})
		case strings.HasPrefix(line, markerExc):
			var exc host.ScriptError
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, markerExc)), &exc); err == nil {
				out.exc = &exc
			} else {
				s.logger.Warn("Unparseable exception marker: %v", err)
			}
		case strings.HasPrefix(line, markerResult):
			out.result = json.RawMessage(strings.TrimPrefix(line, markerResult))
		default:
			kept.WriteString(line)
			kept.WriteByte('\n')
		}
	}
	out.stderr = kept.String()
	return out
}

// RegisterModule records the module at path under its file stem.
func (s *Session) RegisterModule(_ context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("cannot register module: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))

	s.mu.Lock()
	s.modules[name] = abs
	delete(s.loaded, name)
	s.mu.Unlock()
	return nil
}

// ModulePath implements host.ModuleRegistry.
func (s *Session) ModulePath(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.modules[name]
	return path, ok
}

func (s *Session) registered(name string) (string, error) {
	path, ok := s.ModulePath(name)
	if !ok {
		return "", fmt.Errorf("module %s is not registered", name)
	}
	return path, nil
}

// LoadModules imports each named module, stopping at the first failure.
func (s *Session) LoadModules(ctx context.Context, names []string) error {
	for _, name := range names {
		path, err := s.registered(name)
		if err != nil {
			return err
		}
		out, err := s.run(ctx, "", "import", path, name)
		if err != nil {
			return err
		}
		if out.exc != nil {
			return out.exc
		}
		s.mu.Lock()
		s.loaded[name] = true
		s.mu.Unlock()
	}
	return nil
}

// SelectModule makes a loaded module current.
func (s *Session) SelectModule(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded[name] {
		return fmt.Errorf("module %s is not loaded", name)
	}
	s.selected = name
	return nil
}

// Selected returns the currently selected module name.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Module inspects the module's widget class.
func (s *Session) Module(ctx context.Context, name string) (host.Module, error) {
	path, err := s.registered(name)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, "", "inspect", path, name)
	if err != nil {
		return nil, err
	}
	if out.exc != nil {
		return nil, out.exc
	}

	var caps struct {
		HasSetup bool `json:"has_setup"`
		HasLogic bool `json:"has_logic"`
	}
	if err := json.Unmarshal(out.result, &caps); err != nil {
		return nil, fmt.Errorf("failed to inspect module %s: %w", name, err)
	}
	return &module{session: s, name: name, path: path, hasSetup: caps.HasSetup, hasLogic: caps.HasLogic}, nil
}

// ReloadModule re-imports name and returns the combined output.
func (s *Session) ReloadModule(ctx context.Context, name string) (string, error) {
	path, err := s.registered(name)
	if err != nil {
		return "", err
	}
	out, err := s.run(ctx, "", "import", path, name)
	if err != nil {
		return "", err
	}
	combined := out.stdout + out.stderr
	if out.exc != nil && !strings.Contains(combined, "Traceback") {
		combined += "\n--- EXCEPTION DURING RELOAD ---\n" + out.exc.Trace
	}
	return combined, nil
}

// RunScript executes code in a fresh interpreter.
func (s *Session) RunScript(ctx context.Context, name, code string, bindings []string) (host.ScriptResult, error) {
	out, err := s.run(ctx, code, "exec", name, strings.Join(bindings, ","))
	if err != nil {
		var scriptErr *host.ScriptError
		if errors.As(err, &scriptErr) && out != nil {
			return host.ScriptResult{Stdout: out.stdout, Stderr: out.stderr}, err
		}
		return host.ScriptResult{}, err
	}
	result := host.ScriptResult{Stdout: out.stdout, Stderr: out.stderr}
	if out.exc != nil {
		return result, out.exc
	}
	return result, nil
}

// Compile checks code with the interpreter's own compiler without running it.
// A syntax error is returned as the first result; the error is reserved for
// failures to run the interpreter.
func (s *Session) Compile(ctx context.Context, name, code string) (*host.CompileError, error) {
	out, err := s.run(ctx, code, "compile", name)
	if err != nil {
		return nil, err
	}
	if out.exc != nil {
		return nil, out.exc
	}

	var res struct {
		OK bool `json:"ok"`
		host.CompileError
	}
	if err := json.Unmarshal(out.result, &res); err != nil {
		return nil, fmt.Errorf("failed to read compile result: %w", err)
	}
	if res.OK {
		return nil, nil
	}
	return &res.CompileError, nil
}

type module struct {
	session  *Session
	name     string
	path     string
	hasSetup bool
	hasLogic bool
}

func (m *module) Name() string           { return m.name }
func (m *module) HasSetup() bool         { return m.hasSetup }
func (m *module) HasLogicDelegate() bool { return m.hasLogic }

// Setup instantiates the widget and calls setup(). Log records emitted during
// setup reach the session's error log subscribers before Setup returns.
func (m *module) Setup(ctx context.Context) error {
	out, err := m.session.run(ctx, "", "setup", m.path, m.name)
	if err != nil {
		return err
	}
	if out.exc != nil {
		return out.exc
	}
	return nil
}
