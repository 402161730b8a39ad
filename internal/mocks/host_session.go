package mocks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"devagent/pkg/host"
)

// FakeOutcome scripts how FakeSession reacts to one artifact.
type FakeOutcome struct {
	LoadErr      error
	SetupErr     error
	SetupEvents  []host.LogEvent
	MissingSetup bool
	MissingLogic bool
	ReloadOutput string
	Result       host.ScriptResult
	ScriptErr    error
}

// FakeSession is an in-memory host.Session. Modules are read from disk at the
// time of each call and handed to OnModule, scripts to OnScript, so a test can
// decide pass or fail from the generated code itself.
type FakeSession struct {
	// OnModule decides the outcome for a module's current source. Nil passes.
	OnModule func(name, code string) FakeOutcome
	// OnScript decides the outcome for a script. Nil passes.
	OnScript func(name, code string) FakeOutcome

	subscribers host.Subscribers

	mu            sync.Mutex
	modules       map[string]string
	loaded        map[string]bool
	calls         []string
	processEvents int
}

// NewFakeSession creates a FakeSession where everything passes.
func NewFakeSession() *FakeSession {
	return &FakeSession{
		modules: make(map[string]string),
		loaded:  make(map[string]bool),
	}
}

// AddModule registers an existing module without recording a call.
func (f *FakeSession) AddModule(name, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modules[name] = path
	f.loaded[name] = true
}

// Calls returns the recorded operations, e.g. "register:Foo" or "run:bar".
func (f *FakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls returns how many recorded operations start with prefix.
func (f *FakeSession) CountCalls(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// ProcessEventsCount returns how often ProcessEvents was called.
func (f *FakeSession) ProcessEventsCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processEvents
}

// SubscriberCount returns the number of live error log subscriptions.
func (f *FakeSession) SubscriberCount() int {
	return f.subscribers.Len()
}

// Publish emits an event on the error log.
func (f *FakeSession) Publish(severity host.Severity, message string) {
	f.subscribers.Publish(host.LogEvent{Time: time.Now(), Severity: severity, Message: message})
}

func (f *FakeSession) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakeSession) moduleOutcome(name string) (FakeOutcome, error) {
	path, ok := f.ModulePath(name)
	if !ok {
		return FakeOutcome{}, fmt.Errorf("module %s is not registered", name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FakeOutcome{}, err
	}
	if f.OnModule == nil {
		return FakeOutcome{}, nil
	}
	return f.OnModule(name, string(data)), nil
}

func (f *FakeSession) Modules() host.ModuleRegistry { return f }
func (f *FakeSession) Errors() host.ErrorLog        { return &f.subscribers }

func (f *FakeSession) ProcessEvents() {
	f.mu.Lock()
	f.processEvents++
	f.mu.Unlock()
}

func (f *FakeSession) ClearScene(context.Context) error {
	f.record("clear")
	return nil
}

func (f *FakeSession) RunScript(_ context.Context, name, code string, _ []string) (host.ScriptResult, error) {
	f.record("run:" + name)
	if f.OnScript == nil {
		return host.ScriptResult{}, nil
	}
	out := f.OnScript(name, code)
	return out.Result, out.ScriptErr
}

func (f *FakeSession) RegisterModule(_ context.Context, path string) error {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	f.record("register:" + name)
	f.mu.Lock()
	f.modules[name] = path
	delete(f.loaded, name)
	f.mu.Unlock()
	return nil
}

func (f *FakeSession) LoadModules(_ context.Context, names []string) error {
	for _, name := range names {
		f.record("load:" + name)
		out, err := f.moduleOutcome(name)
		if err != nil {
			return err
		}
		if out.LoadErr != nil {
			return out.LoadErr
		}
		f.mu.Lock()
		f.loaded[name] = true
		f.mu.Unlock()
	}
	return nil
}

func (f *FakeSession) SelectModule(_ context.Context, name string) error {
	f.record("select:" + name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded[name] {
		return fmt.Errorf("module %s is not loaded", name)
	}
	return nil
}

func (f *FakeSession) Module(_ context.Context, name string) (host.Module, error) {
	out, err := f.moduleOutcome(name)
	if err != nil {
		return nil, err
	}
	return &fakeModule{session: f, name: name, outcome: out}, nil
}

func (f *FakeSession) ReloadModule(_ context.Context, name string) (string, error) {
	f.record("reload:" + name)
	out, err := f.moduleOutcome(name)
	if err != nil {
		return "", err
	}
	return out.ReloadOutput, nil
}

func (f *FakeSession) ModulePath(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.modules[name]
	return path, ok
}

type fakeModule struct {
	session *FakeSession
	name    string
	outcome FakeOutcome
}

func (m *fakeModule) Name() string           { return m.name }
func (m *fakeModule) HasSetup() bool         { return !m.outcome.MissingSetup }
func (m *fakeModule) HasLogicDelegate() bool { return !m.outcome.MissingLogic }

func (m *fakeModule) Setup(context.Context) error {
	m.session.record("setup:" + m.name)
	for _, ev := range m.outcome.SetupEvents {
		m.session.subscribers.Publish(ev)
	}
	return m.outcome.SetupErr
}
