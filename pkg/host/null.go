package host

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// NullSession is a host that accepts every module and script without running
// anything. It backs the "none" host kind, where only generation and syntax
// validation gate an attempt.
type NullSession struct {
	subscribers Subscribers

	mu      sync.Mutex
	modules map[string]string
}

// NewNullSession creates an empty NullSession.
func NewNullSession() *NullSession {
	return &NullSession{modules: make(map[string]string)}
}

func (n *NullSession) Modules() ModuleRegistry { return n }
func (n *NullSession) Errors() ErrorLog        { return &n.subscribers }
func (n *NullSession) ProcessEvents()          {}

func (n *NullSession) ClearScene(context.Context) error { return nil }

func (n *NullSession) RunScript(context.Context, string, string, []string) (ScriptResult, error) {
	return ScriptResult{}, nil
}

func (n *NullSession) RegisterModule(_ context.Context, path string) error {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	n.mu.Lock()
	n.modules[name] = path
	n.mu.Unlock()
	return nil
}

func (n *NullSession) LoadModules(_ context.Context, names []string) error {
	for _, name := range names {
		if _, ok := n.ModulePath(name); !ok {
			return fmt.Errorf("module %s is not registered", name)
		}
	}
	return nil
}

func (n *NullSession) SelectModule(_ context.Context, name string) error {
	return n.LoadModules(context.Background(), []string{name})
}

func (n *NullSession) Module(_ context.Context, name string) (Module, error) {
	if _, ok := n.ModulePath(name); !ok {
		return nil, fmt.Errorf("module %s is not registered", name)
	}
	return nullModule(name), nil
}

func (n *NullSession) ReloadModule(context.Context, string) (string, error) { return "", nil }

func (n *NullSession) ModulePath(name string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	path, ok := n.modules[name]
	return path, ok
}

type nullModule string

func (m nullModule) Name() string                { return string(m) }
func (m nullModule) HasSetup() bool              { return true }
func (m nullModule) HasLogicDelegate() bool      { return true }
func (m nullModule) Setup(context.Context) error { return nil }
