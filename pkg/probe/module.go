package probe

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"devagent/pkg/host"
	"devagent/pkg/proto"
)

// ProbeNewModule registers, loads and selects the module at path, then runs
// the smoke test.
func (p *Prober) ProbeNewModule(ctx context.Context, name, path string) proto.ExecutionOutcome {
	registry := p.session.Modules()

	p.say(false, "Registering module...")
	if err := registry.RegisterModule(ctx, path); err != nil {
		return failureFromError("Module registration failed: ", err)
	}

	p.say(false, "Loading module...")
	if err := registry.LoadModules(ctx, []string{name}); err != nil {
		return failureFromError("Module loading failed: ", err)
	}

	p.say(false, "Selecting module...")
	if err := registry.SelectModule(ctx, name); err != nil {
		return failureFromError("Module selection failed: ", err)
	}

	return p.smokeTest(ctx, name)
}

// ProbeModifiedModule reloads an existing module, fails on any traceback in
// the reload output, then runs the smoke test. A module unknown to the host
// is registered and loaded first.
func (p *Prober) ProbeModifiedModule(ctx context.Context, name, path string) proto.ExecutionOutcome {
	registry := p.session.Modules()

	if _, ok := registry.ModulePath(name); !ok {
		p.say(false, "Registering module...")
		if err := registry.RegisterModule(ctx, path); err != nil {
			return failureFromError("Module registration failed: ", err)
		}
		if err := registry.LoadModules(ctx, []string{name}); err != nil {
			return failureFromError("Module loading failed: ", err)
		}
	}

	p.say(false, "Reloading module...")
	output, err := registry.ReloadModule(ctx, name)
	if err != nil {
		return failureFromError("Module reload failed: ", err)
	}
	if strings.Contains(output, "Traceback") {
		return proto.ExecutionFailure("Module reload failed:\n"+strings.TrimSpace(output), output)
	}

	return p.smokeTest(ctx, name)
}

// smokeTest checks the module's structural hooks, runs setup while watching
// the host error log, and waits for asynchronous errors.
func (p *Prober) smokeTest(ctx context.Context, name string) proto.ExecutionOutcome {
	p.say(false, "Testing module '%s' functionality...", name)

	p.say(false, "  - Getting module widget...")
	module, err := p.session.Modules().Module(ctx, name)
	if err != nil {
		return failureFromError("Module loaded but failed runtime tests: Could not get widget for module "+name+": ", err)
	}
	if !module.HasLogicDelegate() {
		return runtimeFailure("Module widget missing 'logic' attribute", "")
	}
	if !module.HasSetup() {
		return runtimeFailure("Module widget missing 'setup' method", "")
	}

	p.say(false, "  - Running module setup and monitoring for errors...")
	var (
		mu     sync.Mutex
		logged strings.Builder
	)
	unsubscribe := p.session.Errors().Subscribe(func(ev host.LogEvent) {
		if !p.severities[ev.Severity] {
			return
		}
		mu.Lock()
		fmt.Fprintf(&logged, "[%s] %s\n", ev.Severity, ev.Message)
		mu.Unlock()
	})

	setupErr := module.Setup(ctx)
	p.session.ProcessEvents()
	sleepErr := p.Sleep(ctx, p.opts.SettleInterval)
	p.session.ProcessEvents()
	unsubscribe()

	if setupErr != nil {
		outcome := failureFromError("", setupErr)
		return runtimeFailure(outcome.Detail, outcome.Trace)
	}
	if sleepErr != nil {
		return runtimeFailure(fmt.Sprintf("interrupted while waiting for asynchronous errors: %v", sleepErr), "")
	}

	mu.Lock()
	errorsLogged := logged.String()
	mu.Unlock()
	if errorsLogged != "" {
		return runtimeFailure("Runtime errors detected:\n"+errorsLogged, errorsLogged)
	}

	p.say(false, "  ✓ Module tests completed successfully")
	return proto.ExecutionPass()
}

func runtimeFailure(msg, trace string) proto.ExecutionOutcome {
	return proto.ExecutionFailure("Module loaded but failed runtime tests: Runtime test failed: "+msg, trace)
}
