package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"devagent/pkg/host"
	"devagent/pkg/proto"
)

// ProbeScript clears the scene, runs code with the configured bindings and
// scans the captured output for error signatures. The syntax check happens
// before this in the validator.
func (p *Prober) ProbeScript(ctx context.Context, name, code string) proto.ExecutionOutcome {
	p.say(false, "Clearing scene for clean test execution...")
	if err := p.session.ClearScene(ctx); err != nil {
		return failureFromError("Failed to clear scene: ", err)
	}

	p.say(false, "Executing '%s' in host Python...", name)
	result, err := p.session.RunScript(ctx, name, code, p.opts.ScriptBindings)
	if err != nil {
		var scriptErr *host.ScriptError
		if errors.As(err, &scriptErr) {
			p.say(true, "Script execution FAILED with exception: %s", scriptErr.Error())
			detail := fmt.Sprintf("Script execution failed: %s\n\nFull traceback:\n%s", scriptErr.Message, scriptErr.Trace)
			return proto.ExecutionFailure(detail, scriptErr.Trace)
		}
		return proto.ExecutionFailure("Failed to execute script in host: "+err.Error(), "")
	}

	if match, found := p.opts.Signatures.First(result.Stdout, result.Stderr); found {
		p.say(true, "Error signature %q found in script output", match.Rule.Pattern)
		output := strings.TrimSpace(result.Stdout + "\n" + result.Stderr)
		detail := fmt.Sprintf("Script execution failed: %s detected in output: %s", match.Rule.Kind, match.Excerpt)
		return proto.ExecutionFailure(detail, output)
	}

	p.say(false, "  ✓ Script executed successfully")
	return proto.ExecutionPass()
}
