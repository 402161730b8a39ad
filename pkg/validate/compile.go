package validate

import (
	"context"
	"fmt"

	"devagent/pkg/host"
	"devagent/pkg/logx"
	"devagent/pkg/proto"
)

// Compiler compiles source with the target interpreter without running it.
type Compiler interface {
	Compile(ctx context.Context, name, code string) (*host.CompileError, error)
}

// CompileValidator asks the host interpreter to compile the source. When the
// interpreter cannot be run it falls back to the tree-sitter check.
type CompileValidator struct {
	compiler Compiler
	fallback *Validator
	logger   *logx.Logger
}

// NewCompileValidator creates a validator backed by compiler.
func NewCompileValidator(compiler Compiler) *CompileValidator {
	return &CompileValidator{
		compiler: compiler,
		fallback: NewValidator(),
		logger:   logx.NewLogger("validate"),
	}
}

// Validate returns Pass when the interpreter compiles text, or SyntaxFailure
// at the position it reports.
func (v *CompileValidator) Validate(ctx context.Context, text string) proto.ValidationOutcome {
	synErr, err := v.compiler.Compile(ctx, "artifact", text)
	if err != nil {
		v.logger.Warn("Interpreter compile check unavailable, using parser: %v", err)
		return v.fallback.Validate(ctx, text)
	}
	if synErr == nil {
		return proto.ValidationPass()
	}
	typ := synErr.Type
	if typ == "" {
		typ = "SyntaxError"
	}
	return proto.SyntaxFailure(
		fmt.Sprintf("%s: %s (line %d, column %d)", typ, synErr.Message, synErr.Line, synErr.Column),
		synErr.Line, synErr.Column)
}
