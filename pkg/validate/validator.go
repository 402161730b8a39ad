// Package validate performs a static syntax check of generated Python source
// before any of it is executed.
package validate

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"devagent/pkg/proto"
)

// maxReported bounds the number of syntax errors listed in one message.
const maxReported = 5

// SyntaxError is one ERROR or MISSING node found in the parse tree.
type SyntaxError struct {
	Line    int // 1-based
	Column  int // 1-based
	Message string
}

// Validator parses Python source with tree-sitter. It is safe for concurrent
// use; each call builds its own parser.
type Validator struct {
	language *sitter.Language
}

// NewValidator creates a Python validator.
func NewValidator() *Validator {
	return &Validator{language: python.GetLanguage()}
}

// Validate returns Pass when text parses cleanly, or SyntaxFailure positioned
// at the first error.
func (v *Validator) Validate(ctx context.Context, text string) proto.ValidationOutcome {
	errs, err := v.Check(ctx, text)
	if err != nil {
		return proto.SyntaxFailure(fmt.Sprintf("parsing failed: %v", err), 0, 0)
	}
	if len(errs) == 0 {
		return proto.ValidationPass()
	}
	return proto.SyntaxFailure(formatErrors(errs), errs[0].Line, errs[0].Column)
}

// Check parses text and returns every syntax error in document order.
func (v *Validator) Check(ctx context.Context, text string) ([]SyntaxError, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(v.language)

	content := []byte(text)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	var errs []SyntaxError
	if !root.HasError() {
		checkIndent(root, content, &errs)
		reject(root, &errs, 0)
		sortErrors(errs)
		return errs, nil
	}

	collect(root, content, &errs, 0)
	if len(errs) == 0 {
		// HasError without a located node; report the root.
		errs = append(errs, SyntaxError{Line: 1, Column: 1, Message: "invalid syntax"})
	}
	return errs, nil
}

func collect(node *sitter.Node, content []byte, errs *[]SyntaxError, depth int) {
	if depth > 1000 || len(*errs) >= 50 {
		return
	}

	if node.IsError() || node.IsMissing() {
		point := node.StartPoint()
		*errs = append(*errs, SyntaxError{
			Line:    int(point.Row) + 1,
			Column:  int(point.Column) + 1,
			Message: describe(node, content),
		})
		if node.IsMissing() {
			return
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && (child.HasError() || child.IsMissing()) {
			collect(child, content, errs, depth+1)
		}
	}
}

func describe(node *sitter.Node, content []byte) string {
	if node.IsMissing() {
		return fmt.Sprintf("missing %s", node.Type())
	}
	start, end := node.StartByte(), node.EndByte()
	if end > uint32(len(content)) {
		end = uint32(len(content))
	}
	snippet := strings.TrimSpace(string(content[start:end]))
	if snippet == "" {
		return "invalid syntax"
	}
	if line, _, found := strings.Cut(snippet, "\n"); found {
		snippet = line
	}
	if len(snippet) > 60 {
		snippet = snippet[:60] + "..."
	}
	return fmt.Sprintf("invalid syntax near %q", snippet)
}

func formatErrors(errs []SyntaxError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SyntaxError: %s (line %d, column %d)", errs[0].Message, errs[0].Line, errs[0].Column)
	for i, e := range errs[1:] {
		if i+1 >= maxReported {
			fmt.Fprintf(&b, "\n... and %d more", len(errs)-maxReported)
			break
		}
		fmt.Fprintf(&b, "\n  line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	return b.String()
}
