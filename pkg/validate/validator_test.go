package validate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePass(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name string
		code string
	}{
		{"print", `print("hello")`},
		{"empty", ""},
		{"module", `import slicer
from slicer.ScriptedLoadableModule import *


class Foo(ScriptedLoadableModule):
    def __init__(self, parent):
        ScriptedLoadableModule.__init__(self, parent)
        self.parent.title = "Foo"


class FooWidget(ScriptedLoadableModuleWidget):
    def setup(self):
        ScriptedLoadableModuleWidget.setup(self)
        self.logic = FooLogic()
`},
		{"return in function", "def f(x):\n    if x:\n        return 1\n    return 2\n"},
		{"generator", "def gen():\n    for i in range(3):\n        yield i\n"},
		{"loop control", "for i in range(3):\n    if i:\n        break\n    continue\n"},
		{"nested method", "def outer():\n    class Inner:\n        def m(self):\n            return 1\n    return Inner\n"},
		{"spaced print call", `print ("a", "b")`},
		{"one line body", "if True: x = 1; y = 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := v.Validate(context.Background(), tt.code)
			assert.True(t, out.Passed(), out.String())
		})
	}
}

func TestValidateSyntaxFailure(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name     string
		code     string
		wantLine int
	}{
		{"unclosed paren", "x = 1\ny = (2, 3\n", 2},
		{"bad def", "import os\n\ndef broken(:\n    pass\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := v.Validate(context.Background(), tt.code)
			require.False(t, out.Passed())
			assert.GreaterOrEqual(t, out.Line, tt.wantLine)
			assert.Positive(t, out.Column)
			assert.Contains(t, out.Message, "SyntaxError")
		})
	}
}

func TestValidateRejectsCodeTheCompilerRefuses(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name       string
		code       string
		wantLine   int
		wantReason string
	}{
		{"python 2 print", `print "hello"`, 1, "Missing parentheses in call to 'print'"},
		{"python 2 exec", `exec "x=1"`, 1, "Missing parentheses in call to 'exec'"},
		{"module level return", "x = 1\nreturn 5\n", 2, "'return' outside function"},
		{"return in class body", "class A:\n    return 1\n", 2, "'return' outside function"},
		{"module level yield", "yield 1\n", 1, "'yield' outside function"},
		{"break outside loop", "if True:\n    break\n", 2, "'break' outside loop"},
		{"inconsistent dedent", "def f():\n    x = 1\n  y = 2\n", 3, "indent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := v.Validate(context.Background(), tt.code)
			require.False(t, out.Passed(), "expected %q to be rejected", tt.code)
			assert.Equal(t, tt.wantLine, out.Line)
			assert.Positive(t, out.Column)
			assert.Contains(t, out.Message, tt.wantReason)
		})
	}
}

func TestCheckReportsAllErrors(t *testing.T) {
	errs, err := NewValidator().Check(context.Background(), "def a(:\n    pass\n\ndef b(:\n    pass\n")
	require.NoError(t, err)
	assert.NotEmpty(t, errs)
}

func TestFormatErrorsTruncates(t *testing.T) {
	errs := make([]SyntaxError, 8)
	for i := range errs {
		errs[i] = SyntaxError{Line: i + 1, Column: 1, Message: "invalid syntax"}
	}
	msg := formatErrors(errs)
	assert.Contains(t, msg, "line 1, column 1")
	assert.Contains(t, msg, "... and 3 more")
}
