package probe

import (
	"devagent/pkg/classify"
)

// ScriptSignatures are the error markers searched for, case-insensitively, in
// a script's captured output. Some host execution paths print a failure
// instead of raising it. The first matching rule is reported.
//
//nolint:gochecknoglobals // shared, extendable rule list
var ScriptSignatures = classify.New(
	classify.Rule[string]{Pattern: "traceback", Kind: "Traceback", Description: "traceback printed"},
	classify.Rule[string]{Pattern: "no attribute", Kind: "AttributeError", Description: "missing attribute"},
	classify.Rule[string]{Pattern: "attributeerror", Kind: "AttributeError", Description: "attribute error"},
	classify.Rule[string]{Pattern: "nameerror", Kind: "NameError", Description: "undefined name"},
	classify.Rule[string]{Pattern: "typeerror", Kind: "TypeError", Description: "type error"},
	classify.Rule[string]{Pattern: "valueerror", Kind: "ValueError", Description: "value error"},
	classify.Rule[string]{Pattern: "importerror", Kind: "ImportError", Description: "import failed"},
	classify.Rule[string]{Pattern: "modulenotfounderror", Kind: "ModuleNotFoundError", Description: "module not found"},
	classify.Rule[string]{Pattern: "indexerror", Kind: "IndexError", Description: "index out of range"},
	classify.Rule[string]{Pattern: "keyerror", Kind: "KeyError", Description: "missing key"},
	classify.Rule[string]{Pattern: "runtimeerror", Kind: "RuntimeError", Description: "runtime error"},
	classify.Rule[string]{Pattern: "syntaxerror", Kind: "SyntaxError", Description: "syntax error"},
	classify.Rule[string]{Pattern: "exception:", Kind: "Exception", Description: "exception reported"},
)
