package artifact

import (
	"fmt"
	"path/filepath"
	"strings"

	"devagent/pkg/proto"
)

// Artifact directories under the output root.
const (
	ModulesDir = "Modules"
	ScriptsDir = "Scripts"
	Extension  = ".py"
)

// Layout derives artifact paths from a request.
type Layout struct {
	Root string
}

// ModulePath returns <root>/Modules/<name>/<name>.py.
func (l Layout) ModulePath(name string) string {
	return filepath.Join(l.Root, ModulesDir, name, name+Extension)
}

// ScriptPath returns <root>/Scripts/<name>.py.
func (l Layout) ScriptPath(name string) string {
	return filepath.Join(l.Root, ScriptsDir, name+Extension)
}

// Resolve returns the artifact path for req. A request OutputLocation
// overrides the layout root.
func (l Layout) Resolve(req *proto.Request) (string, error) {
	layout := l
	if req.OutputLocation != "" {
		layout.Root = req.OutputLocation
	}
	if layout.Root == "" {
		return "", fmt.Errorf("no output location for %s", req.TargetIdentifier)
	}

	switch req.TargetKind {
	case proto.TargetNewModule, proto.TargetModifyModule:
		return layout.ModulePath(req.TargetIdentifier), nil
	case proto.TargetNewScript:
		return layout.ScriptPath(req.TargetIdentifier), nil
	default:
		return "", fmt.Errorf("unknown target kind %q", req.TargetKind)
	}
}

// Tree renders the created artifact as a small directory tree rooted at the
// output root, e.g.
//
//	📁 out/
//	└── 📁 Modules/
//	    └── 📁 Foo/
//	        └── 📄 Foo.py
func Tree(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "📄 " + path
	}

	var b strings.Builder
	b.WriteString("📁 " + filepath.Base(root) + "/")
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, part := range parts {
		b.WriteString("\n")
		b.WriteString(strings.Repeat("    ", i))
		if i == len(parts)-1 {
			b.WriteString("└── 📄 " + part)
		} else {
			b.WriteString("└── 📁 " + part + "/")
		}
	}
	return b.String()
}
