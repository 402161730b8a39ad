// Package templates renders the prompts sent to the generation backend and the
// starter code handed to it as initial context.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"devagent/pkg/proto"
)

//go:embed prompts/*.tpl.md code/*.py.tpl
var templateFS embed.FS

// PromptTemplate names an embedded template file.
type PromptTemplate string

const (
	// SystemBaseTemplate is shared by every system prompt.
	SystemBaseTemplate PromptTemplate = "prompts/system_base.tpl.md"
	// ModuleRequirementsTemplate is appended to the system prompt for module targets.
	ModuleRequirementsTemplate PromptTemplate = "prompts/module_requirements.tpl.md"
	// ScriptRequirementsTemplate is appended to the system prompt for script targets.
	ScriptRequirementsTemplate PromptTemplate = "prompts/script_requirements.tpl.md"
	// TaskTemplate renders the create or debug instruction.
	TaskTemplate PromptTemplate = "prompts/task.tpl.md"
	// UserPromptTemplate frames task, error history and code context.
	UserPromptTemplate PromptTemplate = "prompts/user_prompt.tpl.md"
	// ErrorBlockTemplate formats one failed attempt for the error history.
	ErrorBlockTemplate PromptTemplate = "prompts/error_block.tpl.md"
	// ModuleBoilerplateTemplate is the starting code for a new module.
	ModuleBoilerplateTemplate PromptTemplate = "code/module_boilerplate.py.tpl"
	// ScriptTemplate is the starting code for a new script.
	ScriptTemplate PromptTemplate = "code/script_template.py.tpl"
)

// TemplateData holds the values available to prompt templates.
type TemplateData struct {
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	TaskContent  string `json:"task_content"`
	Task         string `json:"task,omitempty"`
	ErrorHistory string `json:"error_history,omitempty"`
	CodeContext  string `json:"code_context,omitempty"`
	Debugging    bool   `json:"debugging,omitempty"`
	Attempt      int    `json:"attempt,omitempty"`
	MaxAttempts  int    `json:"max_attempts,omitempty"`
}

// ErrorBlockData holds the values for ErrorBlockTemplate.
type ErrorBlockData struct {
	Attempt     int
	ErrorType   string
	Message     string
	CodePreview string
	Trace       string
}

// Renderer holds the parsed embedded templates.
type Renderer struct {
	templates map[PromptTemplate]*template.Template
}

// NewRenderer parses every embedded template.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[PromptTemplate]*template.Template)}

	names := []PromptTemplate{
		SystemBaseTemplate,
		ModuleRequirementsTemplate,
		ScriptRequirementsTemplate,
		TaskTemplate,
		UserPromptTemplate,
		ErrorBlockTemplate,
		ModuleBoilerplateTemplate,
		ScriptTemplate,
	}
	for _, name := range names {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tmpl, err := template.New(string(name)).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// MustNewRenderer is NewRenderer for package-level initialization; the
// templates are embedded, so a failure is a build defect.
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render executes the named template with data.
func (r *Renderer) Render(name PromptTemplate, data any) (string, error) {
	tmpl, exists := r.templates[name]
	if !exists {
		return "", fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// SystemPrompt returns the base prompt plus the requirements for kind.
func (r *Renderer) SystemPrompt(kind proto.TargetKind, name string) (string, error) {
	base, err := r.Render(SystemBaseTemplate, nil)
	if err != nil {
		return "", err
	}
	requirements := ModuleRequirementsTemplate
	if kind == proto.TargetNewScript {
		requirements = ScriptRequirementsTemplate
	}
	extra, err := r.Render(requirements, &TemplateData{Kind: string(kind), Name: name})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(base, "\n") + "\n" + extra, nil
}

// TaskPrompt renders the create instruction when data.Debugging is false and
// the debug instruction, including the error history, otherwise.
func (r *Renderer) TaskPrompt(data *TemplateData) (string, error) {
	out, err := r.Render(TaskTemplate, data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// UserPrompt renders the full user message. data.Task must already hold the
// rendered task instruction.
func (r *Renderer) UserPrompt(data *TemplateData) (string, error) {
	return r.Render(UserPromptTemplate, data)
}

// ErrorBlock formats one failed attempt for the error history.
func (r *Renderer) ErrorBlock(data *ErrorBlockData) (string, error) {
	return r.Render(ErrorBlockTemplate, data)
}

// ModuleBoilerplate returns the starter module code for name.
func (r *Renderer) ModuleBoilerplate(name string) (string, error) {
	return r.Render(ModuleBoilerplateTemplate, &TemplateData{Name: name})
}

// ScriptStarter returns the starter script code for name.
func (r *Renderer) ScriptStarter(name string) (string, error) {
	return r.Render(ScriptTemplate, &TemplateData{Name: name})
}

// InitialContext returns the starter code for a new artifact of kind.
// ModifyModule has no starter; callers use the existing artifact instead.
func (r *Renderer) InitialContext(kind proto.TargetKind, name string) (string, error) {
	switch kind {
	case proto.TargetNewModule:
		return r.ModuleBoilerplate(name)
	case proto.TargetNewScript:
		return r.ScriptStarter(name)
	default:
		return "", fmt.Errorf("no starter template for %s", kind)
	}
}

// GetAvailableTemplates returns the names of all loaded templates.
func (r *Renderer) GetAvailableTemplates() []PromptTemplate {
	names := make([]PromptTemplate, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
