// Package proto defines the data model shared by the generation loop: requests,
// attempts, stage outcomes, and the terminal session result.
package proto

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// TargetKind selects what a Request produces.
type TargetKind string

const (
	TargetNewModule    TargetKind = "NewModule"
	TargetModifyModule TargetKind = "ModifyModule"
	TargetNewScript    TargetKind = "NewScript"
)

// DefaultMaxAttempts is the number of debug iterations after the initial attempt.
const DefaultMaxAttempts = 2

// IsModule reports whether the target is loaded through the host module registry.
func (k TargetKind) IsModule() bool {
	return k == TargetNewModule || k == TargetModifyModule
}

// Noun returns the artifact noun used in prompts and messages.
func (k TargetKind) Noun() string {
	if k == TargetNewScript {
		return "script"
	}
	return "module"
}

// ParseTargetKind accepts the canonical names plus the CLI spellings.
func ParseTargetKind(s string) (TargetKind, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "")) {
	case "newmodule":
		return TargetNewModule, nil
	case "modifymodule":
		return TargetModifyModule, nil
	case "newscript":
		return TargetNewScript, nil
	}
	return "", fmt.Errorf("unknown target kind %q", s)
}

// ModelSelector names the backend provider and model for generation.
type ModelSelector struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

func (m ModelSelector) String() string {
	if m.Provider == "" {
		return m.Model
	}
	return m.Provider + "/" + m.Model
}

// Request is an immutable description of one synthesis job.
type Request struct {
	TargetKind       TargetKind    `json:"target_kind"`
	TaskDescription  string        `json:"task_description"`
	TargetIdentifier string        `json:"target_identifier"`
	OutputLocation   string        `json:"output_location"`
	MaxAttempts      int           `json:"max_attempts"`
	ModelSelector    ModelSelector `json:"model_selector"`
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validation errors returned by Request.Validate.
var (
	ErrEmptyTask         = errors.New("task description is required")
	ErrInvalidIdentifier = errors.New("target identifier must be a valid identifier")
	ErrNegativeAttempts  = errors.New("max attempts must be >= 0")
)

// Validate checks the request before the loop starts.
func (r *Request) Validate() error {
	switch r.TargetKind {
	case TargetNewModule, TargetModifyModule, TargetNewScript:
	default:
		return fmt.Errorf("unknown target kind %q", r.TargetKind)
	}
	if strings.TrimSpace(r.TaskDescription) == "" {
		return ErrEmptyTask
	}
	if !identifierPattern.MatchString(r.TargetIdentifier) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, r.TargetIdentifier)
	}
	if r.MaxAttempts < 0 {
		return ErrNegativeAttempts
	}
	return nil
}

// TotalTries is the number of generation calls the budget allows.
func (r *Request) TotalTries() int {
	return r.MaxAttempts + 1
}
