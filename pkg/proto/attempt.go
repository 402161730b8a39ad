package proto

import (
	"fmt"
	"time"
)

// OutcomeStatus is the verdict of a single stage.
type OutcomeStatus string

const (
	StatusNotRun  OutcomeStatus = "not_run"
	StatusPass    OutcomeStatus = "pass"
	StatusFailure OutcomeStatus = "failure"
)

// ValidationOutcome is Pass or SyntaxFailure(message, line, column).
type ValidationOutcome struct {
	Status  OutcomeStatus `json:"status"`
	Message string        `json:"message,omitempty"`
	Line    int           `json:"line,omitempty"`
	Column  int           `json:"column,omitempty"`
}

// ValidationPass returns a passing validation outcome.
func ValidationPass() ValidationOutcome {
	return ValidationOutcome{Status: StatusPass}
}

// SyntaxFailure returns a failing validation outcome at a 1-based position.
func SyntaxFailure(message string, line, column int) ValidationOutcome {
	return ValidationOutcome{Status: StatusFailure, Message: message, Line: line, Column: column}
}

func (v ValidationOutcome) Passed() bool { return v.Status == StatusPass }

func (v ValidationOutcome) String() string {
	switch v.Status {
	case StatusPass:
		return "Pass"
	case StatusFailure:
		return fmt.Sprintf("SyntaxFailure(line %d, column %d: %s)", v.Line, v.Column, v.Message)
	default:
		return "NotRun"
	}
}

// ExecutionOutcome is Pass or Failure(detail) with the captured trace.
type ExecutionOutcome struct {
	Status OutcomeStatus `json:"status"`
	Detail string        `json:"detail,omitempty"`
	Trace  string        `json:"trace,omitempty"`
}

// ExecutionPass returns a passing execution outcome.
func ExecutionPass() ExecutionOutcome {
	return ExecutionOutcome{Status: StatusPass}
}

// ExecutionFailure returns a failing execution outcome.
func ExecutionFailure(detail, trace string) ExecutionOutcome {
	return ExecutionOutcome{Status: StatusFailure, Detail: detail, Trace: trace}
}

func (e ExecutionOutcome) Passed() bool { return e.Status == StatusPass }

func (e ExecutionOutcome) String() string {
	switch e.Status {
	case StatusPass:
		return "Pass"
	case StatusFailure:
		return "Failure(" + e.Detail + ")"
	default:
		return "NotRun"
	}
}

// NoAttempt marks transcript lines written outside any attempt.
const NoAttempt = -1

// TranscriptLine is one timestamped diagnostic line.
type TranscriptLine struct {
	Time    time.Time `json:"time"`
	Attempt int       `json:"attempt"`
	IsError bool      `json:"is_error"`
	Text    string    `json:"text"`
}

// String renders the line as shown to observers: "[HH:MM:SS] text".
func (l TranscriptLine) String() string {
	if l.IsError {
		return fmt.Sprintf("[%s] ❌ %s", l.Time.Format("15:04:05"), l.Text)
	}
	return fmt.Sprintf("[%s] %s", l.Time.Format("15:04:05"), l.Text)
}

// Attempt is one generate-validate-execute cycle. GeneratedText is nil when
// generation produced nothing usable.
type Attempt struct {
	Index                int               `json:"index"`
	GeneratedText        *string           `json:"generated_text,omitempty"`
	ValidationOutcome    ValidationOutcome `json:"validation_outcome"`
	ExecutionOutcome     ExecutionOutcome  `json:"execution_outcome"`
	DiagnosticTranscript []TranscriptLine  `json:"diagnostic_transcript"`
	StartedAt            time.Time         `json:"started_at"`
	SealedAt             time.Time         `json:"sealed_at"`
}

// NewAttempt creates the live record for attempt index.
func NewAttempt(index int, now time.Time) *Attempt {
	return &Attempt{
		Index:             index,
		ValidationOutcome: ValidationOutcome{Status: StatusNotRun},
		ExecutionOutcome:  ExecutionOutcome{Status: StatusNotRun},
		StartedAt:         now,
	}
}

// Clone returns a deep copy so sealed attempts cannot be mutated through aliases.
func (a *Attempt) Clone() Attempt {
	c := *a
	if a.GeneratedText != nil {
		text := *a.GeneratedText
		c.GeneratedText = &text
	}
	c.DiagnosticTranscript = append([]TranscriptLine(nil), a.DiagnosticTranscript...)
	return c
}

// Succeeded reports whether both gates passed.
func (a *Attempt) Succeeded() bool {
	return a.GeneratedText != nil && a.ValidationOutcome.Passed() && a.ExecutionOutcome.Passed()
}
