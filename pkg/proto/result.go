package proto

// GenerationKind discriminates GenerationResult.
type GenerationKind string

const (
	GenerationCode               GenerationKind = "code"
	GenerationBackendUnavailable GenerationKind = "backend_unavailable"
	GenerationRateLimited        GenerationKind = "rate_limited"
	GenerationAuthFailure        GenerationKind = "auth_failure"
	GenerationOtherFailure       GenerationKind = "other_failure"
)

// GenerationResult is the normalized outcome of one adapter call.
type GenerationResult struct {
	Kind GenerationKind `json:"kind"`
	// Text is the code to persist. When FellBack is set it equals the code context
	// passed in, because the model output was empty or implausibly short.
	Text     string `json:"text,omitempty"`
	FellBack bool   `json:"fell_back,omitempty"`
	// RawText is the cleaned model output before any fallback.
	RawText string `json:"raw_text,omitempty"`
	Detail  string `json:"detail,omitempty"`
	// WaitTime is the human-readable wait parsed from a rate-limit message.
	WaitTime string `json:"wait_time,omitempty"`
}

// Code builds a successful result.
func Code(text string) GenerationResult {
	return GenerationResult{Kind: GenerationCode, Text: text, RawText: text}
}

// GenerationFailed builds a failed result of the given kind.
func GenerationFailed(kind GenerationKind, detail string) GenerationResult {
	return GenerationResult{Kind: kind, Detail: detail}
}

// IsFatal reports whether regeneration cannot repair this outcome.
func (g GenerationResult) IsFatal() bool {
	switch g.Kind {
	case GenerationBackendUnavailable, GenerationRateLimited, GenerationAuthFailure:
		return true
	default:
		return false
	}
}

// ErrorType names a failure class in the loop's taxonomy.
type ErrorType string

const (
	ErrGenerationUnavailable    ErrorType = "GenerationUnavailable"
	ErrGenerationAuthFailure    ErrorType = "GenerationAuthFailure"
	ErrGenerationRateLimited    ErrorType = "GenerationRateLimited"
	ErrGenerationEmptyOrInvalid ErrorType = "GenerationEmptyOrInvalid"
	ErrGenerationFailure        ErrorType = "GenerationFailure"
	ErrArtifactIOFailure        ErrorType = "ArtifactIOFailure"
	ErrSyntaxFailure            ErrorType = "SyntaxFailure"
	ErrExecutionFailure         ErrorType = "ExecutionFailure"
	ErrAttemptBudgetExhausted   ErrorType = "AttemptBudgetExhausted"
	ErrInternal                 ErrorType = "InternalError"
)

// ErrorTypeForGeneration maps a failed generation kind to the loop taxonomy.
func ErrorTypeForGeneration(kind GenerationKind) ErrorType {
	switch kind {
	case GenerationBackendUnavailable:
		return ErrGenerationUnavailable
	case GenerationRateLimited:
		return ErrGenerationRateLimited
	case GenerationAuthFailure:
		return ErrGenerationAuthFailure
	default:
		return ErrGenerationFailure
	}
}

// SessionResult is the terminal outcome returned to the caller.
type SessionResult struct {
	SessionID    string           `json:"session_id"`
	Success      bool             `json:"success"`
	Message      string           `json:"message,omitempty"`
	Error        string           `json:"error,omitempty"`
	ErrorType    ErrorType        `json:"error_type,omitempty"`
	AttemptsUsed int              `json:"attempts_used"`
	ArtifactPath string           `json:"artifact_path,omitempty"`
	ErrorHistory string           `json:"error_history"`
	Attempts     []Attempt        `json:"attempts"`
	Transcript   []TranscriptLine `json:"transcript"`
}

// Summary returns Message on success and Error otherwise.
func (r *SessionResult) Summary() string {
	if r.Success {
		return r.Message
	}
	return r.Error
}
