package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"devagent/pkg/proto"
)

// ErrSessionNotFound is returned when a requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session status constants.
const (
	SessionStatusRunning   = "running"
	SessionStatusSucceeded = "succeeded"
	SessionStatusFailed    = "failed"
)

// Session is one persisted Request run.
type Session struct {
	SessionID        string           `json:"session_id"`
	Status           string           `json:"status"`
	TargetKind       proto.TargetKind `json:"target_kind"`
	TargetIdentifier string           `json:"target_identifier"`
	Task             string           `json:"task"`
	Model            string           `json:"model"`
	MaxAttempts      int              `json:"max_attempts"`
	AttemptsUsed     int              `json:"attempts_used"`
	ArtifactPath     string           `json:"artifact_path"`
	ErrorType        proto.ErrorType  `json:"error_type,omitempty"`
	Summary          string           `json:"summary"`
	ErrorHistory     string           `json:"error_history"`
	StartedAt        time.Time        `json:"started_at"`
	EndedAt          *time.Time       `json:"ended_at,omitempty"`
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

// CreateSession inserts a running session for req.
func (ops *DatabaseOperations) CreateSession(sessionID string, req *proto.Request, startedAt time.Time) error {
	_, err := ops.db.Exec(`
		INSERT INTO sessions (session_id, status, target_kind, target_identifier, task, model, max_attempts, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, SessionStatusRunning, string(req.TargetKind), req.TargetIdentifier,
		req.TaskDescription, req.ModelSelector.String(), req.MaxAttempts, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// CompleteSession stores the terminal result of a session.
func (ops *DatabaseOperations) CompleteSession(result *proto.SessionResult, endedAt time.Time) error {
	status := SessionStatusFailed
	if result.Success {
		status = SessionStatusSucceeded
	}
	res, err := ops.db.Exec(`
		UPDATE sessions
		SET status = ?, attempts_used = ?, artifact_path = ?, error_type = ?, summary = ?, error_history = ?, ended_at = ?
		WHERE session_id = ?
	`, status, result.AttemptsUsed, result.ArtifactPath, string(result.ErrorType),
		result.Summary(), result.ErrorHistory, formatTime(endedAt), result.SessionID)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, result.SessionID)
	}
	return nil
}

const sessionColumns = `session_id, status, target_kind, target_identifier, task, model, max_attempts,
	attempts_used, artifact_path, error_type, summary, error_history, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s         Session
		kind      string
		errorType string
		started   string
		ended     sql.NullString
	)
	if err := row.Scan(&s.SessionID, &s.Status, &kind, &s.TargetIdentifier, &s.Task, &s.Model,
		&s.MaxAttempts, &s.AttemptsUsed, &s.ArtifactPath, &errorType, &s.Summary, &s.ErrorHistory,
		&started, &ended); err != nil {
		return nil, err
	}
	s.TargetKind = proto.TargetKind(kind)
	s.ErrorType = proto.ErrorType(errorType)

	var err error
	if s.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if ended.Valid {
		t, err := parseTime(ended.String)
		if err != nil {
			return nil, err
		}
		s.EndedAt = &t
	}
	return &s, nil
}

// GetSession returns one session.
func (ops *DatabaseOperations) GetSession(sessionID string) (*Session, error) {
	row := ops.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessions returns the most recent sessions first. A limit <= 0 returns all.
func (ops *DatabaseOperations) ListSessions(limit int) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := ops.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}
