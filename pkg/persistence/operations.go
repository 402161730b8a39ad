package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"devagent/pkg/proto"
)

// DatabaseOperations provides methods for database operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// InsertAttempt stores a sealed attempt. Its transcript lines are stored
// separately through AppendTranscriptLine.
func (ops *DatabaseOperations) InsertAttempt(sessionID string, attempt *proto.Attempt) error {
	validation, err := json.Marshal(attempt.ValidationOutcome)
	if err != nil {
		return fmt.Errorf("failed to marshal validation outcome: %w", err)
	}
	execution, err := json.Marshal(attempt.ExecutionOutcome)
	if err != nil {
		return fmt.Errorf("failed to marshal execution outcome: %w", err)
	}

	var generated sql.NullString
	if attempt.GeneratedText != nil {
		generated = sql.NullString{String: *attempt.GeneratedText, Valid: true}
	}

	_, err = ops.db.Exec(`
		INSERT INTO attempts (session_id, attempt_index, generated_text, validation_status, validation_json,
			execution_status, execution_json, started_at, sealed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, attempt.Index, generated,
		string(attempt.ValidationOutcome.Status), string(validation),
		string(attempt.ExecutionOutcome.Status), string(execution),
		formatTime(attempt.StartedAt), formatTime(attempt.SealedAt))
	if err != nil {
		return fmt.Errorf("failed to insert attempt %d: %w", attempt.Index, err)
	}
	return nil
}

// AppendTranscriptLine stores one transcript line.
func (ops *DatabaseOperations) AppendTranscriptLine(sessionID string, line *proto.TranscriptLine) error {
	_, err := ops.db.Exec(`
		INSERT INTO transcript (session_id, attempt_index, logged_at, is_error, text)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, line.Attempt, formatTime(line.Time), line.IsError, line.Text)
	if err != nil {
		return fmt.Errorf("failed to append transcript line: %w", err)
	}
	return nil
}

// GetAttempts returns the attempts of a session in index order, each with the
// transcript lines recorded while it was live.
func (ops *DatabaseOperations) GetAttempts(sessionID string) ([]proto.Attempt, error) {
	rows, err := ops.db.Query(`
		SELECT attempt_index, generated_text, validation_json, execution_json, started_at, sealed_at
		FROM attempts WHERE session_id = ? ORDER BY attempt_index
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []proto.Attempt
	for rows.Next() {
		var (
			a          proto.Attempt
			generated  sql.NullString
			validation string
			execution  string
			started    string
			sealed     string
		)
		if err := rows.Scan(&a.Index, &generated, &validation, &execution, &started, &sealed); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		if generated.Valid {
			text := generated.String
			a.GeneratedText = &text
		}
		if err := json.Unmarshal([]byte(validation), &a.ValidationOutcome); err != nil {
			return nil, fmt.Errorf("failed to parse validation outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(execution), &a.ExecutionOutcome); err != nil {
			return nil, fmt.Errorf("failed to parse execution outcome: %w", err)
		}
		if a.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if a.SealedAt, err = parseTime(sealed); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attempts: %w", err)
	}

	lines, err := ops.GetTranscript(sessionID)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		for _, line := range lines {
			if line.Attempt == attempts[i].Index {
				attempts[i].DiagnosticTranscript = append(attempts[i].DiagnosticTranscript, line)
			}
		}
	}
	return attempts, nil
}

// GetTranscript returns every line of a session in recording order.
func (ops *DatabaseOperations) GetTranscript(sessionID string) ([]proto.TranscriptLine, error) {
	rows, err := ops.db.Query(`
		SELECT attempt_index, logged_at, is_error, text
		FROM transcript WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []proto.TranscriptLine
	for rows.Next() {
		var (
			line   proto.TranscriptLine
			logged string
		)
		if err := rows.Scan(&line.Attempt, &logged, &line.IsError, &line.Text); err != nil {
			return nil, fmt.Errorf("failed to scan transcript line: %w", err)
		}
		if line.Time, err = parseTime(logged); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcript: %w", err)
	}
	return lines, nil
}

// Sink adapts DatabaseOperations to the session log's durable sink.
type Sink struct {
	ops *DatabaseOperations
}

// NewSink returns a sink writing through ops.
func NewSink(ops *DatabaseOperations) *Sink {
	return &Sink{ops: ops}
}

// WriteLine implements sessionlog.Sink.
func (s *Sink) WriteLine(sessionID string, line proto.TranscriptLine) error {
	return s.ops.AppendTranscriptLine(sessionID, &line)
}

// WriteAttempt implements sessionlog.Sink.
func (s *Sink) WriteAttempt(sessionID string, attempt proto.Attempt) error {
	return s.ops.InsertAttempt(sessionID, &attempt)
}
