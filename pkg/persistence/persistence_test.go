package persistence

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devagent/pkg/proto"
)

func setupTestDB(t *testing.T) *DatabaseOperations {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDatabaseOperations(db)
}

func testRequest() *proto.Request {
	return &proto.Request{
		TargetKind:       proto.TargetNewScript,
		TaskDescription:  "print hello",
		TargetIdentifier: "Hello",
		MaxAttempts:      2,
		ModelSelector:    proto.ModelSelector{Provider: "github", Model: "gpt-4o"},
	}
}

func TestOpenCreatesCurrentSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Reopening is a no-op.
	require.NoError(t, db.Close())
	db, err = Open(path)
	require.NoError(t, err)
	version, err = GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestMigrationFromVersion1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")
	raw, err := sql.Open("sqlite", dsn(path))
	require.NoError(t, err)
	for _, stmt := range schemaV1 {
		_, err := raw.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, setSchemaVersion(raw, 1))
	require.NoError(t, raw.Close())

	db, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	ops := NewDatabaseOperations(db)
	require.NoError(t, ops.CreateSession("s1", testRequest(), time.Now()))
	s, err := ops.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "github/gpt-4o", s.Model)
}

func TestSessionLifecycle(t *testing.T) {
	ops := setupTestDB(t)
	start := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)

	require.NoError(t, ops.CreateSession("s1", testRequest(), start))

	s, err := ops.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusRunning, s.Status)
	assert.Equal(t, proto.TargetNewScript, s.TargetKind)
	assert.Equal(t, "Hello", s.TargetIdentifier)
	assert.Equal(t, 2, s.MaxAttempts)
	assert.Equal(t, -1, s.AttemptsUsed)
	assert.True(t, start.Equal(s.StartedAt))
	assert.Nil(t, s.EndedAt)

	result := &proto.SessionResult{
		SessionID:    "s1",
		Success:      false,
		Error:        "Failed to create script after 2 debug attempts.",
		ErrorType:    proto.ErrExecutionFailure,
		AttemptsUsed: 2,
		ArtifactPath: "/out/Scripts/Hello.py",
		ErrorHistory: "history",
	}
	require.NoError(t, ops.CompleteSession(result, start.Add(time.Minute)))

	s, err = ops.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, SessionStatusFailed, s.Status)
	assert.Equal(t, 2, s.AttemptsUsed)
	assert.Equal(t, proto.ErrExecutionFailure, s.ErrorType)
	assert.Equal(t, result.Error, s.Summary)
	assert.Equal(t, "history", s.ErrorHistory)
	require.NotNil(t, s.EndedAt)
	assert.True(t, start.Add(time.Minute).Equal(*s.EndedAt))
}

func TestSessionNotFound(t *testing.T) {
	ops := setupTestDB(t)

	_, err := ops.GetSession("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = ops.CompleteSession(&proto.SessionResult{SessionID: "missing"}, time.Now())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsNewestFirst(t *testing.T) {
	ops := setupTestDB(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, ops.CreateSession(id, testRequest(), base.Add(time.Duration(i)*time.Hour)))
	}

	all, err := ops.ListSessions(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].SessionID)
	assert.Equal(t, "a", all[2].SessionID)

	limited, err := ops.ListSessions(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSinkStoresAttemptsAndTranscript(t *testing.T) {
	ops := setupTestDB(t)
	require.NoError(t, ops.CreateSession("s1", testRequest(), time.Now()))
	sink := NewSink(ops)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, sink.WriteLine("s1", proto.TranscriptLine{Time: now, Attempt: proto.NoAttempt, Text: "starting"}))
	require.NoError(t, sink.WriteLine("s1", proto.TranscriptLine{Time: now, Attempt: 0, IsError: true, Text: "syntax error"}))
	require.NoError(t, sink.WriteLine("s1", proto.TranscriptLine{Time: now, Attempt: 1, Text: "ok"}))

	first := proto.NewAttempt(0, now)
	bad := "def broken("
	first.GeneratedText = &bad
	first.ValidationOutcome = proto.SyntaxFailure("SyntaxError: missing ')'", 1, 12)
	first.SealedAt = now.Add(time.Second)
	require.NoError(t, sink.WriteAttempt("s1", *first))

	second := proto.NewAttempt(1, now)
	good := "print('hello')"
	second.GeneratedText = &good
	second.ValidationOutcome = proto.ValidationPass()
	second.ExecutionOutcome = proto.ExecutionPass()
	second.SealedAt = now.Add(2 * time.Second)
	require.NoError(t, sink.WriteAttempt("s1", *second))

	empty := proto.NewAttempt(2, now)
	empty.SealedAt = now
	require.NoError(t, sink.WriteAttempt("s1", *empty))

	attempts, err := ops.GetAttempts("s1")
	require.NoError(t, err)
	require.Len(t, attempts, 3)

	assert.Equal(t, bad, *attempts[0].GeneratedText)
	assert.Equal(t, 12, attempts[0].ValidationOutcome.Column)
	assert.Equal(t, proto.StatusNotRun, attempts[0].ExecutionOutcome.Status)
	require.Len(t, attempts[0].DiagnosticTranscript, 1)
	assert.True(t, attempts[0].DiagnosticTranscript[0].IsError)

	assert.True(t, attempts[1].Succeeded())
	assert.Nil(t, attempts[2].GeneratedText)

	lines, err := ops.GetTranscript("s1")
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "starting", lines[0].Text)
	assert.Equal(t, proto.NoAttempt, lines[0].Attempt)
	assert.True(t, now.Equal(lines[0].Time))
}

func TestDuplicateAttemptRejected(t *testing.T) {
	ops := setupTestDB(t)
	require.NoError(t, ops.CreateSession("s1", testRequest(), time.Now()))
	a := proto.NewAttempt(0, time.Now())
	require.NoError(t, ops.InsertAttempt("s1", a))
	assert.Error(t, ops.InsertAttempt("s1", a))
}

func TestForeignKeyEnforced(t *testing.T) {
	ops := setupTestDB(t)
	line := proto.TranscriptLine{Time: time.Now(), Text: "orphan"}
	assert.Error(t, ops.AppendTranscriptLine("no-such-session", &line))
}
