package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devagent/pkg/config"
	"devagent/pkg/proto"
)

func TestBuildRequest(t *testing.T) {
	cfg := config.Default(t.TempDir())
	taskFile := filepath.Join(t.TempDir(), "task.md")
	require.NoError(t, os.WriteFile(taskFile, []byte("  threshold the volume\n"), 0644))

	tests := []struct {
		name     string
		opts     submitOptions
		kind     proto.TargetKind
		target   string
		task     string
		attempts int
		wantErr  bool
	}{
		{
			name: "new script uses configured budget",
			opts: submitOptions{newScript: "Hello", task: "print hello", maxAttempts: -1},
			kind: proto.TargetNewScript, target: "Hello", task: "print hello", attempts: 2,
		},
		{
			name: "module from task file",
			opts: submitOptions{newModule: "Thresholder", taskFile: taskFile, maxAttempts: 4},
			kind: proto.TargetNewModule, target: "Thresholder", task: "threshold the volume", attempts: 4,
		},
		{
			name: "modify with zero budget",
			opts: submitOptions{modifyModule: "Foo", task: "add a button", maxAttempts: 0},
			kind: proto.TargetModifyModule, target: "Foo", task: "add a button", attempts: 0,
		},
		{name: "missing target", opts: submitOptions{task: "x", maxAttempts: 1}, wantErr: true},
		{name: "empty task", opts: submitOptions{newScript: "Hello", maxAttempts: 1}, wantErr: true},
		{name: "bad identifier", opts: submitOptions{newScript: "my script", task: "x", maxAttempts: 1}, wantErr: true},
		{name: "missing task file", opts: submitOptions{newScript: "Hello", taskFile: "/does/not/exist", maxAttempts: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.opts.buildRequest(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, req.TargetKind)
			assert.Equal(t, tt.target, req.TargetIdentifier)
			assert.Equal(t, tt.task, req.TaskDescription)
			assert.Equal(t, tt.attempts, req.MaxAttempts)
		})
	}
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := config.DefaultPath(dir)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("host:\n  kind: none\nlogging:\n  tee: false\n"), 0644))
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "devagent dev")
}

func TestHistoryEmpty(t *testing.T) {
	out, err := runCLI(t, "--projectdir", newProject(t), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions recorded yet.")
}

func TestSubmitRequiresTarget(t *testing.T) {
	_, err := runCLI(t, "--projectdir", newProject(t), "submit", "--task", "x")
	assert.Error(t, err)
}

func TestSubmitFailureIsRecorded(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv(passwordEnv, "")
	config.SetDecryptedSecrets(nil)
	dir := newProject(t)

	out, err := runCLI(t, "--projectdir", dir, "submit", "--new-script", "Hello", "--task", "print hello", "--quiet")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "❌ Failed to create script (GenerationUnavailable) on attempt 1.")

	out, err = runCLI(t, "--projectdir", dir, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "NewScript")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "GenerationUnavailable")
}

func TestTranscriptUnknownSession(t *testing.T) {
	_, err := runCLI(t, "--projectdir", newProject(t), "transcript", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no session "nope"`)
}

func TestStatsWithoutPrometheus(t *testing.T) {
	_, err := runCLI(t, "--projectdir", newProject(t), "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Prometheus configured")
}
