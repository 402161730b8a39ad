package kernel

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devagent/internal/mocks"
	"devagent/pkg/config"
	"devagent/pkg/generation"
	"devagent/pkg/host"
	"devagent/pkg/persistence"
	"devagent/pkg/proto"
	"devagent/pkg/validate"
)

const helloScript = "import slicer\n\nprint(\"hello from a generated script\")\n"

func newTestKernel(t *testing.T, opts Options) (*Kernel, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default(dir)
	cfg.Host.Kind = config.HostNone

	k, err := NewKernel(context.Background(), cfg, dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Stop() })
	return k, dir
}

func scriptRequest() *proto.Request {
	return &proto.Request{
		TargetKind:       proto.TargetNewScript,
		TaskDescription:  "print hello",
		TargetIdentifier: "Hello",
		MaxAttempts:      1,
	}
}

func TestNewKernel(t *testing.T) {
	k, dir := newTestKernel(t, Options{})

	assert.NotNil(t, k.Database)
	assert.NotNil(t, k.Operations)
	assert.NotNil(t, k.Recorder)
	assert.NotNil(t, k.LLMFactory)
	assert.NotNil(t, k.Orchestrator)
	assert.NotNil(t, k.Host)
	assert.Equal(t, dir, k.ProjectDir())
	assert.FileExists(t, filepath.Join(dir, config.ProjectDirName, "devagent.db"))
}

func TestSubmitPersistsSession(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith("```python\n" + helloScript + "```")
	k, dir := newTestKernel(t, Options{Clients: generation.StaticClient(client)})

	var lines int
	result := k.Submit(context.Background(), scriptRequest(), func(proto.TranscriptLine) { lines++ })

	require.True(t, result.Success, result.Error)
	assert.Equal(t, filepath.Join(dir, "devagent-output", "Scripts", "Hello.py"), result.ArtifactPath)
	assert.Positive(t, lines)

	session, err := k.Operations.GetSession(result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, persistence.SessionStatusSucceeded, session.Status)
	assert.Equal(t, 0, session.AttemptsUsed)

	attempts, err := k.Operations.GetAttempts(result.SessionID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Succeeded())

	transcript, err := k.Operations.GetTranscript(result.SessionID)
	require.NoError(t, err)
	assert.Len(t, transcript, len(result.Transcript))
}

func TestSubmitWithoutCredentialIsUnavailable(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	config.SetDecryptedSecrets(nil)
	k, _ := newTestKernel(t, Options{})

	result := k.Submit(context.Background(), scriptRequest())

	assert.False(t, result.Success)
	assert.Equal(t, proto.ErrGenerationUnavailable, result.ErrorType)
	assert.Contains(t, result.Error, "GITHUB_TOKEN")
}

func TestMetricsServer(t *testing.T) {
	client := mocks.NewMockLLMClient()
	client.RespondWith("```python\n" + helloScript + "```")
	k, _ := newTestKernel(t, Options{Clients: generation.StaticClient(client), MetricsAddr: "127.0.0.1:0"})
	require.NoError(t, k.Start())
	require.NotEmpty(t, k.MetricsAddr())

	k.Submit(context.Background(), scriptRequest())

	resp, err := http.Get("http://" + k.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `devagent_sessions_total{error_type="",status="success",target_kind="NewScript"} 1`)
	assert.Contains(t, string(body), "devagent_attempts_total")

	resp, err = http.Get("http://" + k.MetricsAddr() + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))
}

func TestStartTwice(t *testing.T) {
	k, _ := newTestKernel(t, Options{})
	require.NoError(t, k.Start())
	assert.Error(t, k.Start())
}

type compilingSession struct {
	*host.NullSession
}

func (compilingSession) Compile(context.Context, string, string) (*host.CompileError, error) {
	return &host.CompileError{Type: "SyntaxError", Message: "'return' outside function", Line: 1, Column: 1}, nil
}

func TestNewValidatorFollowsHost(t *testing.T) {
	tests := []struct {
		name     string
		session  host.Session
		wantType any
	}{
		{"host without interpreter", host.NewNullSession(), &validate.Validator{}},
		{"host with interpreter", compilingSession{host.NewNullSession()}, &validate.CompileValidator{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.IsType(t, tt.wantType, newValidator(tt.session))
		})
	}

	out := newValidator(compilingSession{host.NewNullSession()}).Validate(context.Background(), "return 5\n")
	require.False(t, out.Passed())
	assert.Contains(t, out.Message, "'return' outside function")
}
