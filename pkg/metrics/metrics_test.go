package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devagent/pkg/proto"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveSession(proto.TargetNewScript, true, "")
	rec.ObserveSession(proto.TargetNewModule, false, proto.ErrSyntaxFailure)
	rec.ObserveAttempt(proto.TargetNewModule, StageValidate, "failure")
	rec.ObserveAttempt(proto.TargetNewModule, StageValidate, "failure")
	rec.ObserveLLMRequest("gpt-4o", 120, 40, true, "", 1500*time.Millisecond)
	rec.ObserveLLMRequest("gpt-4o", 0, 0, false, "rate_limit", time.Second)

	out := scrape(t, reg)
	assert.Contains(t, out, `devagent_sessions_total{error_type="",status="success",target_kind="NewScript"} 1`)
	assert.Contains(t, out, `devagent_sessions_total{error_type="SyntaxFailure",status="error",target_kind="NewModule"} 1`)
	assert.Contains(t, out, `devagent_attempts_total{outcome="failure",stage="validate",target_kind="NewModule"} 2`)
	assert.Contains(t, out, `llm_requests_total{error_type="rate_limit",model="gpt-4o",status="error"} 1`)
	assert.Contains(t, out, `llm_tokens_total{model="gpt-4o",type="prompt"} 120`)
	assert.Contains(t, out, `llm_tokens_total{model="gpt-4o",type="completion"} 40`)
	assert.Contains(t, out, `llm_request_duration_seconds_count{model="gpt-4o"} 2`)
}

// fakePrometheus answers instant queries from a map of query -> vector JSON.
func fakePrometheus(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		query := r.Form.Get("query")
		result, ok := results[query]
		if !ok {
			result = "[]"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"success","data":{"resultType":"vector","result":`+result+`}}`)
	}))
}

func sample(labels, value string) string {
	return `{"metric":{` + labels + `},"value":[1700000000,"` + value + `"]}`
}

func TestQueryService(t *testing.T) {
	srv := fakePrometheus(t, map[string]string{
		`sum by (target_kind, status) (devagent_sessions_total)`: "[" + strings.Join([]string{
			sample(`"target_kind":"NewScript","status":"success"`, "3"),
			sample(`"target_kind":"NewScript","status":"error"`, "1"),
			sample(`"target_kind":"NewModule","status":"error"`, "2"),
		}, ",") + "]",
		`sum by (error_type) (devagent_sessions_total{status="error"})`: "[" +
			sample(`"error_type":"SyntaxFailure"`, "3") + "]",
		`sum by (model, status) (llm_requests_total)`: "[" + strings.Join([]string{
			sample(`"model":"gpt-4o","status":"success"`, "5"),
			sample(`"model":"gpt-4o","status":"error"`, "1"),
		}, ",") + "]",
		`sum by (model, type) (llm_tokens_total)`: "[" + strings.Join([]string{
			sample(`"model":"gpt-4o","type":"prompt"`, "1000"),
			sample(`"model":"gpt-4o","type":"completion"`, "250"),
		}, ",") + "]",
	})
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	stats, err := q.GetSessionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []SessionStats{
		{TargetKind: "NewModule", Failed: 2},
		{TargetKind: "NewScript", Succeeded: 3, Failed: 1},
	}, stats)

	failures, err := q.GetFailuresByErrorType(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"SyntaxFailure": 3}, failures)

	usage, err := q.GetModelUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ModelUsage{{Model: "gpt-4o", Requests: 6, Errors: 1, PromptTokens: 1000, CompletionTokens: 250}}, usage)
}

func TestQueryServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"status":"error","errorType":"bad_data","error":"parse error"}`)
	}))
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)
	_, err = q.GetSessionStats(context.Background())
	assert.Error(t, err)
}
