package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionStats aggregates finished sessions for one target kind.
type SessionStats struct {
	TargetKind string `json:"target_kind"`
	Succeeded  int64  `json:"succeeded"`
	Failed     int64  `json:"failed"`
}

// ModelUsage aggregates LLM usage for one model.
type ModelUsage struct {
	Model            string `json:"model"`
	Requests         int64  `json:"requests"`
	Errors           int64  `json:"errors"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	queryAPI v1.API
	now      func() time.Time
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		queryAPI: v1.NewAPI(client),
		now:      time.Now,
	}, nil
}

func (q *QueryService) vector(ctx context.Context, query string) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, q.now())
	if err != nil {
		return nil, fmt.Errorf("query %q failed: %w", query, err)
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("query %q returned %s, expected vector", query, result.Type())
	}
	return vector, nil
}

// GetSessionStats returns success and failure totals per target kind, sorted by kind.
func (q *QueryService) GetSessionStats(ctx context.Context) ([]SessionStats, error) {
	vector, err := q.vector(ctx, `sum by (target_kind, status) (devagent_sessions_total)`)
	if err != nil {
		return nil, err
	}

	byKind := make(map[string]*SessionStats)
	for _, sample := range vector {
		kind := string(sample.Metric["target_kind"])
		stats, ok := byKind[kind]
		if !ok {
			stats = &SessionStats{TargetKind: kind}
			byKind[kind] = stats
		}
		switch sample.Metric["status"] {
		case "success":
			stats.Succeeded += int64(sample.Value)
		default:
			stats.Failed += int64(sample.Value)
		}
	}

	out := make([]SessionStats, 0, len(byKind))
	for _, stats := range byKind {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetKind < out[j].TargetKind })
	return out, nil
}

// GetFailuresByErrorType returns failed session totals keyed by error type.
func (q *QueryService) GetFailuresByErrorType(ctx context.Context) (map[string]int64, error) {
	vector, err := q.vector(ctx, `sum by (error_type) (devagent_sessions_total{status="error"})`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(vector))
	for _, sample := range vector {
		out[string(sample.Metric["error_type"])] = int64(sample.Value)
	}
	return out, nil
}

// GetModelUsage returns request and token totals per model, sorted by model.
func (q *QueryService) GetModelUsage(ctx context.Context) ([]ModelUsage, error) {
	requests, err := q.vector(ctx, `sum by (model, status) (llm_requests_total)`)
	if err != nil {
		return nil, err
	}
	tokens, err := q.vector(ctx, `sum by (model, type) (llm_tokens_total)`)
	if err != nil {
		return nil, err
	}

	byModel := make(map[string]*ModelUsage)
	get := func(name string) *ModelUsage {
		usage, ok := byModel[name]
		if !ok {
			usage = &ModelUsage{Model: name}
			byModel[name] = usage
		}
		return usage
	}

	for _, sample := range requests {
		usage := get(string(sample.Metric["model"]))
		usage.Requests += int64(sample.Value)
		if sample.Metric["status"] != "success" {
			usage.Errors += int64(sample.Value)
		}
	}
	for _, sample := range tokens {
		usage := get(string(sample.Metric["model"]))
		switch sample.Metric["type"] {
		case "prompt":
			usage.PromptTokens += int64(sample.Value)
		case "completion":
			usage.CompletionTokens += int64(sample.Value)
		}
	}

	out := make([]ModelUsage, 0, len(byModel))
	for _, usage := range byModel {
		out = append(out, *usage)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}
