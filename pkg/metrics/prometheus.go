// Package metrics records loop and LLM metrics with Prometheus and queries them back.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"devagent/pkg/proto"
)

// Attempt stages.
const (
	StageGenerate = "generate"
	StageValidate = "validate"
	StageExecute  = "execute"
)

// PrometheusRecorder records session, attempt and LLM request metrics.
type PrometheusRecorder struct {
	sessionsTotal   *prometheus.CounterVec
	attemptsTotal   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the metrics on reg. A nil reg uses the
// default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		sessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devagent_sessions_total",
				Help: "Total number of finished sessions by target kind, status and error type",
			},
			[]string{"target_kind", "status", "error_type"},
		),
		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devagent_attempts_total",
				Help: "Total number of attempt stages by target kind, stage and outcome",
			},
			[]string{"target_kind", "stage", "outcome"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model and status",
			},
			[]string{"model", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// ObserveLLMRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveLLMRequest(
	model string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	p.requestsTotal.WithLabelValues(model, statusLabel(success), errorType).Inc()
	if success {
		p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	p.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveAttempt counts one stage outcome of an attempt.
func (p *PrometheusRecorder) ObserveAttempt(kind proto.TargetKind, stage, outcome string) {
	p.attemptsTotal.WithLabelValues(string(kind), stage, outcome).Inc()
}

// ObserveSession counts a finished session.
func (p *PrometheusRecorder) ObserveSession(kind proto.TargetKind, success bool, errorType proto.ErrorType) {
	p.sessionsTotal.WithLabelValues(string(kind), statusLabel(success), string(errorType)).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
