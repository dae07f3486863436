package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder exports observations as llm_* series.
type PrometheusRecorder struct {
	requests *prometheus.CounterVec
	tokens   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the LLM series with reg, or with the default registry
// when reg is nil.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusRecorder{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Decision-maker completion calls by model, outcome and error class.",
		}, []string{"model", "status", "error_type"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Tokens sent and received by successful completion calls.",
		}, []string{"model", "type"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Wall time of completion calls, failures included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
	}
}

// Observe implements Recorder.
func (p *PrometheusRecorder) Observe(o Observation) {
	p.requests.WithLabelValues(o.Model, o.status(), o.ErrorType).Inc()
	p.latency.WithLabelValues(o.Model).Observe(o.Duration.Seconds())
	if !o.Success() {
		return
	}
	p.tokens.WithLabelValues(o.Model, "prompt").Add(float64(o.PromptTokens))
	p.tokens.WithLabelValues(o.Model, "completion").Add(float64(o.CompletionTokens))
}
