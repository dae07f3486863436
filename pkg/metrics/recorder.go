package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bugtriage/pkg/triage"
)

// Tool call outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// RunRecorder exports triage run metrics. It implements triage.Observer.
type RunRecorder struct {
	runsTotal     *prometheus.CounterVec
	retries       prometheus.Histogram
	toolCalls     *prometheus.CounterVec
	checkFailures *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

// NewRunRecorder registers the triage metrics with reg. A nil reg uses the default registry.
func NewRunRecorder(reg prometheus.Registerer) *RunRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &RunRecorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_runs_total",
				Help: "Finished triage runs by final status, severity and action",
			},
			[]string{"status", "severity", "action"},
		),
		retries: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_retries",
			Help:    "Verification retries consumed per run",
			Buckets: []float64{0, 1, 2, 3, 5},
		}),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_tool_calls_total",
				Help: "Executed tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		checkFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_check_failures_total",
				Help: "Failed verification checks",
			},
			[]string{"check"},
		),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_run_duration_seconds",
			Help:    "Wall time of triage runs",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

// OnState implements triage.Observer.
func (r *RunRecorder) OnState(context.Context, triage.StateEvent) {}

// OnToolCall implements triage.Observer.
func (r *RunRecorder) OnToolCall(_ context.Context, _ string, inv triage.ToolInvocation) {
	outcome := OutcomeOK
	if inv.IsError {
		outcome = OutcomeError
	}
	r.toolCalls.WithLabelValues(inv.Name, outcome).Inc()
}

// OnFinish implements triage.Observer.
func (r *RunRecorder) OnFinish(_ context.Context, trace *triage.Trace, _ error) {
	status, action, severity := "error", triage.ActionNone, string(trace.Severity)
	retries := 0
	if out := trace.Output; out != nil {
		status, action, retries = out.Status, out.ActionTaken, out.Retries
		if out.Severity != "" {
			severity = string(out.Severity)
		}
	}
	if severity == "" {
		severity = "unset"
	}
	r.runsTotal.WithLabelValues(status, severity, action).Inc()
	r.retries.Observe(float64(retries))
	r.runDuration.Observe(trace.Duration().Seconds())

	for i := range trace.Reports {
		for _, c := range trace.Reports[i].Failed() {
			r.checkFailures.WithLabelValues(string(c)).Inc()
		}
	}
}
