package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugtriage/pkg/triage"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labelsOf(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestRunRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRunRecorder(reg)
	ctx := context.Background()

	rec.OnToolCall(ctx, "r1", triage.ToolInvocation{Name: "ticket_search"})
	rec.OnToolCall(ctx, "r1", triage.ToolInvocation{Name: "chat_search", IsError: true})

	start := time.Now()
	rec.OnFinish(ctx, &triage.Trace{
		RunID: "r1",
		Reports: []triage.Report{{Attempt: 1, Results: []triage.CheckResult{
			{Check: triage.CheckChatSearched, Passed: false},
			{Check: triage.CheckTicketSearched, Passed: true},
		}}},
		Output: &triage.FinalOutput{
			Status: triage.StatusComplete, Severity: triage.SeverityHigh,
			ActionTaken: triage.ActionFoundDuplicate, Retries: 1,
		},
		StartedAt: start, FinishedAt: start.Add(2 * time.Second),
	}, nil)
	rec.OnFinish(ctx, &triage.Trace{RunID: "r2", StartedAt: start, FinishedAt: start}, fmt.Errorf("boom"))

	families := gather(t, reg)

	runs := families["triage_runs_total"]
	require.NotNil(t, runs)
	require.Len(t, runs.GetMetric(), 2)
	seen := map[string]float64{}
	for _, m := range runs.GetMetric() {
		l := labelsOf(m)
		seen[l["status"]+"/"+l["severity"]+"/"+l["action"]] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 1.0, seen["complete/high/found_duplicate"])
	assert.Equal(t, 1.0, seen["error/unset/none"])

	tools := families["triage_tool_calls_total"]
	require.NotNil(t, tools)
	assert.Len(t, tools.GetMetric(), 2)

	checks := families["triage_check_failures_total"]
	require.NotNil(t, checks)
	require.Len(t, checks.GetMetric(), 1)
	assert.Equal(t, string(triage.CheckChatSearched), labelsOf(checks.GetMetric()[0])["check"])

	retries := families["triage_retries"].GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), retries.GetSampleCount())
	assert.Equal(t, 1.0, retries.GetSampleSum())

	duration := families["triage_run_duration_seconds"].GetMetric()[0].GetHistogram()
	assert.InDelta(t, 2.0, duration.GetSampleSum(), 1e-9)
}

func fakePrometheus(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/query" {
			http.NotFound(w, r)
			return
		}
		query := r.FormValue("query")
		var result string
		switch {
		case strings.Contains(query, "triage_runs_total"):
			result = `[{"metric":{"status":"complete"},"value":[1700000000,"3"]},{"metric":{"status":"rejected"},"value":[1700000000,"1"]}]`
		case strings.Contains(query, `outcome="error"`):
			result = `[{"metric":{"tool":"chat_search"},"value":[1700000000,"2"]}]`
		case strings.Contains(query, "triage_tool_calls_total"):
			result = `[{"metric":{"tool":"ticket_search"},"value":[1700000000,"4"]},{"metric":{"tool":"chat_search"},"value":[1700000000,"4"]}]`
		case strings.Contains(query, "llm_tokens_total"):
			result = `[{"metric":{"type":"prompt"},"value":[1700000000,"1200"]}]`
		case strings.Contains(query, "histogram_quantile"):
			result = `[{"metric":{},"value":[1700000000,"NaN"]}]`
		default:
			result = `[]`
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":%s}}`, result)
	}))
}

func TestQueryServiceGetStats(t *testing.T) {
	srv := fakePrometheus(t)
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	stats, err := q.GetStats(context.Background(), time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 4.0, stats.TotalRuns())
	assert.Equal(t, []string{"complete", "rejected"}, stats.Statuses())
	assert.Equal(t, 4.0, stats.ToolCalls["ticket_search"])
	assert.Equal(t, 2.0, stats.ToolErrors["chat_search"])
	assert.Equal(t, 1200.0, stats.LLMTokens["prompt"])
	assert.Zero(t, stats.P95Seconds)
}

func TestQueryServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","errorType":"bad_data","error":"parse error"}`)
	}))
	defer srv.Close()

	q, err := NewQueryService(srv.URL)
	require.NoError(t, err)
	_, err = q.GetStats(context.Background(), time.Hour)
	assert.Error(t, err)
}
