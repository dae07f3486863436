// Package metrics exports triage run metrics and queries them back from Prometheus.
package metrics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// Stats aggregates triage activity over a time window.
type Stats struct {
	Window       time.Duration      `json:"window"`
	RunsByStatus map[string]float64 `json:"runs_by_status"`
	ToolCalls    map[string]float64 `json:"tool_calls"`
	ToolErrors   map[string]float64 `json:"tool_errors"`
	P95Seconds   float64            `json:"p95_duration_seconds"`
	LLMTokens    map[string]float64 `json:"llm_tokens"`
}

// TotalRuns sums runs across statuses.
func (s *Stats) TotalRuns() float64 {
	var total float64
	for _, v := range s.RunsByStatus {
		total += v
	}
	return total
}

// Statuses returns the status keys in sorted order.
func (s *Stats) Statuses() []string {
	keys := make([]string, 0, len(s.RunsByStatus))
	for k := range s.RunsByStatus {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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

// GetStats queries run, tool and token totals for the trailing window.
func (q *QueryService) GetStats(ctx context.Context, window time.Duration) (*Stats, error) {
	rng := model.Duration(window).String()
	stats := &Stats{Window: window}

	var err error
	if stats.RunsByStatus, err = q.sumBy(ctx, fmt.Sprintf(`sum by (status) (increase(triage_runs_total[%s]))`, rng), "status"); err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	if stats.ToolCalls, err = q.sumBy(ctx, fmt.Sprintf(`sum by (tool) (increase(triage_tool_calls_total[%s]))`, rng), "tool"); err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	if stats.ToolErrors, err = q.sumBy(ctx, fmt.Sprintf(`sum by (tool) (increase(triage_tool_calls_total{outcome=%q}[%s]))`, OutcomeError, rng), "tool"); err != nil {
		return nil, fmt.Errorf("failed to query tool errors: %w", err)
	}
	if stats.LLMTokens, err = q.sumBy(ctx, fmt.Sprintf(`sum by (type) (increase(llm_tokens_total[%s]))`, rng), "type"); err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}

	p95, err := q.scalar(ctx, fmt.Sprintf(`histogram_quantile(0.95, sum by (le) (rate(triage_run_duration_seconds_bucket[%s])))`, rng))
	if err != nil {
		return nil, fmt.Errorf("failed to query run duration: %w", err)
	}
	stats.P95Seconds = p95
	return stats, nil
}

func (q *QueryService) sumBy(ctx context.Context, query string, label model.LabelName) (map[string]float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, q.now())
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by GetStats
	}
	out := make(map[string]float64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			out[string(sample.Metric[label])] = float64(sample.Value)
		}
	}
	return out, nil
}

func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, q.now())
	if err != nil {
		return 0, err //nolint:wrapcheck // wrapped by GetStats
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		v := float64(vector[0].Value)
		if math.IsNaN(v) {
			return 0, nil
		}
		return v, nil
	}
	return 0, nil
}
