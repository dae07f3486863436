package metrics

import (
	"sync"
	"time"

	"bugtriage/pkg/config"
)

// RunUsage is the LLM usage aggregated for one triage run.
type RunUsage struct {
	RunID            string        `json:"run_id"`
	Requests         int64         `json:"requests"`
	Failures         int64         `json:"failures"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	Latency          time.Duration `json:"latency"`
	CostUSD          float64       `json:"cost_usd"`
}

// TotalTokens is prompt plus completion tokens.
func (u RunUsage) TotalTokens() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// InternalRecorder aggregates usage per run in memory, for callers that report usage
// without a Prometheus server.
type InternalRecorder struct {
	runs map[string]*RunUsage
	mu   sync.RWMutex
}

// NewInternalRecorder creates an empty recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{runs: make(map[string]*RunUsage)}
}

// Observe implements Recorder. Calls outside a run are ignored.
func (r *InternalRecorder) Observe(o Observation) {
	if o.RunID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.runs[o.RunID]
	if u == nil {
		u = &RunUsage{RunID: o.RunID}
		r.runs[o.RunID] = u
	}
	u.Requests++
	u.Latency += o.Duration
	if !o.Success() {
		u.Failures++
		return
	}
	u.PromptTokens += int64(o.PromptTokens)
	u.CompletionTokens += int64(o.CompletionTokens)
	u.CostUSD += config.CalculateCost(o.Model, o.PromptTokens, o.CompletionTokens)
}

// Usage returns a copy of the usage recorded for runID.
func (r *InternalRecorder) Usage(runID string) (RunUsage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.runs[runID]; ok {
		return *u, true
	}
	return RunUsage{}, false
}

// Forget drops the usage of runID once it has been reported.
func (r *InternalRecorder) Forget(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}
