// Package metrics records LLM call latency, outcome and token usage.
package metrics

import (
	"time"
)

// Observation describes one finished completion call.
type Observation struct {
	Model            string
	RunID            string // empty outside a triage run
	ErrorType        string // empty on success
	PromptTokens     int
	CompletionTokens int
	Duration         time.Duration
}

// Success reports whether the call returned without error.
func (o Observation) Success() bool { return o.ErrorType == "" }

func (o Observation) status() string {
	if o.Success() {
		return "success"
	}
	return "error"
}

// Recorder receives every Observation made by Middleware.
type Recorder interface {
	Observe(o Observation)
}

type nop struct{}

func (nop) Observe(Observation) {}

// Nop discards observations.
func Nop() Recorder { return nop{} }

type tee []Recorder

func (t tee) Observe(o Observation) {
	for _, r := range t {
		r.Observe(o)
	}
}

// Tee fans each observation out to every recorder.
func Tee(recorders ...Recorder) Recorder { return tee(recorders) }
