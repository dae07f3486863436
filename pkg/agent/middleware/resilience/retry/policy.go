// Package retry re-sends LLM calls that failed for transient reasons, backing off
// exponentially between attempts. It only retries failures llmerrors classifies as
// transient; policy retries of a triage run are a separate mechanism and never pass
// through here.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"bugtriage/pkg/agent/llmerrors"
	"bugtriage/pkg/config"
)

// Config is the backoff schedule. MaxAttempts counts the first call.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration // zero means uncapped
	BackoffFactor float64
	Jitter        bool // spread each delay by up to ±10%
}

//nolint:gochecknoglobals // package default
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  500 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2,
	Jitter:        true,
}

// FromConfig converts the resilience.retry section of the project config.
func FromConfig(c config.RetryConfig) Config {
	return Config{
		MaxAttempts:   max(c.MaxAttempts, 1),
		InitialDelay:  c.InitialDelay,
		MaxDelay:      c.MaxDelay,
		BackoffFactor: max(c.BackoffFactor, 1),
		Jitter:        c.Jitter,
	}
}

// Classifier decides whether err is worth another attempt.
type Classifier func(err error) bool

// ShouldRetry is the default Classifier. Caller cancellation is final; everything else is
// decided by the llmerrors classification.
func ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var llmErr *llmerrors.Error
	return errors.As(llmerrors.Classify(err, 0, "llm"), &llmErr) && llmErr.IsRetryable()
}

//nolint:govet // fieldalignment
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy returns a policy for cfg. A nil classifier means ShouldRetry.
func NewPolicy(cfg Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	cfg.MaxAttempts = max(cfg.MaxAttempts, 1)
	return &Policy{Config: cfg, Classifier: classifier}
}

// CalculateDelay is the wait before attempt (1-based); the first attempt never waits.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := float64(p.Config.InitialDelay)
	for range attempt - 2 {
		delay *= p.Config.BackoffFactor
	}
	if limit := float64(p.Config.MaxDelay); limit > 0 && delay > limit {
		delay = limit
	}
	if p.Config.Jitter {
		delay *= 0.9 + 0.2*rand.Float64() //nolint:gosec // jitter
	}
	return time.Duration(delay)
}

func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
