// Package utils provides tiktoken-based token accounting for prompts, transcripts and
// tool output.
package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens with a tiktoken codec. Every supported provider is
// approximated with the GPT-4 encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

//nolint:gochecknoglobals // the codec tables are large; build them once per process
var (
	sharedOnce    sync.Once
	sharedCounter *TokenCounter
)

// NewTokenCounter creates a token counter for model.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in text. Without a codec it estimates four
// characters per token.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

func shared() *TokenCounter {
	sharedOnce.Do(func() {
		sharedCounter, _ = NewTokenCounter("gpt-4")
	})
	return sharedCounter
}

// CountTokensSimple counts tokens with a process-wide counter.
func CountTokensSimple(text string) int {
	return shared().CountTokens(text)
}

// TruncateTokensSimple is TruncateToTokenLimit on the process-wide counter.
func TruncateTokensSimple(text string, limit int) string {
	return shared().TruncateToTokenLimit(text, limit)
}

// CountAll sums the tokens of parts as if joined by newlines.
func CountAll(parts ...string) int {
	return CountTokensSimple(strings.Join(parts, "\n"))
}

// ValidateTokenLimit reports whether text fits in limit tokens.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// TruncateToTokenLimit shortens text to roughly limit tokens and marks the cut with
// "...". It cuts on a rune boundary, proportionally, with a 10% margin.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	current := tc.CountTokens(text)
	if current <= limit {
		return text
	}
	runes := []rune(text)
	keep := int(float64(len(runes)) * float64(limit) / float64(current) * 0.9)
	if keep >= len(runes) {
		return text
	}
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + "..."
}
