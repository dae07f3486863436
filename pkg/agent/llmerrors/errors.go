// Package llmerrors classifies provider failures so transport retries can tell transient
// trouble (rate limits, 5xx, empty replies, timeouts) from failures that will not go away.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType is the retry class of a provider failure.
type ErrorType int8

const (
	ErrorTypeRateLimit ErrorType = iota
	ErrorTypeTransient
	// ErrorTypeEmptyResponse is a successful call with neither text nor tool calls.
	ErrorTypeEmptyResponse
	ErrorTypeTimeout

	ErrorTypeAuth
	ErrorTypeBadPrompt
	ErrorTypeUnknown

	// ErrorTypeServiceUnavailable is raised once transport retries are exhausted. The triage
	// run that sees it fails with a decision-maker error.
	ErrorTypeServiceUnavailable
)

var typeNames = [...]string{
	ErrorTypeRateLimit:          "rate_limit",
	ErrorTypeTransient:          "transient",
	ErrorTypeEmptyResponse:      "empty_response",
	ErrorTypeTimeout:            "timeout",
	ErrorTypeAuth:               "auth",
	ErrorTypeBadPrompt:          "bad_prompt",
	ErrorTypeUnknown:            "unknown",
	ErrorTypeServiceUnavailable: "service_unavailable",
}

// String is the label used in logs and the llm_requests_total error_type label.
func (et ErrorType) String() string {
	if et < 0 || int(et) >= len(typeNames) {
		return "invalid"
	}
	return typeNames[et]
}

// Error is a classified provider failure.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int // zero when the SDK does not expose one
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("LLM error (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("LLM error (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("LLM error (%s): status %d", e.Type, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether another attempt could succeed.
func (e *Error) IsRetryable() bool {
	return e.Type != ErrorTypeAuth && e.Type != ErrorTypeBadPrompt && e.Type != ErrorTypeServiceUnavailable
}

// Is reports whether err carries a classification of type t anywhere in its chain.
func Is(err error, t ErrorType) bool {
	var llmErr *Error
	return errors.As(err, &llmErr) && llmErr.Type == t
}

// TypeOf returns the classification of err, ErrorTypeUnknown when it has none.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

func NewError(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

func NewErrorWithStatus(t ErrorType, statusCode int, message string) *Error {
	return &Error{Type: t, StatusCode: statusCode, Message: message}
}

func NewErrorWithCause(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Err: cause, Message: message}
}

// NewServiceUnavailableError marks cause as final after attempts tries.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts", attempts),
	}
}

func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}

// TypeForStatus maps an HTTP status code to an error type.
func TypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorTypeAuth
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case status >= 500:
		return ErrorTypeTransient
	case status >= 400:
		return ErrorTypeBadPrompt
	}
	return ErrorTypeUnknown
}

// Classify wraps err in an *Error. Already-classified errors pass through. A non-zero
// status wins over message sniffing; provider SDKs that hide the status fall back to
// matching common phrases in the message.
func Classify(err error, status int, provider string) error {
	if err == nil {
		return nil
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return err
	}

	var t ErrorType
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		t = ErrorTypeTimeout
	case errors.Is(err, context.Canceled):
		// cancellation is the caller's decision; never retry it
		t = ErrorTypeBadPrompt
	case status != 0:
		t = TypeForStatus(status)
	default:
		t = typeFromMessage(strings.ToLower(err.Error()))
	}
	return &Error{
		Type:       t,
		StatusCode: status,
		Err:        err,
		Message:    fmt.Sprintf("%s request failed: %v", provider, err),
	}
}

var messagePatterns = []struct {
	t      ErrorType
	phrase []string
}{
	{ErrorTypeRateLimit, []string{"rate limit", "rate_limit", "429", "quota", "too many requests", "overloaded"}},
	{ErrorTypeAuth, []string{"401", "403", "unauthorized", "forbidden", "invalid api key", "api key not valid", "authentication"}},
	{ErrorTypeTimeout, []string{"timeout", "deadline exceeded"}},
	{ErrorTypeTransient, []string{"500", "502", "503", "504", "connection refused", "connection reset", "eof", "unavailable", "internal server error"}},
	{ErrorTypeBadPrompt, []string{"400", "invalid request", "context length", "too long", "invalid_request"}},
}

func typeFromMessage(msg string) ErrorType {
	for _, p := range messagePatterns {
		for _, phrase := range p.phrase {
			if strings.Contains(msg, phrase) {
				return p.t
			}
		}
	}
	return ErrorTypeUnknown
}
