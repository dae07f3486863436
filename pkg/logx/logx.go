// Package logx provides leveled, component-tagged logging with domain-filtered debug output.
package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// TimestampFormat is the layout used for every log line and buffered entry.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger writes lines tagged with a component or run identifier.
type Logger struct {
	component string
}

// LogEntry is a buffered log line, served by the HTTP API.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Component string `json:"component"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
}

// InMemoryLogBuffer keeps the most recent log entries.
type InMemoryLogBuffer struct {
	entries []LogEntry
	mutex   sync.RWMutex
	maxSize int
}

type debugSettings struct {
	enabled bool
	domains map[string]bool // nil = all domains
}

type ctxKey struct{}

//nolint:gochecknoglobals // process-wide logging state
var (
	debugCfg   = &debugSettings{}
	debugMutex sync.RWMutex

	output   io.Writer = os.Stderr
	outputMu sync.Mutex

	logBuffer = &InMemoryLogBuffer{maxSize: 1000}
)

func init() { //nolint:gochecknoinits // env-driven debug switches
	initDebugFromEnv()
}

// initDebugFromEnv reads DEBUG=1|true and DEBUG_DOMAINS=triage,tools.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if v := os.Getenv("DEBUG"); v == "1" || strings.EqualFold(v, "true") {
		debugCfg.enabled = true
	}
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugCfg.domains = make(map[string]bool)
		for _, d := range strings.Split(domains, ",") {
			debugCfg.domains[strings.TrimSpace(d)] = true
		}
	}
}

func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// SetOutput redirects all log lines. Returns the previous writer so tests can restore it.
func SetOutput(w io.Writer) io.Writer {
	outputMu.Lock()
	defer outputMu.Unlock()
	prev := output
	output = w
	return prev
}

// SetDebug toggles debug output and restricts it to the given domains (empty = all).
func SetDebug(enabled bool, domains ...string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugCfg.enabled = enabled
	if len(domains) == 0 {
		debugCfg.domains = nil
		return
	}
	debugCfg.domains = make(map[string]bool, len(domains))
	for _, d := range domains {
		debugCfg.domains[strings.TrimSpace(d)] = true
	}
}

// IsDebugEnabled reports whether debug logging is on for any domain.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugCfg.enabled
}

// IsDebugEnabledForDomain reports whether debug logging is on for domain.
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugCfg.enabled {
		return false
	}
	if debugCfg.domains == nil {
		return true
	}
	return debugCfg.domains[domain]
}

// WithRunID attaches a run identifier used by the package-level Debug helpers.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, runID)
}

// RunIDFrom returns the run identifier stored by WithRunID.
func RunIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(ctxKey{}).(string); ok {
		return id
	}
	return ""
}

// Add appends an entry, dropping the oldest once the buffer is full.
func (b *InMemoryLogBuffer) Add(entry *LogEntry) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.entries = append(b.entries, *entry)
	if len(b.entries) > b.maxSize {
		b.entries = b.entries[len(b.entries)-b.maxSize:]
	}
}

// Entries returns a filtered copy of the buffered entries.
func (b *InMemoryLogBuffer) Entries(domain string, since time.Time) []LogEntry {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	out := make([]LogEntry, 0, len(b.entries))
	for i := range b.entries {
		e := &b.entries[i]
		if domain != "" && !strings.EqualFold(e.Domain, domain) {
			continue
		}
		if !since.IsZero() {
			ts, err := time.Parse(TimestampFormat, e.Timestamp)
			if err != nil || ts.Before(since) {
				continue
			}
		}
		out = append(out, *e)
	}
	return out
}

// GetRecentLogEntries returns buffered entries, optionally filtered by domain and time.
func GetRecentLogEntries(domain string, since time.Time) []LogEntry {
	return logBuffer.Entries(domain, since)
}

func emit(component string, level Level, domain, message string) {
	timestamp := time.Now().UTC().Format(TimestampFormat)
	text := message
	if domain != "" {
		text = fmt.Sprintf("[%s] %s", domain, message)
	}
	line := fmt.Sprintf("[%s] [%s] %s: %s\n", timestamp, component, level, text)

	outputMu.Lock()
	_, _ = io.WriteString(output, line)
	outputMu.Unlock()

	logBuffer.Add(&LogEntry{
		Timestamp: timestamp,
		Component: component,
		Level:     string(level),
		Message:   message,
		Domain:    domain,
	})
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	emit(l.component, LevelDebug, "", fmt.Sprintf(format, args...))
}

func (l *Logger) Info(format string, args ...any) {
	emit(l.component, LevelInfo, "", fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	emit(l.component, LevelWarn, "", fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	emit(l.component, LevelError, "", fmt.Sprintf(format, args...))
}

// DebugState logs a state-machine event on this logger.
func (l *Logger) DebugState(action, state string, extra ...string) {
	if len(extra) > 0 {
		l.Debug("State %s: %s - %s", action, state, extra[0])
		return
	}
	l.Debug("State %s: %s", action, state)
}

func (l *Logger) Component() string {
	return l.component
}

// WithComponent returns a logger sharing output but tagged differently.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{component: component}
}

// Debug logs under a domain, honoring DEBUG_DOMAINS. The run id is taken from ctx.
//
//	logx.Debug(ctx, "triage", "visiting %s", state)
//	logx.Debug(ctx, "tools", "ticket_search returned %d hits", n)
func Debug(ctx context.Context, domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	component := RunIDFrom(ctx)
	if component == "" {
		component = "unknown"
	}
	emit(component, LevelDebug, domain, fmt.Sprintf(format, args...))
}

// DebugState logs a state transition under a domain.
func DebugState(ctx context.Context, domain, action, state string, extra ...string) {
	if len(extra) > 0 {
		Debug(ctx, domain, "State %s: %s - %s", action, state, extra[0])
		return
	}
	Debug(ctx, domain, "State %s: %s", action, state)
}

// DebugFlow logs a workflow step under a domain.
func DebugFlow(ctx context.Context, domain, step, status string, extra ...string) {
	if len(extra) > 0 {
		Debug(ctx, domain, "Flow %s: %s - %s", step, status, extra[0])
		return
	}
	Debug(ctx, domain, "Flow %s: %s", step, status)
}

var defaultLogger = NewLogger("system")

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

// Errorf logs and returns the formatted error.
//
//	return logx.Errorf("open store: %w", err)
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err and returns fmt.Errorf("%s: %w", msg, err). A nil err stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrapped.Error())
	return wrapped
}
