// Package eventlog records triage run progress as JSON lines in daily rotated files.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"bugtriage/pkg/logx"
	"bugtriage/pkg/triage"
)

// Event kinds.
const (
	KindState    = "state"
	KindToolCall = "tool_call"
	KindFinish   = "finish"
)

// Event is one JSONL record. Only the fields relevant to Kind are set.
type Event struct {
	Time       time.Time           `json:"ts"`
	Kind       string              `json:"kind"`
	RunID      string              `json:"run_id"`
	State      triage.State        `json:"state,omitempty"`
	Step       int                 `json:"step,omitempty"`
	Retry      int                 `json:"retry,omitempty"`
	Severity   triage.Severity     `json:"severity,omitempty"`
	Tool       string              `json:"tool,omitempty"`
	Args       map[string]any      `json:"args,omitempty"`
	IsError    bool                `json:"is_error,omitempty"`
	DurationMS int64               `json:"duration_ms,omitempty"`
	Output     *triage.FinalOutput `json:"output,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Writer appends events to events-YYYY-MM-DD.jsonl under its directory, switching files
// when the local date changes. It implements triage.Observer and is safe for concurrent use.
type Writer struct {
	logDir      string
	currentFile *os.File
	currentDate string
	now         func() time.Time
	logger      *logx.Logger
	mu          sync.Mutex
}

// NewWriter creates the directory if needed and opens today's file.
func NewWriter(logDir string) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &Writer{logDir: logDir, now: time.Now, logger: logx.NewLogger("eventlog")}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}
	return w, nil
}

// Write appends one event, rotating first if the date changed.
func (w *Writer) Write(ev *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil && w.currentDate != "" {
		return fmt.Errorf("event log is closed")
	}
	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	if ev.Time.IsZero() {
		ev.Time = w.now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.currentFile.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// OnState implements triage.Observer.
func (w *Writer) OnState(_ context.Context, ev triage.StateEvent) {
	w.record(&Event{
		Time: ev.At, Kind: KindState, RunID: ev.RunID, State: ev.State,
		Step: ev.Step, Retry: ev.Retry, Severity: ev.Severity,
	})
}

// OnToolCall implements triage.Observer.
func (w *Writer) OnToolCall(_ context.Context, runID string, inv triage.ToolInvocation) {
	w.record(&Event{
		Kind: KindToolCall, RunID: runID, Tool: inv.Name, Args: inv.Args,
		IsError: inv.IsError, DurationMS: inv.Duration.Milliseconds(),
	})
}

// OnFinish implements triage.Observer.
func (w *Writer) OnFinish(_ context.Context, trace *triage.Trace, err error) {
	ev := &Event{
		Kind: KindFinish, RunID: trace.RunID, Severity: trace.Severity,
		Output: trace.Output, DurationMS: trace.Duration().Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	w.record(ev)
}

// record logs write failures; observers cannot fail a run.
func (w *Writer) record(ev *Event) {
	if err := w.Write(ev); err != nil {
		w.logger.Warn("dropping %s event for run %s: %v", ev.Kind, ev.RunID, err)
	}
}

func (w *Writer) rotateIfNeeded() error {
	newDate := w.now().Format("2006-01-02")
	if w.currentFile == nil || w.currentDate != newDate {
		return w.rotate(newDate)
	}
	return nil
}

func (w *Writer) rotate(newDate string) error {
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}
	path := filepath.Join(w.logDir, fileName(newDate))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	w.currentFile = file
	w.currentDate = newDate
	return nil
}

func fileName(date string) string {
	return fmt.Sprintf("events-%s.jsonl", date)
}

// Close syncs and closes the current file. Later writes fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return nil
	}
	syncErr := w.currentFile.Sync()
	err := w.currentFile.Close()
	w.currentFile = nil
	if err == nil {
		err = syncErr
	}
	if err != nil {
		return fmt.Errorf("failed to close event log file: %w", err)
	}
	return nil
}

// CurrentLogFile returns the path of the active file, or "" once closed.
func (w *Writer) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}
	return filepath.Join(w.logDir, fileName(w.currentDate))
}

// ReadEvents parses a log file. Blank lines are skipped.
func ReadEvents(logFilePath string) ([]Event, error) {
	f, err := os.Open(logFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("failed to parse event on line %d: %w", line, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}
	return events, nil
}

// RunEvents returns the events of one run across every log file in logDir, oldest first.
func RunEvents(logDir, runID string) ([]Event, error) {
	files, err := ListLogFiles(logDir)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, path := range files {
		events, err := ReadEvents(path)
		if err != nil {
			return nil, err
		}
		for i := range events {
			if events[i].RunID == runID {
				out = append(out, events[i])
			}
		}
	}
	return out, nil
}

// ListLogFiles returns all event log files in logDir in date order.
func ListLogFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "events-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
