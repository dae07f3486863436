package eventlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bugtriage/pkg/triage"
)

func TestNewWriter(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "events")

	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	currentFile := writer.CurrentLogFile()
	if currentFile == "" {
		t.Fatal("No current log file set")
	}
	if _, err := os.Stat(currentFile); os.IsNotExist(err) {
		t.Error("Current log file does not exist")
	}
}

func TestObserverEvents(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	ctx := context.Background()
	writer.OnState(ctx, triage.StateEvent{RunID: "r1", State: triage.StateClassify, Step: 1, At: time.Now()})
	writer.OnToolCall(ctx, "r1", triage.ToolInvocation{Name: "ticket_search", Args: map[string]any{"query": "login"}, Duration: 3 * time.Millisecond})
	start := time.Now()
	writer.OnFinish(ctx, &triage.Trace{
		RunID:      "r1",
		Severity:   triage.SeverityHigh,
		Output:     &triage.FinalOutput{Status: triage.StatusComplete, TicketID: "CSE-1"},
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}, nil)
	writer.OnFinish(ctx, &triage.Trace{RunID: "r2"}, errors.New("decision maker failed"))

	events, err := ReadEvents(writer.CurrentLogFile())
	if err != nil {
		t.Fatalf("Failed to read events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(events))
	}

	if events[0].Kind != KindState || events[0].State != triage.StateClassify {
		t.Errorf("unexpected state event: %+v", events[0])
	}
	if events[1].Kind != KindToolCall || events[1].Tool != "ticket_search" || events[1].Args["query"] != "login" {
		t.Errorf("unexpected tool event: %+v", events[1])
	}
	if events[2].Output == nil || events[2].Output.TicketID != "CSE-1" || events[2].DurationMS != 1000 {
		t.Errorf("unexpected finish event: %+v", events[2])
	}
	if events[3].Error != "decision maker failed" {
		t.Errorf("expected error on failed run, got %q", events[3].Error)
	}
}

func TestDailyRotation(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	writer.now = func() time.Time { return day }
	if err := writer.Write(&Event{Kind: KindState, RunID: "a"}); err != nil {
		t.Fatal(err)
	}
	day = day.Add(2 * time.Minute)
	if err := writer.Write(&Event{Kind: KindState, RunID: "b"}); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"events-2026-03-01.jsonl", "events-2026-03-02.jsonl"} {
		events, err := ReadEvents(filepath.Join(tmpDir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if len(events) != 1 {
			t.Errorf("%s: expected 1 event, got %d", name, len(events))
		}
	}

	files, err := ListLogFiles(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	// today's file from NewWriter plus the two dated files
	if len(files) < 2 {
		t.Errorf("expected at least 2 log files, got %v", files)
	}
}

func TestRunEvents(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	for _, id := range []string{"a", "b", "a"} {
		if err := writer.Write(&Event{Kind: KindState, RunID: id}); err != nil {
			t.Fatal(err)
		}
	}
	events, err := RunEvents(tmpDir, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events for run a, got %d", len(events))
	}
}

func TestReadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events-2026-01-01.jsonl")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	events, err := ReadEvents(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestReadCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events-2026-01-01.jsonl")
	if err := os.WriteFile(path, []byte("{\"kind\":\"state\"}\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadEvents(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestWriterClose(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if writer.CurrentLogFile() != "" {
		t.Error("expected no current file after close")
	}
	if err := writer.Write(&Event{Kind: KindState}); err == nil {
		t.Error("expected write after close to fail")
	}
	if err := writer.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	const goroutines, perGoroutine = 8, 25
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				writer.OnState(context.Background(), triage.StateEvent{RunID: "r", State: triage.StateSearch, Step: i})
			}
		}()
	}
	wg.Wait()

	events, err := ReadEvents(writer.CurrentLogFile())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != goroutines*perGoroutine {
		t.Errorf("expected %d events, got %d", goroutines*perGoroutine, len(events))
	}
}
