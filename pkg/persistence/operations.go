package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DatabaseOperations provides the run-history queries over an open database.
type DatabaseOperations struct {
	db        *sql.DB
	sessionID string
}

// NewDatabaseOperations creates a DatabaseOperations that tags writes with sessionID.
func NewDatabaseOperations(db *sql.DB, sessionID string) *DatabaseOperations {
	return &DatabaseOperations{db: db, sessionID: sessionID}
}

// InsertRun stores a run and its tool calls in one transaction. Re-inserting a run ID
// replaces the previous record.
func (ops *DatabaseOperations) InsertRun(ctx context.Context, run *Run) error {
	toolsUsed, err := json.Marshal(nonNil(run.ToolsUsed))
	if err != nil {
		return fmt.Errorf("failed to encode tools used: %w", err)
	}
	states, err := json.Marshal(nonNil(run.States))
	if err != nil {
		return fmt.Errorf("failed to encode states: %w", err)
	}

	tx, err := ops.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sessionID := run.SessionID
	if sessionID == "" {
		sessionID = ops.sessionID
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, run.RunID); err != nil {
		return fmt.Errorf("failed to replace run %s: %w", run.RunID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, session_id, input, status, reason, severity, action_taken,
			ticket_id, created_ticket_id, summary, tools_used, states,
			steps_taken, retries, error, started_at, finished_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, sessionID, run.Input, run.Status, run.Reason, run.Severity, run.ActionTaken,
		run.TicketID, run.CreatedTicketID, run.Summary, string(toolsUsed), string(states),
		run.StepsTaken, run.Retries, run.Error, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.RunID, err)
	}

	for i := range run.ToolCalls {
		call := &run.ToolCalls[i]
		args, err := json.Marshal(call.Args)
		if err != nil {
			return fmt.Errorf("failed to encode args for %s: %w", call.ToolName, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_tool_calls (run_id, seq, call_id, tool_name, args, output, is_error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, call.Seq, call.CallID, call.ToolName, string(args), call.Output, call.IsError, call.DurationMS,
		)
		if err != nil {
			return fmt.Errorf("failed to insert tool call %d of run %s: %w", call.Seq, run.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.RunID, err)
	}
	return nil
}

const runColumns = `run_id, session_id, input, status, reason, severity, action_taken,
	ticket_id, created_ticket_id, summary, tools_used, states,
	steps_taken, retries, error, started_at, finished_at, duration_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run                 Run
		toolsUsed, states   string
		startedAt, finished string
	)
	err := row.Scan(
		&run.RunID, &run.SessionID, &run.Input, &run.Status, &run.Reason, &run.Severity, &run.ActionTaken,
		&run.TicketID, &run.CreatedTicketID, &run.Summary, &toolsUsed, &states,
		&run.StepsTaken, &run.Retries, &run.Error, &startedAt, &finished, &run.DurationMS,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with context
	}
	if err := json.Unmarshal([]byte(toolsUsed), &run.ToolsUsed); err != nil {
		return nil, fmt.Errorf("failed to decode tools used for %s: %w", run.RunID, err)
	}
	if err := json.Unmarshal([]byte(states), &run.States); err != nil {
		return nil, fmt.Errorf("failed to decode states for %s: %w", run.RunID, err)
	}
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finished)
	return &run, nil
}

// GetRun returns a run with its tool calls in execution order.
func (ops *DatabaseOperations) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := ops.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}

	rows, err := ops.db.QueryContext(ctx, `
		SELECT seq, call_id, tool_name, args, output, is_error, duration_ms
		FROM run_tool_calls WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls for %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			call ToolCall
			args string
		)
		if err := rows.Scan(&call.Seq, &call.CallID, &call.ToolName, &args, &call.Output, &call.IsError, &call.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		if err := json.Unmarshal([]byte(args), &call.Args); err != nil {
			return nil, fmt.Errorf("failed to decode args for %s: %w", call.ToolName, err)
		}
		run.ToolCalls = append(run.ToolCalls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tool calls: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs matching filter, newest first. Tool calls are not loaded.
func (ops *DatabaseOperations) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filter.SessionID)
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += " ORDER BY started_at DESC, run_id LIMIT ?"
	args = append(args, limit)

	rows, err := ops.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// CountByStatus tallies stored runs per final status.
func (ops *DatabaseOperations) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := ops.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status ORDER BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counts: %w", err)
	}
	return counts, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
