package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession records the start of a session.
func CreateSession(ctx context.Context, db *sql.DB, sessionID, command, model string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, command, model, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, command, model, SessionStatusActive, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// UpdateSessionStatus sets the status; terminal statuses also stamp ended_at.
func UpdateSessionStatus(ctx context.Context, db *sql.DB, sessionID, status string) error {
	var (
		result sql.Result
		err    error
	)
	if status == SessionStatusShutdown || status == SessionStatusCrashed {
		result, err = db.ExecContext(ctx, `
			UPDATE sessions SET status = ?, ended_at = ? WHERE session_id = ?
		`, status, formatTime(time.Now()), sessionID)
	} else {
		result, err = db.ExecContext(ctx, `UPDATE sessions SET status = ? WHERE session_id = ?`, status, sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession returns a session by ID, or ErrSessionNotFound.
func GetSession(ctx context.Context, db *sql.DB, sessionID string) (*Session, error) {
	var (
		session   Session
		startedAt string
		endedAt   sql.NullString
	)
	err := db.QueryRowContext(ctx, `
		SELECT session_id, command, model, status, started_at, ended_at
		FROM sessions WHERE session_id = ?
	`, sessionID).Scan(&session.SessionID, &session.Command, &session.Model, &session.Status, &startedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	session.StartedAt = parseTime(startedAt)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		session.EndedAt = &t
	}
	return &session, nil
}

// MarkStaleSessions marks sessions still 'active' as 'crashed'. Called at startup, before the
// new session is created, to flag processes that exited without closing their store.
func MarkStaleSessions(ctx context.Context, db *sql.DB) (int64, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, ended_at = ? WHERE status = ?
	`, SessionStatusCrashed, formatTime(time.Now()), SessionStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
