package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"bugtriage/pkg/logx"
)

// Store owns the database handle and the session that tags every run written through it.
type Store struct {
	db        *sql.DB
	ops       *DatabaseOperations
	sessionID string
	logger    *logx.Logger
}

// Open initializes the database, marks sessions left active by earlier processes as crashed
// and starts a new session for command/model.
func Open(ctx context.Context, dbPath, command, model string) (*Store, error) {
	db, err := InitializeDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	logger := logx.NewLogger("persistence")

	stale, err := MarkStaleSessions(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if stale > 0 {
		logger.Warn("Marked %d stale session(s) as crashed", stale)
	}

	sessionID := uuid.NewString()
	if err := CreateSession(ctx, db, sessionID, command, model); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("📦 Run history opened: %s (session: %s)", dbPath, sessionID)

	return &Store{
		db:        db,
		ops:       NewDatabaseOperations(db, sessionID),
		sessionID: sessionID,
		logger:    logger,
	}, nil
}

// Ops exposes the run queries.
func (s *Store) Ops() *DatabaseOperations { return s.ops }

// SessionID is the session this store writes under.
func (s *Store) SessionID() string { return s.sessionID }

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close ends the session cleanly and closes the database.
func (s *Store) Close() error {
	if err := UpdateSessionStatus(context.Background(), s.db, s.sessionID, SessionStatusShutdown); err != nil {
		s.logger.Warn("Failed to close session %s: %v", s.sessionID, err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
