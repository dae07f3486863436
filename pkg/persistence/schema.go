// Package persistence stores triage run history in SQLite.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"bugtriage/pkg/logx"
)

// migration moves the schema from version-1 to version. migrations[i] produces version i+1.
type migration struct {
	version int
	name    string
	stmts   []string
}

//nolint:gochecknoglobals // schema history
var migrations = []migration{
	{1, "runs and tool calls", []string{
		`CREATE TABLE runs (
			run_id TEXT PRIMARY KEY,
			input TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT '',
			action_taken TEXT NOT NULL DEFAULT '',
			ticket_id TEXT NOT NULL DEFAULT '',
			created_ticket_id TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			tools_used TEXT NOT NULL DEFAULT '[]',
			states TEXT NOT NULL DEFAULT '[]',
			steps_taken INTEGER NOT NULL DEFAULT 0,
			retries INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE run_tool_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			call_id TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL,
			args TEXT NOT NULL DEFAULT '{}',
			output TEXT NOT NULL DEFAULT '',
			is_error INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX idx_runs_started ON runs(started_at)`,
		`CREATE INDEX idx_runs_status ON runs(status)`,
		`CREATE INDEX idx_tool_calls_run ON run_tool_calls(run_id, seq)`,
	}},
	{2, "process sessions", []string{
		`CREATE TABLE sessions (
			session_id TEXT PRIMARY KEY,
			command TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','shutdown','crashed')),
			started_at TEXT NOT NULL,
			ended_at TEXT
		)`,
		`ALTER TABLE runs ADD COLUMN session_id TEXT NOT NULL DEFAULT ''`,
		`CREATE INDEX idx_runs_session ON runs(session_id)`,
	}},
}

// CurrentSchemaVersion is the version a freshly opened database ends up at.
var CurrentSchemaVersion = migrations[len(migrations)-1].version

// InitializeDatabase opens the database at dbPath, creating its directory, and migrates it
// to CurrentSchemaVersion. ":memory:" is accepted for tests.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: SQLite has a single writer and ":memory:" is per connection
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	current, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, CurrentSchemaVersion)
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration to version %d (%s) failed: %w", m.version, m.name, err)
		}
		logx.NewLogger("persistence").Info("Database migrated to schema version %d (%s)", m.version, m.name)
	}
	return nil
}

// apply runs one migration and records its version in a single transaction.
func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\n%s", err, stmt)
		}
	}
	if err := setSchemaVersion(tx, m.version); err != nil {
		return err
	}
	return tx.Commit() //nolint:wrapcheck // reported by migrate
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func setSchemaVersion(db execer, version int) error {
	if _, err := db.Exec(`INSERT OR REPLACE INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", version, err)
	}
	return nil
}

// GetSchemaVersion returns the highest applied migration, 0 for an empty database. It
// creates the version table when missing.
func GetSchemaVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
