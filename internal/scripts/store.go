package scripts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"beamline/internal/config"
)

// ErrNotFound reports an unknown script or execution id.
var ErrNotFound = errors.New("scripts: not found")

// Store manages script and execution persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the scripts database and applies
// migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "scripts.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path reports the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS scripts (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            content TEXT NOT NULL,
            created_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS executions (
            execution_id TEXT PRIMARY KEY,
            script_id TEXT NOT NULL REFERENCES scripts(id),
            state TEXT NOT NULL,
            error_message TEXT NOT NULL DEFAULT '',
            start_time_ns INTEGER NOT NULL DEFAULT 0,
            end_time_ns INTEGER NOT NULL DEFAULT 0
        )`,
		`CREATE INDEX IF NOT EXISTS idx_executions_script ON executions(script_id)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_state ON executions(state)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// SaveScript inserts an uploaded script.
func (s *Store) SaveScript(ctx context.Context, script *Script) error {
	if script.CreatedAt.IsZero() {
		script.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO scripts (id, name, content, created_at) VALUES (?, ?, ?, ?)`,
		script.ID,
		script.Name,
		script.Content,
		script.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert script: %w", err)
	}
	return nil
}

// GetScript fetches a script by id.
func (s *Store) GetScript(ctx context.Context, id string) (*Script, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, content, created_at FROM scripts WHERE id = ?`,
		id,
	)
	var script Script
	var createdAt string
	if err := row.Scan(&script.ID, &script.Name, &script.Content, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("script %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select script: %w", err)
	}
	if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		script.CreatedAt = parsed
	}
	return &script, nil
}

// ListScripts returns all uploaded scripts, newest first.
func (s *Store) ListScripts(ctx context.Context) ([]*Script, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, content, created_at FROM scripts ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	var out []*Script
	for rows.Next() {
		var script Script
		var createdAt string
		if err := rows.Scan(&script.ID, &script.Name, &script.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			script.CreatedAt = parsed
		}
		out = append(out, &script)
	}
	return out, rows.Err()
}

// InsertExecution records a freshly started execution.
func (s *Store) InsertExecution(ctx context.Context, exec *Execution) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO executions (execution_id, script_id, state, error_message, start_time_ns, end_time_ns)
         VALUES (?, ?, ?, ?, ?, ?)`,
		exec.ExecutionID,
		exec.ScriptID,
		string(exec.State),
		exec.ErrorMessage,
		exec.StartTimeNS,
		exec.EndTimeNS,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// UpdateExecution persists a state transition.
func (s *Store) UpdateExecution(ctx context.Context, exec *Execution) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE executions SET state = ?, error_message = ?, end_time_ns = ? WHERE execution_id = ?`,
		string(exec.State),
		exec.ErrorMessage,
		exec.EndTimeNS,
		exec.ExecutionID,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("execution %s: %w", exec.ExecutionID, ErrNotFound)
	}
	return nil
}

// GetExecution fetches an execution by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT execution_id, script_id, state, error_message, start_time_ns, end_time_ns
         FROM executions WHERE execution_id = ?`,
		id,
	)
	var exec Execution
	var state string
	if err := row.Scan(&exec.ExecutionID, &exec.ScriptID, &state, &exec.ErrorMessage, &exec.StartTimeNS, &exec.EndTimeNS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("execution %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("select execution: %w", err)
	}
	parsed, ok := ParseState(state)
	if !ok {
		return nil, fmt.Errorf("execution %s: corrupt state %q", id, state)
	}
	exec.State = parsed
	return &exec, nil
}

// ResetRunning marks executions left RUNNING by a previous daemon process as
// failed. Called once on startup, before the engine accepts work.
func (s *Store) ResetRunning(ctx context.Context, nowNS int64) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE executions SET state = ?, error_message = ?, end_time_ns = ?
         WHERE state = ?`,
		string(StateError),
		"daemon restarted during execution",
		nowNS,
		string(StateRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("reset running executions: %w", err)
	}
	return res.RowsAffected()
}
