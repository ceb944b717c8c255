// Package history keeps a SQLite ledger of report runs.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xlttj/chreport/pkg/logging"

	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

// Run is one recorded invocation.
type Run struct {
	ID              string
	StartedAt       time.Time
	Duration        time.Duration
	Success         bool
	Stage           string
	Mode            string
	ResultsProduced int
	ReportPath      string
	Error           string
}

// Store manages the runs table.
type Store struct {
	db     *sql.DB
	mutex  sync.RWMutex
	dbPath string
}

// Open creates the database file and its directory if needed.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	// Create the file with 0600 before the driver does with its default mode
	if _, statErr := os.Stat(dbPath); os.IsNotExist(statErr) {
		f, ferr := os.OpenFile(dbPath, os.O_CREATE|os.O_RDONLY, 0600)
		if ferr == nil {
			_ = f.Close()
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	logging.LogDebug("Run history store initialized at: %s", dbPath)
	return store, nil
}

func (s *Store) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		success INTEGER NOT NULL,
		stage TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		results INTEGER NOT NULL DEFAULT 0,
		report_path TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts one run.
func (s *Store) Record(r Run) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	query := `
		INSERT INTO runs (id, started_at, duration_ms, success, stage, mode, results, report_path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query, r.ID, r.StartedAt.UnixMilli(), r.Duration.Milliseconds(), r.Success,
		r.Stage, r.Mode, r.ResultsProduced, r.ReportPath, r.Error)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	logging.LogDebug("Recorded run: %s", r.ID)
	return nil
}

const selectRuns = `SELECT id, started_at, duration_ms, success, stage, mode, results, report_path, error FROM runs`

// Recent returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.list(selectRuns+` ORDER BY started_at DESC, id LIMIT ?`, limit)
}

// Older returns the runs that fall outside the keep most recent ones.
func (s *Store) Older(keep int) ([]Run, error) {
	return s.list(selectRuns+` ORDER BY started_at DESC, id LIMIT -1 OFFSET ?`, max(keep, 0))
}

func (s *Store) Get(id string) (Run, error) {
	runs, err := s.list(selectRuns+` WHERE id = ?`, id)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return runs[0], nil
}

func (s *Store) list(query string, args ...any) ([]Run, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedMs, durationMs int64
		if err := rows.Scan(&r.ID, &startedMs, &durationMs, &r.Success, &r.Stage, &r.Mode,
			&r.ResultsProduced, &r.ReportPath, &r.Error); err != nil {
			logging.LogError("Failed to scan run row: %v", err)
			continue
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes a run by ID.
func (s *Store) Delete(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result, err := s.db.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	logging.LogDebug("Deleted run: %s", id)
	return nil
}
