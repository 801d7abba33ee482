// Package artifacts persists the pipeline's stage-completion ledger in
// SQLite. A stage is complete for a given configuration/input
// fingerprint when a ledger row exists and every recorded output file
// is still present; a missing row is the normal "not yet run" state,
// not an error.
package artifacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotRun marks a stage/fingerprint pair with no ledger entry.
var ErrNotRun = errors.New("stage has not run")

// Store manages the ledger database.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS stage_runs (
    id          TEXT PRIMARY KEY,
    stage       TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    outputs     TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    UNIQUE (stage, fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_stage_runs_stage ON stage_runs (stage);
`

// Open initializes or connects to the ledger database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}

	dbPath := filepath.Join(dir, "ledger.db")
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

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Run is one recorded stage completion.
type Run struct {
	ID          string
	Stage       string
	Fingerprint string
	Outputs     []string
	CreatedAt   time.Time
}

// Record stores a completed stage run, replacing any previous entry
// for the same stage and fingerprint.
func (s *Store) Record(ctx context.Context, stage, fingerprint string, outputs []string) (string, error) {
	encoded, err := json.Marshal(outputs)
	if err != nil {
		return "", fmt.Errorf("encode outputs: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO stage_runs (id, stage, fingerprint, outputs, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT (stage, fingerprint) DO UPDATE SET
             id = excluded.id,
             outputs = excluded.outputs,
             created_at = excluded.created_at`,
		id,
		stage,
		fingerprint,
		string(encoded),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("record stage run: %w", err)
	}
	return id, nil
}

// Lookup returns the recorded run for a stage/fingerprint pair, or
// ErrNotRun when none exists.
func (s *Store) Lookup(ctx context.Context, stage, fingerprint string) (*Run, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, stage, fingerprint, outputs, created_at
         FROM stage_runs WHERE stage = ? AND fingerprint = ?`,
		stage, fingerprint,
	)

	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", stage, ErrNotRun)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup stage run: %w", err)
	}
	return run, nil
}

// Completed reports whether the stage has run for this fingerprint and
// all its recorded outputs still exist on disk. A missing ledger row
// or a missing output file both read as "not yet run".
func (s *Store) Completed(ctx context.Context, stage, fingerprint string) (bool, error) {
	run, err := s.Lookup(ctx, stage, fingerprint)
	if errors.Is(err, ErrNotRun) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, out := range run.Outputs {
		if _, statErr := os.Stat(out); statErr != nil {
			return false, nil
		}
	}
	return true, nil
}

// Runs returns all recorded stage runs, most recent first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, stage, fingerprint, outputs, created_at
         FROM stage_runs ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list stage runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage runs: %w", err)
	}
	return runs, nil
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var outputs, createdAt string
	if err := scan(&run.ID, &run.Stage, &run.Fingerprint, &outputs, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(outputs), &run.Outputs); err != nil {
		return nil, fmt.Errorf("decode outputs: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	run.CreatedAt = ts
	return &run, nil
}
