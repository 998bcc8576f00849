// Package store persists full-run results in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// DBFile is the database file name inside the state directory.
const DBFile = "results.db"

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Result is one stored value in long format.
type Result struct {
	Manager  string  `json:"scenario_manager"`
	Scenario string  `json:"scenario"`
	Equation string  `json:"equation"`
	Time     float64 `json:"time"`
	Value    float64 `json:"value"`
}

// Run is a persisted full run.
type Run struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      string    `json:"kind"`
	Equations []string  `json:"equations"`
	Results   []Result  `json:"results,omitempty"`
}

// RunSummary describes a stored run without its rows.
type RunSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      string    `json:"kind"`
	Equations []string  `json:"equations"`
	Rows      int       `json:"rows"`
}

// SQLiteStore stores runs in a single SQLite database.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// DefaultPath is the database location for a project root.
func DefaultPath(root string) string {
	return filepath.Join(root, ".sdrun", DBFile)
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun writes the run and all its rows in one transaction. An empty ID is
// filled with a new UUID and a zero CreatedAt with the current time; the
// stored id is returned.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	equations, err := json.Marshal(nonNil(run.Equations))
	if err != nil {
		return "", fmt.Errorf("failed to encode equations: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, kind, equations) VALUES (?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(time.RFC3339Nano), run.Kind, string(equations)); err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO simulation_results (run_id, scenario_manager, scenario, equation, time, value)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range run.Results {
		if _, err := stmt.ExecContext(ctx, run.ID, r.Manager, r.Scenario, r.Equation, r.Time, nullFloat(r.Value)); err != nil {
			return "", fmt.Errorf("failed to insert result %s/%s/%s at %v: %w", r.Manager, r.Scenario, r.Equation, r.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// ListRuns returns stored runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.created_at, r.kind, r.equations,
		       (SELECT COUNT(*) FROM simulation_results sr WHERE sr.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC, r.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var sum RunSummary
		var created, equations string
		if err := rows.Scan(&sum.ID, &created, &sum.Kind, &equations, &sum.Rows); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if sum.CreatedAt, sum.Equations, err = decodeRunColumns(created, equations); err != nil {
			return nil, fmt.Errorf("run %s: %w", sum.ID, err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// LoadRun returns the run with all its rows ordered by manager, scenario,
// equation and time.
func (s *SQLiteStore) LoadRun(ctx context.Context, id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{ID: id}
	var created, equations string
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, kind, equations FROM runs WHERE id = ?`, id).
		Scan(&created, &run.Kind, &equations)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", id, err)
	}
	if run.CreatedAt, run.Equations, err = decodeRunColumns(created, equations); err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario_manager, scenario, equation, time, value
		FROM simulation_results
		WHERE run_id = ?
		ORDER BY scenario_manager, scenario, equation, time`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query results for run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Result
		var value sql.NullFloat64
		if err := rows.Scan(&r.Manager, &r.Scenario, &r.Equation, &r.Time, &value); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Value = math.NaN()
		if value.Valid {
			r.Value = value.Float64
		}
		run.Results = append(run.Results, r)
	}
	return run, rows.Err()
}

// DeleteRun removes a run and its rows.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func decodeRunColumns(created, equations string) (time.Time, []string, error) {
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("invalid created_at %q: %w", created, err)
	}
	var names []string
	if err := json.Unmarshal([]byte(equations), &names); err != nil {
		return time.Time{}, nil, fmt.Errorf("invalid equations column: %w", err)
	}
	return t, names, nil
}

// NaN has no SQLite representation and is stored as NULL.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
