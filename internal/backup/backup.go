// Package backup exports saved runs to portable archive files, imports
// them into another results database, and prunes old runs.
package backup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nvandessel/sdrun/internal/store"
)

// RunStore is the part of the results store backups need.
// *store.SQLiteStore implements it.
type RunStore interface {
	ListRuns(ctx context.Context) ([]store.RunSummary, error)
	LoadRun(ctx context.Context, id string) (*store.Run, error)
	SaveRun(ctx context.Context, run store.Run) (string, error)
	DeleteRun(ctx context.Context, id string) error
}

// Archive is the JSON payload of an archive file.
type Archive struct {
	Version   int           `json:"version"`
	CreatedAt time.Time     `json:"created_at"`
	Runs      []ArchivedRun `json:"runs"`
}

// ArchivedRun is one saved run. Values are pointers so NaN survives JSON
// as null.
type ArchivedRun struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      string    `json:"kind"`
	Equations []string  `json:"equations"`
	Rows      []Row     `json:"rows"`
}

// Row is one archived value.
type Row struct {
	Manager  string   `json:"scenario_manager"`
	Scenario string   `json:"scenario"`
	Equation string   `json:"equation"`
	Time     float64  `json:"time"`
	Value    *float64 `json:"value"`
}

// Rows returns the number of rows across all runs.
func (a *Archive) Rows() int {
	n := 0
	for _, r := range a.Runs {
		n += len(r.Rows)
	}
	return n
}

// Export archives the runs with the given ids, or every run when ids is
// empty.
func Export(ctx context.Context, s RunStore, ids []string) (*Archive, error) {
	if len(ids) == 0 {
		runs, err := s.ListRuns(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		for _, r := range runs {
			ids = append(ids, r.ID)
		}
	}

	a := &Archive{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Runs:      make([]ArchivedRun, 0, len(ids)),
	}
	for _, id := range ids {
		run, err := s.LoadRun(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", id, err)
		}
		a.Runs = append(a.Runs, archiveRun(run))
	}
	return a, nil
}

// RestoreMode controls how Import handles runs that already exist.
type RestoreMode string

const (
	// RestoreMerge skips runs whose id already exists (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace deletes an existing run before importing it.
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult contains statistics about an import.
type RestoreResult struct {
	RunsRestored int `json:"runs_restored"`
	RunsSkipped  int `json:"runs_skipped"`
	RowsRestored int `json:"rows_restored"`
}

// Import saves the runs of a into s, keeping their ids.
func Import(ctx context.Context, s RunStore, a *Archive, mode RestoreMode) (*RestoreResult, error) {
	if a.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported archive version: %d", a.Version)
	}

	result := &RestoreResult{}
	for _, ar := range a.Runs {
		_, err := s.LoadRun(ctx, ar.ID)
		switch {
		case err == nil && mode == RestoreReplace:
			if err := s.DeleteRun(ctx, ar.ID); err != nil {
				return nil, fmt.Errorf("failed to replace run %s: %w", ar.ID, err)
			}
		case err == nil:
			result.RunsSkipped++
			continue
		case !errors.Is(err, store.ErrRunNotFound):
			return nil, fmt.Errorf("failed to check existing run %s: %w", ar.ID, err)
		}

		if _, err := s.SaveRun(ctx, restoreRun(ar)); err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", ar.ID, err)
		}
		result.RunsRestored++
		result.RowsRestored += len(ar.Rows)
	}
	return result, nil
}

func archiveRun(run *store.Run) ArchivedRun {
	ar := ArchivedRun{
		ID:        run.ID,
		CreatedAt: run.CreatedAt,
		Kind:      run.Kind,
		Equations: run.Equations,
		Rows:      make([]Row, len(run.Results)),
	}
	for i, r := range run.Results {
		row := Row{Manager: r.Manager, Scenario: r.Scenario, Equation: r.Equation, Time: r.Time}
		if !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0) {
			v := r.Value
			row.Value = &v
		}
		ar.Rows[i] = row
	}
	return ar
}

func restoreRun(ar ArchivedRun) store.Run {
	run := store.Run{
		ID:        ar.ID,
		CreatedAt: ar.CreatedAt,
		Kind:      ar.Kind,
		Equations: ar.Equations,
		Results:   make([]store.Result, len(ar.Rows)),
	}
	for i, r := range ar.Rows {
		v := math.NaN()
		if r.Value != nil {
			v = *r.Value
		}
		run.Results[i] = store.Result{Manager: r.Manager, Scenario: r.Scenario, Equation: r.Equation, Time: r.Time, Value: v}
	}
	return run
}
