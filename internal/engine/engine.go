// Package engine defines the contract between the scenario runner and a
// stateful simulation instance.
package engine

import (
	"context"

	"github.com/nvandessel/sdrun/internal/frame"
	"github.com/nvandessel/sdrun/internal/model"
)

// OutputFrame is the artifact kind requesting a result table.
const OutputFrame = "frame"

// StartOptions controls a single execution call. Nil Start/Until mean "use
// the configured run bounds".
type StartOptions struct {
	Output    []string
	Start     *float64
	Until     *float64
	Equations []string
}

// Handle is a stateful per-scenario simulation instance. Implementations
// are not safe for concurrent use.
type Handle interface {
	// ChangeEquation overrides a constant. Last write wins.
	ChangeEquation(name string, value float64)
	// ChangePoints overrides a lookup table's points.
	ChangePoints(name string, points []model.Point)
	// ChangeRunspecs sets the run bounds.
	ChangeRunspecs(start, stop, dt float64)
	// Start executes and returns the result table for the requested
	// equations over the requested window.
	Start(ctx context.Context, opts StartOptions) (*frame.Frame, error)
}

// Factory creates a fresh handle for a model.
type Factory func(m *model.Model, name string) (Handle, error)

// Window returns options for a single-point window at t.
func Window(t float64, equations []string) StartOptions {
	return StartOptions{
		Output:    []string{OutputFrame},
		Start:     &t,
		Until:     &t,
		Equations: equations,
	}
}
