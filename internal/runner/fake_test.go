package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nvandessel/sdrun/internal/engine"
	"github.com/nvandessel/sdrun/internal/frame"
	"github.com/nvandessel/sdrun/internal/model"
	"github.com/nvandessel/sdrun/internal/scenario"
)

var errEngine = errors.New("engine exploded")

// fakeHandle reports every constant it was given as the value of that
// equation, and t*10 for any other equation the model defines.
type fakeHandle struct {
	model     *model.Model
	name      string
	constants map[string]float64
	points    map[string][]model.Point
	runspecs  scenario.Runspecs
	starts    []engine.StartOptions
	calls     []string
	startErr  error
}

func (h *fakeHandle) ChangeEquation(name string, value float64) {
	h.constants[name] = value
	h.calls = append(h.calls, "equation:"+name)
}

func (h *fakeHandle) ChangePoints(name string, points []model.Point) {
	h.points[name] = points
	h.calls = append(h.calls, "points:"+name)
}

func (h *fakeHandle) ChangeRunspecs(start, stop, dt float64) {
	h.runspecs = scenario.Runspecs{Start: start, Stop: stop, DT: dt}
	h.calls = append(h.calls, "runspecs")
}

func (h *fakeHandle) Start(ctx context.Context, opts engine.StartOptions) (*frame.Frame, error) {
	h.starts = append(h.starts, opts)
	if h.startErr != nil {
		return nil, h.startErr
	}

	var index []float64
	if opts.Start != nil {
		index = []float64{*opts.Start}
	} else {
		for t := h.runspecs.Start; t <= h.runspecs.Stop; t += h.runspecs.DT {
			index = append(index, t)
		}
	}

	f := frame.New(index)
	for _, eq := range opts.Equations {
		if !h.model.Has(eq) {
			continue
		}
		col := make([]float64, len(index))
		for i, t := range index {
			if v, ok := h.constants[eq]; ok {
				col[i] = v
			} else {
				col[i] = t * 10
			}
		}
		_ = f.Set(eq, col)
	}
	return f, nil
}

type fakeFactory struct {
	mu       sync.Mutex
	handles  []*fakeHandle
	newErr   error
	startErr error
}

func (f *fakeFactory) New(m *model.Model, name string) (engine.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	h := &fakeHandle{
		model:     m,
		name:      name,
		constants: make(map[string]float64),
		points:    make(map[string][]model.Point),
		startErr:  f.startErr,
	}
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

type countingRecorder struct {
	mu         sync.Mutex
	runs       map[string]int
	unresolved int
	empty      int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{runs: make(map[string]int)}
}

func (r *countingRecorder) ObserveRun(mode string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[mode]++
}

func (r *countingRecorder) UnresolvedEquation() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresolved++
}

func (r *countingRecorder) EmptyCatalogQuery() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.empty++
}

func equationModel(names ...string) *model.Model {
	eqs := make(map[string]model.Equation, len(names))
	for _, n := range names {
		eqs[n] = model.Equation{Type: model.TypeConstant}
	}
	return model.New("test", eqs, names...)
}

func newScenario(manager, name string, m *model.Model) *scenario.Scenario {
	return &scenario.Scenario{
		Name:      name,
		Manager:   manager,
		Model:     m,
		Constants: map[string]float64{},
		Points:    map[string][]model.Point{},
		Runspecs:  scenario.Runspecs{Start: 0, Stop: 2, DT: 1},
	}
}
