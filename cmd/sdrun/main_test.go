package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/sdrun/internal/mcp"
	"github.com/nvandessel/sdrun/internal/runner"
	"github.com/nvandessel/sdrun/internal/store"
)

const growthScenarios = `
growth:
  model:
    equations:
      birth_rate:
        value: 0.1
      births:
        type: flow
        expr: population * birth_rate
      population:
        type: stock
        initial: "100"
        inflows: [births]
  runspecs:
    starttime: 0
    stoptime: 3
    dt: 1
  scenarios:
    base: {}
    fast:
      constants:
        birth_rate: 0.5
`

// newTestRoot creates a project root holding the growth scenarios and
// isolates the command from SDRUN_* variables of the caller.
func newTestRoot(t *testing.T) string {
	t.Helper()
	for _, env := range []string{"SDRUN_LOG_LEVEL", "SDRUN_SCENARIOS_DIR", "SDRUN_DB_PATH", "SDRUN_METRICS_ADDR", "SDRUN_TRACING_ENABLED"} {
		t.Setenv(env, "")
	}
	root := t.TempDir()
	dir := filepath.Join(root, "scenarios")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "growth.yaml"), []byte(growthScenarios), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return root
}

// execute runs the root command against root and returns stdout and stderr.
func execute(t *testing.T, root string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--root", root}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNewRootCmd_Subcommands(t *testing.T) {
	want := []string{"config", "graph", "mcp-server", "results", "run", "scenarios", "step", "version"}
	cmd := newRootCmd()
	for _, name := range want {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	root := t.TempDir()

	out, _, err := execute(t, root, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if out != "sdrun version "+version+"\n" {
		t.Errorf("version output = %q", out)
	}

	out, _, err = execute(t, root, "version", "--json")
	if err != nil {
		t.Fatalf("version --json error = %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestScenariosCmd(t *testing.T) {
	root := newTestRoot(t)

	out, _, err := execute(t, root, "scenarios", "--json")
	if err != nil {
		t.Fatalf("scenarios error = %v", err)
	}
	var managers []mcp.ManagerSummary
	if err := json.Unmarshal([]byte(out), &managers); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(managers) != 1 || managers[0].Name != "growth" {
		t.Fatalf("managers = %+v, want only growth", managers)
	}
	var names []string
	for _, s := range managers[0].Scenarios {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"base", "fast"}, names); diff != "" {
		t.Errorf("scenarios mismatch (-want +got):\n%s", diff)
	}

	out, _, err = execute(t, root, "scenarios", "--equations")
	if err != nil {
		t.Fatalf("scenarios --equations error = %v", err)
	}
	for _, want := range []string{"MANAGER", "growth", "fast", "population"} {
		if !strings.Contains(out, want) {
			t.Errorf("scenarios output missing %q:\n%s", want, out)
		}
	}
}

func TestScenariosCmd_Empty(t *testing.T) {
	t.Setenv("SDRUN_SCENARIOS_DIR", "")
	out, _, err := execute(t, t.TempDir(), "scenarios")
	if err != nil {
		t.Fatalf("scenarios error = %v", err)
	}
	if !strings.Contains(out, "No scenarios found") {
		t.Errorf("output = %q, want the empty message", out)
	}
}

func TestRunCmd_Dict(t *testing.T) {
	root := newTestRoot(t)

	out, _, err := execute(t, root, "run", "-e", "population", "--json")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	var result mcp.RunOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if result.Format != "dict" {
		t.Errorf("Format = %q, want dict", result.Format)
	}

	tests := []struct {
		scenario string
		want     float64
	}{
		{"base", 121},
		{"fast", 225},
	}
	for _, tt := range tests {
		v := result.Results["growth"][tt.scenario]["population"]["2"]
		if v == nil || !near(*v, tt.want) {
			t.Errorf("%s population(2) = %v, want %v", tt.scenario, v, tt.want)
		}
	}
}

func TestRunCmd_TableAndDiagnostics(t *testing.T) {
	root := newTestRoot(t)

	out, stderr, err := execute(t, root, "run", "-e", "population", "-e", "populaton", "--format", "df")
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want header and 4 rows:\n%s", len(lines), out)
	}
	header := strings.Fields(lines[0])
	if diff := cmp.Diff([]string{"TIME", "growth_base_population", "growth_fast_population"}, header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(stderr, "populaton") {
		t.Errorf("stderr missing the unknown equation diagnostic:\n%s", stderr)
	}
}

func TestRunCmd_InvalidFormat(t *testing.T) {
	root := newTestRoot(t)
	if _, _, err := execute(t, root, "run", "-e", "population", "--format", "csv"); err == nil {
		t.Error("run --format csv succeeded, want error")
	}
}

func TestRunCmd_SaveAndResults(t *testing.T) {
	root := newTestRoot(t)

	out, _, err := execute(t, root, "run", "-e", "population", "--save", "--json")
	if err != nil {
		t.Fatalf("run --save error = %v", err)
	}
	var result mcp.RunOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if result.RunID == "" {
		t.Fatal("RunID is empty after --save")
	}

	out, _, err = execute(t, root, "results", "--json")
	if err != nil {
		t.Fatalf("results error = %v", err)
	}
	var listing struct {
		Runs  []store.RunSummary `json:"runs"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &listing); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if listing.Count != 1 || listing.Runs[0].ID != result.RunID || listing.Runs[0].Rows != 8 {
		t.Errorf("listing = %+v, want run %s with 8 rows", listing, result.RunID)
	}

	arrowPath := filepath.Join(root, "run.arrow")
	out, _, err = execute(t, root, "results", "--run-id", result.RunID, "--arrow", arrowPath, "--json")
	if err != nil {
		t.Fatalf("results --run-id error = %v", err)
	}
	var run store.Run
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if diff := cmp.Diff([]string{"population"}, run.Equations); diff != "" {
		t.Errorf("Equations mismatch (-want +got):\n%s", diff)
	}
	series, ok := run.Series("growth", "fast", "population")
	if !ok || !near(series.Values[2], 225) {
		t.Errorf("fast population = %+v, want 225 at t=2", series)
	}
	if info, err := os.Stat(arrowPath); err != nil || info.Size() == 0 {
		t.Errorf("arrow file not written: %v", err)
	}

	if _, _, err := execute(t, root, "results", "--run-id", result.RunID, "--delete"); err != nil {
		t.Fatalf("results --delete error = %v", err)
	}
	if _, _, err := execute(t, root, "results", "--run-id", result.RunID); err == nil {
		t.Error("results for a deleted run succeeded, want error")
	}
}

func TestResultsCmd_FlagsNeedRunID(t *testing.T) {
	root := newTestRoot(t)
	if _, _, err := execute(t, root, "results", "--delete"); err == nil {
		t.Error("results --delete without --run-id succeeded, want error")
	}
}

func TestStepCmd(t *testing.T) {
	root := newTestRoot(t)
	settings := filepath.Join(root, "settings.yaml")
	if err := os.WriteFile(settings, []byte("2:\n  growth:\n    base:\n      constants:\n        birth_rate: 0.5\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	out, _, err := execute(t, root, "step", "-m", "growth", "-s", "base", "-e", "population", "-e", "births",
		"--to", "2", "--settings", settings, "--json")
	if err != nil {
		t.Fatalf("step error = %v", err)
	}

	type stepLine struct {
		Step    float64                                  `json:"step"`
		Results map[string]map[string]map[string]float64 `json:"results"`
	}
	var steps []stepLine
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		var line stepLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("decoding %q: %v", sc.Text(), err)
		}
		steps = append(steps, line)
	}
	if len(steps) != 3 {
		t.Fatalf("got %d step lines, want 3:\n%s", len(steps), out)
	}

	last := steps[2].Results["base"]
	if got := last["population"]["2"]; !near(got, 121) {
		t.Errorf("population(2) = %v, want 121", got)
	}
	if got := last["births"]["2"]; !near(got, 60.5) {
		t.Errorf("births(2) = %v, want 60.5 after the override", got)
	}
}

func TestStepCmd_RequiresManager(t *testing.T) {
	root := newTestRoot(t)
	if _, _, err := execute(t, root, "step", "--to", "2"); err == nil {
		t.Error("step without --manager succeeded, want error")
	}
}

func TestStepTimes(t *testing.T) {
	tests := []struct {
		name           string
		from, to, step float64
		want           []float64
		wantErr        bool
	}{
		{"unit steps", 0, 3, 1, []float64{0, 1, 2, 3}, false},
		{"fractional", 0, 1, 0.25, []float64{0, 0.25, 0.5, 0.75, 1}, false},
		{"tenths", 0, 0.3, 0.1, []float64{0, 0.1, 0.2, 0.30000000000000004}, false},
		{"single", 2, 2, 1, []float64{2}, false},
		{"zero step", 0, 1, 0, nil, true},
		{"backwards", 3, 1, 1, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stepTimes(tt.from, tt.to, tt.step)
			if (err != nil) != tt.wantErr {
				t.Fatalf("stepTimes() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("stepTimes() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatchSchedule(t *testing.T) {
	base := runner.Settings{}
	base.Set("growth", "base", runner.Override{Constants: map[string]float64{"birth_rate": 0.5}})

	steps, err := stepTimes(0, 0.5, 0.1)
	if err != nil {
		t.Fatalf("stepTimes() error = %v", err)
	}

	tests := []struct {
		name    string
		keys    []float64
		want    []int
		wantErr string
	}{
		{"exact", []float64{0, 0.1}, []int{0, 1}, ""},
		{"inexact computed step", []float64{0.3}, []int{3}, ""},
		{"last step", []float64{0.5}, []int{5}, ""},
		{"between steps", []float64{0.25}, nil, "not one of the computed steps"},
		{"after last step", []float64{2}, nil, "not one of the computed steps"},
		{"same step twice", []float64{0.3, 0.30000000000000004}, nil, "name the same step"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := make(map[float64]runner.Settings, len(tt.keys))
			for _, k := range tt.keys {
				raw[k] = base
			}
			got, err := matchSchedule(raw, steps, 0.1)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("matchSchedule() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("matchSchedule() error = %v", err)
			}
			var positions []int
			for i := range got {
				positions = append(positions, i)
			}
			slices.Sort(positions)
			if diff := cmp.Diff(tt.want, positions); diff != "" {
				t.Errorf("matched steps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStepCmd_SettingsForUnknownStep(t *testing.T) {
	root := newTestRoot(t)
	settings := filepath.Join(root, "settings.yaml")
	if err := os.WriteFile(settings, []byte("7:\n  growth:\n    base:\n      constants:\n        birth_rate: 0.5\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, _, err := execute(t, root, "step", "-m", "growth", "--to", "2", "--settings", settings)
	if err == nil || !strings.Contains(err.Error(), "not one of the computed steps") {
		t.Errorf("step error = %v, want unmatched step error", err)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{121, "121"},
		{60.5, "60.5"},
		{math.NaN(), "-"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigCmd(t *testing.T) {
	root := newTestRoot(t)

	out, _, err := execute(t, root, "config", "path")
	if err != nil {
		t.Fatalf("config path error = %v", err)
	}
	wantPath := filepath.Join(root, ".sdrun", "config.yaml")
	if strings.TrimSpace(out) != wantPath {
		t.Errorf("config path = %q, want %q", out, wantPath)
	}

	if _, _, err := execute(t, root, "config", "init"); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Errorf("config file not written: %v", err)
	}
	if _, _, err := execute(t, root, "config", "init"); err == nil {
		t.Error("second config init succeeded without --force, want error")
	}

	out, _, err = execute(t, root, "config", "list", "--json")
	if err != nil {
		t.Fatalf("config list error = %v", err)
	}
	var cfg struct {
		Scenarios struct {
			Dir string `json:"dir"`
		} `json:"scenarios"`
	}
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if cfg.Scenarios.Dir != "scenarios" {
		t.Errorf("scenarios.dir = %q, want scenarios", cfg.Scenarios.Dir)
	}
}

func TestGraphCmd(t *testing.T) {
	root := newTestRoot(t)

	out, _, err := execute(t, root, "graph", "-m", "growth")
	if err != nil {
		t.Fatalf("graph error = %v", err)
	}
	for _, want := range []string{`digraph "growth"`, `"births" -> "population"`} {
		if !strings.Contains(out, want) {
			t.Errorf("graph output missing %q:\n%s", want, out)
		}
	}

	if _, _, err := execute(t, root, "graph", "-m", "absent"); err == nil {
		t.Error("graph for an unknown manager succeeded, want error")
	}
}

func TestResultsExportImportPrune(t *testing.T) {
	src := newTestRoot(t)
	for i := 0; i < 2; i++ {
		if _, _, err := execute(t, src, "run", "-e", "population", "--save"); err != nil {
			t.Fatalf("run --save error = %v", err)
		}
	}

	archive := filepath.Join(t.TempDir(), "runs.sdrun")
	out, _, err := execute(t, src, "results", "export", "-o", archive)
	if err != nil {
		t.Fatalf("results export error = %v", err)
	}
	if !strings.Contains(out, "Exported 2 runs (16 rows)") {
		t.Errorf("export output = %q", out)
	}

	dst := newTestRoot(t)
	out, _, err = execute(t, dst, "results", "import", archive, "--json")
	if err != nil {
		t.Fatalf("results import error = %v", err)
	}
	var imported struct {
		RunsRestored int `json:"runs_restored"`
		RowsRestored int `json:"rows_restored"`
	}
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if imported.RunsRestored != 2 || imported.RowsRestored != 16 {
		t.Errorf("import = %+v, want 2 runs and 16 rows", imported)
	}

	out, _, err = execute(t, dst, "results", "import", archive)
	if err != nil {
		t.Fatalf("second import error = %v", err)
	}
	if !strings.Contains(out, "skipped 2 existing") {
		t.Errorf("second import output = %q, want both runs skipped", out)
	}

	if _, _, err := execute(t, dst, "results", "prune"); err == nil {
		t.Error("prune without rules succeeded, want error")
	}
	out, _, err = execute(t, dst, "results", "prune", "--keep", "1", "--json")
	if err != nil {
		t.Fatalf("results prune error = %v", err)
	}
	var pruned struct {
		Deleted []string `json:"deleted"`
	}
	if err := json.Unmarshal([]byte(out), &pruned); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if len(pruned.Deleted) != 1 {
		t.Errorf("pruned %v, want one run", pruned.Deleted)
	}
}
