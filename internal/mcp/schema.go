package mcp

import "github.com/nvandessel/sdrun/internal/scenario"

// Diagnostic is one message the runner emitted while serving a call.
type Diagnostic struct {
	Level   string `json:"level" jsonschema:"INFO or ERROR"`
	Message string `json:"message"`
}

// ScenariosInput defines the input for the sdrun_scenarios tool.
type ScenariosInput struct {
	Manager string `json:"manager,omitempty" jsonschema:"Only list this scenario manager"`
}

// ScenariosOutput defines the output for the sdrun_scenarios tool.
type ScenariosOutput struct {
	Managers []ManagerSummary `json:"managers" jsonschema:"Scenario managers in load order"`
	Count    int              `json:"count" jsonschema:"Number of scenarios listed"`
}

// ManagerSummary describes one scenario manager.
type ManagerSummary struct {
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	Model     string            `json:"model"`
	Equations []string          `json:"equations" jsonschema:"Equation names of the manager's model"`
	Scenarios []ScenarioSummary `json:"scenarios"`
}

// ScenarioSummary describes one scenario.
type ScenarioSummary struct {
	Name      string             `json:"name"`
	Runspecs  scenario.Runspecs  `json:"runspecs"`
	Constants map[string]float64 `json:"constants,omitempty"`
}

// RunInput defines the input for the sdrun_run tool.
type RunInput struct {
	Managers  []string `json:"managers,omitempty" jsonschema:"Scenario managers to run (default: all)"`
	Scenarios []string `json:"scenarios,omitempty" jsonschema:"Scenario names to run (default: all)"`
	Equations []string `json:"equations" jsonschema:"Equations to report"`
	Format    string   `json:"format,omitempty" jsonschema:"dict, json or df (default: dict)"`
	Save      bool     `json:"save,omitempty" jsonschema:"Persist the results to the results database"`
}

// Values maps formatted time to value. Null marks a time a series does not
// cover.
type Values map[string]*float64

// RunOutput defines the output for the sdrun_run tool. Results is set for
// dict and json, Table for df.
type RunOutput struct {
	Format      string                                  `json:"format"`
	Results     map[string]map[string]map[string]Values `json:"results,omitempty" jsonschema:"manager -> scenario -> equation -> time -> value"`
	Table       *Table                                  `json:"table,omitempty" jsonschema:"Wide table with one column per manager_scenario_equation"`
	RunID       string                                  `json:"run_id,omitempty" jsonschema:"Stored run id when save was requested"`
	Diagnostics []Diagnostic                            `json:"diagnostics,omitempty"`
}

// Table is the df output in column form.
type Table struct {
	Time    []float64             `json:"time"`
	Columns map[string][]*float64 `json:"columns"`
	Order   []string              `json:"order" jsonschema:"Column names in table order"`
}

// Override is a per-scenario set of changes for one step.
type Override struct {
	Constants map[string]float64      `json:"constants,omitempty"`
	Points    map[string][][2]float64 `json:"points,omitempty" jsonschema:"Lookup name -> [[x, y], ...]"`
}

// StepInput defines the input for the sdrun_step tool.
type StepInput struct {
	Manager   string              `json:"manager" jsonschema:"Scenario manager to step"`
	Scenarios []string            `json:"scenarios,omitempty" jsonschema:"Scenario names to step (default: all)"`
	Equations []string            `json:"equations" jsonschema:"Equations to report"`
	Step      float64             `json:"step" jsonschema:"Simulation time to compute"`
	Settings  map[string]Override `json:"settings,omitempty" jsonschema:"Scenario name -> overrides applied before this step"`
}

// StepOutput defines the output for the sdrun_step tool.
type StepOutput struct {
	Step        float64                      `json:"step"`
	Results     map[string]map[string]Values `json:"results" jsonschema:"scenario -> equation -> time -> value"`
	Diagnostics []Diagnostic                 `json:"diagnostics,omitempty"`
}
