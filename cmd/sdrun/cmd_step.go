package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/nvandessel/sdrun/internal/runner"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newStepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Advance a scenario manager's scenarios one step at a time",
		Long: `Compute the scenarios of one manager step by step from --from to --to.

Each scenario keeps its engine between steps, so values already computed
stay fixed. A settings file can change constants or lookup points right
before a given step; the change affects that step and everything after it.

Settings file format (YAML):
  2:                     # step
    growth:              # scenario manager
      base:              # scenario
        constants:
          birth_rate: 0.5
        points:
          mortality: [[0, 0.01], [10, 0.05]]

Examples:
  sdrun step -m growth -e population --to 10
  sdrun step -m growth -s base -e population --from 0 --to 20 --every 0.5 --settings policy.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _ := cmd.Flags().GetString("manager")
			scenarios, _ := cmd.Flags().GetStringSlice("scenario")
			equations, _ := cmd.Flags().GetStringSlice("equation")
			from, _ := cmd.Flags().GetFloat64("from")
			to, _ := cmd.Flags().GetFloat64("to")
			every, _ := cmd.Flags().GetFloat64("every")
			settingsPath, _ := cmd.Flags().GetString("settings")
			jsonOut, _ := cmd.Flags().GetBool("json")

			if manager == "" {
				return fmt.Errorf("--manager is required")
			}
			steps, err := stepTimes(from, to, every)
			if err != nil {
				return err
			}
			schedule := map[int]runner.Settings{}
			if settingsPath != "" {
				raw, err := loadStepSettings(settingsPath)
				if err != nil {
					return err
				}
				if schedule, err = matchSchedule(raw, steps, every); err != nil {
					return fmt.Errorf("settings file %s: %w", settingsPath, err)
				}
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			r := a.runner()
			w := cmd.OutOrStdout()
			enc := json.NewEncoder(w)
			for i, step := range steps {
				result, err := r.RunScenarioStep(cmd.Context(), runner.StepRequest{
					Step:      step,
					Settings:  schedule[i],
					Manager:   manager,
					Scenarios: scenarios,
					Equations: equations,
				})
				if err != nil {
					return err
				}

				if jsonOut {
					if err := enc.Encode(map[string]any{"step": step, "results": result}); err != nil {
						return err
					}
					continue
				}
				printStep(w, step, result)
			}
			return nil
		},
	}

	cmd.Flags().StringP("manager", "m", "", "Scenario manager to step (required)")
	cmd.Flags().StringSliceP("scenario", "s", nil, "Scenario to step (repeatable, default: all)")
	cmd.Flags().StringSliceP("equation", "e", nil, "Equation to report (repeatable)")
	cmd.Flags().Float64("from", 0, "First step")
	cmd.Flags().Float64("to", 0, "Last step")
	cmd.Flags().Float64("every", 1, "Distance between steps")
	cmd.Flags().String("settings", "", "YAML file of per-step overrides")

	return cmd
}

// stepTimes lists from, from+every, ... up to to. Times are computed by
// multiplication so fractional steps do not drift.
func stepTimes(from, to, every float64) ([]float64, error) {
	if every <= 0 || math.IsNaN(every) {
		return nil, fmt.Errorf("--every must be positive, got %v", every)
	}
	if to < from {
		return nil, fmt.Errorf("--to %v is before --from %v", to, from)
	}
	n := int(math.Floor((to-from)/every + 1e-9))
	out := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, from+float64(i)*every)
	}
	return out, nil
}

// loadStepSettings reads step -> manager -> scenario -> override.
func loadStepSettings(path string) (map[float64]runner.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	var raw map[string]runner.Settings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing settings file %s: %w", path, err)
	}

	out := make(map[float64]runner.Settings, len(raw))
	for key, settings := range raw {
		step, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return nil, fmt.Errorf("settings file %s: step %q is not a number", path, key)
		}
		out[step] = settings
	}
	return out, nil
}

// matchSchedule assigns each settings key to the position of the step it
// names. Keys are compared within a fraction of --every, since computed
// steps such as 0.1*3 are not exact. A key that names no step is an error.
func matchSchedule(raw map[float64]runner.Settings, steps []float64, every float64) (map[int]runner.Settings, error) {
	out := make(map[int]runner.Settings, len(raw))
	if len(raw) == 0 {
		return out, nil
	}
	tolerance := every * 1e-6
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		i, found := slices.BinarySearch(steps, key)
		switch {
		case found:
		case i < len(steps) && steps[i]-key <= tolerance:
		case i > 0 && key-steps[i-1] <= tolerance:
			i--
		default:
			return nil, fmt.Errorf("step %v is not one of the computed steps", key)
		}
		if _, dup := out[i]; dup {
			return nil, fmt.Errorf("steps %v and %v name the same step", key, steps[i])
		}
		out[i] = raw[key]
	}
	return out, nil
}

// printStep writes one line per scenario. A step window holds a single
// time, so each equation has one value.
func printStep(w io.Writer, step float64, result runner.StepResult) {
	label := strconv.FormatFloat(step, 'f', -1, 64)
	for _, name := range slices.Sorted(maps.Keys(result)) {
		var parts []string
		for _, equation := range slices.Sorted(maps.Keys(result[name])) {
			for _, v := range result[name][equation] {
				parts = append(parts, equation+"="+formatValue(v))
			}
		}
		fmt.Fprintf(w, "step %s %s: %s\n", label, name, strings.Join(parts, " "))
	}
}
