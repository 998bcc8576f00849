package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/nvandessel/sdrun/internal/export"
	"github.com/nvandessel/sdrun/internal/frame"
	"github.com/nvandessel/sdrun/internal/mcp"
	"github.com/nvandessel/sdrun/internal/runner"
	"github.com/nvandessel/sdrun/internal/store"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run scenarios over their full time window",
		Long: `Run every matching scenario with a fresh engine and report the requested
equations.

Formats:
  dict  manager -> scenario -> equation -> series (default)
  json  the same tree with each series keyed by time
  df    one wide table with a manager_scenario_equation column per series

Equations that no scenario model defines are reported on stderr with
close matches and skipped.

Examples:
  sdrun run -e population
  sdrun run -m growth -s base -s fast -e population -e births --format df
  sdrun run -e population --save --arrow population.arrow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			managers, _ := cmd.Flags().GetStringSlice("manager")
			scenarios, _ := cmd.Flags().GetStringSlice("scenario")
			equations, _ := cmd.Flags().GetStringSlice("equation")
			format, _ := cmd.Flags().GetString("format")
			save, _ := cmd.Flags().GetBool("save")
			arrowPath, _ := cmd.Flags().GetString("arrow")
			jsonOut, _ := cmd.Flags().GetBool("json")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if format == "" {
				format = a.cfg.Output.DefaultFormat
			}
			kind, err := runner.ParseOutputKind(format)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			acc := make(runner.Accumulator)
			out, err := a.runner().RunScenarios(ctx, runner.Request{
				Managers:  managers,
				Scenarios: scenarios,
				Equations: equations,
				Kind:      kind,
			}, acc)
			if err != nil {
				return err
			}

			var runID string
			if (save || a.cfg.Store.Enabled) && !out.Empty() {
				s, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer s.Close()
				if runID, err = s.SaveRun(ctx, store.NewRun(string(kind), equations, acc)); err != nil {
					return fmt.Errorf("failed to save run: %w", err)
				}
			}

			if arrowPath != "" {
				if err := writeArrowFile(arrowPath, wideTable(acc)); err != nil {
					return err
				}
			}

			if jsonOut {
				result := mcp.RunOutput{Format: string(kind), RunID: runID}
				if kind == runner.OutputDF {
					result.Table = mcp.TableOf(out.Table)
				} else {
					result.Results = mcp.ResultsOf(out.Tree)
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}

			w := cmd.OutOrStdout()
			if kind == runner.OutputDF {
				printTable(w, out.Table)
			} else {
				printTree(w, out.Tree)
			}
			if runID != "" {
				fmt.Fprintf(w, "\nSaved run %s\n", runID)
			}
			if arrowPath != "" {
				fmt.Fprintf(w, "Wrote %s\n", arrowPath)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceP("manager", "m", nil, "Scenario manager to run (repeatable, default: all)")
	cmd.Flags().StringSliceP("scenario", "s", nil, "Scenario to run (repeatable, default: all)")
	cmd.Flags().StringSliceP("equation", "e", nil, "Equation to report (repeatable)")
	cmd.Flags().String("format", "", "Output format: dict, json or df (default from config)")
	cmd.Flags().Bool("save", false, "Persist the results to the results database")
	cmd.Flags().String("arrow", "", "Also write the results as an Arrow IPC file")

	return cmd
}

// wideTable joins every accumulated series into one table.
func wideTable(acc runner.Accumulator) *frame.Frame {
	wide := frame.New(nil)
	acc.Walk(func(manager, scenarioName, equation string, s frame.Series) {
		wide.Join(runner.ColumnName(manager, scenarioName, equation), s)
	})
	return wide
}

func writeArrowFile(path string, f *frame.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.WriteArrow(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func printTree(w io.Writer, tree runner.Accumulator) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MANAGER\tSCENARIO\tEQUATION\tTIME\tVALUE")
	tree.Walk(func(manager, scenarioName, equation string, s frame.Series) {
		for i, t := range s.Index {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", manager, scenarioName, equation, frame.FormatTime(t), formatValue(s.Values[i]))
		}
	})
	tw.Flush()
}

func printTable(w io.Writer, f *frame.Frame) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprint(tw, "TIME")
	columns := f.Columns()
	for _, name := range columns {
		fmt.Fprintf(tw, "\t%s", name)
	}
	fmt.Fprintln(tw)

	series := make([]frame.Series, len(columns))
	for i, name := range columns {
		series[i], _ = f.Series(name)
	}
	for row, t := range f.Index() {
		fmt.Fprint(tw, frame.FormatTime(t))
		for _, s := range series {
			fmt.Fprintf(tw, "\t%s", formatValue(s.Values[row]))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

// formatValue prints NaN cells, times a series does not cover, as "-".
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
