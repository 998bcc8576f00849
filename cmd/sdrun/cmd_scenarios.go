package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/nvandessel/sdrun/internal/mcp"
	"github.com/spf13/cobra"
)

func newScenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List scenario managers and their scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			showEquations, _ := cmd.Flags().GetBool("equations")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			managers := listManagers(a)
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(managers)
			}

			w := cmd.OutOrStdout()
			if len(managers) == 0 {
				fmt.Fprintf(w, "No scenarios found in %s\n", a.cfg.ScenariosDir(a.root))
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MANAGER\tSCENARIO\tSTART\tSTOP\tDT\tCONSTANTS")
			for _, m := range managers {
				for _, s := range m.Scenarios {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", m.Name, s.Name,
						formatValue(s.Runspecs.Start), formatValue(s.Runspecs.Stop), formatValue(s.Runspecs.DT), len(s.Constants))
				}
			}
			tw.Flush()

			if showEquations {
				for _, m := range managers {
					fmt.Fprintf(w, "\n%s (model %s):\n", m.Name, m.Model)
					for _, eq := range m.Equations {
						fmt.Fprintf(w, "  %s\n", eq)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().Bool("equations", false, "Also list each manager's model equations")

	return cmd
}

func listManagers(a *app) []mcp.ManagerSummary {
	out := []mcp.ManagerSummary{}
	for _, name := range a.catalog.Managers() {
		kind, _ := a.catalog.Kind(name)
		summary := mcp.ManagerSummary{Name: name, Kind: string(kind), Equations: []string{}}
		for _, sc := range a.catalog.GetScenarios([]string{name}, nil, "") {
			if summary.Model == "" && sc.Model != nil {
				summary.Model = sc.Model.Name
				summary.Equations = sc.Model.Names()
			}
			summary.Scenarios = append(summary.Scenarios, mcp.ScenarioSummary{
				Name:      sc.Name,
				Runspecs:  sc.Runspecs,
				Constants: sc.Constants,
			})
		}
		out = append(out, summary)
	}
	return out
}
