package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/nvandessel/sdrun/internal/backup"
	"github.com/nvandessel/sdrun/internal/frame"
	"github.com/nvandessel/sdrun/internal/runner"
	"github.com/spf13/cobra"
)

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show saved runs",
		Long: `List the runs saved with "sdrun run --save", or print one run's rows.

Examples:
  sdrun results
  sdrun results --run-id 5b0e...
  sdrun results --run-id 5b0e... --arrow run.arrow
  sdrun results --run-id 5b0e... --delete`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("run-id")
			arrowPath, _ := cmd.Flags().GetString("arrow")
			del, _ := cmd.Flags().GetBool("delete")
			jsonOut, _ := cmd.Flags().GetBool("json")

			if runID == "" && (arrowPath != "" || del) {
				return fmt.Errorf("--arrow and --delete need --run-id")
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			w := cmd.OutOrStdout()
			enc := json.NewEncoder(w)

			if runID == "" {
				runs, err := s.ListRuns(ctx)
				if err != nil {
					return err
				}
				if jsonOut {
					return enc.Encode(map[string]any{"runs": runs, "count": len(runs)})
				}
				if len(runs) == 0 {
					fmt.Fprintln(w, "No saved runs.")
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tCREATED\tFORMAT\tEQUATIONS\tROWS")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
						r.Kind, strings.Join(r.Equations, ","), r.Rows)
				}
				return tw.Flush()
			}

			if del {
				if err := s.DeleteRun(ctx, runID); err != nil {
					return err
				}
				if jsonOut {
					return enc.Encode(map[string]any{"deleted": runID})
				}
				fmt.Fprintf(w, "Deleted run %s\n", runID)
				return nil
			}

			run, err := s.LoadRun(ctx, runID)
			if err != nil {
				return err
			}

			if arrowPath != "" {
				wide := frame.New(nil)
				run.Walk(func(manager, scenarioName, equation string, series frame.Series) {
					wide.Join(runner.ColumnName(manager, scenarioName, equation), series)
				})
				if err := writeArrowFile(arrowPath, wide); err != nil {
					return err
				}
			}

			if jsonOut {
				return enc.Encode(run)
			}
			fmt.Fprintf(w, "Run %s (%s, saved %s)\n\n", run.ID, run.Kind, run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MANAGER\tSCENARIO\tEQUATION\tTIME\tVALUE")
			for _, row := range run.Results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Manager, row.Scenario, row.Equation,
					frame.FormatTime(row.Time), formatValue(row.Value))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if arrowPath != "" {
				fmt.Fprintf(w, "Wrote %s\n", arrowPath)
			}
			return nil
		},
	}

	cmd.Flags().String("run-id", "", "Run to print (default: list runs)")
	cmd.Flags().String("arrow", "", "Write the run as an Arrow IPC file")
	cmd.Flags().Bool("delete", false, "Delete the run instead of printing it")

	cmd.AddCommand(
		newResultsExportCmd(),
		newResultsImportCmd(),
		newResultsPruneCmd(),
	)

	return cmd
}

func newResultsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write saved runs to an archive file",
		Long: `Write saved runs to a checksummed, compressed archive that
"sdrun results import" reads back.

Examples:
  sdrun results export -o runs.sdrun
  sdrun results export --run-id 5b0e... --run-id 9c1f... -o two.sdrun`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, _ := cmd.Flags().GetStringSlice("run-id")
			output, _ := cmd.Flags().GetString("output")
			jsonOut, _ := cmd.Flags().GetBool("json")
			if output == "" {
				return fmt.Errorf("--output is required")
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			archive, err := backup.Export(ctx, s, ids)
			if err != nil {
				return err
			}
			if err := backup.WriteFile(output, archive); err != nil {
				return fmt.Errorf("failed to write archive: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"path": output, "runs": len(archive.Runs), "rows": archive.Rows(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d runs (%d rows) to %s\n", len(archive.Runs), archive.Rows(), output)
			return nil
		},
	}

	cmd.Flags().StringSlice("run-id", nil, "Run to export (repeatable, default: all)")
	cmd.Flags().StringP("output", "o", "", "Archive file to write (required)")

	return cmd
}

func newResultsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Load runs from an archive file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replace, _ := cmd.Flags().GetBool("replace")
			jsonOut, _ := cmd.Flags().GetBool("json")

			archive, err := backup.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read archive: %w", err)
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			mode := backup.RestoreMerge
			if replace {
				mode = backup.RestoreReplace
			}
			result, err := backup.Import(ctx, s, archive, mode)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d runs (%d rows), skipped %d existing\n",
				result.RunsRestored, result.RowsRestored, result.RunsSkipped)
			return nil
		},
	}

	cmd.Flags().Bool("replace", false, "Overwrite runs that already exist")

	return cmd
}

func newResultsPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old saved runs",
		Long: `Delete saved runs that no retention rule keeps. A run survives if any
of --keep, --max-age or --max-rows keeps it.

Examples:
  sdrun results prune --keep 20
  sdrun results prune --max-age 30d --dry-run
  sdrun results prune --keep 5 --max-rows 1000000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")
			maxRows, _ := cmd.Flags().GetInt("max-rows")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			jsonOut, _ := cmd.Flags().GetBool("json")

			var policies []backup.RetentionPolicy
			if keep > 0 {
				policies = append(policies, &backup.CountPolicy{MaxCount: keep})
			}
			if maxAge != "" {
				d, err := backup.ParseDuration(maxAge)
				if err != nil {
					return err
				}
				policies = append(policies, &backup.AgePolicy{MaxAge: d})
			}
			if maxRows > 0 {
				policies = append(policies, &backup.RowsPolicy{MaxTotalRows: maxRows})
			}
			if len(policies) == 0 {
				return fmt.Errorf("set at least one of --keep, --max-age or --max-rows")
			}

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			deleted, err := backup.ApplyRetention(ctx, s, &backup.CompositePolicy{Policies: policies}, dryRun)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"deleted": nonNilStrings(deleted), "dry_run": dryRun,
				})
			}
			verb := "Deleted"
			if dryRun {
				verb = "Would delete"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d runs\n", verb, len(deleted))
			for _, id := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().Int("keep", 0, "Keep the N newest runs")
	cmd.Flags().String("max-age", "", "Keep runs newer than this (e.g. 720h, 30d, 2w)")
	cmd.Flags().Int("max-rows", 0, "Keep the newest runs up to this many rows in total")
	cmd.Flags().Bool("dry-run", false, "List the runs that would be deleted without deleting them")

	return cmd
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
