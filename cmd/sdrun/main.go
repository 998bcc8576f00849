package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sdrun",
		Short: "Run system dynamics scenarios",
		Long: `sdrun loads scenario managers from YAML files and runs their scenarios
against a system dynamics engine.

Full runs compute every scenario over its whole time window and aggregate
the requested equations as a nested dict, keyed JSON or a wide table.
Step runs advance scenarios one time point at a time, applying overrides
between steps while keeping the history already computed.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, trace or error (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newStepCmd(),
		newScenariosCmd(),
		newResultsCmd(),
		newGraphCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)

	return rootCmd
}
