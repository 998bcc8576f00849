package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/sdrun/internal/config"
	"github.com/nvandessel/sdrun/internal/logging"
	"github.com/nvandessel/sdrun/internal/observability"
	"github.com/nvandessel/sdrun/internal/runner"
	"github.com/nvandessel/sdrun/internal/scenario"
	"github.com/nvandessel/sdrun/internal/sdengine"
	"github.com/nvandessel/sdrun/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app is the per-command environment shared by the subcommands.
type app struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	catalog *scenario.FileCatalog
	journal *logging.Journal
	metrics *observability.RunCollector
	tracing *observability.Tracing
}

// loadApp reads the configuration, sets up logging, tracing and metrics, and
// loads the scenario catalog. Callers must Close the result.
func loadApp(cmd *cobra.Command) (*app, error) {
	root, _ := cmd.Flags().GetString("root")

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())

	tracing, err := observability.InitTracing(cmd.Context(), observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
		Writer:      cmd.ErrOrStderr(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	metrics, err := observability.NewRunCollector(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	dir := cfg.ScenariosDir(root)
	catalog, err := scenario.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded scenarios", "dir", dir, "files", len(catalog.Files), "scenarios", catalog.Len())

	return &app{
		root:    root,
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		journal: logging.OpenJournal(config.StateDir(root), cfg.Logging.Level),
		metrics: metrics,
		tracing: tracing,
	}, nil
}

// runner builds a runner over the catalog whose diagnostics go to the
// logger.
func (a *app) runner() *runner.Runner {
	return runner.New(a.catalog, sdengine.Factory,
		runner.WithSink(logging.NewSlogSink(a.logger)),
		runner.WithRecorder(a.metrics),
		runner.WithJournal(a.journal),
		runner.WithLogger(a.logger),
	)
}

// openStore opens the results database.
func (a *app) openStore(ctx context.Context) (*store.SQLiteStore, error) {
	s, err := store.Open(ctx, a.cfg.StorePath(a.root))
	if err != nil {
		return nil, fmt.Errorf("failed to open results store: %w", err)
	}
	return s, nil
}

// Close flushes traces and closes the journal.
func (a *app) Close() {
	a.tracing.Shutdown(context.Background())
	a.journal.Close()
}
