package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nvandessel/sdrun/internal/mcp"
	"github.com/nvandessel/sdrun/internal/sdengine"
	"github.com/spf13/cobra"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Serve the sdrun_scenarios, sdrun_run and sdrun_step tools to an MCP
client over stdin/stdout. Logs go to stderr.

The scenario catalog is loaded once, so stepped scenarios keep their state
for as long as the server runs.

Examples:
  sdrun mcp-server
  sdrun mcp-server --metrics-addr 127.0.0.1:9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			addr, _ := cmd.Flags().GetString("metrics-addr")
			if addr == "" {
				addr = a.cfg.Metrics.Addr
			}
			if addr != "" {
				stop, err := serveMetrics(ctx, a, addr)
				if err != nil {
					return err
				}
				defer stop()
			}

			cfg := &mcp.Config{
				Name:     "sdrun",
				Version:  version,
				Catalog:  a.catalog,
				Factory:  sdengine.Factory,
				Logger:   a.logger,
				Recorder: a.metrics,
				Journal:  a.journal,
			}
			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()
			cfg.Store = s

			server, err := mcp.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			a.logger.Info("mcp server starting",
				"scenarios", a.catalog.Len(), "managers", len(a.catalog.Managers()), "store", s.Path())
			if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (default from config)")

	return cmd
}

// serveMetrics exposes /metrics on addr until the returned stop is called.
func serveMetrics(ctx context.Context, a *app, addr string) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}, nil
}
