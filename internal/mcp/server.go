// Package mcp provides an MCP (Model Context Protocol) server for sdrun.
//
// The server holds one catalog for its lifetime, so scenarios keep their
// engines between sdrun_step calls and a client can drive a simulation one
// step at a time.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/sdrun/internal/engine"
	"github.com/nvandessel/sdrun/internal/logging"
	"github.com/nvandessel/sdrun/internal/ratelimit"
	"github.com/nvandessel/sdrun/internal/runner"
	"github.com/nvandessel/sdrun/internal/scenario"
	"github.com/nvandessel/sdrun/internal/store"
)

// Catalog is the scenario source the server lists and runs.
// *scenario.MemoryCatalog and *scenario.FileCatalog implement it.
type Catalog interface {
	scenario.Catalog
	Managers() []string
	Kind(manager string) (scenario.Kind, bool)
}

// ResultStore persists full runs. *store.SQLiteStore implements it.
type ResultStore interface {
	SaveRun(ctx context.Context, run store.Run) (string, error)
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "sdrun")
	Version string // Server version

	Catalog Catalog
	Factory engine.Factory

	Logger   *slog.Logger
	Recorder runner.Recorder
	Journal  *logging.Journal

	// Store enables the save option of sdrun_run. Nil rejects saves.
	Store ResultStore

	// Limits throttles tool calls. Nil uses ratelimit.DefaultTools.
	Limits ratelimit.Tools
}

// Server wraps the MCP SDK server and provides sdrun-specific tools.
type Server struct {
	server  *sdk.Server
	runner  *runner.Runner
	catalog Catalog
	store   ResultStore
	limits  ratelimit.Tools
	logger  *slog.Logger

	// mu serializes tool calls so each call sees only its own diagnostics.
	mu          sync.Mutex
	diagnostics *logging.Collector
}

// NewServer creates a new MCP server with sdrun tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("mcp server needs a scenario catalog")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("mcp server needs an engine factory")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	limits := cfg.Limits
	if limits == nil {
		limits = ratelimit.DefaultTools()
	}

	diagnostics := logging.NewCollector(logging.NewSlogSink(logger))
	r := runner.New(cfg.Catalog, cfg.Factory,
		runner.WithSink(diagnostics),
		runner.WithRecorder(cfg.Recorder),
		runner.WithJournal(cfg.Journal),
		runner.WithLogger(logger),
	)

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{})

	s := &Server{
		server:      mcpServer,
		runner:      r,
		catalog:     cfg.Catalog,
		store:       cfg.Store,
		limits:      limits,
		logger:      logger,
		diagnostics: diagnostics,
	}
	s.registerTools()

	return s, nil
}

// registerTools registers all sdrun MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sdrun_scenarios",
		Description: "List scenario managers, their scenarios, run bounds and model equations",
	}, s.handleScenarios)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sdrun_run",
		Description: "Run scenarios over their full time window and return the requested equations as dict, json or df",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sdrun_step",
		Description: "Compute one time step of a scenario manager's scenarios, optionally changing constants or lookup points first; state carries over between calls",
	}, s.handleStep)
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &sdk.StdioTransport{})
}
