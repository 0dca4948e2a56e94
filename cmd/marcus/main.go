package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"marcus/internal/agent"
	"marcus/internal/clock"
	"marcus/internal/collaborators"
	"marcus/internal/config"
	"marcus/internal/core"
	"marcus/internal/logging"
	"marcus/internal/metrics"
	"marcus/internal/project"
)

// shutdownGrace bounds how long the meter provider gets to flush on exit.
const shutdownGrace = 5 * time.Second

func main() {
	os.Exit(run())
}

// run wires the kernel and runs the CLI, returning the process exit code.
// Kept separate from main so deferred cleanup (the meter provider flush)
// actually executes instead of being skipped by os.Exit.
func run() int {
	dataDir := os.Getenv("MARCUS_DATA_DIR")
	if dataDir == "" {
		dataDir = ".marcus"
	}

	cfg, err := config.Load(config.WithConfigPath(os.Getenv("MARCUS_CONFIG")))
	if err != nil {
		printError(err)
		return 1
	}

	agents := agent.NewRegistry()
	logger := logging.NewComponentLogger("marcus")
	clk := clock.Real{}
	workspace := collaborators.NewFSWorkspace(filepath.Join(dataDir, "workspaces"))

	promReg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(promReg)
	meterProvider, err := metrics.NewMeterProvider(promReg)
	if err != nil {
		printError(err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := metrics.ShutdownMeterProvider(shutdownCtx, meterProvider); err != nil {
			logger.Warn("shut down meter provider: %v", err)
		}
	}()

	dial := func(projectID string) (collaborators.KanbanClient, error) {
		return collaborators.NewLocalKanban(collaborators.NewFilePersistence(filepath.Join(dataDir, "kanban", projectID))), nil
	}
	persistenceFor := func(projectID string) collaborators.Persistence {
		return collaborators.NewFilePersistence(filepath.Join(dataDir, "projects", projectID))
	}

	factory := core.NewProjectFactory(cfg, agents, dial, persistenceFor, workspace, clk, logger, metricsRegistry)
	projects, err := project.New(project.Config{CacheCapacity: cfg.Project.CacheCapacity}, factory, clk, logger)
	if err != nil {
		printError(err)
		return 1
	}

	c := core.New(cfg, agents, projects, logger)
	return runCLI(&CLI{core: c})
}
