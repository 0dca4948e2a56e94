package core

import (
	"context"
	"time"

	"marcus/internal/agent"
	"marcus/internal/assignment"
	"marcus/internal/clock"
	"marcus/internal/collaborators"
	"marcus/internal/config"
	"marcus/internal/contextbuilder"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/graph"
	"marcus/internal/events"
	"marcus/internal/lease"
	"marcus/internal/logging"
	"marcus/internal/memory"
	"marcus/internal/metrics"
	"marcus/internal/progress"
	"marcus/internal/project"
	"marcus/internal/reconciler"
	"marcus/internal/records"
	"marcus/internal/scheduler"
)

// KanbanDialer opens a KanbanClient for a project id, the deployment-
// specific hook a Factory needs since the board provider (Planka,
// GitHub Projects, Linear...) lives outside this module.
type KanbanDialer func(projectID string) (collaborators.KanbanClient, error)

// NewProjectFactory builds a project.Factory that constructs a fresh
// project.Context per id: its own Task Graph, Assignment Persistence,
// Event Bus, Lease Manager, Reconciler, Scheduler, Progress Handler, and
// Context Builder, all wired against the core-global Agent Registry and
// the given collaborators. Grounded on alex/internal/app/di/
// container.go's explicit-struct composition.
func NewProjectFactory(
	cfg config.Config,
	agents *agent.Registry,
	dial KanbanDialer,
	persistenceFor func(projectID string) collaborators.Persistence,
	workspace collaborators.Workspace,
	clk clock.Clock,
	logger logging.Logger,
	metricsRegistry *metrics.Registry,
) project.Factory {
	return func(ctx context.Context, projectID string) (*project.Context, error) {
		dialed, err := dial(projectID)
		if err != nil {
			return nil, coreerrors.New(coreerrors.CodeKanbanError, "", "dial kanban board for project "+projectID, err)
		}
		kanban := collaborators.NewCircuitBreakingKanban(
			dialed,
			coreerrors.NewCircuitBreaker("kanban-"+projectID, coreerrors.DefaultCircuitBreakerConfig(), logger),
		)
		if err := kanban.Connect(ctx); err != nil {
			return nil, coreerrors.New(coreerrors.CodeKanbanError, "", "connect kanban board for project "+projectID, err)
		}

		persistence := persistenceFor(projectID)
		g := graph.New()

		assignments := assignment.NewStore(persistence)
		if err := assignments.Load(ctx); err != nil {
			return nil, coreerrors.New(coreerrors.CodePersistenceError, "", "load assignments for project "+projectID, err)
		}

		var durable *events.DurableLog
		if cfg.Events.Durable {
			durable = events.NewDurableLog(persistence, msDuration(cfg.Events.FsyncIntervalMS), logger)
		}
		bus := events.NewBus(logger, durable, events.WithMetrics(metricsRegistry))

		leaseCfg := lease.Config{
			DefaultDuration: cfg.LeaseDefaultDuration(),
			TickerInterval:  cfg.LeaseTickerInterval(),
		}
		leases := lease.NewManager(leaseCfg, g, assignments, bus, clk, logger, lease.WithMetrics(metricsRegistry))

		recs := records.NewStore(persistence)
		mem := memory.NewRecorder(persistence)
		agentIDs := make([]string, 0, len(agents.All()))
		for _, ag := range agents.All() {
			agentIDs = append(agentIDs, ag.ID)
		}
		if err := mem.Load(ctx, agentIDs); err != nil {
			return nil, coreerrors.New(coreerrors.CodePersistenceError, "", "load memory outcomes for project "+projectID, err)
		}

		cb := contextbuilder.New(g, recs, contextbuilder.WithWorkspace(workspace))

		sched := scheduler.New(g, agents, assignments, leases, bus, cb, mem, clk, cfg.Scheduler.ScoreWeights, logger, scheduler.WithMetrics(metricsRegistry))
		prog := progress.New(g, assignments, leases, bus, mem, recs, clk, logger)

		var recon *reconciler.Reconciler
		if cfg.Reconciler.Enabled {
			reconCfg := reconciler.Config{
				Interval: cfg.ReconcilerInterval(),
				Retry: coreerrors.RetryConfig{
					// Retry counts retries after the first call; Attempts counts calls.
					MaxAttempts:  cfg.Kanban.Retry.Attempts - 1,
					BaseDelay:    msDuration(cfg.Kanban.Retry.BackoffInitialMS),
					MaxDelay:     msDuration(cfg.Kanban.Retry.BackoffInitialMS * 8),
					JitterFactor: 0.1,
				},
			}
			recon = reconciler.New(reconCfg, kanban, g, assignments, leases, bus, clk, logger, reconciler.WithMetrics(metricsRegistry))
		}

		return &project.Context{
			ProjectID:      projectID,
			Graph:          g,
			Assignments:    assignments,
			Records:        recs,
			Memory:         mem,
			Bus:            bus,
			Durable:        durable,
			Leases:         leases,
			Reconciler:     recon,
			Scheduler:      sched,
			Progress:       prog,
			ContextBuilder: cb,
			Kanban:         kanban,
		}, nil
	}
}

// msDuration converts a millisecond config value into a time.Duration.
func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
