// Package reconciler implements the periodic board/graph reconciliation
// loop: pulling the authoritative task list from the kanban collaborator
// and diffing it against the Task Graph.
package reconciler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"marcus/internal/assignment"
	"marcus/internal/async"
	"marcus/internal/clock"
	"marcus/internal/collaborators"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/graph"
	"marcus/internal/domain/task"
	"marcus/internal/events"
	"marcus/internal/lease"
	"marcus/internal/logging"
	"marcus/internal/metrics"
)

// Config controls the reconciliation cadence.
type Config struct {
	Interval time.Duration
	Retry    coreerrors.RetryConfig
}

// Reconciler diffs the kanban board against the Task Graph and repairs
// both sides. One pass is idempotent: run twice with no external change
// in between and the second pass applies zero fixes.
type Reconciler struct {
	config      Config
	kanban      collaborators.KanbanClient
	graph       *graph.Graph
	assignments *assignment.Store
	leases      *lease.Manager
	bus         *events.Bus
	clock       clock.Clock
	logger      logging.Logger
	metrics     *metrics.Registry

	stop     chan struct{}
	stopOnce func()
}

// Option configures optional Reconciler dependencies.
type Option func(*Reconciler)

// WithMetrics wires a shared metrics.Registry into the Reconciler so Run
// records reconciler diffs and per-kind repair counts.
func WithMetrics(reg *metrics.Registry) Option {
	return func(r *Reconciler) { r.metrics = reg }
}

// New constructs a Reconciler.
func New(
	cfg Config,
	kanban collaborators.KanbanClient,
	g *graph.Graph,
	assignments *assignment.Store,
	leases *lease.Manager,
	bus *events.Bus,
	clk clock.Clock,
	logger logging.Logger,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		config:      cfg,
		kanban:      kanban,
		graph:       g,
		assignments: assignments,
		leases:      leases,
		bus:         bus,
		clock:       clk,
		logger:      logging.OrNop(logger),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name identifies the subsystem for lifecycle.DrainAll logging.
func (r *Reconciler) Name() string { return "reconciler" }

// Start launches the periodic reconciliation loop. Each tick's pass
// runs independently of the previous one finishing on time: a slow pass
// simply delays the next tick rather than overlapping it.
func (r *Reconciler) Start(ctx context.Context) error {
	async.Go(r.logger, "reconciler.loop", func() {
		ticker := time.NewTicker(r.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				if err := r.Run(ctx); err != nil {
					r.logger.Error("reconciliation pass failed: %v", err)
				}
			}
		}
	})
	return nil
}

// Drain stops the periodic loop. In-flight passes are not interrupted;
// Drain only prevents a new tick from starting one.
func (r *Reconciler) Drain(ctx context.Context) error {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	return nil
}

// Run executes one reconciliation pass, on-demand or from the ticker.
func (r *Reconciler) Run(ctx context.Context) error {
	correlationID := uuid.NewString()
	ctx, span := metrics.StartSpan(ctx, metrics.SpanReconcilerRun, correlationID)
	var err error
	defer func() { metrics.EndSpan(span, err) }()

	boardTasks, listErr := coreerrors.RetryWithResult(ctx, r.config.Retry, r.logger, func(ctx context.Context) ([]collaborators.BoardTask, error) {
		return r.kanban.ListTasks(ctx)
	})
	if listErr != nil {
		err = coreerrors.New(coreerrors.CodeKanbanError, correlationID, "list board tasks", listErr)
		return err
	}

	byID := make(map[string]collaborators.BoardTask, len(boardTasks))
	for _, bt := range boardTasks {
		byID[bt.ID] = bt
	}

	var repairs atomic.Int64
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return r.adoptNewBoardTasks(gctx, boardTasks, &repairs) })
	group.Go(func() error { return r.pushPendingSyncs(gctx, byID, &repairs) })
	group.Go(func() error { return r.resolveStatusConflicts(gctx, byID, &repairs) })
	group.Go(func() error { return r.adoptBoardAssignments(gctx, byID, &repairs) })
	group.Go(func() error { return r.expireOrphans(gctx, byID, &repairs) })
	err = group.Wait()
	if err == nil && repairs.Load() > 0 {
		r.metrics.IncReconcilerDiff()
	}
	return err
}

// adoptNewBoardTasks upserts board tasks that have no in-memory
// counterpart yet.
func (r *Reconciler) adoptNewBoardTasks(ctx context.Context, boardTasks []collaborators.BoardTask, repairs *atomic.Int64) error {
	for _, bt := range boardTasks {
		if _, ok := r.graph.Get(bt.ID); ok {
			continue
		}
		r.graph.Upsert(&task.Task{
			ID:           bt.ID,
			Name:         bt.Name,
			Status:       task.Status(bt.Status),
			AssignedTo:   bt.AssignedTo,
			Dependencies: append([]string(nil), bt.Dependencies...),
			Labels:       append([]string(nil), bt.Labels...),
		})
		repairs.Add(1)
		r.metrics.IncReconcilerRepair("adopt_board_task")
	}
	return nil
}

// pushPendingSyncs writes through any task flagged board_sync_pending by
// a prior reservation whose board push failed, clearing the flag once
// the push succeeds.
func (r *Reconciler) pushPendingSyncs(ctx context.Context, byID map[string]collaborators.BoardTask, repairs *atomic.Int64) error {
	for _, t := range r.graph.All() {
		if !t.BoardSyncPending {
			continue
		}
		status := string(t.Status)
		assignedTo := t.AssignedTo
		patch := collaborators.TaskPatch{Status: &status, AssignedTo: &assignedTo}
		if err := coreerrors.Retry(ctx, r.config.Retry, r.logger, func(ctx context.Context) error {
			return r.kanban.UpdateTask(ctx, t.ID, patch)
		}); err != nil {
			r.logger.Warn("board sync for task %q still pending: %v", t.ID, err)
			continue
		}
		r.graph.Mutate(t.ID, func(t *task.Task) { t.BoardSyncPending = false })
		repairs.Add(1)
		r.metrics.IncReconcilerRepair("push_pending_sync")
	}
	return nil
}

// resolveStatusConflicts applies the authority rule: the board wins
// except when the in-memory task is in_progress under an active lease
// that has reported progress, in which case the core's status wins and
// the correction is pushed back to the board.
func (r *Reconciler) resolveStatusConflicts(ctx context.Context, byID map[string]collaborators.BoardTask, repairs *atomic.Int64) error {
	for _, t := range r.graph.All() {
		bt, ok := byID[t.ID]
		if !ok || bt.Status == string(t.Status) {
			continue
		}

		if t.Status == task.StatusInProgress {
			if l, ok := r.leases.Get(t.ID); ok && l.State == task.LeaseActive && l.LastProgressPct > 0 {
				status := string(t.Status)
				if err := coreerrors.Retry(ctx, r.config.Retry, r.logger, func(ctx context.Context) error {
					return r.kanban.UpdateTask(ctx, t.ID, collaborators.TaskPatch{Status: &status})
				}); err != nil {
					r.logger.Warn("push status correction for task %q: %v", t.ID, err)
				} else {
					repairs.Add(1)
					r.metrics.IncReconcilerRepair("resolve_status_conflict")
				}
				continue
			}
		}

		r.graph.Mutate(t.ID, func(t *task.Task) { t.Status = task.Status(bt.Status) })
		repairs.Add(1)
		r.metrics.IncReconcilerRepair("resolve_status_conflict")
	}
	return nil
}

// adoptBoardAssignments opens a fresh default-duration lease for any
// board assignment with no matching in-memory Assignment.
func (r *Reconciler) adoptBoardAssignments(ctx context.Context, byID map[string]collaborators.BoardTask, repairs *atomic.Int64) error {
	for _, bt := range byID {
		if bt.AssignedTo == "" {
			continue
		}
		if _, ok := r.assignments.Get(bt.ID); ok {
			continue
		}

		lse, err := r.leases.Open(bt.ID, bt.AssignedTo, r.config.Interval)
		if err != nil {
			continue // an active lease already exists under a different view; leave it
		}
		if err := r.assignments.Create(ctx, task.Assignment{
			TaskID: bt.ID, AgentID: bt.AssignedTo, OpenedAt: r.clock.Now(), Lease: lse,
		}); err != nil {
			r.logger.Warn("adopt board assignment for task %q: %v", bt.ID, err)
			continue
		}
		r.graph.Mutate(bt.ID, func(t *task.Task) {
			t.AssignedTo = bt.AssignedTo
			t.Status = task.StatusInProgress
		})
		repairs.Add(1)
		r.metrics.IncReconcilerRepair("adopt_board_assignment")
	}
	return nil
}

// expireOrphans releases and reports any in-memory Assignment whose
// task no longer exists on the board.
func (r *Reconciler) expireOrphans(ctx context.Context, byID map[string]collaborators.BoardTask, repairs *atomic.Int64) error {
	for _, a := range r.assignments.ListAll() {
		if _, ok := byID[a.TaskID]; ok {
			continue
		}
		if err := r.leases.Release(a.TaskID); err != nil {
			r.logger.Warn("release orphaned lease for task %q: %v", a.TaskID, err)
		}
		if err := r.assignments.Remove(ctx, a.TaskID); err != nil {
			r.logger.Warn("remove orphaned assignment for task %q: %v", a.TaskID, err)
			continue
		}
		if err := r.bus.Publish(ctx, events.Event{
			Kind:      events.KindAssignmentOrphaned,
			Timestamp: r.clock.Now(),
			Payload:   map[string]any{"task_id": a.TaskID, "agent_id": a.AgentID},
		}); err != nil {
			r.logger.Warn("publish assignment_orphaned for %q: %v", a.TaskID, err)
		}
		repairs.Add(1)
		r.metrics.IncReconcilerRepair("expire_orphan")
	}
	return nil
}
