// Package progress implements the Progress & Blocker Handler:
// report_progress, report_blocker, unblock_task, and complete_task.
package progress

import (
	"context"
	"strings"

	"marcus/internal/assignment"
	"marcus/internal/clock"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/graph"
	"marcus/internal/domain/task"
	"marcus/internal/events"
	"marcus/internal/lease"
	"marcus/internal/logging"
	"marcus/internal/memory"
	"marcus/internal/records"
	"marcus/internal/resolver"
)

// Handler wires the Task Graph, Assignment Persistence, Lease Manager,
// Event Bus, Memory recorder, and the decision/artifact/blocker log
// together for the in-flight side of a task's lifecycle.
type Handler struct {
	graph       *graph.Graph
	assignments *assignment.Store
	leases      *lease.Manager
	bus         *events.Bus
	recorder    *memory.Recorder
	records     *records.Store
	clock       clock.Clock
	logger      logging.Logger
}

// New constructs a Handler.
func New(
	g *graph.Graph,
	assignments *assignment.Store,
	leases *lease.Manager,
	bus *events.Bus,
	recorder *memory.Recorder,
	rec *records.Store,
	clk clock.Clock,
	logger logging.Logger,
) *Handler {
	return &Handler{
		graph:       g,
		assignments: assignments,
		leases:      leases,
		bus:         bus,
		recorder:    recorder,
		records:     rec,
		clock:       clk,
		logger:      logging.OrNop(logger),
	}
}

// authorize checks that agentID holds the active lease over taskID, the
// precondition shared by every operation in this package.
func (h *Handler) authorize(taskID, agentID string) (task.Lease, error) {
	l, ok := h.leases.Get(taskID)
	if !ok || l.State != task.LeaseActive || l.AgentID != agentID {
		return task.Lease{}, coreerrors.AssignmentErrorf("agent %q does not hold the active lease on task %q", agentID, taskID)
	}
	return l, nil
}

// ReportProgress clamps pct into [0,100], rejects a regression below the
// lease's stored progress, renews the lease, and — at pct == 100 —
// delegates to Complete.
func (h *Handler) ReportProgress(ctx context.Context, projectID, agentID, taskID string, pct int, notes string) error {
	l, err := h.authorize(taskID, agentID)
	if err != nil {
		return err
	}

	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct < l.LastProgressPct {
		return coreerrors.AssignmentErrorf("progress for task %q cannot regress from %d%% to %d%%", taskID, l.LastProgressPct, pct)
	}

	t, ok := h.graph.Get(taskID)
	if !ok {
		return coreerrors.TaskNotFound(taskID)
	}

	if pct == 100 {
		return h.Complete(ctx, projectID, agentID, taskID, notes)
	}

	if _, err := h.leases.Renew(taskID, pct, t.EstimatedHours); err != nil {
		return err
	}

	return h.bus.Publish(ctx, events.Event{
		Kind:      events.KindProgressReported,
		Timestamp: h.clock.Now(),
		ProjectID: projectID,
		Payload: map[string]any{
			"task_id":  taskID,
			"agent_id": agentID,
			"pct":      pct,
			"notes":    notes,
		},
	})
}

// ReportBlocker authorizes, transitions the task to blocked while
// leaving its lease active, persists a BlockerReport, and emits
// blocker_reported. Resolution is never automatic.
func (h *Handler) ReportBlocker(ctx context.Context, projectID, agentID, taskID, description, severity string) error {
	if _, err := h.authorize(taskID, agentID); err != nil {
		return err
	}

	if !h.graph.Mutate(taskID, func(t *task.Task) {
		t.Status = task.StatusBlocked
		t.Blocked = true
	}) {
		return coreerrors.TaskNotFound(taskID)
	}

	if err := h.records.RecordBlocker(ctx, task.BlockerReport{
		TaskID:      taskID,
		AgentID:     agentID,
		Description: description,
		Severity:    severity,
		ReportedAt:  h.clock.Now(),
	}); err != nil {
		return err
	}

	return h.bus.Publish(ctx, events.Event{
		Kind:      events.KindBlockerReported,
		Timestamp: h.clock.Now(),
		ProjectID: projectID,
		Payload: map[string]any{
			"task_id":     taskID,
			"agent_id":    agentID,
			"description": description,
			"severity":    severity,
		},
	})
}

// UnblockTask resolves the outstanding blocker on taskID. If the task's
// lease is still active, it reverts to in_progress; otherwise it returns
// to todo for the Scheduler to pick up again.
func (h *Handler) UnblockTask(ctx context.Context, taskID, resolutionNotes string) error {
	resolved, err := h.records.ResolveBlocker(ctx, taskID, resolutionNotes, h.clock.Now())
	if err != nil {
		return err
	}
	if !resolved {
		return coreerrors.AssignmentErrorf("task %q has no outstanding blocker", taskID)
	}

	_, leaseActive := h.leases.Get(taskID)

	if !h.graph.Mutate(taskID, func(t *task.Task) {
		t.Blocked = false
		if leaseActive {
			t.Status = task.StatusInProgress
		} else {
			t.Status = task.StatusTodo
			t.AssignedTo = ""
		}
	}) {
		return coreerrors.TaskNotFound(taskID)
	}

	return nil
}

// Complete marks taskID done, records actual hours, releases its lease
// and assignment, records the outcome in Memory, and re-evaluates every
// direct successor's readiness, emitting dependency_resolved for each
// that became Ready.
func (h *Handler) Complete(ctx context.Context, projectID, agentID, taskID, outcome string) error {
	if _, err := h.authorize(taskID, agentID); err != nil {
		return err
	}

	t, ok := h.graph.Get(taskID)
	if !ok {
		return coreerrors.TaskNotFound(taskID)
	}

	asg, found := h.assignments.Get(taskID)
	var actualHours float64
	if found {
		actualHours = h.clock.Now().Sub(asg.OpenedAt).Hours()
	}

	now := h.clock.Now()
	if !h.graph.Mutate(taskID, func(t *task.Task) {
		t.Status = task.StatusDone
		t.Blocked = false
		t.ActualHours = actualHours
		t.CompletedAt = &now
	}) {
		return coreerrors.TaskNotFound(taskID)
	}

	if err := h.leases.Release(taskID); err != nil {
		return err
	}
	if err := h.assignments.Remove(ctx, taskID); err != nil {
		return err
	}

	if err := h.recorder.RecordOutcome(ctx, memory.Outcome{
		TaskID:         taskID,
		AgentID:        agentID,
		Labels:         t.RequiredSkills(),
		EstimatedHours: t.EstimatedHours,
		ActualHours:    actualHours,
		Success:        !strings.Contains(strings.ToLower(outcome), "fail"),
		Notes:          outcome,
		CompletedAt:    now,
	}); err != nil {
		return err
	}

	if err := h.bus.Publish(ctx, events.Event{
		Kind:      events.KindTaskCompleted,
		Timestamp: now,
		ProjectID: projectID,
		Payload: map[string]any{
			"task_id":      taskID,
			"agent_id":     agentID,
			"actual_hours": actualHours,
		},
	}); err != nil {
		h.logger.Warn("publish task_completed for %q: %v", taskID, err)
	}

	for _, succID := range h.graph.Successors(taskID) {
		succ, ok := h.graph.Get(succID)
		if !ok || !resolver.Resolve(h.graph, succ).Ready {
			continue
		}
		if err := h.bus.Publish(ctx, events.Event{
			Kind:      events.KindDependencyResolved,
			Timestamp: h.clock.Now(),
			ProjectID: projectID,
			Payload: map[string]any{
				"task_id":            succID,
				"resolved_by_task_id": taskID,
			},
		}); err != nil {
			h.logger.Warn("publish dependency_resolved for %q: %v", succID, err)
		}
	}

	return nil
}
