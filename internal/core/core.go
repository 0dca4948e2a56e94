// Package core wires every component of the coordination kernel
// together and exposes the operation table described in the core's
// external interface: register_agent, request_next_task,
// report_progress, report_blocker, unblock_task, complete_task,
// get_task_context, get_task_status, get_agent_status, switch_project,
// list_projects, and subscribe_events.
package core

import (
	"context"

	"marcus/internal/agent"
	"marcus/internal/config"
	"marcus/internal/contextbuilder"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/task"
	"marcus/internal/events"
	"marcus/internal/logging"
	"marcus/internal/project"
)

// Core is the coordination kernel's single composition root. No
// component is reachable through a package-level global; every
// operation method below routes to the currently active project's
// Context plus the core-global Agent Registry.
type Core struct {
	config  config.Config
	agents  *agent.Registry
	projects *project.Manager
	logger  logging.Logger
}

// New constructs a Core. projects must already be configured with a
// Factory capable of building a project.Context on demand.
func New(cfg config.Config, agents *agent.Registry, projects *project.Manager, logger logging.Logger) *Core {
	return &Core{
		config:   cfg,
		agents:   agents,
		projects: projects,
		logger:   logging.OrNop(logger),
	}
}

// active returns the currently active project Context, or an
// InvalidConfig error if switch_project has never been called.
func (c *Core) active() (*project.Context, error) {
	pc, ok := c.projects.Active()
	if !ok {
		return nil, coreerrors.New(coreerrors.CodeInvalidConfig, "", "no project is active; call switch_project first", nil)
	}
	return pc, nil
}

// withDeadline applies the scheduler's configured deadline to ctx if the
// caller hasn't already set a tighter one.
func (c *Core) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.config.SchedulerDeadline())
}

// RegisterAgent registers or updates a worker. Idempotent on id.
func (c *Core) RegisterAgent(ctx context.Context, id, name, role string, skills []string, capacityHoursWk float64) (*task.Agent, error) {
	return c.agents.Register(task.NewAgent(id, name, role, skills, capacityHoursWk)), nil
}

// RequestNextTask reserves the highest-scoring ready task for agentID in
// the active project.
func (c *Core) RequestNextTask(ctx context.Context, agentID string) (*task.Task, task.Lease, contextbuilder.Payload, error) {
	pc, err := c.active()
	if err != nil {
		return nil, task.Lease{}, contextbuilder.Payload{}, err
	}
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()
	return pc.Scheduler.RequestNextTask(ctx, pc.ProjectID, agentID)
}

// ReportProgress records a percent-complete update, completing the task
// automatically at 100%.
func (c *Core) ReportProgress(ctx context.Context, agentID, taskID string, pct int, notes string) error {
	pc, err := c.active()
	if err != nil {
		return err
	}
	return pc.Progress.ReportProgress(ctx, pc.ProjectID, agentID, taskID, pct, notes)
}

// ReportBlocker records an obstruction on taskID without releasing its
// lease.
func (c *Core) ReportBlocker(ctx context.Context, agentID, taskID, description, severity string) error {
	pc, err := c.active()
	if err != nil {
		return err
	}
	return pc.Progress.ReportBlocker(ctx, pc.ProjectID, agentID, taskID, description, severity)
}

// UnblockTask clears the most recent outstanding blocker on taskID,
// reverting to in_progress if the lease is still active or todo
// otherwise.
func (c *Core) UnblockTask(ctx context.Context, taskID, resolutionNotes string) error {
	pc, err := c.active()
	if err != nil {
		return err
	}
	return pc.Progress.UnblockTask(ctx, taskID, resolutionNotes)
}

// CompleteTask marks taskID done via the explicit completion path,
// distinct from a pct=100 report_progress call.
func (c *Core) CompleteTask(ctx context.Context, agentID, taskID, outcome string) error {
	pc, err := c.active()
	if err != nil {
		return err
	}
	return pc.Progress.Complete(ctx, pc.ProjectID, agentID, taskID, outcome)
}

// GetTaskContext assembles the deterministic context payload for taskID
// without reserving it, used by a caller re-fetching context mid-task.
func (c *Core) GetTaskContext(ctx context.Context, taskID, agentID string) (contextbuilder.Payload, error) {
	pc, err := c.active()
	if err != nil {
		return contextbuilder.Payload{}, err
	}
	return pc.ContextBuilder.Build(ctx, pc.ProjectID, taskID, agentID)
}

// TaskSnapshot is the read-only view get_task_status returns.
type TaskSnapshot struct {
	Task   task.Task
	Lease  *task.Lease
	Ready  bool
}

// GetTaskStatus returns taskID's current Task plus its lease, if any.
func (c *Core) GetTaskStatus(ctx context.Context, taskID string) (TaskSnapshot, error) {
	pc, err := c.active()
	if err != nil {
		return TaskSnapshot{}, err
	}
	t, ok := pc.Graph.Get(taskID)
	if !ok {
		return TaskSnapshot{}, coreerrors.TaskNotFound(taskID)
	}
	snap := TaskSnapshot{Task: *t}
	if l, ok := pc.Leases.Get(taskID); ok {
		snap.Lease = &l
	}
	return snap, nil
}

// AgentSnapshot is the read-only view get_agent_status returns.
type AgentSnapshot struct {
	Agent       task.Agent
	Assignments []task.Assignment
}

// GetAgentStatus returns agentID's registration plus its current
// assignments in the active project.
func (c *Core) GetAgentStatus(ctx context.Context, agentID string) (AgentSnapshot, error) {
	ag, ok := c.agents.Get(agentID)
	if !ok {
		return AgentSnapshot{}, coreerrors.AgentNotFound(agentID)
	}
	snap := AgentSnapshot{Agent: *ag}
	if pc, ok := c.projects.Active(); ok {
		snap.Assignments = pc.Assignments.ListForAgent(agentID)
	}
	return snap, nil
}

// SwitchProject makes targetID the active project, quiescing whichever
// project was active before.
func (c *Core) SwitchProject(ctx context.Context, targetID string) error {
	_, err := c.projects.Switch(ctx, targetID)
	return err
}

// ProjectSummary is the read-only view list_projects returns.
type ProjectSummary struct {
	ProjectID string
	Active    bool
}

// ListProjects returns every cached project, most recently used first.
func (c *Core) ListProjects(ctx context.Context) []ProjectSummary {
	active, _ := c.projects.Active()
	ids := c.projects.ListProjectIDs()
	out := make([]ProjectSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, ProjectSummary{ProjectID: id, Active: active != nil && active.ProjectID == id})
	}
	return out
}

// SubscribeEvents watches the active project's event bus for the given
// kinds, returning a channel closed when ctx is cancelled.
func (c *Core) SubscribeEvents(ctx context.Context, kinds ...events.Kind) (<-chan *events.Event, error) {
	pc, err := c.active()
	if err != nil {
		return nil, err
	}
	return pc.Bus.Watch(ctx, kinds...)
}
