// Package contextbuilder implements the Context Builder: deterministic
// assembly of everything an agent needs to start work on a task, without
// touching an LLM or any natural-language summarization.
package contextbuilder

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/singleflight"

	"marcus/internal/collaborators"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/graph"
	"marcus/internal/domain/task"
	"marcus/internal/records"
	"marcus/internal/resolver"
)

const recentDecisionLimit = 5

// Payload is the assembled context returned to an agent alongside a
// task/lease pair.
type Payload struct {
	Task                *task.Task
	CompletedPredecessors []PredecessorSummary
	ProvidedArtifacts   []task.Artifact
	RecentDecisions     []task.Decision
	ImplementationHint  string
	WorkspacePath       string
}

// PredecessorSummary is what a completed dependency contributes to a
// successor's context: enough to pick up the thread without re-reading
// the whole task.
type PredecessorSummary struct {
	TaskID    string
	Name      string
	Artifacts []task.Artifact
}

// Builder is the functional-options-constructed component that assembles
// Payloads, deduping concurrent builds for the same task/agent pair via
// singleflight so a burst of retries from one agent doesn't redo the
// same assembly work.
type Builder struct {
	graph       *graph.Graph
	records     *records.Store
	workspace   collaborators.Workspace
	group       singleflight.Group
}

// Option configures a Builder at construction time.
type Option func(*Builder)

// WithWorkspace overrides the Workspace collaborator (defaults to nil,
// which yields an empty WorkspacePath).
func WithWorkspace(w collaborators.Workspace) Option {
	return func(b *Builder) { b.workspace = w }
}

// New constructs a Builder over g and rec, applying opts.
func New(g *graph.Graph, rec *records.Store, opts ...Option) *Builder {
	b := &Builder{graph: g, records: rec}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the Payload for (taskID, agentID). Concurrent calls for
// the same key share a single assembly pass.
func (b *Builder) Build(ctx context.Context, projectID, taskID, agentID string) (Payload, error) {
	key := projectID + "/" + taskID + "/" + agentID
	v, err, _ := b.group.Do(key, func() (any, error) {
		return b.build(ctx, projectID, taskID, agentID)
	})
	if err != nil {
		return Payload{}, err
	}
	return v.(Payload), nil
}

func (b *Builder) build(ctx context.Context, projectID, taskID, agentID string) (Payload, error) {
	t, ok := b.graph.Get(taskID)
	if !ok {
		return Payload{}, coreerrors.TaskNotFound(taskID)
	}

	predecessors := make([]PredecessorSummary, 0, len(t.Dependencies))
	for _, depID := range t.Dependencies {
		dep, ok := b.graph.Get(depID)
		if !ok || dep.Status != task.StatusDone {
			continue
		}
		predecessors = append(predecessors, PredecessorSummary{
			TaskID:    dep.ID,
			Name:      dep.Name,
			Artifacts: b.records.ArtifactsForTask(dep.ID),
		})
	}
	sort.Slice(predecessors, func(i, j int) bool { return predecessors[i].TaskID < predecessors[j].TaskID })

	var provided []task.Artifact
	if t.Requires != "" {
		if provider, ok := resolver.EarliestProvider(b.graph, t.ProjectID, t.Requires); ok {
			provided = b.records.ArtifactsForTask(provider.ID)
		}
	}

	groupKey := "project:" + t.ProjectID
	if t.IsSubtask {
		groupKey = "parent:" + t.ParentTaskID
	}
	decisions := b.records.RecentDecisions(groupKey, recentDecisionLimit)

	workspacePath := ""
	if b.workspace != nil {
		path, err := b.workspace.PathFor(projectID, agentID)
		if err != nil {
			return Payload{}, coreerrors.New(coreerrors.CodeKanbanError, "", "resolve workspace path", err)
		}
		workspacePath = path
	}

	return Payload{
		Task:                  t,
		CompletedPredecessors: predecessors,
		ProvidedArtifacts:     provided,
		RecentDecisions:       decisions,
		ImplementationHint:    implementationHint(t),
		WorkspacePath:         workspacePath,
	}, nil
}

// implementationHint derives a one-line, deterministic nudge from the
// task's declared labels: it lists the task's required skill labels in
// order, or names the task when it has none. Labels are not mapped to
// categories and there is no per-category hint text. The output depends
// only on the task, so two builds of the same task always agree.
func implementationHint(t *task.Task) string {
	skills := t.RequiredSkills()
	if len(skills) == 0 {
		return fmt.Sprintf("no declared skill labels; proceed per %q's description", t.Name)
	}
	return fmt.Sprintf("this task exercises: %s", joinLabels(skills))
}

func joinLabels(labels []string) string {
	out := labels[0]
	for _, l := range labels[1:] {
		out += ", " + l
	}
	return out
}
