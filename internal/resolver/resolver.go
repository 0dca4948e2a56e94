// Package resolver implements the Dependency Resolver: the readiness
// check over the Task Graph, including phase ordering and
// provides/requires cross-parent edges.
package resolver

import (
	"fmt"
	"time"

	"marcus/internal/domain/graph"
	"marcus/internal/domain/task"
)

// phaseOrder is the canonical phase sequence; labels outside it carry no
// ordering constraint.
var phaseOrder = []string{"design", "build", "test", "deploy"}

func phaseIndex(phase string) (int, bool) {
	for i, p := range phaseOrder {
		if p == phase {
			return i, true
		}
	}
	return 0, false
}

// Result is the outcome of resolving a task's readiness: either Ready, or
// BlockedBy a non-empty list of reasons.
type Result struct {
	Ready   bool
	Reasons []string
}

// Resolve determines whether t may be picked right now, given the full
// state of g. A task is Ready iff: its status is todo; every dependency
// is done; any requires contract is matched by a done provider in the
// same project; its parent (if a subtask) is neither done nor blocked;
// no phase-ordering violation applies; and it carries no active
// assignment.
func Resolve(g *graph.Graph, t *task.Task) Result {
	if t.Status != task.StatusTodo {
		return Result{Reasons: []string{fmt.Sprintf("status is %s, not todo", t.Status)}}
	}
	if t.AssignedTo != "" {
		return Result{Reasons: []string{"already assigned"}}
	}

	var reasons []string

	for _, depID := range t.Dependencies {
		dep, ok := g.Get(depID)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("dependency %q does not exist", depID))
			continue
		}
		if dep.Status != task.StatusDone {
			reasons = append(reasons, fmt.Sprintf("dependency %q is not done", depID))
		}
	}

	if t.IsSubtask && t.ParentTaskID != "" {
		if parent, ok := g.Get(t.ParentTaskID); ok {
			if parent.Status == task.StatusDone || parent.Status == task.StatusBlocked {
				reasons = append(reasons, fmt.Sprintf("parent %q is %s", parent.ID, parent.Status))
			}
		}
	}

	if t.Requires != "" {
		if _, ok := EarliestProvider(g, t.ProjectID, t.Requires); !ok {
			reasons = append(reasons, fmt.Sprintf("requires %q has no done provider", t.Requires))
		}
	}

	if reason, violated := phaseViolation(g, t); violated {
		reasons = append(reasons, reason)
	}

	if len(reasons) > 0 {
		return Result{Reasons: reasons}
	}
	return Result{Ready: true}
}

// groupKey scopes phase ordering to subtasks of the same parent, or to
// the project's top-level tasks when t is not itself a subtask.
func groupKey(t *task.Task) string {
	if t.IsSubtask {
		return "parent:" + t.ParentTaskID
	}
	return "project:" + t.ProjectID
}

// phaseViolation reports whether t's phase tag is strictly later than an
// incomplete task's phase tag within the same group. An explicit
// dependencies list overrides phase ordering entirely: a task that
// already declares its edges is not additionally constrained by phase.
func phaseViolation(g *graph.Graph, t *task.Task) (string, bool) {
	if len(t.Dependencies) > 0 {
		return "", false
	}
	idx, ok := phaseIndex(t.Phase())
	if !ok {
		return "", false
	}

	group := groupKey(t)
	for _, other := range g.All() {
		if other.ID == t.ID || groupKey(other) != group {
			continue
		}
		if other.Status.IsTerminal() {
			continue
		}
		otherIdx, ok := phaseIndex(other.Phase())
		if !ok || otherIdx >= idx {
			continue
		}
		return fmt.Sprintf("earlier phase %q has incomplete task %q", phaseOrder[otherIdx], other.ID), true
	}
	return "", false
}

// EarliestProvider returns the done task in projectID whose Provides tag
// matches requiresTag and which completed earliest, breaking ties among
// multiple providers of the same contract.
func EarliestProvider(g *graph.Graph, projectID, requiresTag string) (*task.Task, bool) {
	var best *task.Task
	for _, candidate := range g.All() {
		if candidate.ProjectID != projectID || candidate.Provides != requiresTag || candidate.Status != task.StatusDone {
			continue
		}
		if best == nil || earlier(candidate.CompletedAt, best.CompletedAt) {
			best = candidate
		}
	}
	return best, best != nil
}

// earlier reports whether a completed before b, treating a missing
// CompletedAt as later than any set timestamp.
func earlier(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.Before(*b)
}

// Less implements the picking tie-break order for candidates that score
// equally: higher priority first, then earlier due date, then shorter
// estimated hours, then lexicographic id.
func Less(a, b *task.Task) bool {
	if a.Priority.Weight() != b.Priority.Weight() {
		return a.Priority.Weight() > b.Priority.Weight()
	}
	switch {
	case a.DueDate != nil && b.DueDate != nil:
		if !a.DueDate.Equal(*b.DueDate) {
			return a.DueDate.Before(*b.DueDate)
		}
	case a.DueDate != nil:
		return true
	case b.DueDate != nil:
		return false
	}
	if a.EstimatedHours != b.EstimatedHours {
		return a.EstimatedHours < b.EstimatedHours
	}
	return a.ID < b.ID
}
