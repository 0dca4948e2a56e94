// Package graph implements the Task Graph: an in-memory, concurrency-safe
// collection of task.Task records plus their dependency, parent/subtask,
// and provides/requires edges.
package graph

import (
	"sort"
	"sync"

	"marcus/internal/coreerrors"
	"marcus/internal/domain/task"
)

// Graph is the unified in-memory task collection. All mutation goes
// through Upsert/Remove; reads return copies so callers never observe a
// torn or concurrently-mutated Task.
type Graph struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

// New constructs an empty Graph.
func New() *Graph {
	return &Graph{tasks: make(map[string]*task.Task)}
}

// Upsert inserts or replaces the task keyed by its ID.
func (g *Graph) Upsert(t *task.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := *t
	g.tasks[t.ID] = &cp
}

// Remove deletes the task with the given id, if present.
func (g *Graph) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.tasks, id)
}

// Get returns a copy of the task with the given id.
func (g *Graph) Get(id string) (*task.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// Mutate applies fn to the stored task under the write lock and returns
// whether the task existed. Used by components (Scheduler, Progress
// Handler) that need read-modify-write transitions without a full
// Get+Upsert round trip.
func (g *Graph) Mutate(id string, fn func(t *task.Task)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return false
	}
	fn(t)
	return true
}

// All returns a copy of every task in the graph.
func (g *Graph) All() []*task.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*task.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Predecessors returns the direct dependency ids of id, in declared order.
func (g *Graph) Predecessors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return nil
	}
	return append([]string(nil), t.Dependencies...)
}

// Successors returns the ids of tasks that directly depend on id.
func (g *Graph) Successors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for _, t := range g.tasks {
		for _, dep := range t.Dependencies {
			if dep == id {
				out = append(out, t.ID)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// IterReady returns every task whose status is todo, regardless of
// dependency/phase readiness — callers (the Dependency Resolver) filter
// further. This enumerates candidates for the Scheduler's scan.
func (g *Graph) IterReady() []*task.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []*task.Task
	for _, t := range g.tasks {
		if t.Status == task.StatusTodo {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks the graph's structural invariants and returns a
// GraphInvariantError describing the first violation found, or a warning
// list of unresolved requires tags (non-fatal).
func (g *Graph) Validate() (warnings []string, err error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	provides := make(map[string]string) // tag -> producing task id
	for _, t := range g.tasks {
		if t.Provides != "" {
			provides[t.Provides] = t.ID
		}
	}

	subtaskIndices := make(map[string]map[int]string) // parent id -> index -> task id

	for _, t := range g.tasks {
		for _, dep := range t.Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return nil, coreerrors.GraphInvariant("task " + t.ID + " depends on missing task " + dep)
			}
		}

		if t.IsSubtask && t.ParentTaskID != "" {
			parent, ok := g.tasks[t.ParentTaskID]
			if !ok {
				return nil, coreerrors.GraphInvariant("subtask " + t.ID + " has missing parent " + t.ParentTaskID)
			}
			if parent.IsSubtask {
				return nil, coreerrors.GraphInvariant("subtask " + t.ID + "'s parent " + parent.ID + " is itself a subtask")
			}
			if t.SubtaskIndex != nil {
				if subtaskIndices[t.ParentTaskID] == nil {
					subtaskIndices[t.ParentTaskID] = make(map[int]string)
				}
				if existing, collide := subtaskIndices[t.ParentTaskID][*t.SubtaskIndex]; collide {
					return nil, coreerrors.GraphInvariant("subtask index collision under parent " + t.ParentTaskID + " between " + existing + " and " + t.ID)
				}
				subtaskIndices[t.ParentTaskID][*t.SubtaskIndex] = t.ID
			}
		}

		if t.Requires != "" {
			if _, ok := provides[t.Requires]; !ok {
				warnings = append(warnings, "task "+t.ID+" requires unmatched contract "+t.Requires)
			}
		}
	}

	if cycle := g.findCycleLocked(); cycle != "" {
		return warnings, coreerrors.GraphInvariant("dependency cycle detected at task " + cycle)
	}

	sort.Strings(warnings)
	return warnings, nil
}

// findCycleLocked performs a DFS cycle check over the dependency edges.
// Callers must hold at least the read lock.
func (g *Graph) findCycleLocked() string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.tasks))

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = gray
		t, ok := g.tasks[id]
		if ok {
			for _, dep := range t.Dependencies {
				switch color[dep] {
				case white:
					if cyc := visit(dep); cyc != "" {
						return cyc
					}
				case gray:
					return dep
				}
			}
		}
		color[id] = black
		return ""
	}

	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if color[id] == white {
			if cyc := visit(id); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}
