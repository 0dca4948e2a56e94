// Package agent implements the Agent registry: the worker-registration
// table the Scheduler consults for skills/capacity and register_agent
// writes to.
package agent

import (
	"sort"
	"sync"

	"marcus/internal/domain/task"
)

// Registry is a concurrency-safe map of registered agents, keyed by id.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*task.Agent
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*task.Agent)}
}

// Register inserts or updates the agent, matching register_agent's
// idempotent-on-id contract: a second call with the same id updates the
// declared fields rather than failing.
func (r *Registry) Register(a *task.Agent) *task.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	if existing, ok := r.agents[a.ID]; ok && cp.PerformanceScore == 0 {
		cp.PerformanceScore = existing.PerformanceScore
	}
	r.agents[a.ID] = &cp
	out := cp
	return &out
}

// Get returns a copy of the agent with the given id.
func (r *Registry) Get(id string) (*task.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

// All returns a copy of every registered agent, ordered by id.
func (r *Registry) All() []*task.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*task.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
