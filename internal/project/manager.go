// Package project implements the Project Context Manager: the
// single-active-project invariant, an LRU cache of per-project
// resources, and the switch_project protocol.
package project

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel/attribute"

	"marcus/internal/assignment"
	"marcus/internal/clock"
	"marcus/internal/collaborators"
	"marcus/internal/contextbuilder"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/graph"
	"marcus/internal/events"
	"marcus/internal/lease"
	"marcus/internal/lifecycle"
	"marcus/internal/logging"
	"marcus/internal/memory"
	"marcus/internal/metrics"
	"marcus/internal/progress"
	"marcus/internal/reconciler"
	"marcus/internal/records"
	"marcus/internal/scheduler"
)

// Context bundles every resource a single project owns: its own Task
// Graph, Assignment Persistence, Memory, Records, Event Bus, Lease
// Manager, Reconciler, Scheduler, Progress Handler, Context Builder, and
// kanban connection. Agents are registered core-wide, not per project.
type Context struct {
	ProjectID      string
	Graph          *graph.Graph
	Assignments    *assignment.Store
	Records        *records.Store
	Memory         *memory.Recorder
	Bus            *events.Bus
	Durable        *events.DurableLog
	Leases         *lease.Manager
	Reconciler     *reconciler.Reconciler
	Scheduler      *scheduler.Scheduler
	Progress       *progress.Handler
	ContextBuilder *contextbuilder.Builder
	Kanban         collaborators.KanbanClient
}

// Factory builds a fresh Context for projectID, dialing its kanban
// board and hydrating its durable state. Supplied by Core, since wiring
// a project's collaborators is deployment-specific.
type Factory func(ctx context.Context, projectID string) (*Context, error)

// Config controls the Project Context Manager's cache.
type Config struct {
	CacheCapacity int
}

// Manager enforces the single-active-project invariant: exactly one
// Context is "active" at a time, switching under an exclusive latch
// per the six-step protocol.
type Manager struct {
	config  Config
	factory Factory
	clock   clock.Clock
	logger  logging.Logger

	switchMu sync.Mutex // the protocol's exclusive switch latch

	mu       sync.Mutex
	cache    *lru.Cache[string, *Context]
	activeID string
}

// New constructs a Manager with the given cache capacity.
func New(cfg Config, factory Factory, clk clock.Clock, logger logging.Logger) (*Manager, error) {
	logger = logging.OrNop(logger)
	m := &Manager{config: cfg, factory: factory, clock: clk, logger: logger}

	cache, err := lru.NewWithEvict[string, *Context](cfg.CacheCapacity, func(projectID string, pc *Context) {
		m.quiesce(context.Background(), pc)
	})
	if err != nil {
		return nil, coreerrors.New(coreerrors.CodeInvalidConfig, "", "construct project LRU cache", err)
	}
	m.cache = cache
	return m, nil
}

// Active returns the currently active Context, or false if none has
// been switched to yet.
func (m *Manager) Active() (*Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeID == "" {
		return nil, false
	}
	pc, ok := m.cache.Get(m.activeID)
	return pc, ok
}

// ListProjectIDs returns every cached project id, most recently used
// first.
func (m *Manager) ListProjectIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := m.cache.Keys() // oldest to newest
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys
}

// Switch implements the switch_project protocol: quiesce the outgoing
// project's background loops, fetch or construct the target from cache,
// start its loops, and make it active. Serialized by switchMu so two
// concurrent switches never interleave their quiesce/start steps.
func (m *Manager) Switch(ctx context.Context, targetID string) (*Context, error) {
	ctx, span := metrics.StartSpan(ctx, metrics.SpanSwitchProject, uuid.NewString(),
		attribute.String(metrics.AttrProjectID, targetID),
	)
	var err error
	defer func() { metrics.EndSpan(span, err) }()

	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	outgoingID := m.activeID
	outgoing, hasOutgoing := m.cache.Peek(outgoingID)
	m.mu.Unlock()

	if hasOutgoing && outgoingID != targetID {
		m.quiesce(ctx, outgoing)
	}

	m.mu.Lock()
	target, found := m.cache.Get(targetID)
	m.mu.Unlock()

	if !found {
		var built *Context
		built, err = m.factory(ctx, targetID)
		if err != nil {
			return nil, err
		}
		target = built
		m.mu.Lock()
		if evicted := m.cache.Add(targetID, target); evicted {
			m.logger.Warn("project cache evicted a context while adding %q", targetID)
		}
		m.mu.Unlock()
	}

	if err = m.start(ctx, target); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.activeID = targetID
	m.mu.Unlock()

	return target, nil
}

// start resumes a Context's background loops (Reconciler, Lease
// Manager) after a switch makes it active.
func (m *Manager) start(ctx context.Context, pc *Context) error {
	if pc.Durable != nil {
		pc.Durable.Start(ctx)
	}
	if pc.Leases != nil {
		if err := pc.Leases.Start(ctx); err != nil {
			return coreerrors.New(coreerrors.CodeServiceUnavailable, "", "start lease manager", err)
		}
	}
	if pc.Reconciler != nil {
		if err := pc.Reconciler.Start(ctx); err != nil {
			return coreerrors.New(coreerrors.CodeServiceUnavailable, "", "start reconciler", err)
		}
	}
	return nil
}

// quiesce stops a Context's background loops and closes its kanban
// connection, draining in-flight work within a bounded deadline.
func (m *Manager) quiesce(ctx context.Context, pc *Context) {
	if pc == nil {
		return
	}

	var drainables []lifecycle.Drainable
	if pc.Reconciler != nil {
		drainables = append(drainables, pc.Reconciler)
	}
	if pc.Leases != nil {
		drainables = append(drainables, pc.Leases)
	}
	if pc.Durable != nil {
		drainables = append(drainables, pc.Durable)
	}
	for _, err := range lifecycle.DrainAll(ctx, 5*time.Second, drainables...) {
		m.logger.Warn("drain project %q: %v", pc.ProjectID, err)
	}

	if pc.Kanban != nil {
		disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pc.Kanban.Disconnect(disconnectCtx); err != nil {
			m.logger.Warn("disconnect kanban client for project %q: %v", pc.ProjectID, err)
		}
	}
}
