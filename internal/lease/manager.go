// Package lease implements the Lease Manager: per-assignment
// time-bounded contracts with renewal and autonomous expiry.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"marcus/internal/assignment"
	"marcus/internal/async"
	"marcus/internal/clock"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/graph"
	"marcus/internal/domain/task"
	"marcus/internal/events"
	"marcus/internal/logging"
	"marcus/internal/metrics"
)

// Config controls lease duration and the expiry scan cadence.
type Config struct {
	DefaultDuration time.Duration
	TickerInterval  time.Duration
}

// Manager owns every active lease for the project's Task Graph. At most
// one active lease may exist per task id; Open and Release are mutually
// exclusive per task, enforced by the single mutex mu that guards leases.
type Manager struct {
	config      Config
	graph       *graph.Graph
	assignments *assignment.Store
	bus         *events.Bus
	clock       clock.Clock
	logger      logging.Logger
	metrics     *metrics.Registry

	mu     sync.Mutex
	leases map[string]*task.Lease // taskID -> lease

	cron     *cron.Cron
	entryID  cron.EntryID
	stopped  chan struct{}
	stopOnce sync.Once
}

// Option configures optional Manager dependencies.
type Option func(*Manager)

// WithMetrics wires a shared metrics.Registry into the Manager so renewals
// and expiries are counted.
func WithMetrics(reg *metrics.Registry) Option {
	return func(m *Manager) { m.metrics = reg }
}

// NewManager constructs a Manager. Call Start to begin the background
// expiry scan.
func NewManager(cfg Config, g *graph.Graph, assignments *assignment.Store, bus *events.Bus, clk clock.Clock, logger logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		config:      cfg,
		graph:       g,
		assignments: assignments,
		bus:         bus,
		clock:       clk,
		logger:      logging.OrNop(logger),
		leases:      make(map[string]*task.Lease),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name identifies the subsystem for lifecycle.DrainAll logging.
func (m *Manager) Name() string { return "lease.manager" }

// Start registers the expiry-scan cron job and starts the runner. The
// ticker granularity is seconds, matching the `@every` idiom used
// elsewhere in the core for background scans.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	entryID, err := m.cron.AddFunc(fmt.Sprintf("@every %ds", intervalSeconds(m.config.TickerInterval)), func() {
		m.ScanExpired(context.Background())
	})
	if err != nil {
		return fmt.Errorf("lease manager: register expiry scan: %w", err)
	}
	m.entryID = entryID
	m.cron.Start()

	async.Go(m.logger, "lease.manager.ctx_watch", func() {
		<-ctx.Done()
		m.stopOnce.Do(func() {
			stopCtx := m.cron.Stop()
			<-stopCtx.Done()
			close(m.stopped)
		})
	})

	return nil
}

// Drain stops the expiry-scan cron job, waiting for an in-flight scan to
// finish within ctx's deadline.
func (m *Manager) Drain(ctx context.Context) error {
	m.mu.Lock()
	c := m.cron
	m.mu.Unlock()
	if c == nil {
		return nil
	}

	cronDone := c.Stop()
	select {
	case <-cronDone.Done():
		m.stopOnce.Do(func() { close(m.stopped) })
		return nil
	case <-ctx.Done():
		m.stopOnce.Do(func() { close(m.stopped) })
		return fmt.Errorf("lease manager drain: %w", ctx.Err())
	}
}

func intervalSeconds(d time.Duration) int {
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return s
}

// Open creates a new active lease for (task, agent). Fails with
// AssignmentError if an active lease already exists for the task.
func (m *Manager) Open(taskID, agentID string, duration time.Duration) (task.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.leases[taskID]; ok && existing.State == task.LeaseActive {
		return task.Lease{}, coreerrors.AssignmentErrorf("task %q already has an active lease", taskID)
	}

	now := m.clock.Now()
	l := &task.Lease{
		TaskID:    taskID,
		AgentID:   agentID,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
		State:     task.LeaseActive,
	}
	m.leases[taskID] = l
	return *l, nil
}

// stageFactor scales the remaining-duration estimate by how far along the
// reported progress is: early reports buy less runway than late ones,
// since early estimates are the least reliable.
func stageFactor(pct int) float64 {
	switch {
	case pct < 33:
		return 0.8
	case pct < 66:
		return 1.0
	default:
		return 1.3
	}
}

// renewalSafetyFactor mirrors initialDuration's 1.25 safety margin on the
// raw estimate, so a renewal's remaining-duration is scaled from the same
// initial duration the task was first leased with, not the bare estimate.
const renewalSafetyFactor = 1.25

// Renew extends the lease for taskID based on progress and the task's
// estimated hours, scaling the remaining fraction of the 1.25x-padded
// initial duration by stageFactor. Renewal is idempotent under a
// monotonic LastProgressPct: a renewal reporting a lower pct than already
// stored still extends the lease but never lowers the stored progress.
func (m *Manager) Renew(taskID string, pct int, estimatedHours float64) (task.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[taskID]
	if !ok || l.State != task.LeaseActive {
		return task.Lease{}, coreerrors.AssignmentErrorf("no active lease for task %q", taskID)
	}

	initialDuration := estimatedHours * renewalSafetyFactor
	remainingFraction := float64(100-pct) / 100.0
	remaining := time.Duration(remainingFraction*initialDuration*stageFactor(pct)*3600) * time.Second
	if remaining < 0 {
		remaining = 0
	}

	now := m.clock.Now()
	l.ExpiresAt = now.Add(remaining)
	l.RenewalCount++
	if pct > l.LastProgressPct {
		l.LastProgressPct = pct
	}

	m.metrics.IncLeasesRenewed()

	return *l, nil
}

// Release marks the lease for taskID as released, freeing it for a
// future Open on the same task.
func (m *Manager) Release(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.leases[taskID]
	if !ok {
		return nil
	}
	l.State = task.LeaseReleased
	delete(m.leases, taskID)
	return nil
}

// Get returns the current lease for taskID, if any.
func (m *Manager) Get(taskID string) (task.Lease, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[taskID]
	if !ok {
		return task.Lease{}, false
	}
	return *l, true
}

// ScanExpired transitions every lease whose ExpiresAt has passed to
// expired, releases the underlying assignment and graph task back to
// todo, and emits lease_expired. Safe to call directly from tests in
// place of waiting on the cron ticker.
func (m *Manager) ScanExpired(ctx context.Context) {
	now := m.clock.Now()

	m.mu.Lock()
	var expiredIDs []string
	for id, l := range m.leases {
		if l.State == task.LeaseActive && l.ExpiresAt.Before(now) {
			expiredIDs = append(expiredIDs, id)
		}
	}
	m.mu.Unlock()

	for _, taskID := range expiredIDs {
		m.expireOne(ctx, taskID)
	}
}

func (m *Manager) expireOne(ctx context.Context, taskID string) {
	m.mu.Lock()
	l, ok := m.leases[taskID]
	if !ok || l.State != task.LeaseActive {
		m.mu.Unlock()
		return
	}
	l.State = task.LeaseExpired
	delete(m.leases, taskID)
	m.mu.Unlock()

	m.graph.Mutate(taskID, func(t *task.Task) {
		t.AssignedTo = ""
		t.Status = task.StatusTodo
		t.Blocked = false
	})

	if err := m.assignments.Remove(ctx, taskID); err != nil {
		m.logger.Error("lease expiry: remove assignment for task %q: %v", taskID, err)
	}

	if m.bus != nil {
		if err := m.bus.Publish(ctx, events.Event{
			Kind:      events.KindLeaseExpired,
			Timestamp: m.clock.Now(),
			Payload:   map[string]any{"task_id": taskID, "agent_id": l.AgentID},
		}); err != nil {
			m.logger.Error("lease expiry: publish event for task %q: %v", taskID, err)
		}
	}

	m.metrics.IncLeasesExpired()
	m.logger.Info("lease expired for task %q (agent %q)", taskID, l.AgentID)
}
