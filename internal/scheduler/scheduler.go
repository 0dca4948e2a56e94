// Package scheduler implements the Scheduler / Task Picker: the single
// entry point an agent calls to be handed its next piece of work.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"marcus/internal/agent"
	"marcus/internal/assignment"
	"marcus/internal/clock"
	"marcus/internal/config"
	"marcus/internal/contextbuilder"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/graph"
	"marcus/internal/domain/task"
	"marcus/internal/events"
	"marcus/internal/lease"
	"marcus/internal/logging"
	"marcus/internal/metrics"
	"marcus/internal/resolver"
)

// ErrNoWork is returned when no Ready task matches the requesting agent.
var ErrNoWork = errors.New("scheduler: no ready task available for agent")

const (
	minDuration = 30 * time.Minute
	maxDuration = 24 * time.Hour
)

// VelocityEstimator supplies a per-agent historical pace, consumed to
// shorten a task's initial lease duration below the estimate-derived
// default. Implemented by the Memory / Outcome Recorder; nil-safe here
// so the Scheduler works before Memory is wired in.
type VelocityEstimator interface {
	Estimate(agentID string, labels []string) (hoursPerPoint, confidence float64)
}

// Scheduler owns task reservation for a single active project. All
// candidates are scanned and reserved under one mutex rather than a
// per-task latch table: the core runs exactly one active project at a
// time, so a project-wide critical section gives the same atomicity the
// per-task latch would, without the bookkeeping of a latch-per-task map
// that would mostly sit empty.
type Scheduler struct {
	graph          *graph.Graph
	agents         *agent.Registry
	assignments    *assignment.Store
	leases         *lease.Manager
	bus            *events.Bus
	contextBuilder *contextbuilder.Builder
	velocity       VelocityEstimator
	clock          clock.Clock
	weights        config.ScoreWeights
	logger         logging.Logger
	metrics        *metrics.Registry

	mu sync.Mutex
}

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithMetrics wires a shared metrics.Registry into the Scheduler so
// request_next_task records tasks-assigned counts and pick latency.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Scheduler) { s.metrics = reg }
}

// New constructs a Scheduler. velocity may be nil.
func New(
	g *graph.Graph,
	agents *agent.Registry,
	assignments *assignment.Store,
	leases *lease.Manager,
	bus *events.Bus,
	contextBuilder *contextbuilder.Builder,
	velocity VelocityEstimator,
	clk clock.Clock,
	weights config.ScoreWeights,
	logger logging.Logger,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		graph:          g,
		agents:         agents,
		assignments:    assignments,
		leases:         leases,
		bus:            bus,
		contextBuilder: contextBuilder,
		velocity:       velocity,
		clock:          clk,
		weights:        weights,
		logger:         logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// candidate pairs a Ready task with its score for sorting.
type candidate struct {
	task  *task.Task
	score float64
}

// RequestNextTask reserves the highest-scoring Ready task for agentID
// and returns it together with the Lease opened over it and the
// assembled context. Returns ErrNoWork if nothing is eligible, or an
// AgentNotFound *coreerrors.CoreError if agentID is unregistered.
func (s *Scheduler) RequestNextTask(ctx context.Context, projectID, agentID string) (*task.Task, task.Lease, contextbuilder.Payload, error) {
	correlationID := uuid.NewString()
	ctx, span := metrics.StartSpan(ctx, metrics.SpanRequestNextTask, correlationID,
		attribute.String(metrics.AttrProjectID, projectID),
		attribute.String(metrics.AttrAgentID, agentID),
	)
	start := s.clock.Now()
	var err error
	defer func() {
		s.metrics.ObserveSchedulerLatency(s.clock.Now().Sub(start).Seconds())
		metrics.EndSpan(span, err)
	}()

	ag, ok := s.agents.Get(agentID)
	if !ok {
		err = coreerrors.AgentNotFound(agentID).WithCorrelationID(correlationID)
		return nil, task.Lease{}, contextbuilder.Payload{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.scoredCandidates(ag)
	for _, c := range candidates {
		var t *task.Task
		var lse task.Lease
		var payload contextbuilder.Payload
		t, lse, payload, err = s.tryReserve(ctx, projectID, c.task.ID, agentID, correlationID)
		if err != nil {
			if coreerrors.Is(err, coreerrors.CodePersistenceError) {
				return nil, task.Lease{}, contextbuilder.Payload{}, err
			}
			if cur, ok := s.graph.Get(c.task.ID); ok && cur.AssignedTo == agentID {
				// Reserved, but the context build failed; the reservation stands.
				return nil, task.Lease{}, contextbuilder.Payload{}, err
			}
			err = nil
			continue
		}
		if t == nil {
			continue // lost the race to a concurrent external mutation; try the next candidate
		}
		s.metrics.IncTasksAssigned(projectID)
		return t, lse, payload, nil
	}

	err = ErrNoWork
	return nil, task.Lease{}, contextbuilder.Payload{}, err
}

// scoredCandidates enumerates Ready tasks, applies the subtask-first
// policy, scores each against ag's skills, and returns them sorted
// highest score first (ties broken by resolver.Less).
func (s *Scheduler) scoredCandidates(ag *task.Agent) []candidate {
	ready := s.readyTasks()

	var subtasks []*task.Task
	for _, t := range ready {
		if t.IsSubtask {
			subtasks = append(subtasks, t)
		}
	}
	if len(subtasks) > 0 {
		ready = subtasks
	}

	out := make([]candidate, 0, len(ready))
	for _, t := range ready {
		score := s.score(t, ag)
		if score <= 0 {
			continue
		}
		out = append(out, candidate{task: t, score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return resolver.Less(out[i].task, out[j].task)
	})
	return out
}

func (s *Scheduler) readyTasks() []*task.Task {
	var out []*task.Task
	for _, t := range s.graph.IterReady() {
		if resolver.Resolve(s.graph, t).Ready {
			out = append(out, t)
		}
	}
	return out
}

// score implements the scheduler's selection formula: matched-skill
// ratio weighted by Skill, priority weighted by Priority, and successor
// count (dependency impact, normalized to [0,1)) weighted by Impact. A
// task whose required labels are entirely absent from the agent's
// skills scores zero and is dropped.
func (s *Scheduler) score(t *task.Task, ag *task.Agent) float64 {
	required := t.RequiredSkills()
	ratio := 1.0
	if len(required) > 0 {
		matched := 0
		for _, label := range required {
			if ag.HasSkill(label) {
				matched++
			}
		}
		if matched == 0 {
			return 0
		}
		ratio = float64(matched) / float64(len(required))
	}

	impact := float64(len(s.graph.Successors(t.ID)))
	normalizedImpact := impact / (impact + 1)

	return ratio*s.weights.Skill + t.Priority.Weight()*s.weights.Priority + normalizedImpact*s.weights.Impact
}

// tryReserve re-validates taskID's readiness under the scheduler's lock,
// then atomically transitions it, opens a lease, and writes the
// assignment through to Persistence. A nil *task.Task with a nil error
// means the candidate lost its Ready status to a concurrent external
// mutation; callers should move on to the next candidate rather than
// treat it as failure.
func (s *Scheduler) tryReserve(ctx context.Context, projectID, taskID, agentID, correlationID string) (*task.Task, task.Lease, contextbuilder.Payload, error) {
	fresh, ok := s.graph.Get(taskID)
	if !ok || fresh.Status != task.StatusTodo || fresh.AssignedTo != "" || !resolver.Resolve(s.graph, fresh).Ready {
		return nil, task.Lease{}, contextbuilder.Payload{}, nil
	}

	if !s.graph.Mutate(taskID, func(t *task.Task) {
		t.Status = task.StatusInProgress
		t.AssignedTo = agentID
	}) {
		return nil, task.Lease{}, contextbuilder.Payload{}, nil
	}

	duration := initialDuration(fresh, s.velocity, agentID)
	lse, err := s.leases.Open(taskID, agentID, duration)
	if err != nil {
		s.rollback(taskID)
		return nil, task.Lease{}, contextbuilder.Payload{}, err
	}

	asg := task.Assignment{TaskID: taskID, AgentID: agentID, OpenedAt: s.clock.Now(), Lease: lse}
	if err := s.assignments.Create(ctx, asg); err != nil {
		s.leases.Release(taskID)
		s.rollback(taskID)
		return nil, task.Lease{}, contextbuilder.Payload{}, coreerrors.New(coreerrors.CodePersistenceError, "", "write assignment", err)
	}

	payload, err := s.contextBuilder.Build(ctx, projectID, taskID, agentID)
	if err != nil {
		// The reservation and lease already succeeded durably; surface the
		// context-build error so the caller can retry get_task_context
		// rather than unwinding a reservation the agent now holds.
		return nil, task.Lease{}, contextbuilder.Payload{}, err
	}

	if pubErr := s.bus.Publish(ctx, events.Event{
		Kind:          events.KindTaskAssigned,
		Timestamp:     s.clock.Now(),
		ProjectID:     projectID,
		CorrelationID: correlationID,
		Payload: map[string]any{
			"task_id":  taskID,
			"agent_id": agentID,
		},
	}); pubErr != nil {
		s.logger.Warn("publish task_assigned for %q: %v", taskID, pubErr)
	}

	reserved, _ := s.graph.Get(taskID)
	return reserved, lse, payload, nil
}

// rollback restores a task to its pre-reservation state after a lease
// or persistence failure, matching the failure model's "roll back the
// in-memory transition" requirement.
func (s *Scheduler) rollback(taskID string) {
	s.graph.Mutate(taskID, func(t *task.Task) {
		t.Status = task.StatusTodo
		t.AssignedTo = ""
	})
}

// initialDuration computes a task's lease duration: the estimate (1h when
// unset) scaled by a 1.25 safety factor, shortened to the agent's
// historical pace when VelocityEstimator reports one with non-zero
// confidence, then clamped to [30m, 24h].
func initialDuration(t *task.Task, velocity VelocityEstimator, agentID string) time.Duration {
	hours := t.EstimatedHours
	if hours <= 0 {
		hours = 1
	}
	estimate := time.Duration(hours * 1.25 * float64(time.Hour))

	if velocity != nil {
		if hoursPerPoint, confidence := velocity.Estimate(agentID, t.RequiredSkills()); confidence > 0 && hoursPerPoint > 0 {
			fromVelocity := time.Duration(hoursPerPoint * float64(time.Hour))
			if fromVelocity < estimate {
				estimate = fromVelocity
			}
		}
	}

	return clampDuration(estimate, minDuration, maxDuration)
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
