// Package task defines the unified task/agent/assignment domain model: the
// single source of truth the Task Graph, Scheduler, and Progress Handler
// all operate on.
package task

import "time"

// Status represents the lifecycle state of a Task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
)

// IsTerminal reports whether status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusDone
}

// Priority ranks a Task's urgency for the Scheduler's scoring function.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// weight maps Priority onto the scheduler's 0..1 priority term.
func (p Priority) weight() float64 {
	switch p {
	case PriorityLow:
		return 0.25
	case PriorityMedium:
		return 0.5
	case PriorityHigh:
		return 0.75
	case PriorityUrgent:
		return 1.0
	default:
		return 0.5
	}
}

// Weight exposes the priority term used by the scheduler's scoring formula.
func (p Priority) Weight() float64 { return p.weight() }

// Task is a unit of work tracked by the core, mirrored against an external
// kanban board.
type Task struct {
	ID          string
	ProjectID   string
	Name        string
	Description string
	Status      Status
	Priority    Priority

	EstimatedHours float64
	ActualHours    float64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DueDate     *time.Time
	CompletedAt *time.Time

	Labels []string

	// Graph fields.
	Dependencies []string
	IsSubtask    bool
	ParentTaskID string
	SubtaskIndex *int
	Provides     string
	Requires     string

	AssignedTo string

	// BoardSyncPending marks a reservation whose kanban push failed; the
	// Reconciler repairs it on its next pass.
	BoardSyncPending bool

	// Blocked is set by report_blocker together with Status = blocked;
	// the task's lease stays active while it is blocked. unblock_task,
	// completion, and lease expiry clear it.
	Blocked bool
}

// HasLabel reports whether the task carries label.
func (t *Task) HasLabel(label string) bool {
	for _, l := range t.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Phase returns the task's phase tag, the empty string if none is set.
// Phase tags are carried as labels with a "phase:" prefix.
func (t *Task) Phase() string {
	const prefix = "phase:"
	for _, l := range t.Labels {
		if len(l) > len(prefix) && l[:len(prefix)] == prefix {
			return l[len(prefix):]
		}
	}
	return ""
}

// RequiredSkills returns the task's labels with the "phase:" tag
// excluded, the set the Scheduler matches against an agent's skills.
func (t *Task) RequiredSkills() []string {
	const prefix = "phase:"
	out := make([]string, 0, len(t.Labels))
	for _, l := range t.Labels {
		if len(l) >= len(prefix) && l[:len(prefix)] == prefix {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Agent is a worker registration.
type Agent struct {
	ID               string
	Name             string
	Role             string
	Skills           []string
	CapacityHoursWk  float64
	PerformanceScore float64
}

// HasSkill reports whether the agent declares skill.
func (a *Agent) HasSkill(skill string) bool {
	for _, s := range a.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// NewAgent constructs an Agent with the default performance score.
func NewAgent(id, name, role string, skills []string, capacityHoursWk float64) *Agent {
	return &Agent{
		ID:               id,
		Name:             name,
		Role:             role,
		Skills:           append([]string(nil), skills...),
		CapacityHoursWk:  capacityHoursWk,
		PerformanceScore: 1.0,
	}
}

// LeaseState is the lifecycle state of a Lease.
type LeaseState string

const (
	LeaseActive   LeaseState = "active"
	LeaseExpired  LeaseState = "expired"
	LeaseReleased LeaseState = "released"
)

// Lease is the time contract an Assignment holds over a Task. At most one
// active Lease may exist per task id at any time.
type Lease struct {
	TaskID          string
	AgentID         string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	RenewalCount    int
	LastProgressPct int
	State           LeaseState
}

// Assignment is the (task_id, agent_id) binding a Scheduler reservation
// creates and a completion, cancellation, or lease expiry destroys.
type Assignment struct {
	TaskID   string
	AgentID  string
	OpenedAt time.Time
	Lease    Lease
}

// Project is a board and its task collection.
type Project struct {
	ID            string
	DisplayName   string
	KanbanHandle  string
	LastAccessed  time.Time
}

// Decision is an append-only record of a judgment call made on a task.
type Decision struct {
	TaskID           string
	AgentID          string
	What             string
	Why              string
	Impact           string
	Confidence       float64
	AffectedTaskIDs  []string
	RecordedAt       time.Time
}

// Artifact is an append-only record of a produced output attached to a task.
type Artifact struct {
	TaskID      string
	AgentID     string
	Type        string
	Location    string
	Size        int64
	Description string
	RecordedAt  time.Time
}

// BlockerReport records a reported obstruction on a task.
type BlockerReport struct {
	TaskID      string
	AgentID     string
	Description string
	Severity    string
	ReportedAt  time.Time
	ResolvedAt  *time.Time
	Resolution  string
}
