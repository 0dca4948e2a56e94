// Package collaborators defines the external contracts the core consumes
// but never implements: the kanban board, the agent workspace, durable
// key-value/append persistence. Concrete providers (Planka, GitHub,
// Linear, a database) live outside this module; the core only calls
// through these ports.
package collaborators

import "context"

// TaskSpec describes a task to be created on the board.
type TaskSpec struct {
	Name         string
	Description  string
	Priority     string
	Labels       []string
	Dependencies []string
}

// TaskPatch describes a partial update to a board task.
type TaskPatch struct {
	Status      *string
	AssignedTo  *string
	ActualHours *float64
}

// BoardTask is the board's view of a task, used by the Reconciler to diff
// against the in-memory Task Graph.
type BoardTask struct {
	ID           string
	Name         string
	Status       string
	AssignedTo   string
	Dependencies []string
	Labels       []string
}

// KanbanClient is the external kanban board collaborator. All operations
// may fail with a transient or permanent error; callers retry transient
// failures with coreerrors.Retry.
type KanbanClient interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	ListTasks(ctx context.Context) ([]BoardTask, error)
	CreateTask(ctx context.Context, spec TaskSpec) (string, error)
	UpdateTask(ctx context.Context, id string, patch TaskPatch) error
	Assign(ctx context.Context, taskID, agentID string) error
	Comment(ctx context.Context, taskID, text string) error
}
