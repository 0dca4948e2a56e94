package collaborators

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

const boardSnapshotKey = "kanban:board"

// LocalKanban is a single-process KanbanClient backed by a Persistence
// collaborator, for running the coordination kernel against a local
// board instead of a hosted one (Planka, GitHub Projects, Linear...).
// Its task list survives a restart because every task mutation
// (CreateTask, UpdateTask, Assign) writes through to persistence;
// comments are kept in memory only and are not persisted.
type LocalKanban struct {
	persistence Persistence

	mu       sync.Mutex
	byID     map[string]BoardTask
	comments map[string][]string
}

// NewLocalKanban constructs a LocalKanban writing through to persistence.
func NewLocalKanban(persistence Persistence) *LocalKanban {
	return &LocalKanban{
		persistence: persistence,
		byID:        make(map[string]BoardTask),
		comments:    make(map[string][]string),
	}
}

func (k *LocalKanban) Connect(ctx context.Context) error {
	data, ok, err := k.persistence.KVGet(ctx, boardSnapshotKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	var tasks []BoardTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return err
	}
	k.byID = make(map[string]BoardTask, len(tasks))
	for _, t := range tasks {
		k.byID[t.ID] = t
	}
	return nil
}

func (k *LocalKanban) Disconnect(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.persistLocked(ctx)
}

func (k *LocalKanban) ListTasks(ctx context.Context) ([]BoardTask, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]BoardTask, 0, len(k.byID))
	for _, t := range k.byID {
		out = append(out, t)
	}
	return out, nil
}

func (k *LocalKanban) CreateTask(ctx context.Context, spec TaskSpec) (string, error) {
	k.mu.Lock()
	id := uuid.NewString()
	k.byID[id] = BoardTask{
		ID:           id,
		Name:         spec.Name,
		Status:       "todo",
		Dependencies: append([]string(nil), spec.Dependencies...),
		Labels:       append([]string(nil), spec.Labels...),
	}
	err := k.persistLocked(ctx)
	k.mu.Unlock()
	return id, err
}

func (k *LocalKanban) UpdateTask(ctx context.Context, id string, patch TaskPatch) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, ok := k.byID[id]
	if !ok {
		return nil
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.AssignedTo != nil {
		t.AssignedTo = *patch.AssignedTo
	}
	k.byID[id] = t
	return k.persistLocked(ctx)
}

func (k *LocalKanban) Assign(ctx context.Context, taskID, agentID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, ok := k.byID[taskID]
	if !ok {
		return nil
	}
	t.AssignedTo = agentID
	k.byID[taskID] = t
	return k.persistLocked(ctx)
}

func (k *LocalKanban) Comment(ctx context.Context, taskID, text string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.comments[taskID] = append(k.comments[taskID], text)
	return nil
}

// persistLocked serializes the current board and writes it through.
// Callers must hold k.mu.
func (k *LocalKanban) persistLocked(ctx context.Context) error {
	tasks := make([]BoardTask, 0, len(k.byID))
	for _, t := range k.byID {
		tasks = append(tasks, t)
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	return k.persistence.KVPut(ctx, boardSnapshotKey, data)
}

var _ KanbanClient = (*LocalKanban)(nil)
