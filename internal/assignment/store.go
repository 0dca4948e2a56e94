// Package assignment implements Assignment Persistence: a durable record
// of (agent -> task) bindings that survives process restart, backed by
// the Persistence collaborator.
package assignment

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"marcus/internal/collaborators"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/task"
)

const indexKey = "assignment:index"

func recordKey(taskID string) string { return "assignment:record:" + taskID }

// Store is the single writer for its project's assignments: the core
// runs exactly one active project at a time, so an in-process mutex is
// enough to serialize reservations without distributed consensus. Every
// mutation is written through to Persistence before the call returns, so
// a crash never loses a durable assignment the Scheduler already
// reported success for.
type Store struct {
	persistence collaborators.Persistence

	mu      sync.RWMutex
	records map[string]task.Assignment
}

// NewStore constructs an empty Store. Call Load to hydrate it from a
// prior process's durable state.
func NewStore(persistence collaborators.Persistence) *Store {
	return &Store{
		persistence: persistence,
		records:     make(map[string]task.Assignment),
	}
}

// Load rebuilds the in-memory mirror from the durable index and records,
// for use after a restart or a Project Context Manager cache miss.
func (s *Store) Load(ctx context.Context) error {
	raw, found, err := s.persistence.KVGet(ctx, indexKey)
	if err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "read assignment index", err)
	}
	if !found {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "decode assignment index", err)
	}

	records := make(map[string]task.Assignment, len(ids))
	for _, id := range ids {
		recRaw, found, err := s.persistence.KVGet(ctx, recordKey(id))
		if err != nil {
			return coreerrors.New(coreerrors.CodePersistenceError, "", "read assignment record", err)
		}
		if !found {
			continue
		}
		var a task.Assignment
		if err := json.Unmarshal(recRaw, &a); err != nil {
			return coreerrors.New(coreerrors.CodePersistenceError, "", "decode assignment record", err)
		}
		records[id] = a
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// Create durably records a. The caller (the Scheduler, under its
// project-wide reservation mutex) must already have confirmed no other
// assignment exists for this task; Create's CAS against the durable
// record guards the on-disk copy against a previous crash having left
// one behind.
func (s *Store) Create(ctx context.Context, a task.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[a.TaskID]; exists {
		return coreerrors.AssignmentErrorf("assignment already exists for task %q", a.TaskID)
	}

	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	ok, err := s.persistence.KVCompareAndSet(ctx, recordKey(a.TaskID), nil, data)
	if err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "persist assignment record", err)
	}
	if !ok {
		return coreerrors.AssignmentErrorf("durable assignment already exists for task %q", a.TaskID)
	}

	ids := s.taskIDsLocked()
	ids = append(ids, a.TaskID)
	if err := s.writeIndexLocked(ctx, ids); err != nil {
		_ = s.persistence.KVDelete(ctx, recordKey(a.TaskID))
		return err
	}

	s.records[a.TaskID] = a
	return nil
}

// Update durably rewrites the stored assignment for taskID via mutate,
// used for lease renewal snapshots. Returns false if no assignment
// exists for taskID.
func (s *Store) Update(ctx context.Context, taskID string, mutate func(*task.Assignment)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.records[taskID]
	if !exists {
		return false, nil
	}
	oldData, err := json.Marshal(current)
	if err != nil {
		return false, err
	}

	updated := current
	mutate(&updated)
	newData, err := json.Marshal(updated)
	if err != nil {
		return false, err
	}

	ok, err := s.persistence.KVCompareAndSet(ctx, recordKey(taskID), oldData, newData)
	if err != nil {
		return false, coreerrors.New(coreerrors.CodePersistenceError, "", "persist assignment update", err)
	}
	if !ok {
		return false, coreerrors.AssignmentErrorf("concurrent update to assignment %q", taskID)
	}

	s.records[taskID] = updated
	return true, nil
}

// Remove durably deletes the assignment for taskID, if any.
func (s *Store) Remove(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[taskID]; !exists {
		return nil
	}

	if err := s.persistence.KVDelete(ctx, recordKey(taskID)); err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "delete assignment record", err)
	}

	ids := s.taskIDsLocked()
	filtered := ids[:0]
	for _, id := range ids {
		if id != taskID {
			filtered = append(filtered, id)
		}
	}
	if err := s.writeIndexLocked(ctx, filtered); err != nil {
		return err
	}

	delete(s.records, taskID)
	return nil
}

// Get returns the current assignment for taskID, if any.
func (s *Store) Get(taskID string) (task.Assignment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.records[taskID]
	return a, ok
}

// ListForAgent returns every assignment currently held by agentID,
// ordered by task id.
func (s *Store) ListForAgent(agentID string) []task.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]task.Assignment, 0)
	for _, a := range s.records {
		if a.AgentID == agentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// ListAll returns every current assignment, ordered by task id.
func (s *Store) ListAll() []task.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]task.Assignment, 0, len(s.records))
	for _, a := range s.records {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// taskIDsLocked returns the current task ids, sorted. Callers hold s.mu.
func (s *Store) taskIDsLocked() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// writeIndexLocked rewrites the durable index key. Callers hold s.mu,
// which serializes every writer in this process, so a plain KVPut is
// sufficient here: the CAS guard on Create's own record already
// rejects a racing second writer.
func (s *Store) writeIndexLocked(ctx context.Context, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := s.persistence.KVPut(ctx, indexKey, data); err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "persist assignment index", err)
	}
	return nil
}
