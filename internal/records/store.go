// Package records implements the append-only Decision, Artifact, and
// BlockerReport log the Context Builder reads from and
// report_blocker/unblock_task write blocker reports to, backed by the
// Persistence collaborator.
package records

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"marcus/internal/collaborators"
	"marcus/internal/coreerrors"
	"marcus/internal/domain/task"
)

func decisionStreamKey(taskID string) string { return "records:decisions:" + taskID }
func artifactStreamKey(taskID string) string { return "records:artifacts:" + taskID }
func blockerStreamKey(taskID string) string  { return "records:blockers:" + taskID }

// Store is the append-only home for Decision, Artifact, and
// BlockerReport records, indexed both by task id and, for decisions, by
// the subtask's parent so the Context Builder can pull "the 5 most
// recent decisions on this parent" across sibling subtasks.
type Store struct {
	persistence collaborators.Persistence

	mu               sync.RWMutex
	decisionsByTask  map[string][]task.Decision
	decisionsByGroup map[string][]task.Decision
	artifactsByTask  map[string][]task.Artifact
	blockersByTask   map[string][]task.BlockerReport
}

// NewStore constructs an empty Store.
func NewStore(persistence collaborators.Persistence) *Store {
	return &Store{
		persistence:      persistence,
		decisionsByTask:  make(map[string][]task.Decision),
		decisionsByGroup: make(map[string][]task.Decision),
		artifactsByTask:  make(map[string][]task.Artifact),
		blockersByTask:   make(map[string][]task.BlockerReport),
	}
}

// RecordDecision appends d, write-through to Persistence under the
// task's stream key before it becomes visible to readers.
func (s *Store) RecordDecision(ctx context.Context, groupKey string, d task.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(append([]task.Decision(nil), s.decisionsByTask[d.TaskID]...), d)
	raw, err := json.Marshal(history)
	if err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "encode decision stream", err)
	}
	if err := s.persistence.KVPut(ctx, decisionStreamKey(d.TaskID), raw); err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "append decision", err)
	}

	s.decisionsByTask[d.TaskID] = history
	s.decisionsByGroup[groupKey] = append(s.decisionsByGroup[groupKey], d)
	return nil
}

// RecordArtifact appends a, write-through to Persistence.
func (s *Store) RecordArtifact(ctx context.Context, a task.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(append([]task.Artifact(nil), s.artifactsByTask[a.TaskID]...), a)
	raw, err := json.Marshal(history)
	if err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "encode artifact stream", err)
	}
	if err := s.persistence.KVPut(ctx, artifactStreamKey(a.TaskID), raw); err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "append artifact", err)
	}

	s.artifactsByTask[a.TaskID] = history
	return nil
}

// RecordBlocker appends b, write-through to Persistence.
func (s *Store) RecordBlocker(ctx context.Context, b task.BlockerReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistBlockersLocked(ctx, append(append([]task.BlockerReport(nil), s.blockersByTask[b.TaskID]...), b))
}

// ResolveBlocker marks the most recent unresolved blocker on taskID as
// resolved with the given resolution note, write-through to Persistence.
// Reports false if no unresolved blocker exists.
func (s *Store) ResolveBlocker(ctx context.Context, taskID, resolution string, resolvedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append([]task.BlockerReport(nil), s.blockersByTask[taskID]...)
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ResolvedAt == nil {
			history[i].ResolvedAt = &resolvedAt
			history[i].Resolution = resolution
			if err := s.persistBlockersLocked(ctx, history); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) persistBlockersLocked(ctx context.Context, history []task.BlockerReport) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "encode blocker stream", err)
	}
	taskID := ""
	if len(history) > 0 {
		taskID = history[len(history)-1].TaskID
	}
	if err := s.persistence.KVPut(ctx, blockerStreamKey(taskID), raw); err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "persist blocker stream", err)
	}
	s.blockersByTask[taskID] = history
	return nil
}

// BlockersForTask returns every blocker report recorded against taskID,
// in append order.
func (s *Store) BlockersForTask(taskID string) []task.BlockerReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]task.BlockerReport(nil), s.blockersByTask[taskID]...)
}

// ArtifactsForTask returns every artifact recorded against taskID, in
// append order.
func (s *Store) ArtifactsForTask(taskID string) []task.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]task.Artifact(nil), s.artifactsByTask[taskID]...)
}

// RecentDecisions returns the n most recently recorded decisions scoped
// to groupKey (a parent task id for subtasks, or the task id itself for
// top-level tasks), most recent first.
func (s *Store) RecentDecisions(groupKey string, n int) []task.Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.decisionsByGroup[groupKey]
	out := make([]task.Decision, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Load hydrates the task-keyed mirrors from Persistence for every task id
// given. Group indices are not rebuilt, since Persistence only stores the
// task-keyed streams: RecentDecisions sees only decisions recorded through
// this Store since it was constructed.
func (s *Store) Load(ctx context.Context, taskIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range taskIDs {
		if raw, found, err := s.persistence.KVGet(ctx, decisionStreamKey(id)); err != nil {
			return coreerrors.New(coreerrors.CodePersistenceError, "", "load decisions", err)
		} else if found {
			var decisions []task.Decision
			if err := json.Unmarshal(raw, &decisions); err != nil {
				return coreerrors.New(coreerrors.CodePersistenceError, "", "decode decisions", err)
			}
			s.decisionsByTask[id] = decisions
		}
		if raw, found, err := s.persistence.KVGet(ctx, artifactStreamKey(id)); err != nil {
			return coreerrors.New(coreerrors.CodePersistenceError, "", "load artifacts", err)
		} else if found {
			var artifacts []task.Artifact
			if err := json.Unmarshal(raw, &artifacts); err != nil {
				return coreerrors.New(coreerrors.CodePersistenceError, "", "decode artifacts", err)
			}
			s.artifactsByTask[id] = artifacts
		}
		if raw, found, err := s.persistence.KVGet(ctx, blockerStreamKey(id)); err != nil {
			return coreerrors.New(coreerrors.CodePersistenceError, "", "load blockers", err)
		} else if found {
			var blockers []task.BlockerReport
			if err := json.Unmarshal(raw, &blockers); err != nil {
				return coreerrors.New(coreerrors.CodePersistenceError, "", "decode blockers", err)
			}
			s.blockersByTask[id] = blockers
		}
	}
	return nil
}
