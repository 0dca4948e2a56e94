// Package memory implements the Memory / Outcome Recorder: an
// append-only history of completed assignments, queried by the
// Scheduler and Lease Manager for a per-agent velocity estimate.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"marcus/internal/collaborators"
	"marcus/internal/coreerrors"
)

const auditStream = "memory.outcomes"

func snapshotKey(agentID string) string { return "memory:outcomes:" + agentID }

const minSamplesForFullConfidence = 5

// Outcome is one completed assignment's record.
type Outcome struct {
	TaskID         string
	AgentID        string
	Labels         []string
	EstimatedHours float64
	ActualHours    float64
	Success        bool
	Notes          string
	CompletedAt    time.Time
}

// Recorder is the single writer of outcome history: append-only,
// unbounded retention, no deletion.
type Recorder struct {
	persistence collaborators.Persistence

	mu      sync.RWMutex
	byAgent map[string][]Outcome
}

// NewRecorder constructs an empty Recorder. Call Load to hydrate it from
// a prior process's durable state.
func NewRecorder(persistence collaborators.Persistence) *Recorder {
	return &Recorder{persistence: persistence, byAgent: make(map[string][]Outcome)}
}

// RecordOutcome appends o to the agent's history, write-through to the
// durable audit stream and to the per-agent snapshot Load reads back.
func (r *Recorder) RecordOutcome(ctx context.Context, o Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := json.Marshal(o)
	if err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "encode outcome", err)
	}
	if err := r.persistence.Append(ctx, auditStream, raw); err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "append outcome audit record", err)
	}

	history := append(append([]Outcome(nil), r.byAgent[o.AgentID]...), o)
	snapshot, err := json.Marshal(history)
	if err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "encode outcome snapshot", err)
	}
	if err := r.persistence.KVPut(ctx, snapshotKey(o.AgentID), snapshot); err != nil {
		return coreerrors.New(coreerrors.CodePersistenceError, "", "persist outcome snapshot", err)
	}

	r.byAgent[o.AgentID] = history
	return nil
}

// Load rebuilds the in-memory history for the given agent ids from the
// durable snapshot.
func (r *Recorder) Load(ctx context.Context, agentIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range agentIDs {
		raw, found, err := r.persistence.KVGet(ctx, snapshotKey(id))
		if err != nil {
			return coreerrors.New(coreerrors.CodePersistenceError, "", "load outcome snapshot", err)
		}
		if !found {
			continue
		}
		var history []Outcome
		if err := json.Unmarshal(raw, &history); err != nil {
			return coreerrors.New(coreerrors.CodePersistenceError, "", "decode outcome snapshot", err)
		}
		r.byAgent[id] = history
	}
	return nil
}

// Estimate implements velocity_estimate: the mean actual hours among the
// agent's completed outcomes that share at least one label with labels
// (every outcome if labels is empty), and a confidence that climbs
// linearly to 1.0 at minSamplesForFullConfidence matching samples.
func (r *Recorder) Estimate(agentID string, labels []string) (hoursPerPoint, confidence float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.byAgent[agentID]
	if len(history) == 0 {
		return 0, 0
	}

	var matched []Outcome
	for _, o := range history {
		if len(labels) == 0 || sharesLabel(o.Labels, labels) {
			matched = append(matched, o)
		}
	}
	if len(matched) == 0 {
		return 0, 0
	}

	var sum float64
	for _, o := range matched {
		sum += o.ActualHours
	}
	hoursPerPoint = sum / float64(len(matched))
	confidence = float64(len(matched)) / float64(minSamplesForFullConfidence)
	if confidence > 1 {
		confidence = 1
	}
	return hoursPerPoint, confidence
}

func sharesLabel(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, l := range a {
		set[l] = struct{}{}
	}
	for _, l := range b {
		if _, ok := set[l]; ok {
			return true
		}
	}
	return false
}

// History returns a copy of the agent's outcomes, most recent first.
func (r *Recorder) History(agentID string) []Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]Outcome(nil), r.byAgent[agentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out
}
