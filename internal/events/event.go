// Package events implements the in-process Event Bus: topic-less
// publish/subscribe with at-least-once delivery and an optional durable,
// append-only log.
package events

import "time"

// Kind enumerates the event types the core emits.
type Kind string

const (
	KindTaskAssigned       Kind = "task_assigned"
	KindTaskStarted        Kind = "task_started"
	KindProgressReported   Kind = "progress_reported"
	KindTaskCompleted      Kind = "task_completed"
	KindBlockerReported    Kind = "blocker_reported"
	KindLeaseRenewed       Kind = "lease_renewed"
	KindLeaseExpired       Kind = "lease_expired"
	KindDecisionRecorded   Kind = "decision_recorded"
	KindArtifactRecorded   Kind = "artifact_recorded"
	KindDependencyResolved Kind = "dependency_resolved"
	KindContextBuilt       Kind = "context_built"
	KindCascadeReady       Kind = "cascade_ready"
	KindAssignmentOrphaned Kind = "assignment_orphaned"
)

// Event is the unit the bus delivers: a kind, a payload, and provenance.
type Event struct {
	Seq           uint64
	Kind          Kind
	Payload       map[string]any
	Timestamp     time.Time
	ProjectID     string
	CorrelationID string
}
