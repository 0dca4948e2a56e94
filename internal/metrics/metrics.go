// Package metrics instruments the coordination kernel itself: task
// assignment throughput, lease lifecycle, reconciler repairs, and event
// publication, exported as Prometheus counters/histograms and bridged
// tracing spans.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters and histograms the kernel's components
// record against, constructed once and threaded through
// core.NewProjectFactory.
type Registry struct {
	TasksAssigned      *prometheus.CounterVec
	LeasesRenewed      prometheus.Counter
	LeasesExpired      prometheus.Counter
	ReconcilerDiffs    prometheus.Counter
	ReconcilerRepairs  *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	SchedulerLatency   prometheus.Histogram
}

// NewRegistry constructs a Registry and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		TasksAssigned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marcus",
			Subsystem: "scheduler",
			Name:      "tasks_assigned_total",
			Help:      "Tasks handed to an agent by request_next_task, labeled by project.",
		}, []string{"project"}),
		LeasesRenewed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marcus",
			Subsystem: "lease",
			Name:      "renewed_total",
			Help:      "Leases successfully renewed before expiry.",
		}),
		LeasesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marcus",
			Subsystem: "lease",
			Name:      "expired_total",
			Help:      "Leases reclaimed after expiry without renewal.",
		}),
		ReconcilerDiffs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marcus",
			Subsystem: "reconciler",
			Name:      "diffs_total",
			Help:      "Reconciliation passes that found at least one discrepancy.",
		}),
		ReconcilerRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marcus",
			Subsystem: "reconciler",
			Name:      "repairs_total",
			Help:      "Repair actions applied by the reconciler, labeled by kind.",
		}, []string{"kind"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marcus",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published on the bus, labeled by event type.",
		}, []string{"type"}),
		SchedulerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "marcus",
			Subsystem: "scheduler",
			Name:      "pick_duration_seconds",
			Help:      "Time spent selecting a task for request_next_task.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		r.TasksAssigned,
		r.LeasesRenewed,
		r.LeasesExpired,
		r.ReconcilerDiffs,
		r.ReconcilerRepairs,
		r.EventsPublished,
		r.SchedulerLatency,
	)

	return r
}

// Every increment/observe method below is nil-receiver-safe: a component
// holding a nil *Registry (the default when no WithMetrics option is
// supplied) is a no-op rather than a crash, so instrumentation stays
// optional without every call site needing its own nil check.

// IncTasksAssigned records a successful request_next_task reservation.
func (r *Registry) IncTasksAssigned(projectID string) {
	if r == nil {
		return
	}
	r.TasksAssigned.WithLabelValues(projectID).Inc()
}

// IncLeasesRenewed records a successful lease renewal.
func (r *Registry) IncLeasesRenewed() {
	if r == nil {
		return
	}
	r.LeasesRenewed.Inc()
}

// IncLeasesExpired records a lease reclaimed after expiry.
func (r *Registry) IncLeasesExpired() {
	if r == nil {
		return
	}
	r.LeasesExpired.Inc()
}

// IncReconcilerDiff records a reconciliation pass that found at least one
// discrepancy between the board and the Task Graph.
func (r *Registry) IncReconcilerDiff() {
	if r == nil {
		return
	}
	r.ReconcilerDiffs.Inc()
}

// IncReconcilerRepair records a single repair action of the given kind
// (e.g. "adopt_board_task", "push_pending_sync", "resolve_status_conflict",
// "adopt_board_assignment", "expire_orphan").
func (r *Registry) IncReconcilerRepair(kind string) {
	if r == nil {
		return
	}
	r.ReconcilerRepairs.WithLabelValues(kind).Inc()
}

// IncEventsPublished records an event delivered to the bus, labeled by kind.
func (r *Registry) IncEventsPublished(kind string) {
	if r == nil {
		return
	}
	r.EventsPublished.WithLabelValues(kind).Inc()
}

// ObserveSchedulerLatency records the wall time request_next_task spent
// selecting and reserving a task.
func (r *Registry) ObserveSchedulerLatency(seconds float64) {
	if r == nil {
		return
	}
	r.SchedulerLatency.Observe(seconds)
}
