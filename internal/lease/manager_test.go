package lease

import (
	"context"
	"testing"
	"time"

	"marcus/internal/assignment"
	"marcus/internal/clock"
	"marcus/internal/collaborators"
	"marcus/internal/domain/graph"
	"marcus/internal/domain/task"
	"marcus/internal/events"
)

func newTestManager(t *testing.T, clk clock.Clock) (*Manager, *graph.Graph, *assignment.Store) {
	t.Helper()
	g := graph.New()
	store := assignment.NewStore(collaborators.NewInMemoryPersistence())
	bus := events.NewBus(nil, nil)
	m := NewManager(Config{DefaultDuration: time.Hour, TickerInterval: time.Minute}, g, store, bus, clk, nil)
	return m, g, store
}

func TestOpenRejectsSecondActiveLease(t *testing.T) {
	m, _, _ := newTestManager(t, clock.NewVirtual(time.Now()))

	if _, err := m.Open("t1", "a1", time.Hour); err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := m.Open("t1", "a2", time.Hour); err == nil {
		t.Fatal("expected second Open to fail")
	}
}

func TestRenewExtendsExpiryAndIsMonotonic(t *testing.T) {
	start := time.Now()
	clk := clock.NewVirtual(start)
	m, _, _ := newTestManager(t, clk)

	if _, err := m.Open("t1", "a1", time.Hour); err != nil {
		t.Fatalf("Open: %v", err)
	}

	l, err := m.Renew("t1", 50, 10)
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if l.LastProgressPct != 50 || l.RenewalCount != 1 {
		t.Fatalf("unexpected lease after renew: %+v", l)
	}

	l2, err := m.Renew("t1", 20, 10)
	if err != nil {
		t.Fatalf("second Renew: %v", err)
	}
	if l2.LastProgressPct != 50 {
		t.Fatalf("expected stored progress to stay monotonic at 50, got %d", l2.LastProgressPct)
	}
	if l2.RenewalCount != 2 {
		t.Fatalf("expected renewal count 2, got %d", l2.RenewalCount)
	}
}

func TestRenewFailsWithoutActiveLease(t *testing.T) {
	m, _, _ := newTestManager(t, clock.NewVirtual(time.Now()))
	if _, err := m.Renew("missing", 10, 5); err == nil {
		t.Fatal("expected Renew on missing lease to fail")
	}
}

func TestScanExpiredReleasesAssignmentAndResetsTask(t *testing.T) {
	start := time.Now()
	clk := clock.NewVirtual(start)
	m, g, store := newTestManager(t, clk)

	g.Upsert(&task.Task{ID: "t1", Status: task.StatusInProgress, AssignedTo: "a1"})
	if _, err := m.Open("t1", "a1", time.Hour); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Create(context.Background(), task.Assignment{TaskID: "t1", AgentID: "a1", OpenedAt: start})

	clk.Advance(61 * time.Minute)
	m.ScanExpired(context.Background())

	if _, found := m.Get("t1"); found {
		t.Fatal("expected lease to be gone after expiry")
	}
	tsk, _ := g.Get("t1")
	if tsk.Status != task.StatusTodo || tsk.AssignedTo != "" {
		t.Fatalf("expected task reset to todo/unassigned, got %+v", tsk)
	}
	if _, found := store.Get("t1"); found {
		t.Fatal("expected assignment to be removed after expiry")
	}
}

func TestScanExpiredLeavesUnexpiredLeasesAlone(t *testing.T) {
	start := time.Now()
	clk := clock.NewVirtual(start)
	m, g, _ := newTestManager(t, clk)

	g.Upsert(&task.Task{ID: "t1", Status: task.StatusInProgress, AssignedTo: "a1"})
	if _, err := m.Open("t1", "a1", time.Hour); err != nil {
		t.Fatalf("Open: %v", err)
	}

	clk.Advance(30 * time.Minute)
	m.ScanExpired(context.Background())

	if _, found := m.Get("t1"); !found {
		t.Fatal("expected lease to remain active before expiry")
	}
}

func TestReleaseFreesTaskForReopen(t *testing.T) {
	m, _, _ := newTestManager(t, clock.NewVirtual(time.Now()))

	if _, err := m.Open("t1", "a1", time.Hour); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Release("t1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := m.Open("t1", "a2", time.Hour); err != nil {
		t.Fatalf("expected reopen after release to succeed, got %v", err)
	}
}
