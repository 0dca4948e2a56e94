package project

import (
	"context"
	"testing"
	"time"

	"marcus/internal/assignment"
	"marcus/internal/clock"
	"marcus/internal/collaborators"
	"marcus/internal/contextbuilder"
	"marcus/internal/domain/graph"
	"marcus/internal/events"
	"marcus/internal/lease"
	"marcus/internal/memory"
	"marcus/internal/reconciler"
	"marcus/internal/records"
)

type noopKanban struct{ disconnects int }

func (k *noopKanban) Connect(ctx context.Context) error    { return nil }
func (k *noopKanban) Disconnect(ctx context.Context) error { k.disconnects++; return nil }
func (k *noopKanban) ListTasks(ctx context.Context) ([]collaborators.BoardTask, error) {
	return nil, nil
}
func (k *noopKanban) CreateTask(ctx context.Context, spec collaborators.TaskSpec) (string, error) {
	return "", nil
}
func (k *noopKanban) UpdateTask(ctx context.Context, id string, patch collaborators.TaskPatch) error {
	return nil
}
func (k *noopKanban) Assign(ctx context.Context, taskID, agentID string) error { return nil }
func (k *noopKanban) Comment(ctx context.Context, taskID, text string) error   { return nil }

func newTestContext(projectID string) (*Context, *noopKanban) {
	g := graph.New()
	persistence := collaborators.NewInMemoryPersistence()
	assignments := assignment.NewStore(persistence)
	bus := events.NewBus(nil, nil)
	clk := clock.NewVirtual(time.Now())
	leases := lease.NewManager(lease.Config{DefaultDuration: time.Hour, TickerInterval: time.Minute}, g, assignments, bus, clk, nil)
	kanban := &noopKanban{}
	rec := reconciler.New(reconciler.Config{Interval: 30 * time.Second}, kanban, g, assignments, leases, bus, clk, nil)
	recs := records.NewStore(persistence)
	cb := contextbuilder.New(g, recs)

	return &Context{
		ProjectID:      projectID,
		Graph:          g,
		Assignments:    assignments,
		Records:        recs,
		Memory:         memory.NewRecorder(persistence),
		Bus:            bus,
		Leases:         leases,
		Reconciler:     rec,
		ContextBuilder: cb,
		Kanban:         kanban,
	}, kanban
}

func newTestManager(t *testing.T) (*Manager, map[string]*noopKanban) {
	t.Helper()
	kanbans := make(map[string]*noopKanban)
	factory := func(ctx context.Context, projectID string) (*Context, error) {
		pc, kanban := newTestContext(projectID)
		kanbans[projectID] = kanban
		return pc, nil
	}
	m, err := New(Config{CacheCapacity: 2}, factory, clock.NewVirtual(time.Now()), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, kanbans
}

func TestSwitchBuildsAndActivatesOnCacheMiss(t *testing.T) {
	m, _ := newTestManager(t)

	pc, err := m.Switch(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if pc.ProjectID != "p1" {
		t.Fatalf("expected active context for p1, got %q", pc.ProjectID)
	}

	active, ok := m.Active()
	if !ok || active.ProjectID != "p1" {
		t.Fatalf("expected Active to report p1, got %+v ok=%v", active, ok)
	}
}

func TestSwitchQuiescesOutgoingProjectKanbanClient(t *testing.T) {
	m, kanbans := newTestManager(t)

	if _, err := m.Switch(context.Background(), "p1"); err != nil {
		t.Fatalf("Switch to p1: %v", err)
	}
	if _, err := m.Switch(context.Background(), "p2"); err != nil {
		t.Fatalf("Switch to p2: %v", err)
	}

	if kanbans["p1"].disconnects == 0 {
		t.Fatal("expected outgoing project's kanban client to be disconnected on switch")
	}
}

func TestSwitchToSameCachedProjectReusesContext(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Switch(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Switch: %v", err)
	}
	second, err := m.Switch(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Switch again: %v", err)
	}
	if first != second {
		t.Fatal("expected the same cached Context instance on a same-project switch")
	}
}

func TestListProjectIDsReturnsCachedProjects(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Switch(context.Background(), "p1"); err != nil {
		t.Fatalf("Switch to p1: %v", err)
	}
	if _, err := m.Switch(context.Background(), "p2"); err != nil {
		t.Fatalf("Switch to p2: %v", err)
	}

	ids := m.ListProjectIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 cached projects, got %v", ids)
	}
}
