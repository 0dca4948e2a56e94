package assignment

import (
	"context"
	"testing"
	"time"

	"marcus/internal/collaborators"
	"marcus/internal/domain/task"
)

func newTestAssignment(taskID, agentID string) task.Assignment {
	now := time.Now()
	return task.Assignment{
		TaskID:   taskID,
		AgentID:  agentID,
		OpenedAt: now,
		Lease: task.Lease{
			TaskID:    taskID,
			AgentID:   agentID,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
			State:     task.LeaseActive,
		},
	}
}

func TestCreateRejectsDuplicateTask(t *testing.T) {
	ctx := context.Background()
	s := NewStore(collaborators.NewInMemoryPersistence())

	if err := s.Create(ctx, newTestAssignment("t1", "a1")); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if err := s.Create(ctx, newTestAssignment("t1", "a2")); err == nil {
		t.Fatal("expected duplicate Create to fail")
	}
}

func TestUpdateAppliesMutationDurably(t *testing.T) {
	ctx := context.Background()
	persistence := collaborators.NewInMemoryPersistence()
	s := NewStore(persistence)

	_ = s.Create(ctx, newTestAssignment("t1", "a1"))
	ok, err := s.Update(ctx, "t1", func(a *task.Assignment) {
		a.Lease.RenewalCount++
		a.Lease.LastProgressPct = 50
	})
	if err != nil || !ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}

	got, found := s.Get("t1")
	if !found || got.Lease.RenewalCount != 1 || got.Lease.LastProgressPct != 50 {
		t.Fatalf("unexpected record after update: %+v found=%v", got, found)
	}

	// Reload from persistence to confirm durability, not just the mirror.
	reloaded := NewStore(persistence)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, found = reloaded.Get("t1")
	if !found || got.Lease.RenewalCount != 1 {
		t.Fatalf("unexpected record after reload: %+v found=%v", got, found)
	}
}

func TestUpdateOnMissingTaskReturnsFalse(t *testing.T) {
	ctx := context.Background()
	s := NewStore(collaborators.NewInMemoryPersistence())

	ok, err := s.Update(ctx, "missing", func(a *task.Assignment) {})
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got ok=%v err=%v", ok, err)
	}
}

func TestRemoveDeletesRecordAndIndex(t *testing.T) {
	ctx := context.Background()
	persistence := collaborators.NewInMemoryPersistence()
	s := NewStore(persistence)

	_ = s.Create(ctx, newTestAssignment("t1", "a1"))
	_ = s.Create(ctx, newTestAssignment("t2", "a1"))
	if err := s.Remove(ctx, "t1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, found := s.Get("t1"); found {
		t.Fatal("expected t1 to be gone")
	}

	reloaded := NewStore(persistence)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := reloaded.ListAll(); len(got) != 1 || got[0].TaskID != "t2" {
		t.Fatalf("unexpected records after reload: %+v", got)
	}
}

func TestListForAgentFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := NewStore(collaborators.NewInMemoryPersistence())

	_ = s.Create(ctx, newTestAssignment("t2", "a1"))
	_ = s.Create(ctx, newTestAssignment("t1", "a1"))
	_ = s.Create(ctx, newTestAssignment("t3", "a2"))

	got := s.ListForAgent("a1")
	if len(got) != 2 || got[0].TaskID != "t1" || got[1].TaskID != "t2" {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestLoadHydratesFromDurableState(t *testing.T) {
	ctx := context.Background()
	persistence := collaborators.NewInMemoryPersistence()
	seed := NewStore(persistence)
	_ = seed.Create(ctx, newTestAssignment("t1", "a1"))

	restarted := NewStore(persistence)
	if err := restarted.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := restarted.ListAll(); len(got) != 1 || got[0].TaskID != "t1" {
		t.Fatalf("unexpected records after restart: %+v", got)
	}
}
