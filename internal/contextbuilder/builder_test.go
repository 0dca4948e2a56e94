package contextbuilder

import (
	"context"
	"testing"
	"time"

	"marcus/internal/collaborators"
	"marcus/internal/domain/graph"
	"marcus/internal/domain/task"
	"marcus/internal/records"
)

type stubWorkspace struct{ path string }

func (s stubWorkspace) PathFor(projectID, agentID string) (string, error) { return s.path, nil }

func TestBuildIncludesCompletedPredecessorArtifacts(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	rec := records.NewStore(collaborators.NewInMemoryPersistence())

	done := &task.Task{ID: "dep1", ProjectID: "p1", Name: "design schema", Status: task.StatusDone}
	g.Upsert(done)
	if err := rec.RecordArtifact(ctx, task.Artifact{TaskID: "dep1", Type: "file", Location: "schema.sql", RecordedAt: time.Now()}); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}
	g.Upsert(&task.Task{ID: "t1", ProjectID: "p1", Name: "build api", Status: task.StatusTodo, Dependencies: []string{"dep1"}})

	b := New(g, rec, WithWorkspace(stubWorkspace{path: "/work/p1/a1"}))

	payload, err := b.Build(ctx, "p1", "t1", "a1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(payload.CompletedPredecessors) != 1 || payload.CompletedPredecessors[0].TaskID != "dep1" {
		t.Fatalf("expected dep1 as completed predecessor, got %+v", payload.CompletedPredecessors)
	}
	if len(payload.CompletedPredecessors[0].Artifacts) != 1 {
		t.Fatal("expected dep1's artifact to be carried into the predecessor summary")
	}
	if payload.WorkspacePath != "/work/p1/a1" {
		t.Fatalf("expected workspace path from collaborator, got %q", payload.WorkspacePath)
	}
}

func TestBuildResolvesProvidesContract(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	rec := records.NewStore(collaborators.NewInMemoryPersistence())

	g.Upsert(&task.Task{ID: "auth", ProjectID: "p1", Status: task.StatusDone, Provides: "auth_api"})
	if err := rec.RecordArtifact(ctx, task.Artifact{TaskID: "auth", Type: "file", Location: "auth.go", RecordedAt: time.Now()}); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}
	g.Upsert(&task.Task{ID: "consumer", ProjectID: "p1", Status: task.StatusTodo, Requires: "auth_api"})

	b := New(g, rec)
	payload, err := b.Build(ctx, "p1", "consumer", "a1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(payload.ProvidedArtifacts) != 1 {
		t.Fatalf("expected provider's artifacts surfaced, got %+v", payload.ProvidedArtifacts)
	}
}

func TestBuildReturnsTaskNotFoundForMissingTask(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	rec := records.NewStore(collaborators.NewInMemoryPersistence())
	b := New(g, rec)

	if _, err := b.Build(ctx, "p1", "ghost", "a1"); err == nil {
		t.Fatal("expected error for missing task")
	}
}

func TestBuildLimitsRecentDecisionsToFive(t *testing.T) {
	ctx := context.Background()
	g := graph.New()
	rec := records.NewStore(collaborators.NewInMemoryPersistence())

	g.Upsert(&task.Task{ID: "parent", ProjectID: "p1", Status: task.StatusTodo})
	sub := &task.Task{ID: "sub1", ProjectID: "p1", Status: task.StatusTodo, IsSubtask: true, ParentTaskID: "parent"}
	g.Upsert(sub)

	base := time.Now()
	for i := 0; i < 8; i++ {
		d := task.Decision{TaskID: "sub1", What: "call", RecordedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := rec.RecordDecision(ctx, "parent:parent", d); err != nil {
			t.Fatalf("RecordDecision: %v", err)
		}
	}

	b := New(g, rec)
	payload, err := b.Build(ctx, "p1", "sub1", "a1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(payload.RecentDecisions) != 5 {
		t.Fatalf("expected at most 5 recent decisions, got %d", len(payload.RecentDecisions))
	}
}
