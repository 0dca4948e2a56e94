package memory

import (
	"context"
	"testing"
	"time"

	"marcus/internal/collaborators"
)

func TestEstimateAveragesMatchingLabelOutcomes(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(collaborators.NewInMemoryPersistence())

	if err := r.RecordOutcome(ctx, Outcome{AgentID: "a1", Labels: []string{"go"}, ActualHours: 2, CompletedAt: time.Now()}); err != nil {
		t.Fatalf("RecordOutcome 1: %v", err)
	}
	if err := r.RecordOutcome(ctx, Outcome{AgentID: "a1", Labels: []string{"go"}, ActualHours: 4, CompletedAt: time.Now()}); err != nil {
		t.Fatalf("RecordOutcome 2: %v", err)
	}
	if err := r.RecordOutcome(ctx, Outcome{AgentID: "a1", Labels: []string{"rust"}, ActualHours: 100, CompletedAt: time.Now()}); err != nil {
		t.Fatalf("RecordOutcome 3: %v", err)
	}

	hours, confidence := r.Estimate("a1", []string{"go"})
	if hours != 3 {
		t.Fatalf("expected average of matching-label outcomes (3h), got %v", hours)
	}
	if confidence <= 0 || confidence >= 1 {
		t.Fatalf("expected partial confidence with 2 samples, got %v", confidence)
	}
}

func TestEstimateReturnsZeroConfidenceForUnknownAgent(t *testing.T) {
	r := NewRecorder(collaborators.NewInMemoryPersistence())
	hours, confidence := r.Estimate("ghost", []string{"go"})
	if hours != 0 || confidence != 0 {
		t.Fatalf("expected zero estimate for unknown agent, got %v/%v", hours, confidence)
	}
}

func TestLoadHydratesHistoryFromSnapshot(t *testing.T) {
	ctx := context.Background()
	persistence := collaborators.NewInMemoryPersistence()

	r1 := NewRecorder(persistence)
	if err := r1.RecordOutcome(ctx, Outcome{AgentID: "a1", Labels: []string{"go"}, ActualHours: 3, CompletedAt: time.Now()}); err != nil {
		t.Fatalf("seed RecordOutcome: %v", err)
	}

	r2 := NewRecorder(persistence)
	if err := r2.Load(ctx, []string{"a1"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := r2.History("a1"); len(got) != 1 {
		t.Fatalf("expected hydrated history, got %+v", got)
	}
}

func TestConfidenceSaturatesAtFiveSamples(t *testing.T) {
	ctx := context.Background()
	r := NewRecorder(collaborators.NewInMemoryPersistence())
	for i := 0; i < 8; i++ {
		if err := r.RecordOutcome(ctx, Outcome{AgentID: "a1", Labels: []string{"go"}, ActualHours: 2, CompletedAt: time.Now()}); err != nil {
			t.Fatalf("RecordOutcome %d: %v", i, err)
		}
	}
	_, confidence := r.Estimate("a1", []string{"go"})
	if confidence != 1 {
		t.Fatalf("expected confidence to saturate at 1.0, got %v", confidence)
	}
}
