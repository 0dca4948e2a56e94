package events

import (
	"context"
	"testing"
	"time"

	"marcus/internal/collaborators"
)

func TestDurableLogBatchesAppendsUntilFlush(t *testing.T) {
	persistence := collaborators.NewInMemoryPersistence()
	log := NewDurableLog(persistence, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log.Start(ctx)

	_ = log.Append(ctx, Event{Kind: KindTaskAssigned, Seq: 1})
	_ = log.Append(ctx, Event{Kind: KindTaskCompleted, Seq: 2})

	if got := len(persistence.StreamRecords(durableStream)); got != 0 {
		t.Fatalf("expected no records before first flush, got %d", got)
	}

	time.Sleep(60 * time.Millisecond)

	if got := len(persistence.StreamRecords(durableStream)); got != 2 {
		t.Fatalf("expected 2 records after flush, got %d", got)
	}
}

func TestDurableLogFlushesRemainingRecordsOnDrain(t *testing.T) {
	persistence := collaborators.NewInMemoryPersistence()
	log := NewDurableLog(persistence, time.Hour, nil)

	ctx := context.Background()
	log.Start(ctx)
	_ = log.Append(ctx, Event{Kind: KindTaskAssigned, Seq: 1})

	drainCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := log.Drain(drainCtx); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if got := len(persistence.StreamRecords(durableStream)); got != 1 {
		t.Fatalf("expected 1 record flushed on drain, got %d", got)
	}
}
