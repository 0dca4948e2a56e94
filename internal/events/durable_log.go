package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"marcus/internal/async"
	"marcus/internal/collaborators"
	"marcus/internal/logging"
)

const durableStream = "events"

// DurableLog buffers Event appends and flushes them to a Persistence
// stream once per flush interval, one Append call per buffered event,
// instead of writing each event as it is published. It implements
// lifecycle.Drainable so the core can flush any buffered events when a
// project is quiesced.
type DurableLog struct {
	persistence collaborators.Persistence
	interval    time.Duration
	logger      logging.Logger

	mu      sync.Mutex
	pending [][]byte

	stop chan struct{}
	done chan struct{}
}

// NewDurableLog constructs a DurableLog flushing to persistence every
// interval. Call Start to begin the background flush loop.
func NewDurableLog(persistence collaborators.Persistence, interval time.Duration, logger logging.Logger) *DurableLog {
	return &DurableLog{
		persistence: persistence,
		interval:    interval,
		logger:      logging.OrNop(logger),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Append serializes evt and buffers it for the next flush.
func (d *DurableLog) Append(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.pending = append(d.pending, data)
	d.mu.Unlock()
	return nil
}

// Start launches the background flush loop. Safe to call at most once.
func (d *DurableLog) Start(ctx context.Context) {
	async.Go(d.logger, "events.durable_log", func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.flush(ctx)
			case <-d.stop:
				d.flush(ctx)
				return
			case <-ctx.Done():
				d.flush(ctx)
				return
			}
		}
	})
}

// Name identifies the subsystem for lifecycle.DrainAll logging.
func (d *DurableLog) Name() string { return "events.durable_log" }

// Drain stops the flush loop after a final flush, satisfying
// lifecycle.Drainable.
func (d *DurableLog) Drain(ctx context.Context) error {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (d *DurableLog) flush(ctx context.Context) {
	d.mu.Lock()
	batch := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, record := range batch {
		if err := d.persistence.Append(ctx, durableStream, record); err != nil {
			d.logger.Error("durable log append failed: %v", err)
		}
	}
}
