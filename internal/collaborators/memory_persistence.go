package collaborators

import (
	"bytes"
	"context"
	"sync"
)

// InMemoryPersistence is a Persistence implementation backed by a map,
// sufficient for single-process tests and the default non-durable mode.
type InMemoryPersistence struct {
	mu      sync.RWMutex
	kv      map[string][]byte
	streams map[string][][]byte
}

// NewInMemoryPersistence constructs an empty InMemoryPersistence.
func NewInMemoryPersistence() *InMemoryPersistence {
	return &InMemoryPersistence{
		kv:      make(map[string][]byte),
		streams: make(map[string][][]byte),
	}
}

func (p *InMemoryPersistence) KVGet(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.kv[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (p *InMemoryPersistence) KVPut(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kv[key] = append([]byte(nil), value...)
	return nil
}

func (p *InMemoryPersistence) KVCompareAndSet(_ context.Context, key string, oldValue, newValue []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current, exists := p.kv[key]
	if oldValue == nil {
		if exists {
			return false, nil
		}
	} else if !exists || !bytes.Equal(current, oldValue) {
		return false, nil
	}

	p.kv[key] = append([]byte(nil), newValue...)
	return true, nil
}

func (p *InMemoryPersistence) KVDelete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.kv, key)
	return nil
}

func (p *InMemoryPersistence) Append(_ context.Context, stream string, record []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streams[stream] = append(p.streams[stream], append([]byte(nil), record...))
	return nil
}

// StreamRecords returns a copy of every record appended to stream, in
// append order. Test-only accessor; not part of the Persistence port.
func (p *InMemoryPersistence) StreamRecords(stream string) [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([][]byte, len(p.streams[stream]))
	for i, r := range p.streams[stream] {
		out[i] = append([]byte(nil), r...)
	}
	return out
}

var _ Persistence = (*InMemoryPersistence)(nil)
