package collaborators

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"marcus/internal/filestore"
)

// FilePersistence implements Persistence over a plain directory tree:
// one file per KV key under "kv/", one append-only log file per stream
// under "streams/". Durability comes from filestore's
// write-temp-then-rename primitive, so a crash mid-write never corrupts
// an existing key.
type FilePersistence struct {
	baseDir string
	mu      sync.Mutex
}

// NewFilePersistence constructs a FilePersistence rooted at baseDir.
func NewFilePersistence(baseDir string) *FilePersistence {
	return &FilePersistence{baseDir: baseDir}
}

// sanitize maps a logical key (which may contain ':' separators, as
// "assignment:record:<task id>" does) onto a safe file name.
func sanitize(key string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_")
	return replacer.Replace(key)
}

func (p *FilePersistence) kvPath(key string) string {
	return filepath.Join(p.baseDir, "kv", sanitize(key)+".json")
}

func (p *FilePersistence) streamPath(stream string) string {
	return filepath.Join(p.baseDir, "streams", sanitize(stream)+".log")
}

func (p *FilePersistence) KVGet(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, err := filestore.ReadFileOrEmpty(p.kvPath(key))
	if err != nil {
		return nil, false, err
	}
	if data == nil {
		return nil, false, nil
	}
	return data, true, nil
}

func (p *FilePersistence) KVPut(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return filestore.AtomicWrite(p.kvPath(key), value, 0o644)
}

func (p *FilePersistence) KVCompareAndSet(_ context.Context, key string, oldValue, newValue []byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.kvPath(key)
	current, err := filestore.ReadFileOrEmpty(path)
	if err != nil {
		return false, err
	}
	if oldValue == nil {
		if current != nil {
			return false, nil
		}
	} else if current == nil || !bytes.Equal(current, oldValue) {
		return false, nil
	}
	if err := filestore.AtomicWrite(path, newValue, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func (p *FilePersistence) KVDelete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.Remove(p.kvPath(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *FilePersistence) Append(_ context.Context, stream string, record []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.streamPath(stream)
	if err := filestore.EnsureParentDir(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(record); err != nil {
		return err
	}
	_, err = f.Write([]byte("\n"))
	return err
}

var _ Persistence = (*FilePersistence)(nil)
