package collaborators

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilePersistenceKVPutGetRoundTrips(t *testing.T) {
	p := NewFilePersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, p.KVPut(ctx, "assignment:record:t1", []byte("v1")))

	got, ok, err := p.KVGet(ctx, "assignment:record:t1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", string(got))
}

func TestFilePersistenceKVGetMissingKeyReturnsFalse(t *testing.T) {
	p := NewFilePersistence(t.TempDir())
	_, ok, err := p.KVGet(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFilePersistenceKVCompareAndSetRequiresMatchingOldValue(t *testing.T) {
	p := NewFilePersistence(t.TempDir())
	ctx := context.Background()
	require.NoError(t, p.KVPut(ctx, "k", []byte("v1")))

	ok, err := p.KVCompareAndSet(ctx, "k", []byte("wrong"), []byte("v2"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = p.KVCompareAndSet(ctx, "k", []byte("v1"), []byte("v2"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFilePersistenceKVCompareAndSetNilOldValueRequiresAbsence(t *testing.T) {
	p := NewFilePersistence(t.TempDir())
	ctx := context.Background()

	ok, err := p.KVCompareAndSet(ctx, "new-key", nil, []byte("v1"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.KVCompareAndSet(ctx, "new-key", nil, []byte("v2"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFilePersistenceAppendAccumulatesLines(t *testing.T) {
	p := NewFilePersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, p.Append(ctx, "events", []byte(`{"seq":1}`)))
	require.NoError(t, p.Append(ctx, "events", []byte(`{"seq":2}`)))

	data, err := os.ReadFile(p.streamPath("events"))
	require.NoError(t, err)
	require.Equal(t, "{\"seq\":1}\n{\"seq\":2}\n", string(data))
}
