package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorages(t *testing.T) map[string]Storage {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem, err := NewStorage(BackendTypeMemory)
	require.NoError(t, err)
	rds, err := NewStorage(BackendTypeRedis, WithRedisClient(client))
	require.NoError(t, err)
	sq, err := NewStorage(BackendTypeSQLite, WithSQLitePath(filepath.Join(t.TempDir(), "cache.db")))
	require.NoError(t, err)

	stores := map[string]Storage{"memory": mem, "redis": rds, "sqlite": sq}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			const url = "https://example.com/models/helmet.glb?v=2"

			_, err := s.Get(ctx, url)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, url, &Entry{Data: []byte("glTF"), Mime: "model/gltf-binary"}))
			got, err := s.Get(ctx, url)
			require.NoError(t, err)
			assert.Equal(t, []byte("glTF"), got.Data)
			assert.Equal(t, "model/gltf-binary", got.Mime)
			assert.False(t, got.StoredAt.IsZero())

			require.NoError(t, s.Set(ctx, url, &Entry{Data: []byte("v2")}))
			got, err = s.Get(ctx, url)
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got.Data)

			require.NoError(t, s.Delete(ctx, url))
			_, err = s.Get(ctx, url)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.NoError(t, s.Delete(ctx, url))
		})
	}
}

func TestStorage_Clear(t *testing.T) {
	ctx := context.Background()
	for name, s := range newTestStorages(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "a", &Entry{Data: []byte("1")}))
			require.NoError(t, s.Set(ctx, "b", &Entry{Data: []byte("2")}))
			require.NoError(t, s.Clear(ctx))
			_, err := s.Get(ctx, "a")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Get(ctx, "b")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStorage_TTL(t *testing.T) {
	ctx := context.Background()

	mem, err := NewStorage(BackendTypeMemory, WithTTL(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, "k", &Entry{Data: []byte("x")}))
	time.Sleep(20 * time.Millisecond)
	_, err = mem.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	mr := miniredis.RunT(t)
	rds, err := NewStorage(BackendTypeRedis, WithRedisAddr(mr.Addr(), 0), WithTTL(time.Minute))
	require.NoError(t, err)
	defer rds.Close()
	require.NoError(t, rds.Set(ctx, "k", &Entry{Data: []byte("x")}))
	mr.FastForward(2 * time.Minute)
	_, err = rds.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorage_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	s, err := NewStorage(BackendTypeMemory, WithMaxEntries(2))
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "a", &Entry{Data: []byte("a")}))
	require.NoError(t, s.Set(ctx, "b", &Entry{Data: []byte("b")}))
	_, err = s.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "c", &Entry{Data: []byte("c")}))

	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "a")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestNewStorage_Errors(t *testing.T) {
	_, err := NewStorage(BackendTypeRedis)
	assert.Error(t, err)
	_, err = NewStorage(BackendTypeSQLite)
	assert.Error(t, err)
	_, err = NewStorage(StorageBackendType(42))
	assert.Error(t, err)

	bt, err := ParseBackendType("sqlite")
	require.NoError(t, err)
	assert.Equal(t, BackendTypeSQLite, bt)
	_, err = ParseBackendType("mongo")
	assert.Error(t, err)
}

func TestStorage_CanceledContext(t *testing.T) {
	s, err := NewStorage(BackendTypeMemory)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
