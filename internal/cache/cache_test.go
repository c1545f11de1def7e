package cache_test

import (
	"testing"
	"time"

	"github.com/JuribaDev/juriba-storage/internal/blob"
	"github.com/JuribaDev/juriba-storage/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testID = "123e4567-e89b-12d3-a456-426614174000"

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func TestOpenSelectsMemoryStore(t *testing.T) {
	t.Parallel()

	for _, url := range []string{"", "memory://"} {
		s, err := cache.Open(t.Context(), url)
		require.NoError(t, err)
		require.IsType(t, &cache.MemoryStore{}, s)
		require.NoError(t, s.Close())
	}
}

func TestOpenRejectsBadRedisURL(t *testing.T) {
	t.Parallel()

	_, err := cache.Open(t.Context(), "http://not-redis")
	require.Error(t, err)
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := cache.NewMemoryStore().WithClock(c.Now)

	require.NoError(t, s.Set(t.Context(), "short", "v", time.Minute))
	require.NoError(t, s.Set(t.Context(), "forever", "v", 0))

	value, ok, err := s.Get(t.Context(), "short")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)

	c.now = c.now.Add(time.Minute)

	ok, err = s.Exists(t.Context(), "short")
	require.NoError(t, err)
	require.False(t, ok, "entry expires at its ttl")

	ok, err = s.Exists(t.Context(), "forever")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = s.Get(t.Context(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlobCacheRoundTrip(t *testing.T) {
	t.Parallel()

	bc := cache.NewBlobCache(cache.NewMemoryStore(), time.Hour)

	got, err := bc.Get(t.Context(), testID)
	require.NoError(t, err)
	require.Nil(t, got, "miss")

	created := time.Date(2025, 5, 5, 20, 32, 27, 0, time.UTC)
	b, err := blob.New(testID, "dGVzdCBkYXRh", blob.WithCreatedAt(created))
	require.NoError(t, err)
	require.NoError(t, bc.Set(t.Context(), testID, b, 0))

	got, err = bc.Get(t.Context(), testID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, b.ToMap(), got.ToMap())
}

func TestBlobCacheHonorsTTL(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	bc := cache.NewBlobCache(cache.NewMemoryStore().WithClock(c.Now), time.Hour)

	b, err := blob.New(testID, "aGVsbG8=")
	require.NoError(t, err)
	require.NoError(t, bc.Set(t.Context(), testID, b, time.Second))

	c.now = c.now.Add(2 * time.Second)
	got, err := bc.Get(t.Context(), testID)
	require.NoError(t, err)
	require.Nil(t, got, "explicit ttl overrides the default")
}

func TestBlobCacheCorruptEntry(t *testing.T) {
	t.Parallel()

	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(t.Context(), "blob:"+testID, "not json", 0))

	_, err := cache.NewBlobCache(store, 0).Get(t.Context(), testID)
	require.Error(t, err)
}

func TestIdempotency(t *testing.T) {
	t.Parallel()

	c := &clock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	idem := cache.NewIdempotency(cache.NewMemoryStore().WithClock(c.Now), time.Hour)

	ok, err := idem.Exists(t.Context(), "req-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, idem.MarkProcessed(t.Context(), "req-1", testID))

	ok, err = idem.Exists(t.Context(), "req-1")
	require.NoError(t, err)
	require.True(t, ok)

	id, ok, err := idem.BlobID(t.Context(), "req-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testID, id)

	c.now = c.now.Add(time.Hour)
	ok, err = idem.Exists(t.Context(), "req-1")
	require.NoError(t, err)
	require.False(t, ok, "marker expires")
}

func newRedisStore(t *testing.T) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	s, err := cache.NewRedisStore(t.Context(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	s, mr := newRedisStore(t)
	key := "test:" + uuid.NewString()

	_, ok, err := s.Get(t.Context(), key)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(t.Context(), key, "value", time.Minute))

	value, ok, err := s.Get(t.Context(), key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", value)
	require.Equal(t, time.Minute, mr.TTL(key))

	ok, err = s.Exists(t.Context(), key)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = s.Exists(t.Context(), key)
	require.NoError(t, err)
	require.False(t, ok, "key expires")
}

func TestRedisBackedServices(t *testing.T) {
	t.Parallel()

	s, mr := newRedisStore(t)

	idem := cache.NewIdempotency(s, time.Minute)
	require.NoError(t, idem.MarkProcessed(t.Context(), "req-1", testID))
	ok, err := idem.Exists(t.Context(), "req-1")
	require.NoError(t, err)
	require.True(t, ok)
	stored, err := mr.Get("idempotency:req-1")
	require.NoError(t, err)
	require.Equal(t, testID, stored)

	blobs := cache.NewBlobCache(s, time.Hour)
	b, err := blob.New(testID, "aGVsbG8=")
	require.NoError(t, err)
	require.NoError(t, blobs.Set(t.Context(), testID, b, 0))
	require.Equal(t, time.Hour, mr.TTL("blob:"+testID))

	got, err := blobs.Get(t.Context(), testID)
	require.NoError(t, err)
	require.Equal(t, b.ToMap(), got.ToMap())
}

func TestRedisStoreUnreachable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := cache.NewRedisStore(t.Context(), "redis://"+addr+"/0")
	require.Error(t, err)
}
