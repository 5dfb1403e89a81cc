package metastore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadger(t *testing.T) Store {
	t.Helper()
	store, err := OpenBadger(BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBadgerStore_EventRoundTrip(t *testing.T) {
	store := newTestBadger(t)
	ctx := context.Background()

	_, err := store.GetEvent(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	now := time.Now().UTC()
	require.NoError(t, store.CreateEvent(ctx, &Event{ID: "evt-1", Name: "Wedding", OwnerID: "p-1", CreatedAt: now, UpdatedAt: now}))

	got, err := store.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Wedding", got.Name)
	assert.Equal(t, "p-1", got.OwnerID)

	err = store.CreateEvent(ctx, &Event{ID: "evt-1", Name: "Duplicate"})
	require.Error(t, err)
}

func TestBadgerStore_ListImagesScopedAndOrdered(t *testing.T) {
	store := newTestBadger(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	images := []Image{
		{ID: "b", EventID: "evt-1", FileName: "second.jpg", UploadedAt: base.Add(time.Second), Status: StatusUploaded},
		{ID: "a", EventID: "evt-1", FileName: "first.jpg", UploadedAt: base, Status: StatusUploaded},
		{ID: "c", EventID: "evt-2", FileName: "other.jpg", UploadedAt: base, Status: StatusUploaded},
	}
	for i := range images {
		require.NoError(t, store.CreateImage(ctx, &images[i]))
	}

	got, err := store.ListImages(ctx, "evt-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first.jpg", got[0].FileName)
	assert.Equal(t, "second.jpg", got[1].FileName)

	empty, err := store.ListImages(ctx, "evt-404")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

type countingStore struct {
	Store
	mu      sync.Mutex
	lookups int
}

func (c *countingStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	c.mu.Lock()
	c.lookups++
	c.mu.Unlock()
	return c.Store.GetEvent(ctx, id)
}

func TestCachedStore_CachesHitsOnly(t *testing.T) {
	inner := &countingStore{Store: newTestBadger(t)}
	cached := NewCachedStore(inner, time.Minute)
	defer cached.events.Stop()
	ctx := context.Background()

	_, err := cached.GetEvent(ctx, "evt-1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = cached.GetEvent(ctx, "evt-1")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, inner.lookups)

	require.NoError(t, inner.Store.CreateEvent(ctx, &Event{ID: "evt-1", Name: "Gala"}))

	for i := 0; i < 3; i++ {
		got, err := cached.GetEvent(ctx, "evt-1")
		require.NoError(t, err)
		assert.Equal(t, "Gala", got.Name)
	}
	assert.Equal(t, 3, inner.lookups)
}

func TestCachedStore_CreateEventPrimesCache(t *testing.T) {
	inner := &countingStore{Store: newTestBadger(t)}
	cached := NewCachedStore(inner, time.Minute)
	defer cached.events.Stop()
	ctx := context.Background()

	require.NoError(t, cached.CreateEvent(ctx, &Event{ID: "evt-9", Name: "Launch"}))
	got, err := cached.GetEvent(ctx, "evt-9")
	require.NoError(t, err)
	assert.Equal(t, "Launch", got.Name)
	assert.Zero(t, inner.lookups)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mongo"})
	require.Error(t, err)
}
