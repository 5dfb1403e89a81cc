package metastore

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// CachedStore remembers events that were found recently. Misses always go
// to the underlying store so a freshly created event is visible at once.
type CachedStore struct {
	Store
	events *ttlcache.Cache[string, Event]
}

// NewCachedStore wraps store with a positive event cache of the given ttl.
func NewCachedStore(store Store, ttl time.Duration) *CachedStore {
	events := ttlcache.New[string, Event](
		ttlcache.WithTTL[string, Event](ttl),
		ttlcache.WithDisableTouchOnHit[string, Event](),
	)
	go events.Start()
	return &CachedStore{Store: store, events: events}
}

func (c *CachedStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	if item := c.events.Get(id); item != nil {
		event := item.Value()
		return &event, nil
	}
	event, err := c.Store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	c.events.Set(id, *event, ttlcache.DefaultTTL)
	return event, nil
}

func (c *CachedStore) CreateEvent(ctx context.Context, event *Event) error {
	if err := c.Store.CreateEvent(ctx, event); err != nil {
		return err
	}
	c.events.Set(event.ID, *event, ttlcache.DefaultTTL)
	return nil
}

func (c *CachedStore) Close() error {
	c.events.Stop()
	return c.Store.Close()
}
