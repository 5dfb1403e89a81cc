package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
)

const (
	eventPrefix = "event/"
	imagePrefix = "image/"
)

// BadgerOptions configures the embedded store. InMemory ignores Dir.
type BadgerOptions struct {
	Dir      string
	InMemory bool
}

type badgerStore struct {
	db *badger.DB
}

// OpenBadger opens an embedded badger-backed Store.
func OpenBadger(opts BadgerOptions) (Store, error) {
	dir := opts.Dir
	if opts.InMemory {
		dir = ""
	}
	dbOpts := badger.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithLogger(nil).
		WithMemTableSize(16 << 20)

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerStore{db: db}, nil
}

func eventKey(id string) []byte {
	return []byte(eventPrefix + id)
}

func imageKey(eventID, id string) []byte {
	return []byte(imagePrefix + eventID + "/" + id)
}

func (b *badgerStore) CreateEvent(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.insert(eventKey(event.ID), event)
}

func (b *badgerStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var event Event
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &event)
		})
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (b *badgerStore) CreateImage(ctx context.Context, image *Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.insert(imageKey(image.EventID, image.ID), image)
}

func (b *badgerStore) ListImages(ctx context.Context, eventID string) ([]Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	images := []Image{}
	prefix := []byte(imagePrefix + eventID + "/")
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var img Image
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &img)
			}); err != nil {
				return err
			}
			images = append(images, img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(images, func(i, j int) bool {
		return images[i].UploadedAt.Before(images[j].UploadedAt)
	})
	return images, nil
}

func (b *badgerStore) Close() error {
	return b.db.Close()
}

// insert writes v under key and refuses to replace an existing value.
func (b *badgerStore) insert(key []byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return fmt.Errorf("metastore: %s already exists", key)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, payload)
	})
}
