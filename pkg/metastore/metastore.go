// Package metastore persists events and the image records produced by
// ingestion. Records are created once and never updated by the pipeline.
package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// StatusUploaded is the status assigned to every freshly ingested image.
const StatusUploaded = "UPLOADED"

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("metastore: not found")

// Event is the organising entity that owns a set of images.
type Event struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Name        string    `json:"name" gorm:"size:255;not null;index"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	OwnerID     string    `json:"owner_id" gorm:"size:64;not null;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Image is one successfully ingested file.
type Image struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	EventID    string    `json:"event_id" gorm:"size:36;not null;index"`
	OwnerID    string    `json:"owner_id" gorm:"size:64;not null;index"`
	FileName   string    `json:"file_name" gorm:"size:512;not null"`
	FilePath   string    `json:"file_path" gorm:"size:1024;not null"`
	UploadedAt time.Time `json:"uploaded_at" gorm:"index"`
	Status     string    `json:"status" gorm:"size:32;not null;index"`
}

// Store is the metadata persistence contract used by the ingestion service.
type Store interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	CreateImage(ctx context.Context, image *Image) error
	ListImages(ctx context.Context, eventID string) ([]Image, error)
	Close() error
}

// Config selects and configures a Store driver.
type Config struct {
	Driver  string
	DSN     string
	Dir     string
	Migrate bool
}

// Open builds the Store for cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, cfg.Migrate)
	case "badger", "":
		return OpenBadger(BadgerOptions{Dir: cfg.Dir})
	default:
		return nil, fmt.Errorf("unsupported metastore driver: %s", cfg.Driver)
	}
}
