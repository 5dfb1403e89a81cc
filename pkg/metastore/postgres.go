package metastore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type postgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects to Postgres through gorm and optionally migrates the
// events and images tables.
func OpenPostgres(ctx context.Context, dsn string, migrate bool) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres metastore: dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if migrate {
		if err := db.WithContext(ctx).AutoMigrate(&Event{}, &Image{}); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &postgresStore{db: db}, nil
}

func (p *postgresStore) CreateEvent(ctx context.Context, event *Event) error {
	return p.db.WithContext(ctx).Create(event).Error
}

func (p *postgresStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	var event Event
	err := p.db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (p *postgresStore) CreateImage(ctx context.Context, image *Image) error {
	return p.db.WithContext(ctx).Create(image).Error
}

func (p *postgresStore) ListImages(ctx context.Context, eventID string) ([]Image, error) {
	images := []Image{}
	err := p.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("uploaded_at asc").
		Find(&images).Error
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (p *postgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
