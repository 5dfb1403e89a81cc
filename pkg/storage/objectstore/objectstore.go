package objectstore

import (
	"context"
	"fmt"
	"io"
)

// Config contains the information required to talk to an object store.
type Config struct {
	Provider  string
	Root      string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client represents the capabilities the ingestion service expects.
//
// A size of -1 tells Put the length of reader is unknown.
type Client interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error
	Location(key string) string
	Close() error
}

// New creates an object store client based on the given configuration.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocal(cfg.Root)
	case "minio", "s3":
		return newMinioClient(ctx, cfg)
	case "gcs":
		return newGCSClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported object store provider: %s", cfg.Provider)
	}
}
