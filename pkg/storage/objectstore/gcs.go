package objectstore

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// gcsClient relies on Application Default Credentials.
type gcsClient struct {
	client *storage.Client
	bucket string
}

func newGCSClient(ctx context.Context, cfg Config) (Client, error) {
	cl, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}
	return &gcsClient{client: cl, bucket: cfg.Bucket}, nil
}

func (g *gcsClient) Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error {
	// Cancelling the writer context aborts the upload instead of committing
	// a partial object.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.Metadata = metadata
	if ct, ok := metadata["content_type"]; ok {
		w.ContentType = ct
	}

	written, err := io.Copy(w, reader)
	if err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", key, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("write %s: wrote %d of %d bytes", key, written, size)
	}
	return nil
}

func (g *gcsClient) Location(key string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucket, key)
}

func (g *gcsClient) Close() error {
	return g.client.Close()
}
