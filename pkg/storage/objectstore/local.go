package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalClient stores objects as plain files below a root directory.
type LocalClient struct {
	root string
}

// NewLocal returns a filesystem-backed Client rooted at root.
func NewLocal(root string) (*LocalClient, error) {
	if root == "" {
		return nil, fmt.Errorf("local object store: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	return &LocalClient{root: abs}, nil
}

// Put writes reader to <root>/<key>. The parent directory is created on
// demand and an existing file at the destination is never overwritten.
func (l *LocalClient) Put(ctx context.Context, key string, reader io.Reader, size int64, _ map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}

	written, err := io.Copy(f, reader)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("write %s: wrote %d of %d bytes", key, written, size)
	}
	return nil
}

// Location returns the absolute filesystem path for key.
func (l *LocalClient) Location(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *LocalClient) Close() error {
	return nil
}

func (l *LocalClient) resolve(key string) (string, error) {
	dest := l.Location(key)
	rel, err := filepath.Rel(l.root, dest)
	if err != nil || rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
		return "", fmt.Errorf("object key %q escapes store root", key)
	}
	return dest, nil
}
