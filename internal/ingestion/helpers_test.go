package ingestion

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/photoflow/pkg/metastore"
	"github.com/your-org/photoflow/pkg/storage/objectstore"
)

type zipEntry struct {
	name string
	body string
	// store disables compression so tests can tamper with the raw bytes.
	store bool
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Deflate
		if e.store {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		require.NoError(t, err)
		if e.body != "" {
			_, err = w.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func imageItem(name, body string) UploadItem {
	return UploadItem{
		Filename: name,
		Size:     int64(len(body)),
		Body:     bytes.NewReader([]byte(body)),
	}
}

func archiveItem(name string, data []byte) UploadItem {
	return UploadItem{
		Filename: name,
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
	}
}

type publishedMessage struct {
	key       string
	eventType string
	payload   ImageIngestedEvent
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
	closed   bool
}

func (f *fakePublisher) PublishJSON(_ context.Context, key string, eventType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, publishedMessage{key: key, eventType: eventType, payload: payload.(ImageIngestedEvent)})
	return nil
}

func (f *fakePublisher) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePublisher) published() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.messages...)
}

// flakyRecords fails CreateImage for the listed display names.
type flakyRecords struct {
	metastore.Store
	failFor map[string]bool
}

func (f *flakyRecords) CreateImage(ctx context.Context, image *metastore.Image) error {
	if f.failFor[image.FileName] {
		return errors.New("insert failed")
	}
	return f.Store.CreateImage(ctx, image)
}

type testEnv struct {
	service   *Service
	records   metastore.Store
	publisher *fakePublisher
	root      string
	eventID   string
}

type envOption func(*Params)

func withMaxEntryBytes(n int64) envOption {
	return func(p *Params) { p.MaxEntryBytes = n }
}

func withRecords(wrap func(metastore.Store) metastore.Store) envOption {
	return func(p *Params) { p.Records = wrap(p.Records) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	root := t.TempDir()
	store, err := objectstore.NewLocal(root)
	require.NoError(t, err)

	records, err := metastore.OpenBadger(metastore.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	publisher := &fakePublisher{}
	params := Params{
		Store:     store,
		Records:   records,
		Publisher: publisher,
		Logger:    zap.NewNop(),
		TempDir:   t.TempDir(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	env := &testEnv{
		service:   NewService(params),
		records:   records,
		publisher: publisher,
		root:      root,
	}
	event, err := env.service.CreateEvent(context.Background(), "photographer-1", "Spring Gala", "")
	require.NoError(t, err)
	env.eventID = event.ID
	return env
}

func (e *testEnv) rawDir() string {
	return filepath.Join(e.root, "events", e.eventID, "raw")
}

func (e *testEnv) storedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.rawDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		require.False(t, entry.IsDir(), "raw directory must stay flat")
		names = append(names, entry.Name())
	}
	return names
}

func (e *testEnv) images(t *testing.T) []metastore.Image {
	t.Helper()
	images, err := e.records.ListImages(context.Background(), e.eventID)
	require.NoError(t, err)
	return images
}

// failingReaderAt fails every read with err.
type failingReaderAt struct {
	err error
}

func (f failingReaderAt) Read([]byte) (int, error) {
	return 0, f.err
}

func (f failingReaderAt) ReadAt([]byte, int64) (int, error) {
	return 0, f.err
}

var testTimeout = 5 * time.Second
