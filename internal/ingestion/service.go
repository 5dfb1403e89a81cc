package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/your-org/photoflow/pkg/metastore"
	"github.com/your-org/photoflow/pkg/storage/objectstore"
)

var (
	// ErrEventNotFound is the only error that aborts a batch before any
	// file is touched.
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")

	errEntryTooLarge = errors.New("entry exceeds size limit")
)

// Publisher delivers ingestion notifications.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, eventType string, payload any) error
	Close(ctx context.Context) error
}

// Service wires together storage, the metadata store, notifications, and
// logging for ingestion flows.
type Service struct {
	store         objectstore.Client
	records       metastore.Store
	publisher     Publisher
	logger        *zap.Logger
	tracer        trace.Tracer
	maxEntryBytes int64
	tempDir       string
}

type Params struct {
	Store   objectstore.Client
	Records metastore.Store
	// Publisher may be nil, which disables notifications.
	Publisher Publisher
	Logger    *zap.Logger
	// MaxEntryBytes caps the decompressed size of one archive entry. Zero
	// means no cap.
	MaxEntryBytes int64
	// TempDir receives spooled archives; empty uses os.TempDir.
	TempDir string
}

// UploadItem is one named stream of a batch. Size is -1 when unknown.
type UploadItem struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
}

// NewService constructs an ingestion Service.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         p.Store,
		records:       p.Records,
		publisher:     p.Publisher,
		logger:        logger.Named("ingestion"),
		tracer:        otel.Tracer("github.com/your-org/photoflow/internal/ingestion"),
		maxEntryBytes: p.MaxEntryBytes,
		tempDir:       p.TempDir,
	}
}

// CreateEvent registers a new event owned by ownerID.
func (s *Service) CreateEvent(ctx context.Context, ownerID, name, description string) (*metastore.Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}

	now := time.Now().UTC()
	event := &metastore.Event{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.records.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event created", zap.String("event_id", event.ID), zap.String("owner_id", ownerID))
	return event, nil
}

// GetEvent returns the event or ErrEventNotFound.
func (s *Service) GetEvent(ctx context.Context, eventID string) (*metastore.Event, error) {
	event, err := s.records.GetEvent(ctx, eventID)
	if errors.Is(err, metastore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup event %s: %w", eventID, err)
	}
	return event, nil
}

// ListImages returns the image records of an existing event.
func (s *Service) ListImages(ctx context.Context, eventID string) ([]metastore.Image, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	images, err := s.records.ListImages(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

// IngestBatch stores every image in items, expanding ZIP archives, and
// records one image per stored file. Items are handled one at a time in
// submission order. Per-file problems end up in the report; the call only
// fails when the event is unknown or ctx is done. Nothing written before a
// cancellation is rolled back.
func (s *Service) IngestBatch(ctx context.Context, eventID, actorID string, items []UploadItem) (*BatchReport, error) {
	ctx, span := s.tracer.Start(ctx, "ingestion.IngestBatch", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.Int("batch.items", len(items)),
	))
	defer span.End()

	if _, err := s.GetEvent(ctx, eventID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "event lookup failed")
		return nil, err
	}

	report := newBatchReport(eventID)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, s.abort(span, eventID, report, err)
		}

		switch Classify(item.Filename) {
		case RouteDirectImage:
			report.record(s.ingestImage(ctx, eventID, actorID, item))
		case RouteArchive:
			if err := s.ingestArchive(ctx, eventID, actorID, item, report); err != nil {
				return nil, s.abort(span, eventID, report, err)
			}
		default:
			s.logger.Warn("unsupported upload",
				zap.String("event_id", eventID),
				zap.String("file", item.Filename))
			report.record(rejected(item.Filename, ReasonUnsupportedType))
		}
	}

	span.SetAttributes(
		attribute.Int("batch.ingested", report.TotalIngested),
		attribute.Int("batch.failed", len(report.Failures)),
	)
	s.logger.Info("batch ingested",
		zap.String("event_id", eventID),
		zap.String("actor_id", actorID),
		zap.Int("items", len(items)),
		zap.Int("ingested", report.TotalIngested),
		zap.Int("failed", len(report.Failures)))
	return report, nil
}

func (s *Service) abort(span trace.Span, eventID string, report *BatchReport, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "batch aborted")
	s.logger.Warn("batch aborted",
		zap.String("event_id", eventID),
		zap.Int("ingested", report.TotalIngested),
		zap.Int("failed", len(report.Failures)),
		zap.Error(err))
	return fmt.Errorf("ingest batch %s: %w", eventID, err)
}

// leaf is a single file on its way to storage.
type leaf struct {
	// name identifies the file in failure descriptors.
	name string
	// displayName is persisted on the image record.
	displayName string
	ext         string
	size        int64
	body        io.Reader
	archived    bool
}

func (s *Service) ingestImage(ctx context.Context, eventID, actorID string, item UploadItem) Outcome {
	return s.saveLeaf(ctx, eventID, actorID, leaf{
		name:        item.Filename,
		displayName: item.Filename,
		ext:         extension(item.Filename),
		size:        item.Size,
		body:        item.Body,
	})
}

func (s *Service) ingestArchive(ctx context.Context, eventID, actorID string, item UploadItem, report *BatchReport) error {
	archive, cleanup, err := s.openArchive(item)
	if err != nil {
		reason := ReasonExtractionError
		if errors.Is(err, ErrCorruptArchive) {
			reason = ReasonCorruptArchive
		}
		s.reject(eventID, item.Filename, reason, err)
		report.record(rejected(item.Filename, reason))
		return nil
	}
	defer cleanup()

	for entry := range archive.Images() {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.record(s.ingestEntry(ctx, eventID, actorID, entry))
	}
	return nil
}

// openArchive reads item as a ZIP. Random-access bodies of known size are
// used in place; anything else is spooled to a temporary file first.
func (s *Service) openArchive(item UploadItem) (*Archive, func(), error) {
	if ra, ok := item.Body.(io.ReaderAt); ok && item.Size >= 0 {
		archive, err := OpenArchive(ra, item.Size)
		return archive, func() {}, err
	}

	tmp, err := os.CreateTemp(s.tempDir, "photoflow-*.zip")
	if err != nil {
		return nil, nil, fmt.Errorf("spool archive: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	n, err := io.Copy(tmp, item.Body)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("spool archive: %w", err)
	}
	archive, err := OpenArchive(tmp, n)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return archive, cleanup, nil
}

func (s *Service) ingestEntry(ctx context.Context, eventID, actorID string, entry ArchiveEntry) Outcome {
	if s.maxEntryBytes > 0 && entry.Size > s.maxEntryBytes {
		s.reject(eventID, entry.Name, ReasonTooLarge, errEntryTooLarge)
		return rejected(entry.Name, ReasonTooLarge)
	}

	rc, err := entry.Open()
	if err != nil {
		s.reject(eventID, entry.Name, ReasonExtractionError, err)
		return rejected(entry.Name, ReasonExtractionError)
	}
	defer rc.Close()

	return s.saveLeaf(ctx, eventID, actorID, leaf{
		name:        entry.Name,
		displayName: baseName(entry.Name),
		ext:         extension(entry.Name),
		size:        entry.Size,
		body:        newMeteredReader(rc, s.maxEntryBytes),
		archived:    true,
	})
}

// saveLeaf allocates a destination, writes the bytes, and creates the image
// record. A record is only created after the write succeeded. A partially
// written file is left in place on failure.
func (s *Service) saveLeaf(ctx context.Context, eventID, actorID string, f leaf) Outcome {
	ctx, span := s.tracer.Start(ctx, "ingestion.SaveFile", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("file.name", f.name),
	))
	defer span.End()

	dest := AllocatePath(eventID, f.ext)
	metered, ok := f.body.(*meteredReader)
	if !ok {
		metered = newMeteredReader(f.body, 0)
	}

	metadata := map[string]string{
		"original_filename": f.displayName,
		"event_id":          eventID,
		"owner_id":          actorID,
		"content_type":      contentTypeFor(f.ext),
	}
	if err := s.store.Put(ctx, dest.Key, metered, f.size, metadata); err != nil {
		reason := ReasonSaveFailed
		switch {
		case errors.Is(err, errEntryTooLarge):
			reason = ReasonTooLarge
		case f.archived && metered.readErr != nil:
			reason = ReasonExtractionError
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(reason))
		s.reject(eventID, f.name, reason, err)
		return rejected(f.name, reason)
	}

	location := s.store.Location(dest.Key)
	image := &metastore.Image{
		ID:         uuid.NewString(),
		EventID:    eventID,
		OwnerID:    actorID,
		FileName:   f.displayName,
		FilePath:   location,
		UploadedAt: time.Now().UTC(),
		Status:     metastore.StatusUploaded,
	}
	if err := s.records.CreateImage(ctx, image); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(ReasonRecordFailed))
		s.reject(eventID, f.name, ReasonRecordFailed, err)
		return rejected(f.name, ReasonRecordFailed)
	}

	s.notify(ctx, image, dest, metered)
	span.SetAttributes(attribute.String("image.id", image.ID), attribute.Int64("file.size", metered.n))
	return ingested(f.name, dest, location, image.ID)
}

// notify publishes ImageIngestedEvent. The file and record already exist,
// so a failed publish is only logged.
func (s *Service) notify(ctx context.Context, image *metastore.Image, dest Destination, body *meteredReader) {
	if s.publisher == nil {
		return
	}
	event := ImageIngestedEvent{
		ID:        image.ID,
		EventID:   image.EventID,
		OwnerID:   image.OwnerID,
		FileName:  image.FileName,
		ObjectKey: dest.Key,
		Location:  image.FilePath,
		SizeBytes: body.n,
		Checksum:  body.checksum(),
		CreatedAt: image.UploadedAt,
	}
	if err := s.publisher.PublishJSON(ctx, image.ID, EventTypeImageIngested, event); err != nil {
		s.logger.Warn("publish ingestion event failed",
			zap.String("image_id", image.ID),
			zap.String("event_id", image.EventID),
			zap.Error(err))
	}
}

func (s *Service) reject(eventID, name string, reason Reason, err error) {
	s.logger.Warn("upload rejected",
		zap.String("event_id", eventID),
		zap.String("file", name),
		zap.String("reason", string(reason)),
		zap.Error(err))
}

// Close releases underlying resources.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close(ctx))
	}
	errs = append(errs, s.store.Close(), s.records.Close())
	return errors.Join(errs...)
}

// meteredReader counts and hashes what passes through it, remembers the
// first read error of the source, and fails once more than limit bytes
// were read (limit 0 disables the check).
type meteredReader struct {
	r       io.Reader
	limit   int64
	n       int64
	hash    hash.Hash
	readErr error
}

func newMeteredReader(r io.Reader, limit int64) *meteredReader {
	return &meteredReader{r: r, limit: limit, hash: sha256.New()}
}

func (m *meteredReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.n += int64(n)
	m.hash.Write(p[:n])
	if err != nil && err != io.EOF && m.readErr == nil {
		m.readErr = err
	}
	if m.limit > 0 && m.n > m.limit {
		return n, errEntryTooLarge
	}
	return n, err
}

func (m *meteredReader) checksum() string {
	return hex.EncodeToString(m.hash.Sum(nil))
}
