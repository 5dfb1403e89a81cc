package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/photoflow/internal/auth"
)

// StatusUploadCompleted is returned with every successful upload response.
const StatusUploadCompleted = "UPLOAD_COMPLETED"

// HTTPOptions tunes request handling.
type HTTPOptions struct {
	MaxSizeBytes   int64
	FormMemBytes   int64
	RequestTimeout time.Duration
}

// HTTPHandler exposes REST endpoints for the ingestion service.
type HTTPHandler struct {
	service       *Service
	authenticator *auth.Authenticator
	limiter       *auth.RateLimiter
	logger        *zap.Logger
	opts          HTTPOptions
	router        chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes. limiter may
// be nil.
func NewHTTPHandler(service *Service, authenticator *auth.Authenticator, limiter *auth.RateLimiter, logger *zap.Logger, opts HTTPOptions) *HTTPHandler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}
	h := &HTTPHandler{
		service:       service,
		authenticator: authenticator,
		limiter:       limiter,
		logger:        logger.Named("http"),
		opts:          opts,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.opts.RequestTimeout))

	r.Get("/healthz", h.handleHealth)

	r.Route("/api/v1/events", func(r chi.Router) {
		r.Use(h.authenticator.Middleware)
		r.Use(h.limiter.Middleware)

		r.Get("/{eventID}/images", h.handleListImages)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RolePhotographer, auth.RoleAdmin))
			r.Post("/", h.handleCreateEvent)
			r.Post("/{eventID}/upload", h.handleUpload)
		})
	})

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type createEventRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *HTTPHandler) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req createEventRequest
	if r.ContentLength != 0 && strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	if req.Name == "" {
		req.Name = r.URL.Query().Get("name")
	}

	event, err := h.service.CreateEvent(r.Context(), actor.ID, req.Name, req.Description)
	if errors.Is(err, ErrInvalidEvent) {
		writeError(w, http.StatusBadRequest, "event name is required")
		return
	}
	if err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create event failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":   event.ID,
		"name": event.Name,
	})
}

func (h *HTTPHandler) handleListImages(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	images, err := h.service.ListImages(r.Context(), eventID)
	if errors.Is(err, ErrEventNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("event %s not found", eventID))
		return
	}
	if err != nil {
		h.logger.Error("list images failed", zap.String("event_id", eventID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list images failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event_id": eventID,
		"images":   images,
	})
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	actor, _ := auth.ActorFrom(r.Context())

	if r.ContentLength > h.opts.MaxSizeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
		return
	}

	if _, err := h.service.GetEvent(r.Context(), eventID); err != nil {
		h.writeEventError(w, eventID, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxSizeBytes)
	if err := r.ParseMultipartForm(h.opts.FormMemBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "files field is required")
		return
	}

	items := make([]UploadItem, 0, len(headers))
	for _, header := range headers {
		item, closeFn := openUploadItem(header)
		defer closeFn()
		items = append(items, item)
	}

	report, err := h.service.IngestBatch(r.Context(), eventID, actor.ID, items)
	if err != nil {
		h.writeEventError(w, eventID, err)
		return
	}

	if report.Failed() {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":        "Failed to upload any files: " + strings.Join(report.Failures, ", "),
			"failed_files": report.Failures,
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"event_id":       report.EventID,
		"total_uploaded": report.TotalIngested,
		"failed_files":   report.Failures,
		"status":         StatusUploadCompleted,
	})
}

// openUploadItem opens one multipart file. A file that cannot be opened
// still becomes an item so the failure is reported against its name.
func openUploadItem(header *multipart.FileHeader) (UploadItem, func()) {
	item := UploadItem{
		Filename:    header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	}
	file, err := header.Open()
	if err != nil {
		item.Size = -1
		item.Body = errReader{err: err}
		return item, func() {}
	}
	item.Body = file
	return item, func() { _ = file.Close() }
}

type errReader struct {
	err error
}

func (e errReader) Read([]byte) (int, error) {
	return 0, e.err
}

func (h *HTTPHandler) writeEventError(w http.ResponseWriter, eventID string, err error) {
	if errors.Is(err, ErrEventNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("event %s not found", eventID))
		return
	}
	h.logger.Error("upload failed", zap.String("event_id", eventID), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "upload failed")
}

func (h *HTTPHandler) tooLargeMessage() string {
	return fmt.Sprintf("upload too large. maximum size is %dMB", h.opts.MaxSizeBytes/(1024*1024))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
