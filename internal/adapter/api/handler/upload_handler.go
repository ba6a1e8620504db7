package handler

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/statusboard/internal/adapter/normalize"
	"github.com/V4T54L/statusboard/internal/domain"
)

const uploadMemory = 8 << 20

// uploadFields lists the accepted multipart fields and how many files each
// may carry; zero means unbounded.
var uploadFields = []struct {
	field       string
	contentType string
	maxFiles    int
}{
	{"document", domain.ContentDocument, 1},
	{"image", domain.ContentImage, 1},
	{"audio", domain.ContentAudio, 0},
	{"video", domain.ContentVideo, 1},
}

// UploadResponse acknowledges an accepted upload.
type UploadResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// UploadHandler accepts a multipart job submission and records one Queued
// event per file. The file payloads belong to the processing pipeline and
// are not kept here.
type UploadHandler struct {
	useCase       Ingester
	logger        *slog.Logger
	maxUploadSize int64
	now           func() time.Time
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(uc Ingester, logger *slog.Logger, maxUploadSize int64) *UploadHandler {
	return &UploadHandler{
		useCase:       uc,
		logger:        logger.With("component", "upload_handler"),
		maxUploadSize: maxUploadSize,
		now:           time.Now,
	}
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.ContentLength > h.maxUploadSize {
		http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request: expected multipart form data", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	jobID := uuid.NewString()
	queued := h.now().Format(normalize.TimeLayout)

	var events []domain.Event
	for _, uf := range uploadFields {
		files := r.MultipartForm.File[uf.field]
		if uf.maxFiles > 0 && len(files) > uf.maxFiles {
			http.Error(w, "Bad Request: at most one "+uf.field+" file is allowed", http.StatusBadRequest)
			return
		}
		for _, fh := range files {
			events = append(events, queuedEvent(jobID, uf.contentType, fh, queued))
		}
	}
	if len(events) == 0 {
		http.Error(w, "Bad Request: no files uploaded", http.StatusBadRequest)
		return
	}

	for _, event := range events {
		if _, err := h.useCase.SubmitEvent(r.Context(), event); err != nil {
			h.logger.Error("failed to record upload", "error", err, "job_id", jobID)
			http.Error(w, "Service Unavailable: upload was not recorded", http.StatusServiceUnavailable)
			return
		}
	}

	h.logger.Info("upload accepted", "job_id", jobID, "files", len(events))
	writeJSON(w, http.StatusAccepted, UploadResponse{Message: "Files uploaded successfully", JobID: jobID})
}

func queuedEvent(jobID, contentType string, fh *multipart.FileHeader, at string) domain.Event {
	return domain.Event{
		Time:        at,
		JobID:       jobID,
		ContentID:   uuid.NewString(),
		ContentType: contentType,
		FileName:    fh.Filename,
		Status:      "Queued",
		Message:     "Waiting for processing",
	}
}
