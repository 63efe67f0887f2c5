package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/scanhook/scanhook/internal/blob"
	"github.com/scanhook/scanhook/internal/config"
	"github.com/scanhook/scanhook/internal/event"
	"github.com/scanhook/scanhook/internal/job"
	"github.com/scanhook/scanhook/internal/pipeline"
	"github.com/scanhook/scanhook/internal/queue"
)

const maxEventBytes = 1 << 20

// Uploads stores objects received on the signed upload endpoint.
type Uploads interface {
	Put(ctx context.Context, key string, r io.Reader) (blob.ObjectRef, error)
}

// Verifier checks signed upload URLs.
type Verifier interface {
	Verify(key, expires, signature string) error
}

// Enqueuer accepts object-created notifications for extraction.
type Enqueuer interface {
	Enqueue(ref blob.ObjectRef) error
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Intake   *pipeline.Intake
	Query    *pipeline.Query
	Uploads  Uploads
	Verifier Verifier
	Queue    Enqueuer
	Changes  job.Publisher
	Logger   *slog.Logger
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	Deps
	cfg *config.Config
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(cfg *config.Config, d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{Deps: d, cfg: cfg}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/files", h.RequestUpload)
	mux.HandleFunc("GET /api/v1/files/{fileid}", h.GetFile)
	mux.HandleFunc("PUT /uploads/{key}", h.Upload)
	mux.HandleFunc("POST /api/v1/events/object-created", h.ObjectCreated)
	mux.HandleFunc("POST /api/v1/events/job-changed", h.JobChanged)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

type uploadRequest struct {
	Body string `json:"body"`
}

type uploadResponse struct {
	FileID       string    `json:"file_id"`
	PresignedURL string    `json:"presigned_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RequestUpload handles POST /api/v1/files and responds 200 with the upload credential.
func (h *Handler) RequestUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxEventBytes)
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	up, err := h.Intake.RequestUpload(r.Context(), req.Body)
	if err != nil {
		status, msg := intakeError(err)
		writeError(w, status, msg)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		FileID:       up.FileID,
		PresignedURL: up.Credential.URL,
		ExpiresAt:    up.Credential.ExpiresAt,
	})
}

func intakeError(err error) (int, string) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		return http.StatusInternalServerError, "internal error"
	}
	switch pe.Msg {
	case pipeline.MsgMissingCallback:
		return http.StatusBadRequest, "Callback URL not found in the event body"
	case pipeline.MsgInvalidCallback:
		return http.StatusBadRequest, "Invalid URL"
	case pipeline.MsgIssueCredential:
		return http.StatusInternalServerError, "Blob store error"
	case pipeline.MsgRecordJob:
		return http.StatusInternalServerError, "Job store error"
	}
	return statusFor(pe.Kind), pe.Msg
}

// GetFile handles GET /api/v1/files/{fileid} and responds 200 with the job record.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Query.GetJob(r.Context(), r.PathValue("fileid"))
	if err != nil {
		switch pipeline.KindOf(err) {
		case pipeline.KindNotFound:
			writeError(w, http.StatusNotFound, "File not found")
		case pipeline.KindValidation:
			writeError(w, http.StatusBadRequest, "missing file id")
		default:
			h.Logger.Error("get file failed", "file_id", r.PathValue("fileid"), "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get file")
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Upload handles PUT /uploads/{key}, the target of presigned URLs.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := blob.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	if err := h.Verifier.Verify(key, q.Get("expires"), q.Get("signature")); err != nil {
		if errors.Is(err, blob.ErrExpired) || errors.Is(err, blob.ErrBadSignature) {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	ref, err := h.Uploads.Put(r.Context(), key, r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		h.Logger.Error("upload failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// ObjectCreated handles POST /api/v1/events/object-created and queues extraction.
func (h *Handler) ObjectCreated(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	ref, err := event.DecodeObjectCreated(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Queue.Enqueue(ref); err != nil {
		if errors.Is(err, queue.ErrFull) {
			writeError(w, http.StatusServiceUnavailable, "extraction queue full")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// JobChanged handles POST /api/v1/events/job-changed and publishes the
// change to the change feed.
func (h *Handler) JobChanged(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	c, err := event.DecodeJobChanged(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Changes.Publish(r.Context(), c); err != nil {
		h.Logger.Error("publish change failed", "file_id", c.FileID(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to publish change")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "published"})
}

// Health handles GET /api/v1/health and responds 200.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(k pipeline.Kind) int {
	switch k {
	case pipeline.KindValidation:
		return http.StatusBadRequest
	case pipeline.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
