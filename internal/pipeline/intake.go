package pipeline

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scanhook/scanhook/internal/blob"
	"github.com/scanhook/scanhook/internal/job"
)

// Messages carried by RequestUpload errors.
const (
	MsgMissingCallback = "missing callback target"
	MsgInvalidCallback = "invalid callback target"
	MsgIssueCredential = "issue upload credential"
	MsgRecordJob       = "record job"
)

// Upload is what a client needs to send its file.
type Upload struct {
	FileID     string
	Credential blob.Credential
}

// Intake validates upload requests, issues write credentials and records
// pending jobs.
type Intake struct {
	store     job.Store
	presigner blob.Presigner
	ttl       time.Duration
	newID     func() string
	logger    *slog.Logger
}

// NewIntake builds an Intake issuing credentials valid for ttl.
func NewIntake(store job.Store, presigner blob.Presigner, ttl time.Duration, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{store: store, presigner: presigner, ttl: ttl, newID: NewFileID, logger: logger}
}

// NewFileID returns a uuid v4 (122 random bits) as 32 lowercase hex digits.
func NewFileID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ValidateCallbackURL checks that raw is present and an absolute http(s) URL.
// It does not contact the target.
func ValidateCallbackURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return newError(KindValidation, MsgMissingCallback, nil)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return newError(KindValidation, MsgInvalidCallback, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Hostname() == "" {
		return newError(KindValidation, MsgInvalidCallback, nil)
	}
	return nil
}

// RequestUpload registers a new job for callbackURL and returns its id and
// write credential. The credential is returned only once the job record is
// stored.
func (in *Intake) RequestUpload(ctx context.Context, callbackURL string) (Upload, error) {
	if err := ValidateCallbackURL(callbackURL); err != nil {
		return Upload{}, err
	}

	fileID := in.newID()
	cred, err := in.presigner.PresignPut(ctx, fileID, in.ttl)
	if err != nil {
		in.logger.Error("intake: issue credential failed", "file_id", fileID, "error", err)
		return Upload{}, newError(KindStorage, MsgIssueCredential, err)
	}

	if err := in.store.Create(ctx, &job.Record{FileID: fileID, CallbackURL: callbackURL}); err != nil {
		// The credential is orphaned; an upload under it still gets a record
		// from the extraction upsert.
		in.logger.Error("intake: record job failed", "file_id", fileID, "error", err)
		return Upload{}, newError(KindStorage, MsgRecordJob, err)
	}

	in.logger.Info("intake: upload requested", "file_id", fileID, "expires_at", cred.ExpiresAt)
	return Upload{FileID: fileID, Credential: cred}, nil
}
