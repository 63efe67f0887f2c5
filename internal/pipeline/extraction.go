package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/scanhook/scanhook/internal/blob"
	"github.com/scanhook/scanhook/internal/extract"
	"github.com/scanhook/scanhook/internal/job"
)

// Extraction runs the extraction capability on uploaded objects and stores
// the normalized text.
type Extraction struct {
	extractor extract.Extractor
	store     job.Store
	timeout   time.Duration
	logger    *slog.Logger
}

// NewExtraction builds an Extraction whose extractor calls are bounded by timeout.
func NewExtraction(extractor extract.Extractor, store job.Store, timeout time.Duration, logger *slog.Logger) *Extraction {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extraction{extractor: extractor, store: store, timeout: timeout, logger: logger}
}

// OnObjectCreated handles one object-created notification. Failures are
// logged and absorbed; redelivery belongs to the notifier.
func (e *Extraction) OnObjectCreated(ctx context.Context, ref blob.ObjectRef) {
	if err := e.Process(ctx, ref); err != nil {
		e.logger.Error("extraction failed",
			"file_id", ref.Key,
			"bucket", ref.Bucket,
			"kind", KindOf(err).String(),
			"error", err,
		)
		return
	}
	e.logger.Info("extraction stored", "file_id", ref.Key)
}

// Process extracts text from ref and upserts it onto the job keyed by
// ref.Key, creating the job if it does not exist.
func (e *Extraction) Process(ctx context.Context, ref blob.ObjectRef) error {
	if ref.Bucket == "" || ref.Key == "" {
		return newError(KindValidation, "object-created event requires bucket and key", nil)
	}

	extractCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	frags, err := e.extractor.Extract(extractCtx, ref)
	if err != nil {
		return newError(KindUpstream, "extract text", err)
	}
	text := extract.Normalize(frags)
	e.logger.Debug("extraction finished",
		"file_id", ref.Key,
		"fragments", len(frags),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := e.store.SetExtractedText(ctx, ref.Key, text); err != nil {
		return newError(KindStorage, "store extracted text", err)
	}
	return nil
}
