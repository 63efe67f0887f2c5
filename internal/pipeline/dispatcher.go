package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/scanhook/scanhook/internal/job"
)

// Poster delivers a JSON payload to a callback URL in a single bounded attempt.
type Poster interface {
	Post(ctx context.Context, callbackURL string, payload []byte) error
}

// Dispatcher notifies a job's callback target when a change introduces
// extracted text. It only reads the change payload, never the store.
type Dispatcher struct {
	poster Poster
	logger *slog.Logger
}

// NewDispatcher builds a Dispatcher delivering through poster.
func NewDispatcher(poster Poster, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{poster: poster, logger: logger}
}

type callbackPayload struct {
	ExtractedText string `json:"extracted_text"`
}

// OnJobRecordChanged handles one change-feed entry. Delivery failures are
// logged only.
func (d *Dispatcher) OnJobRecordChanged(ctx context.Context, c job.Change) {
	sent, err := d.Deliver(ctx, c)
	if err != nil {
		d.logger.Warn("callback delivery failed",
			"file_id", c.FileID(),
			"kind", KindOf(err).String(),
			"error", err,
		)
		return
	}
	if sent {
		d.logger.Info("callback delivered", "file_id", c.FileID(), "callback_url", c.After.CallbackURL)
	}
}

// Deliver posts the after image's text to its callback URL. It reports
// sent=false without error when the change carries nothing to deliver.
func (d *Dispatcher) Deliver(ctx context.Context, c job.Change) (sent bool, err error) {
	after := c.After
	if after == nil || !after.HasText() || after.CallbackURL == "" {
		d.logger.Debug("change skipped", "file_id", c.FileID())
		return false, nil
	}

	text, _ := after.Text()
	payload, err := json.Marshal(callbackPayload{ExtractedText: text})
	if err != nil {
		return false, newError(KindDelivery, "encode callback payload", err)
	}

	if err := d.poster.Post(ctx, after.CallbackURL, payload); err != nil {
		return false, newError(KindDelivery, "post callback", err)
	}
	return true, nil
}
