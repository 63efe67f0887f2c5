package job

import (
	"context"
	"log/slog"
)

// Store persists and retrieves job records.
type Store interface {
	// Create inserts a new record with no extracted text.
	Create(ctx context.Context, r *Record) error
	// Get returns the record for fileID, or (nil, nil) if it does not exist.
	Get(ctx context.Context, fileID string) (*Record, error)
	// SetExtractedText is a single unconditional upsert: it creates the
	// record when absent and overwrites the text when present.
	SetExtractedText(ctx context.Context, fileID, text string) error
	// ListPending returns the ids of records that have no extracted text yet.
	ListPending(ctx context.Context) ([]string, error)
	Close() error
}

// Publisher receives every committed change. Stores call it after the write
// is durable; a publish failure never fails the write.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, c Change) error

func (f PublisherFunc) Publish(ctx context.Context, c Change) error { return f(ctx, c) }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Change) error { return nil }

func publish(ctx context.Context, p Publisher, c Change) {
	if err := p.Publish(ctx, c); err != nil {
		slog.Warn("job: publish change failed", "file_id", c.FileID(), "error", err)
	}
}
