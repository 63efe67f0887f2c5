package pipeline

import (
	"context"
	"strings"

	"github.com/scanhook/scanhook/internal/job"
)

// Query looks up job records.
type Query struct {
	store job.Store
}

// NewQuery builds a Query over store.
func NewQuery(store job.Store) *Query {
	return &Query{store: store}
}

// GetJob returns the record for fileID.
func (q *Query) GetJob(ctx context.Context, fileID string) (*job.Record, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, newError(KindValidation, "missing file id", nil)
	}
	r, err := q.store.Get(ctx, fileID)
	if err != nil {
		return nil, newError(KindStorage, "get job", err)
	}
	if r == nil {
		return nil, newError(KindNotFound, "job "+fileID+" not found", nil)
	}
	return r, nil
}
