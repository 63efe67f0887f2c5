// Package queue buffers object-created notifications and runs extraction on
// a fixed pool of workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scanhook/scanhook/internal/blob"
	"github.com/scanhook/scanhook/internal/config"
	"github.com/scanhook/scanhook/internal/job"
)

// ErrFull is returned by Enqueue when the buffer has no room.
var ErrFull = errors.New("queue full")

// Processor handles one object-created notification.
type Processor interface {
	OnObjectCreated(ctx context.Context, ref blob.ObjectRef)
}

// Objects reports which uploaded objects exist.
type Objects interface {
	Bucket() string
	Exists(key string) bool
}

// Queue manages pending extractions and their workers.
type Queue struct {
	refs    chan blob.ObjectRef
	store   job.Store
	objects Objects
	proc    Processor
	cfg     *config.Config
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New creates a new Queue.
func New(cfg *config.Config, store job.Store, objects Objects, proc Processor, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		refs:    make(chan blob.ObjectRef, cfg.QueueSize),
		store:   store,
		objects: objects,
		proc:    proc,
		cfg:     cfg,
		logger:  logger,
	}
}

// Enqueue adds ref to the queue without blocking.
func (q *Queue) Enqueue(ref blob.ObjectRef) error {
	select {
	case q.refs <- ref:
		return nil
	default:
		return fmt.Errorf("%w: cannot enqueue %s/%s", ErrFull, ref.Bucket, ref.Key)
	}
}

// Notify adapts Enqueue to blob.Notifier.
func (q *Queue) Notify(_ context.Context, ref blob.ObjectRef) error {
	return q.Enqueue(ref)
}

// Start launches cfg.Concurrency workers. They stop when ctx is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for range q.cfg.Concurrency {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.runWorker(ctx)
		}()
	}
}

// Wait blocks until every worker has returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Recovery re-enqueues jobs whose object was uploaded but whose text was
// never stored, e.g. because the process stopped mid-extraction.
func (q *Queue) Recovery(ctx context.Context) error {
	ids, err := q.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	requeued := 0
	for _, id := range ids {
		if !q.objects.Exists(id) {
			continue
		}
		if err := q.Enqueue(blob.ObjectRef{Bucket: q.objects.Bucket(), Key: id}); err != nil {
			q.logger.Warn("recovery: enqueue failed", "file_id", id, "error", err)
			continue
		}
		requeued++
	}
	if requeued > 0 {
		q.logger.Info("recovery: re-enqueued uploads", "count", requeued)
	}
	return nil
}

func (q *Queue) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ref := <-q.refs:
			q.process(ctx, ref)
		}
	}
}

func (q *Queue) process(ctx context.Context, ref blob.ObjectRef) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("worker: panic during extraction", "file_id", ref.Key, "panic", r)
		}
	}()
	q.proc.OnObjectCreated(ctx, ref)
}
