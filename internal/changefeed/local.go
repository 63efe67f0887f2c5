// Package changefeed delivers job store changes to subscribers.
package changefeed

import (
	"context"
	"sync"

	"github.com/scanhook/scanhook/internal/job"
)

// Handler consumes one change. Handlers own their error reporting.
type Handler func(ctx context.Context, c job.Change)

// Local is an in-process change feed. Each published change runs every
// subscribed handler in its own goroutine.
type Local struct {
	mu       sync.RWMutex
	handlers []Handler
	wg       sync.WaitGroup
}

// NewLocal creates an empty in-process feed.
func NewLocal() *Local {
	return &Local{}
}

// Subscribe registers h for all future changes.
func (l *Local) Subscribe(h Handler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
}

// Publish implements job.Publisher. Handlers outlive the publishing request,
// so they run detached from ctx cancellation.
func (l *Local) Publish(ctx context.Context, c job.Change) error {
	l.mu.RLock()
	handlers := l.handlers
	l.mu.RUnlock()

	detached := context.WithoutCancel(ctx)
	for _, h := range handlers {
		snapshot := job.Change{Before: c.Before.Clone(), After: c.After.Clone()}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			h(detached, snapshot)
		}()
	}
	return nil
}

// Wait blocks until every in-flight handler has returned.
func (l *Local) Wait() {
	l.wg.Wait()
}
