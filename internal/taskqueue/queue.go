// Package taskqueue is a durable at-least-once task queue on top of the
// docstore task table.
//
// A Queue enqueues JSON payloads; a Worker leases them one at a time and
// hands them to a Handler. A task whose handler fails is released with
// exponential backoff and retried until its attempt budget is spent, then
// dead-lettered. A task whose worker dies mid-flight is redelivered when
// its lease expires, so handlers must tolerate seeing a task twice.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/docpost/internal/docstore"
)

// Task is a leased task handed to a Handler.
type Task = docstore.Task

// Queue is a named queue in a docstore.
type Queue struct {
	store *docstore.Store
	name  string

	// signal wakes in-process workers (buffered, size 1).
	signal chan struct{}
}

// New returns the queue called name.
func New(store *docstore.Store, name string) *Queue {
	return &Queue{
		store:  store,
		name:   name,
		signal: make(chan struct{}, 1),
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// Enqueue adds a task carrying payload encoded as JSON. A non-empty
// dedupeKey that was already used makes this a no-op; inserted reports
// which happened.
func (q *Queue) Enqueue(ctx context.Context, payload any, dedupeKey string) (id string, inserted bool, err error) {
	return q.EnqueueAfter(ctx, payload, dedupeKey, 0)
}

// EnqueueAfter is Enqueue with the task held back for delay.
func (q *Queue) EnqueueAfter(ctx context.Context, payload any, dedupeKey string, delay time.Duration) (string, bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("encode %s task: %w", q.name, err)
	}
	id, inserted, err := q.store.EnqueueTask(ctx, q.name, data, dedupeKey, delay)
	if err != nil {
		return "", false, err
	}
	if inserted {
		q.notify()
	}
	return id, inserted, nil
}

// Counts returns task counts per state.
func (q *Queue) Counts(ctx context.Context) (docstore.TaskCounts, error) {
	return q.store.CountTasks(ctx, q.name)
}

// notify signals availability without blocking; the buffer coalesces
// multiple signals.
func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// wait returns a channel that signals when tasks may be available.
func (q *Queue) wait() <-chan struct{} {
	return q.signal
}

// Decode unmarshals a task payload. A payload that does not decode is
// reported as a permanent failure.
func Decode(task Task, v any) error {
	if err := json.Unmarshal(task.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode task %s payload: %w", task.ID, err))
	}
	return nil
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker dead-letters the task instead of
// retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
