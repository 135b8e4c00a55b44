package taskqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/docpost/internal/docstore"
)

// Handler processes one task. Returning nil acks the task; returning an
// error releases it for retry (or dead-letters it, see Permanent).
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task Task) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// WorkerConfig tunes a Worker.
type WorkerConfig struct {
	// Backoff sets the delay before a failed task is retried. Its
	// MaxAttempts is the task's attempt budget, including the first.
	Backoff docstore.RetryPolicy

	// LeaseFor is how long a leased task stays invisible to other workers.
	LeaseFor time.Duration

	// PollInterval is how often to look for tasks enqueued by other
	// processes.
	PollInterval time.Duration
}

// DefaultWorkerConfig returns the configuration used for zero fields.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Backoff: docstore.RetryPolicy{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2.0,
		},
		LeaseFor:     5 * time.Minute,
		PollInterval: docstore.DefaultPollInterval,
	}
}

// Worker leases tasks from a queue and dispatches them to a handler, one at
// a time.
type Worker struct {
	queue   *Queue
	handler Handler
	cfg     WorkerConfig
	logger  *slog.Logger
}

// NewWorker creates a worker. Zero config fields take their defaults; a nil
// logger uses slog.Default().
func NewWorker(queue *Queue, handler Handler, cfg WorkerConfig, logger *slog.Logger) *Worker {
	def := DefaultWorkerConfig()
	if cfg.Backoff.MaxAttempts == 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.LeaseFor <= 0 {
		cfg.LeaseFor = def.LeaseFor
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("queue", queue.name),
	}
}

// Run processes tasks until ctx is done. Returns ctx.Err() on cancellation
// or the first store error.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker starting")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		worked, err := w.ProcessOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("worker stopping: context cancelled")
				return ctx.Err()
			}
			return err
		}
		if worked {
			continue
		}

		// Nothing ready - wait for an enqueue, the poll tick, or cancellation.
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping: context cancelled")
			return ctx.Err()
		case <-w.queue.wait():
		case <-ticker.C:
		}
	}
}

// Drain processes tasks until the queue has no pending tasks left,
// including tasks waiting out a retry delay.
func (w *Worker) Drain(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		worked, err := w.ProcessOne(ctx)
		if err != nil {
			return err
		}
		if worked {
			continue
		}

		counts, err := w.queue.Counts(ctx)
		if err != nil {
			return err
		}
		if counts.Pending == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.queue.wait():
		case <-ticker.C:
		}
	}
}

// ProcessOne leases and handles at most one task. It reports whether a task
// was handled. Handler failures are recorded on the task, not returned.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, ok, err := w.queue.store.LeaseTask(ctx, w.queue.name, w.cfg.LeaseFor)
	if err != nil || !ok {
		return false, err
	}

	log := w.logger.With("task", task.ID, "attempt", task.Attempts)
	handleErr := w.handler.Handle(ctx, task)
	if handleErr == nil {
		return true, w.queue.store.AckTask(ctx, task.ID)
	}

	// A cancelled handler didn't fail on its own; give the task back as-is.
	if ctx.Err() != nil {
		releaseCtx := context.WithoutCancel(ctx)
		return true, w.queue.store.ReleaseTask(releaseCtx, task.ID, 0, handleErr.Error())
	}

	if IsPermanent(handleErr) {
		log.Error("task failed permanently", "error", handleErr)
		return true, w.queue.store.DeadLetterTask(ctx, task.ID, handleErr.Error())
	}

	delay, retry := w.cfg.Backoff.NextDelay(task.Attempts)
	if !retry {
		log.Error("task failed, attempts exhausted", "error", handleErr)
		return true, w.queue.store.DeadLetterTask(ctx, task.ID, handleErr.Error())
	}

	log.Warn("task failed, will retry", "error", handleErr, "delay", delay)
	return true, w.queue.store.ReleaseTask(ctx, task.ID, delay, handleErr.Error())
}
