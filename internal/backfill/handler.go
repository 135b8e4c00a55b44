package backfill

import (
	"context"

	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/logs"
	"github.com/roach88/docpost/internal/taskqueue"
)

// Handler runs dispatch tasks: it steps the job, enqueues the
// continuation and reports the terminal state.
type Handler struct {
	dispatcher *Dispatcher
	queue      *taskqueue.Queue
	store      *docstore.Store
	instance   string
	logs       *logs.Logger
}

// NewHandler creates a handler reporting state for instance.
func NewHandler(d *Dispatcher, q *taskqueue.Queue, store *docstore.Store, instance string, lg *logs.Logger) *Handler {
	if lg == nil {
		lg = logs.New(nil)
	}
	return &Handler{dispatcher: d, queue: q, store: store, instance: instance, logs: lg}
}

// Start enqueues the first dispatch of a new job.
func (h *Handler) Start(ctx context.Context) (Progress, error) {
	p := h.dispatcher.NewJob()
	if _, _, err := h.queue.Enqueue(ctx, p, p.DedupeKey()); err != nil {
		return Progress{}, err
	}
	return p, nil
}

// Handle implements taskqueue.Handler.
func (h *Handler) Handle(ctx context.Context, task taskqueue.Task) error {
	var p Progress
	if err := taskqueue.Decode(task, &p); err != nil {
		return err
	}
	// A first dispatch enqueued without a job id takes the task's, so every
	// delivery of it continues the same job.
	if p.JobID == "" {
		p.JobID = task.ID
	}

	out, err := h.dispatcher.Step(ctx, p)
	if err != nil {
		return err
	}

	if out.Next != nil {
		// The dedupe key makes a redelivered dispatch enqueue nothing new.
		_, inserted, err := h.queue.Enqueue(ctx, out.Next, out.Next.DedupeKey())
		if err != nil {
			return err
		}
		h.logs.BackfillContinued(out.Next.JobID, out.Next.Offset, inserted)
		return nil
	}
	return h.store.SetProcessingState(ctx, h.instance, string(out.Report.State), out.Report.Message)
}
