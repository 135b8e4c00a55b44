package trigger

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/docpost/internal/docstore"
)

// EventHandler handles one change event. *Handler satisfies it.
type EventHandler interface {
	OnDocumentWrite(ctx context.Context, ev docstore.ChangeEvent) error
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Collection string

	// Consumer names the persisted change-log cursor.
	Consumer string

	// Concurrency bounds the handlers running at once. Values below 1 mean 1.
	Concurrency int
}

// Watcher runs a handler for every change in a collection. Handlers for
// different events run concurrently and finish in any order; the saved
// cursor only moves past an event once it and every earlier event have
// been handled, so a restart redelivers whatever was in flight.
type Watcher struct {
	store   *docstore.Store
	handler EventHandler
	cfg     WatcherConfig
	logger  *slog.Logger
}

// NewWatcher creates a watcher.
func NewWatcher(store *docstore.Store, handler EventHandler, cfg WatcherConfig, logger *slog.Logger) *Watcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:   store,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With("collection", cfg.Collection, "consumer", cfg.Consumer),
	}
}

// Run watches until ctx is done. It waits for in-flight handlers before
// returning. Returns ctx.Err() on cancellation or the first store error.
func (w *Watcher) Run(ctx context.Context) error {
	from, _, err := w.store.LoadCursor(ctx, w.cfg.Consumer)
	if err != nil {
		return err
	}
	w.logger.Info("watcher starting", "from", from)

	events, errc := w.store.Watch(ctx, w.cfg.Collection, from)
	progress := newProgress(from)
	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup

	for ev := range events {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		progress.start(ev.Seq)
		wg.Add(1)
		go func(ev docstore.ChangeEvent) {
			defer wg.Done()
			defer func() { <-sem }()
			w.handle(ctx, ev, progress)
		}(ev)
	}

	wg.Wait()
	if err := <-errc; err != nil {
		return err
	}
	w.logger.Info("watcher stopping: context cancelled")
	return ctx.Err()
}

func (w *Watcher) handle(ctx context.Context, ev docstore.ChangeEvent, progress *progress) {
	if err := w.handler.OnDocumentWrite(ctx, ev); err != nil {
		w.logger.Warn("invalid change event", "seq", ev.Seq, "path", ev.Path(), "error", err)
	}
	// A handler cut short by cancellation stays in flight so the event is
	// redelivered.
	if ctx.Err() != nil {
		return
	}
	seq, advanced := progress.finish(ev.Seq)
	if !advanced {
		return
	}
	if err := w.store.SaveCursor(ctx, w.cfg.Consumer, seq); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("save cursor failed", "seq", seq, "error", err)
	}
}

// progress tracks in-flight seqs and the contiguous handled watermark.
type progress struct {
	mu       sync.Mutex
	inflight map[int64]struct{}
	started  int64
	saved    int64
}

func newProgress(from int64) *progress {
	return &progress{inflight: make(map[int64]struct{}), started: from, saved: from}
}

func (p *progress) start(seq int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inflight[seq] = struct{}{}
	p.started = max(p.started, seq)
}

// finish marks seq handled and returns the new watermark if it moved.
func (p *progress) finish(seq int64) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, seq)

	mark := p.started
	for s := range p.inflight {
		if s-1 < mark {
			mark = s - 1
		}
	}
	if mark <= p.saved {
		return p.saved, false
	}
	p.saved = mark
	return mark, true
}
