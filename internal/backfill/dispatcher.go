package backfill

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/logs"
	"github.com/roach88/docpost/internal/pipeline"
	"github.com/roach88/docpost/internal/updater"
)

// Config configures a Dispatcher.
type Config struct {
	Enabled    bool
	Collection string

	// BatchSize is the page size; <= 0 selects DefaultBatchSize.
	BatchSize int

	// Concurrency bounds the documents of a page processed at once.
	// Values below 1 mean 1.
	Concurrency int
}

// Dispatcher processes backfill pages.
type Dispatcher struct {
	store    *docstore.Store
	pipeline *pipeline.Pipeline
	updater  *updater.Updater
	cfg      Config
	now      func() time.Time
	logs     *logs.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock sets the clock used for start and elapsed times.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(lg *logs.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logs = lg }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store *docstore.Store, p *pipeline.Pipeline, u *updater.Updater, cfg Config, opts ...DispatcherOption) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	d := &Dispatcher{
		store:    store,
		pipeline: p,
		updater:  u,
		cfg:      cfg,
		now:      time.Now,
		logs:     logs.New(nil),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BatchSize returns the page size.
func (d *Dispatcher) BatchSize() int {
	return d.cfg.BatchSize
}

// NewJob returns the progress of a fresh job starting now.
func (d *Dispatcher) NewJob() Progress {
	return Progress{
		JobID:     uuid.Must(uuid.NewV7()).String(),
		StartTime: d.now().UnixMilli(),
	}
}

// Step processes the page at p.Offset. Per-document failures are counted,
// never returned; an error means the page could not be read or recorded
// and the dispatch should be retried.
func (d *Dispatcher) Step(ctx context.Context, p Progress) (Outcome, error) {
	if !d.cfg.Enabled {
		return Outcome{Report: &Report{State: StateComplete, Message: DisabledMessage}}, nil
	}

	if p.JobID == "" {
		p.JobID = uuid.Must(uuid.NewV7()).String()
	}
	if p.StartTime == 0 {
		p.StartTime = d.now().UnixMilli()
	}

	page, ok, err := d.store.GetBackfillPage(ctx, p.JobID, p.Offset)
	if err != nil {
		return Outcome{}, err
	}
	if ok {
		d.logs.BackfillPageReplayed(p.JobID, p.Offset)
	} else {
		page, err = d.processPage(ctx, p)
		if err != nil {
			return Outcome{}, err
		}
		// A concurrent delivery may have recorded first; its counts win.
		page, err = d.store.RecordBackfillPage(ctx, page)
		if err != nil {
			return Outcome{}, err
		}
		d.logs.BackfillPage(p.JobID, p.Offset, page.Size, page.SuccessCount, page.ErrorCount)
	}

	success := p.SuccessCount + page.SuccessCount
	failed := p.ErrorCount + page.ErrorCount

	if page.Size == d.cfg.BatchSize {
		return Outcome{Next: &Progress{
			JobID:        p.JobID,
			Offset:       p.Offset + d.cfg.BatchSize,
			SuccessCount: success,
			ErrorCount:   failed,
			StartTime:    p.StartTime,
		}}, nil
	}

	elapsed := d.now().Sub(p.Started())
	report := Summarize(success, failed, elapsed)
	d.logs.BackfillDone(p.JobID, string(report.State), report.Message, elapsed)
	return Outcome{Report: &report}, nil
}

// processPage runs every document of the page independently and stages
// the results on one bulk writer, closed before the page counts as done.
func (d *Dispatcher) processPage(ctx context.Context, p Progress) (docstore.PageResult, error) {
	docs, err := d.store.Page(ctx, d.cfg.Collection, p.Offset, d.cfg.BatchSize)
	if err != nil {
		return docstore.PageResult{}, err
	}

	result := docstore.PageResult{JobID: p.JobID, Offset: p.Offset, Size: len(docs)}
	writer := d.store.BulkWriter(0)

	var (
		mu     sync.Mutex
		failed int
		staged int
		wg     sync.WaitGroup
		sem    = make(chan struct{}, d.cfg.Concurrency)
	)
	for _, snap := range docs {
		wg.Add(1)
		sem <- struct{}{}
		go func(snap docstore.Snapshot) {
			defer wg.Done()
			defer func() { <-sem }()
			wrote, err := d.processDocument(ctx, writer, snap)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				d.logs.Error(snap.Path, err)
				failed++
			case !wrote:
				result.SuccessCount++
			default:
				staged++
			}
		}(snap)
	}
	wg.Wait()

	writes, err := writer.Close(ctx)
	if err != nil {
		return docstore.PageResult{}, err
	}
	for _, w := range writes {
		if w.Err != nil {
			d.logs.Error(w.Path, w.Err)
			failed++
			continue
		}
		result.SuccessCount++
	}
	result.ErrorCount = failed
	return result, nil
}

// processDocument runs the pipeline for one document and stages its
// result. wrote is false when the document was skipped.
func (d *Dispatcher) processDocument(ctx context.Context, w *docstore.BulkWriter, snap docstore.Snapshot) (wrote bool, err error) {
	res, ok, reason, err := d.pipeline.Process(ctx, snap)
	if err != nil {
		return false, err
	}
	if !ok {
		d.logs.Skipped(snap.Path, reason)
		return false, nil
	}
	if err := d.updater.Stage(w, snap.Path, res); err != nil {
		return false, err
	}
	return true, nil
}
