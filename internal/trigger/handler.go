// Package trigger reacts to document writes in the watched collection.
//
// Handler processes one change event: classify the change, decide on the
// input field, run the pipeline and write the result back. Watcher feeds
// handlers from the docstore change log.
package trigger

import (
	"context"
	"fmt"

	"github.com/roach88/docpost/internal/change"
	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/logs"
	"github.com/roach88/docpost/internal/pipeline"
	"github.com/roach88/docpost/internal/updater"
)

// Handler handles document-write events.
type Handler struct {
	pipeline    *pipeline.Pipeline
	updater     *updater.Updater
	inputField  string
	outputField string
	logs        *logs.Logger
}

// NewHandler creates a handler.
func NewHandler(p *pipeline.Pipeline, u *updater.Updater, inputField, outputField string, lg *logs.Logger) *Handler {
	if lg == nil {
		lg = logs.New(nil)
	}
	return &Handler{
		pipeline:    p,
		updater:     u,
		inputField:  inputField,
		outputField: outputField,
		logs:        lg,
	}
}

// OnDocumentWrite handles one change event. Per-document failures are
// logged and leave the document unmodified; only a malformed event is
// returned as an error.
func (h *Handler) OnDocumentWrite(ctx context.Context, ev docstore.ChangeEvent) error {
	path := ev.Path()
	h.logs.Start(path)

	if h.inputField == h.outputField {
		h.logs.FieldNamesNotDifferent(h.inputField)
		return nil
	}

	kind, err := change.Classify(ev.Before, ev.After)
	if err != nil {
		return fmt.Errorf("change %d: %w", ev.Seq, err)
	}

	switch change.Decide(kind, ev.Before, ev.After, h.inputField) {
	case change.Process:
		h.process(ctx, ev.After)
	case change.Clear:
		if err := h.updater.Clear(ctx, path); err != nil {
			h.logs.Error(path, err)
		}
	}

	h.logs.Complete(path)
	return nil
}

func (h *Handler) process(ctx context.Context, snap docstore.Snapshot) {
	res, ok, reason, err := h.pipeline.Process(ctx, snap)
	if err != nil {
		h.logs.Error(snap.Path, err)
		return
	}
	if !ok {
		h.logs.Skipped(snap.Path, reason)
		return
	}
	if err := h.updater.Commit(ctx, snap.Path, res); err != nil {
		h.logs.Error(snap.Path, err)
	}
}
