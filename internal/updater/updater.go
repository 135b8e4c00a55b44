// Package updater writes pipeline results back to documents.
package updater

import (
	"context"

	"github.com/roach88/docpost/internal/docstore"
	"github.com/roach88/docpost/internal/fault"
	"github.com/roach88/docpost/internal/logs"
	"github.com/roach88/docpost/internal/pipeline"
)

// Updater writes output and version fields.
type Updater struct {
	store        *docstore.Store
	outputField  string
	versionField string
	logs         *logs.Logger
}

// New creates an updater writing outputField and versionField.
func New(store *docstore.Store, outputField, versionField string, lg *logs.Logger) *Updater {
	if lg == nil {
		lg = logs.New(nil)
	}
	return &Updater{store: store, outputField: outputField, versionField: versionField, logs: lg}
}

// Fields returns the field writes for a result: the output, plus the
// version when the result carries one.
func (u *Updater) Fields(res pipeline.Result) map[string]any {
	fields := map[string]any{u.outputField: res.Output}
	if res.HasVersion {
		fields[u.versionField] = res.Version
	}
	return fields
}

// Commit writes the result in one transaction: output and version are
// applied together or not at all. Any failure is a COMMIT_FAILED fault.
func (u *Updater) Commit(ctx context.Context, path string, res pipeline.Result) error {
	u.logs.UpdateDocument(path)
	fields := u.Fields(res)
	err := u.store.RunTransaction(ctx, func(tx *docstore.Tx) error {
		return tx.Update(path, fields)
	})
	if err != nil {
		return commitFailed(err, path)
	}
	u.logs.UpdateDocumentComplete(path)
	return nil
}

// Stage buffers the result on a bulk writer. Output and version are one
// buffered write, so they land in the same transaction.
func (u *Updater) Stage(w *docstore.BulkWriter, path string, res pipeline.Result) error {
	return w.Update(path, u.Fields(res))
}

// Clear removes the output and version fields.
func (u *Updater) Clear(ctx context.Context, path string) error {
	u.logs.UpdateDocument(path)
	err := u.store.Update(ctx, path, map[string]any{
		u.outputField:  docstore.Delete,
		u.versionField: docstore.Delete,
	})
	if err != nil {
		return commitFailed(err, path)
	}
	u.logs.UpdateDocumentComplete(path)
	return nil
}

func commitFailed(err error, path string) error {
	if fe, ok := err.(*fault.Error); ok && fe.Code == fault.CodeCommitFailed {
		return fe.WithPath(path)
	}
	return fault.Wrap(fault.CodeCommitFailed, err, "write result").WithPath(path)
}
