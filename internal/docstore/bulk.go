package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultBulkChunkSize is how many buffered writes a BulkWriter applies per
// transaction.
const DefaultBulkChunkSize = 50

// ErrWriterClosed is returned by BulkWriter methods after Close.
var ErrWriterClosed = errors.New("bulk writer closed")

// WriteResult is the outcome of one buffered write.
type WriteResult struct {
	Path string
	Err  error
}

// BulkWriter buffers document updates and applies them in chunked
// transactions when closed. It is safe for concurrent use.
//
// A chunk that fails as a whole is retried one write per transaction, so a
// single bad write only fails itself.
type BulkWriter struct {
	store     *Store
	chunkSize int

	mu     sync.Mutex
	ops    []bulkOp
	closed bool
}

type bulkOp struct {
	path   string
	fields map[string]any
}

// BulkWriter returns a new write session. chunkSize <= 0 selects
// DefaultBulkChunkSize.
func (s *Store) BulkWriter(chunkSize int) *BulkWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultBulkChunkSize
	}
	return &BulkWriter{store: s, chunkSize: chunkSize}
}

// Update buffers a field update for an existing document.
func (w *BulkWriter) Update(path string, fields map[string]any) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("bulk update %s: no fields", path)
	}

	// Copy so later mutation by the caller doesn't leak into the write.
	cp := make(map[string]any, len(fields))
	for k, v := range fields {
		cp[k] = v
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	w.ops = append(w.ops, bulkOp{path: path, fields: cp})
	return nil
}

// Pending returns the number of buffered writes.
func (w *BulkWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.ops)
}

// Close flushes all buffered writes and closes the session.
// Results are returned in the order the writes were buffered.
func (w *BulkWriter) Close(ctx context.Context) ([]WriteResult, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrWriterClosed
	}
	w.closed = true
	ops := w.ops
	w.ops = nil
	w.mu.Unlock()

	results := make([]WriteResult, 0, len(ops))
	for start := 0; start < len(ops); start += w.chunkSize {
		end := min(start+w.chunkSize, len(ops))
		results = append(results, w.flushChunk(ctx, ops[start:end])...)
	}
	return results, nil
}

func (w *BulkWriter) flushChunk(ctx context.Context, chunk []bulkOp) []WriteResult {
	results := make([]WriteResult, len(chunk))

	err := w.store.RunTransaction(ctx, func(tx *Tx) error {
		for _, op := range chunk {
			if err := tx.Update(op.path, op.fields); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		for i, op := range chunk {
			results[i] = WriteResult{Path: op.path}
		}
		return results
	}

	// Isolate the failing write(s).
	for i, op := range chunk {
		results[i] = WriteResult{
			Path: op.path,
			Err: w.store.RunTransaction(ctx, func(tx *Tx) error {
				return tx.Update(op.path, op.fields)
			}),
		}
	}
	return results
}
