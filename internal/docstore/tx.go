package docstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/docpost/internal/fault"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/docpost/internal/value"
)

// Tx is a single-document-store transaction. All reads observe the state
// as of the transaction; all writes commit together or not at all.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
	now int64
}

// RunTransaction runs fn in a write transaction, retrying the whole
// transaction on lock contention according to the store's RetryPolicy.
//
// fn may run more than once and must not have side effects outside the Tx.
// An error returned by fn aborts the transaction and is returned as-is
// unless it is lock contention. A transaction that cannot be applied within
// the retry budget fails with fault.CodeCommitFailed.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	return s.withTx(ctx, func(sqlTx *sql.Tx) error {
		return fn(&Tx{ctx: ctx, tx: sqlTx, now: s.nowMillis()})
	})
}

// commitError marks a failure of the COMMIT statement itself.
type commitError struct{ err error }

func (e *commitError) Error() string { return fmt.Sprintf("commit: %v", e.err) }
func (e *commitError) Unwrap() error { return e.err }

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	for failures := 0; ; {
		err := s.runOnce(ctx, fn)
		if err == nil {
			s.committed()
			return nil
		}

		if !IsRetryable(err) {
			if ce, ok := err.(*commitError); ok {
				return fault.Wrap(fault.CodeCommitFailed, ce.err, "transaction commit failed")
			}
			return err
		}

		failures++
		delay, ok := s.retry.NextDelay(failures)
		if !ok {
			return fault.Wrap(fault.CodeCommitFailed, err, "transaction failed after %d attempts", failures)
		}
		if err := sleep(ctx, delay); err != nil {
			return fault.Wrap(fault.CodeCommitFailed, err, "transaction abandoned after %d attempts", failures)
		}
	}
}

func (s *Store) runOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &commitError{err: err}
	}
	return nil
}

// Get reads a document inside the transaction.
func (t *Tx) Get(path string) (Snapshot, error) {
	path, err := CleanPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	return getDocument(t.ctx, t.tx, path)
}

// Set replaces a document, creating it if needed.
func (t *Tx) Set(path string, data value.Object) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	before, err := getDocument(t.ctx, t.tx, path)
	if err != nil {
		return err
	}
	if data == nil {
		data = value.Object{}
	}
	return t.write(before, data)
}

// Update merges fields into an existing document. A field set to Delete is
// removed. Field names are top-level keys.
func (t *Tx) Update(path string, fields map[string]any) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	before, err := getDocument(t.ctx, t.tx, path)
	if err != nil {
		return err
	}
	if !before.Exists {
		return fmt.Errorf("update %s: %w", path, ErrNotFound)
	}

	merged := make(value.Object, len(before.Data)+len(fields))
	for k, v := range before.Data {
		merged[k] = v
	}
	for k, v := range fields {
		if k == "" {
			return fmt.Errorf("update %s: empty field name", path)
		}
		if _, del := v.(fieldDelete); del {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return t.write(before, merged)
}

// Delete removes a document. Deleting a missing document is a no-op.
func (t *Tx) Delete(path string) error {
	path = norm.NFC.String(path)
	collection, _, err := SplitPath(path)
	if err != nil {
		return err
	}
	before, err := getDocument(t.ctx, t.tx, path)
	if err != nil {
		return err
	}
	if !before.Exists {
		return nil
	}

	if _, err := t.recordChange(path, collection, before.Data, nil); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}
	return nil
}

// write stores after as the new content of before.Path and appends the
// change row. Writes that leave the data unchanged are dropped.
func (t *Tx) write(before Snapshot, after value.Object) error {
	if before.Exists && value.Equal(before.Data, after) {
		return nil
	}
	collection, id, err := SplitPath(before.Path)
	if err != nil {
		return err
	}

	var beforeData value.Object
	if before.Exists {
		beforeData = before.Data
	}
	seq, err := t.recordChange(before.Path, collection, beforeData, after)
	if err != nil {
		return err
	}

	data, err := value.Marshal(after)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", before.Path, err)
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (path, collection, id, data, create_seq, update_seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			data = excluded.data,
			update_seq = excluded.update_seq,
			updated_at = excluded.updated_at
	`, before.Path, collection, id, string(data), seq, seq, t.now)
	if err != nil {
		return fmt.Errorf("write document %s: %w", before.Path, err)
	}
	return nil
}

// recordChange appends a change row and returns its seq.
func (t *Tx) recordChange(path, collection string, before, after value.Object) (int64, error) {
	beforeJSON, err := nullableJSON(before)
	if err != nil {
		return 0, fmt.Errorf("encode before image %s: %w", path, err)
	}
	afterJSON, err := nullableJSON(after)
	if err != nil {
		return 0, fmt.Errorf("encode after image %s: %w", path, err)
	}

	result, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO changes (path, collection, before, after, changed_at)
		VALUES (?, ?, ?, ?, ?)
	`, path, collection, beforeJSON, afterJSON, t.now)
	if err != nil {
		return 0, fmt.Errorf("record change %s: %w", path, err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record change %s: last insert id: %w", path, err)
	}
	return seq, nil
}

func nullableJSON(obj value.Object) (any, error) {
	if obj == nil {
		return nil, nil
	}
	data, err := value.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
