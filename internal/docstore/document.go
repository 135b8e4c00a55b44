package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/docpost/internal/value"
)

// ErrNotFound is returned by Update on a document that does not exist.
var ErrNotFound = errors.New("document not found")

// fieldDelete marks a field for removal in Update.
type fieldDelete struct{}

// Delete is the Update field value that removes the field.
var Delete any = fieldDelete{}

// Snapshot is the state of one document at a point in the change log.
type Snapshot struct {
	Path   string
	ID     string
	Exists bool
	Data   value.Object

	// UpdateSeq is the change seq of the last mutation (0 if missing).
	UpdateSeq int64
}

// Field returns a top-level field of the document.
func (s Snapshot) Field(name string) (any, bool) {
	if !s.Exists || s.Data == nil {
		return nil, false
	}
	v, ok := s.Data[name]
	return v, ok
}

// Get reads a single document. A missing document is returned with
// Exists=false and no error.
func (s *Store) Get(ctx context.Context, path string) (Snapshot, error) {
	path, err := CleanPath(path)
	if err != nil {
		return Snapshot{}, err
	}
	return getDocument(ctx, s.db, path)
}

// Page returns up to limit documents of a collection, skipping offset,
// in the store's default order (document id, binary collation).
//
// Returns an empty slice (not nil) when the page is empty.
func (s *Store) Page(ctx context.Context, collection string, offset, limit int) ([]Snapshot, error) {
	collection, err := CleanCollection(collection)
	if err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("invalid page: offset=%d limit=%d", offset, limit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, id, data, update_seq
		FROM documents
		WHERE collection = ?
		ORDER BY id COLLATE BINARY ASC
		LIMIT ? OFFSET ?
	`, collection, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	defer rows.Close()

	docs := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		var data string
		if err := rows.Scan(&snap.Path, &snap.ID, &data, &snap.UpdateSeq); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if snap.Data, err = value.DecodeObject([]byte(data)); err != nil {
			return nil, fmt.Errorf("document %s: %w", snap.Path, err)
		}
		snap.Exists = true
		docs = append(docs, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page: %w", err)
	}
	return docs, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE collection = ?`, norm.NFC.String(collection)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Set replaces a document, creating it if needed.
func (s *Store) Set(ctx context.Context, path string, data value.Object) error {
	return s.RunTransaction(ctx, func(tx *Tx) error {
		return tx.Set(path, data)
	})
}

// Update merges fields into an existing document.
// Returns ErrNotFound (wrapped) if the document does not exist.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.RunTransaction(ctx, func(tx *Tx) error {
		return tx.Update(path, fields)
	})
}

// DeleteDocument removes a document. Deleting a missing document is a no-op.
func (s *Store) DeleteDocument(ctx context.Context, path string) error {
	return s.RunTransaction(ctx, func(tx *Tx) error {
		return tx.Delete(path)
	})
}

// Add creates a document with a generated UUIDv7 id and returns its path.
func (s *Store) Add(ctx context.Context, collection string, data value.Object) (string, error) {
	collection, err := CleanCollection(collection)
	if err != nil {
		return "", err
	}
	path := Join(collection, uuid.Must(uuid.NewV7()).String())
	if err := s.Set(ctx, path, data); err != nil {
		return "", err
	}
	return path, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, path string) (Snapshot, error) {
	snap := Snapshot{Path: path}
	_, snap.ID, _ = SplitPath(path)

	var data string
	err := q.QueryRowContext(ctx, `
		SELECT data, update_seq FROM documents WHERE path = ?
	`, path).Scan(&data, &snap.UpdateSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read document %s: %w", path, err)
	}

	if snap.Data, err = value.DecodeObject([]byte(data)); err != nil {
		return Snapshot{}, fmt.Errorf("document %s: %w", path, err)
	}
	snap.Exists = true
	return snap, nil
}
