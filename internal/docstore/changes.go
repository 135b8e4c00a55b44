package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/docpost/internal/value"
)

// ChangeEvent is one committed mutation: the document before and after.
// At least one side exists.
type ChangeEvent struct {
	Seq    int64
	Before Snapshot
	After  Snapshot
}

// Path returns the path of the changed document.
func (e ChangeEvent) Path() string {
	if e.After.Path != "" {
		return e.After.Path
	}
	return e.Before.Path
}

// ChangeFilter selects change log rows. Empty fields match everything.
type ChangeFilter struct {
	Collection string
	Path       string
}

// DefaultChangeBatch is how many change rows Tail reads per query.
const DefaultChangeBatch = 100

// LatestSeq returns the seq of the newest change row (0 if none).
func (s *Store) LatestSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM changes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest seq: %w", err)
	}
	return seq.Int64, nil
}

// ChangesSince returns up to limit change rows with seq > after, in seq
// order.
func (s *Store) ChangesSince(ctx context.Context, filter ChangeFilter, after int64, limit int) ([]ChangeEvent, error) {
	if limit <= 0 {
		limit = DefaultChangeBatch
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, path, before, after
		FROM changes
		WHERE seq > ?
		  AND (? = '' OR collection = ?)
		  AND (? = '' OR path = ?)
		ORDER BY seq ASC
		LIMIT ?
	`, after, filter.Collection, filter.Collection, filter.Path, filter.Path, limit)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	events := []ChangeEvent{}
	for rows.Next() {
		var (
			ev            ChangeEvent
			path          string
			before, after sql.NullString
		)
		if err := rows.Scan(&ev.Seq, &path, &before, &after); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if ev.Before, err = imageSnapshot(path, before, 0); err != nil {
			return nil, fmt.Errorf("change %d: %w", ev.Seq, err)
		}
		if ev.After, err = imageSnapshot(path, after, ev.Seq); err != nil {
			return nil, fmt.Errorf("change %d: %w", ev.Seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return events, nil
}

func imageSnapshot(path string, image sql.NullString, seq int64) (Snapshot, error) {
	snap := Snapshot{Path: path}
	_, snap.ID, _ = SplitPath(path)
	if !image.Valid {
		return snap, nil
	}
	data, err := value.DecodeObject([]byte(image.String))
	if err != nil {
		return Snapshot{}, err
	}
	snap.Exists = true
	snap.Data = data
	snap.UpdateSeq = seq
	return snap, nil
}

// Tail calls fn for every change matching filter with seq > from, in order,
// then keeps waiting for new changes until ctx is done or fn returns an
// error. Changes committed through this Store wake Tail immediately;
// changes from other processes are picked up every poll interval.
//
// Returns ctx.Err() on cancellation, or the first error from fn or the
// store.
func (s *Store) Tail(ctx context.Context, filter ChangeFilter, from int64, fn func(ChangeEvent) error) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	cursor := from
	for {
		// Grab the signal before querying so a commit landing between the
		// query and the select still wakes us.
		signal := s.commitSignal()

		events, err := s.ChangesSince(ctx, filter, cursor, DefaultChangeBatch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		for _, ev := range events {
			if err := fn(ev); err != nil {
				return err
			}
			cursor = ev.Seq
		}
		if len(events) == DefaultChangeBatch {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-signal:
		case <-ticker.C:
		}
	}
}

// Watch streams changes of a collection with seq > from on the returned
// channel until ctx is done. The error channel receives the error that
// stopped the stream, if it was not cancellation, and both channels are
// closed when the stream ends.
func (s *Store) Watch(ctx context.Context, collection string, from int64) (<-chan ChangeEvent, <-chan error) {
	events := make(chan ChangeEvent)
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		defer close(events)
		err := s.Tail(ctx, ChangeFilter{Collection: norm.NFC.String(collection)}, from, func(ev ChangeEvent) error {
			select {
			case events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			errc <- err
		}
	}()
	return events, errc
}

// OnSnapshot delivers the current snapshot of path to fn, then the new
// snapshot after every change to that path, serially on one goroutine,
// until ctx is done. A missing document is delivered with Exists=false.
//
// The returned channel receives the error that stopped delivery, if it was
// not cancellation, and is closed when delivery stops.
func (s *Store) OnSnapshot(ctx context.Context, path string, fn func(Snapshot)) (<-chan error, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	from, err := s.LatestSeq(ctx)
	if err != nil {
		return nil, err
	}
	first, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		fn(first)
		err := s.Tail(ctx, ChangeFilter{Path: path}, from, func(ev ChangeEvent) error {
			// A change at or before the first read is already reflected.
			if ev.Seq <= first.UpdateSeq {
				return nil
			}
			fn(ev.After)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			done <- err
		}
	}()
	return done, nil
}

// LoadCursor returns the saved change seq for a consumer, and whether one
// was saved.
func (s *Store) LoadCursor(ctx context.Context, consumer string) (int64, bool, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT seq FROM cursors WHERE consumer = ?`, consumer).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load cursor %s: %w", consumer, err)
	}
	return seq, true, nil
}

// SaveCursor records the change seq a consumer has handled. Cursors never
// move backwards.
func (s *Store) SaveCursor(ctx context.Context, consumer string, seq int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cursors (consumer, seq) VALUES (?, ?)
			ON CONFLICT(consumer) DO UPDATE SET seq = MAX(seq, excluded.seq)
		`, consumer, seq)
		if err != nil {
			return fmt.Errorf("save cursor %s: %w", consumer, err)
		}
		return nil
	})
}
