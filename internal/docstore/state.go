package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ProcessingState is the user-visible status of the existing-documents
// pass for one instance.
type ProcessingState struct {
	Instance  string
	State     string
	Message   string
	UpdatedAt time.Time
}

// SetProcessingState records the status of an instance, replacing any
// previous status.
func (s *Store) SetProcessingState(ctx context.Context, instance, state, message string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO processing_state (instance, state, message, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(instance) DO UPDATE SET
				state = excluded.state,
				message = excluded.message,
				updated_at = excluded.updated_at
		`, instance, state, message, s.nowMillis())
		if err != nil {
			return fmt.Errorf("set processing state %s: %w", instance, err)
		}
		return nil
	})
}

// GetProcessingState returns the recorded status of an instance, and
// whether one was recorded.
func (s *Store) GetProcessingState(ctx context.Context, instance string) (ProcessingState, bool, error) {
	ps := ProcessingState{Instance: instance}
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT state, message, updated_at FROM processing_state WHERE instance = ?
	`, instance).Scan(&ps.State, &ps.Message, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProcessingState{}, false, nil
	}
	if err != nil {
		return ProcessingState{}, false, fmt.Errorf("get processing state %s: %w", instance, err)
	}
	ps.UpdatedAt = time.UnixMilli(updatedAt)
	return ps, true, nil
}

// PageResult is the recorded outcome of one backfill page.
type PageResult struct {
	JobID        string
	Offset       int
	Size         int
	SuccessCount int
	ErrorCount   int
}

// RecordBackfillPage stores the outcome of a page the first time it is
// reported. A page already recorded keeps its original counts; the stored
// result is returned either way.
func (s *Store) RecordBackfillPage(ctx context.Context, page PageResult) (PageResult, error) {
	var stored PageResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backfill_pages (job_id, page_offset, page_size, success_count, error_count, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(job_id, page_offset) DO NOTHING
		`, page.JobID, page.Offset, page.Size, page.SuccessCount, page.ErrorCount, s.nowMillis())
		if err != nil {
			return fmt.Errorf("record backfill page %s@%d: %w", page.JobID, page.Offset, err)
		}
		stored, _, err = scanBackfillPage(ctx, tx, page.JobID, page.Offset)
		return err
	})
	if err != nil {
		return PageResult{}, err
	}
	return stored, nil
}

// GetBackfillPage returns the recorded outcome of a page, and whether it was
// recorded.
func (s *Store) GetBackfillPage(ctx context.Context, jobID string, offset int) (PageResult, bool, error) {
	return scanBackfillPage(ctx, s.db, jobID, offset)
}

func scanBackfillPage(ctx context.Context, q queryer, jobID string, offset int) (PageResult, bool, error) {
	page := PageResult{JobID: jobID, Offset: offset}
	err := q.QueryRowContext(ctx, `
		SELECT page_size, success_count, error_count
		FROM backfill_pages WHERE job_id = ? AND page_offset = ?
	`, jobID, offset).Scan(&page.Size, &page.SuccessCount, &page.ErrorCount)
	if errors.Is(err, sql.ErrNoRows) {
		return PageResult{}, false, nil
	}
	if err != nil {
		return PageResult{}, false, fmt.Errorf("get backfill page %s@%d: %w", jobID, offset, err)
	}
	return page, true, nil
}
