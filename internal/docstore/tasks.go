package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of a queued task.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskDone    TaskState = "done"
	TaskDead    TaskState = "dead"
)

// Task is a leased unit of queued work.
type Task struct {
	ID        string
	Queue     string
	Payload   []byte
	DedupeKey string
	Attempts  int
	LastError string
}

// EnqueueTask adds a task to a queue. When dedupeKey is non-empty and a task
// with the same key already exists (in any state), nothing is inserted and
// the existing task's id is returned with inserted=false.
func (s *Store) EnqueueTask(ctx context.Context, queue string, payload []byte, dedupeKey string, delay time.Duration) (id string, inserted bool, err error) {
	if queue == "" {
		return "", false, fmt.Errorf("enqueue: empty queue name")
	}
	id = uuid.Must(uuid.NewV7()).String()

	var key any
	if dedupeKey != "" {
		key = dedupeKey
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.nowMillis()
		result, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, queue, payload, dedupe_key, state, attempts, available_at, leased_until, last_error, created_at)
			VALUES (?, ?, ?, ?, 'pending', 0, ?, 0, '', ?)
			ON CONFLICT(dedupe_key) DO NOTHING
		`, id, queue, string(payload), key, now+delay.Milliseconds(), now)
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert task: rows affected: %w", err)
		}
		inserted = n > 0
		if inserted {
			return nil
		}
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tasks WHERE dedupe_key = ?`, dedupeKey).Scan(&id); err != nil {
			return fmt.Errorf("lookup duplicate task %s: %w", dedupeKey, err)
		}
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return id, inserted, nil
}

// LeaseTask claims the oldest available pending task of a queue for
// leaseFor. A task whose lease expired without Ack or Release is available
// again. Returns ok=false when nothing is ready.
func (s *Store) LeaseTask(ctx context.Context, queue string, leaseFor time.Duration) (Task, bool, error) {
	var (
		task Task
		ok   bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.nowMillis()
		var (
			payload string
			key     sql.NullString
		)
		err := tx.QueryRowContext(ctx, `
			SELECT id, queue, payload, dedupe_key, attempts, last_error
			FROM tasks
			WHERE queue = ? AND state = 'pending' AND available_at <= ? AND leased_until <= ?
			ORDER BY available_at ASC, created_at ASC, id ASC
			LIMIT 1
		`, queue, now, now).Scan(&task.ID, &task.Queue, &payload, &key, &task.Attempts, &task.LastError)
		if errors.Is(err, sql.ErrNoRows) {
			ok = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("select task: %w", err)
		}

		task.Attempts++
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET attempts = ?, leased_until = ? WHERE id = ?
		`, task.Attempts, now+leaseFor.Milliseconds(), task.ID); err != nil {
			return fmt.Errorf("lease task %s: %w", task.ID, err)
		}
		task.Payload = []byte(payload)
		task.DedupeKey = key.String
		ok = true
		return nil
	})
	if err != nil {
		return Task{}, false, err
	}
	return task, ok, nil
}

// AckTask marks a task done.
func (s *Store) AckTask(ctx context.Context, id string) error {
	return s.setTaskState(ctx, id, TaskDone, 0, "")
}

// ReleaseTask returns a leased task to the queue, available again after
// delay, recording why it failed.
func (s *Store) ReleaseTask(ctx context.Context, id string, delay time.Duration, lastError string) error {
	return s.setTaskState(ctx, id, TaskPending, delay, lastError)
}

// DeadLetterTask parks a task that will not be retried.
func (s *Store) DeadLetterTask(ctx context.Context, id string, lastError string) error {
	return s.setTaskState(ctx, id, TaskDead, 0, lastError)
}

func (s *Store) setTaskState(ctx context.Context, id string, state TaskState, delay time.Duration, lastError string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.nowMillis()
		result, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET state = ?, available_at = ?, leased_until = 0, last_error = ?
			WHERE id = ?
		`, string(state), now+delay.Milliseconds(), lastError, id)
		if err != nil {
			return fmt.Errorf("set task %s %s: %w", id, state, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("set task %s %s: rows affected: %w", id, state, err)
		}
		if n == 0 {
			return fmt.Errorf("set task %s %s: task not found", id, state)
		}
		return nil
	})
}

// TaskCounts is the number of tasks per state in one queue.
type TaskCounts struct {
	Pending int `json:"pending"`
	Done    int `json:"done"`
	Dead    int `json:"dead"`
}

// CountTasks returns task counts per state for a queue.
func (s *Store) CountTasks(ctx context.Context, queue string) (TaskCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, COUNT(*) FROM tasks WHERE queue = ? GROUP BY state
	`, queue)
	if err != nil {
		return TaskCounts{}, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	var counts TaskCounts
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return TaskCounts{}, fmt.Errorf("scan task count: %w", err)
		}
		switch TaskState(state) {
		case TaskPending:
			counts.Pending = n
		case TaskDone:
			counts.Done = n
		case TaskDead:
			counts.Dead = n
		}
	}
	if err := rows.Err(); err != nil {
		return TaskCounts{}, fmt.Errorf("iterate task counts: %w", err)
	}
	return counts, nil
}
