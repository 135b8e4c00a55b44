package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docpost/internal/fault"
	"github.com/roach88/docpost/internal/value"
)

var errBusy = sqlite3.Error{Code: sqlite3.ErrBusy}

func TestRunTransaction_AtomicMultiWrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RunTransaction(ctx, func(tx *Tx) error {
		if err := tx.Set("posts/a", value.Object{"v": 1}); err != nil {
			return err
		}
		return tx.Set("posts/b", value.Object{"v": 2})
	}))

	a, err := s.Get(ctx, "posts/a")
	require.NoError(t, err)
	b, err := s.Get(ctx, "posts/b")
	require.NoError(t, err)
	assert.True(t, a.Exists)
	assert.True(t, b.Exists)
}

func TestRunTransaction_ErrorRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunTransaction(ctx, func(tx *Tx) error {
		if err := tx.Set("posts/a", value.Object{"v": 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, fault.Is(err, fault.CodeCommitFailed))

	snap, err := s.Get(ctx, "posts/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	seq, err := s.LatestSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq, "rolled back transaction must not leave change rows")
}

func TestRunTransaction_ReadsOwnWrites(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.RunTransaction(context.Background(), func(tx *Tx) error {
		if err := tx.Set("posts/a", value.Object{"v": "x"}); err != nil {
			return err
		}
		snap, err := tx.Get("posts/a")
		if err != nil {
			return err
		}
		if !snap.Exists || snap.Data["v"] != "x" {
			return errors.New("write not visible inside transaction")
		}
		return nil
	}))
}

func TestRunTransaction_RetriesBusy(t *testing.T) {
	s := setupTestStore(t, WithRetryPolicy(fastRetry(5)))
	ctx := context.Background()

	attempts := 0
	err := s.RunTransaction(ctx, func(tx *Tx) error {
		attempts++
		if attempts < 3 {
			return errBusy
		}
		return tx.Set("posts/a", value.Object{"attempt": attempts})
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	snap, err := s.Get(ctx, "posts/a")
	require.NoError(t, err)
	assert.Equal(t, json.Number("3"), snap.Data["attempt"])
}

func TestRunTransaction_BudgetExhausted(t *testing.T) {
	s := setupTestStore(t, WithRetryPolicy(fastRetry(3)))

	attempts := 0
	err := s.RunTransaction(context.Background(), func(tx *Tx) error {
		attempts++
		return errBusy
	})
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeCommitFailed))
	assert.True(t, IsRetryable(err), "cause should be preserved")
	assert.Equal(t, 3, attempts)
}

func TestRunTransaction_CancelledDuringBackoff(t *testing.T) {
	s := setupTestStore(t, WithRetryPolicy(RetryPolicy{
		MaxAttempts:  10,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   1,
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.RunTransaction(ctx, func(tx *Tx) error { return errBusy })
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodeCommitFailed))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, InitialDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond, Multiplier: 2}

	tests := []struct {
		failures int
		delay    time.Duration
		ok       bool
	}{
		{1, 10 * time.Millisecond, true},
		{2, 20 * time.Millisecond, true},
		{3, 25 * time.Millisecond, true}, // capped
		{4, 0, false},
	}
	for _, tt := range tests {
		delay, ok := p.NextDelay(tt.failures)
		assert.Equal(t, tt.ok, ok, "failures=%d", tt.failures)
		assert.Equal(t, tt.delay, delay, "failures=%d", tt.failures)
	}

	_, ok := RetryPolicy{}.NextDelay(1)
	assert.False(t, ok, "zero policy allows a single attempt")
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errBusy))
	assert.True(t, IsRetryable(sqlite3.Error{Code: sqlite3.ErrLocked}))
	assert.False(t, IsRetryable(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, IsRetryable(errors.New("other")))
	assert.False(t, IsRetryable(nil))
}
