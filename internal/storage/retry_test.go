package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/fsindex/pkg/types"
)

// flakyBackend fails the first n bulk writes
type flakyBackend struct {
	Backend
	failures int
	calls    int
	err      error
}

func (f *flakyBackend) BulkWrite(ctx context.Context, index string, docs []types.Document) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyBackend) DeleteByQuery(ctx context.Context, index string, timeLessThan int64) (int64, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, f.err
	}
	return 3, nil
}

// timeoutError is a transient failure reporting Timeout
type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
		Multiplier: 2,
	}
}

func TestRetryingBackend_RecoversFromTransientErrors(t *testing.T) {
	flaky := &flakyBackend{failures: 2, err: timeoutError{}}
	r := NewRetryingBackend(flaky, fastRetry(5), nil)

	require.NoError(t, r.BulkWrite(context.Background(), "files", nil))
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingBackend_ReturnsValue(t *testing.T) {
	flaky := &flakyBackend{failures: 1, err: fmt.Errorf("delete: %w", types.ErrBackendUnavailable)}
	r := NewRetryingBackend(flaky, fastRetry(3), nil)

	deleted, err := r.DeleteByQuery(context.Background(), "files", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestRetryingBackend_Exhausted(t *testing.T) {
	cause := timeoutError{}
	flaky := &flakyBackend{failures: 100, err: cause}
	r := NewRetryingBackend(flaky, fastRetry(4), nil)

	err := r.BulkWrite(context.Background(), "files", nil)
	require.Error(t, err)
	assert.Equal(t, 4, flaky.calls)
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestRetryingBackend_PermanentErrorNotRetried(t *testing.T) {
	flaky := &flakyBackend{failures: 100, err: ErrNotFound}
	r := NewRetryingBackend(flaky, fastRetry(4), nil)

	err := r.BulkWrite(context.Background(), "files", nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, flaky.calls)
}

func TestRetryingBackend_ContextCancelled(t *testing.T) {
	flaky := &flakyBackend{failures: 100, err: timeoutError{}}
	r := NewRetryingBackend(flaky, RetryConfig{MaxRetries: 10, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.BulkWrite(ctx, "files", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, flaky.calls)
}

func TestRetryingBackend_LogicErrorNotRetried(t *testing.T) {
	backend := setupTestDB(t)
	_, logicErr := backend.db.Exec("SELECT * FROM no_such_table")
	require.Error(t, logicErr)

	flaky := &flakyBackend{failures: 100, err: fmt.Errorf("failed to write batch: %w", logicErr)}
	r := NewRetryingBackend(flaky, fastRetry(10), nil)

	err := r.BulkWrite(context.Background(), "files", nil)
	assert.ErrorIs(t, err, logicErr)
	assert.NotErrorIs(t, err, types.ErrBackendUnavailable)
	assert.Equal(t, 1, flaky.calls)
}

// lockedDatabaseError returns the driver's error for a write attempted while
// another connection holds the write lock
func lockedDatabaseError(t *testing.T) error {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "locked.db")

	holder, err := openDatabase(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = holder.Close() })
	conn, err := holder.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE")
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = conn.ExecContext(ctx, "ROLLBACK") })

	waiter, err := openDatabase(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = waiter.Close() })
	_, err = waiter.Exec("PRAGMA busy_timeout=0")
	require.NoError(t, err)

	_, err = waiter.Exec("BEGIN IMMEDIATE")
	require.Error(t, err)
	return err
}

func TestIsRetryable(t *testing.T) {
	backend := setupTestDB(t)
	_, logicErr := backend.db.Exec("SELECT * FROM no_such_table")
	require.Error(t, logicErr)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), false},
		{"not found", ErrNotFound, false},
		{"invalid mapping", ErrInvalidMapping, false},
		{"plain error", errors.New("constraint failed"), false},
		{"sql logic error", logicErr, false},
		{"wrapped sql logic error", fmt.Errorf("failed to search: %w", logicErr), false},
		{"backend unavailable", fmt.Errorf("refresh: %w", types.ErrBackendUnavailable), true},
		{"timeout", timeoutError{}, true},
		{"database locked", lockedDatabaseError(t), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
