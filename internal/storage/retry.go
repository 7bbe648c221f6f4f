package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/fsindex/pkg/types"
)

// Retry defaults, matching the retry budget of the original Elasticsearch client
const (
	DefaultMaxRetries        = 10
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 10 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// RetryConfig configures exponential backoff retry behavior
type RetryConfig struct {
	MaxRetries int           // Maximum number of attempts
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
	Multiplier float64       // Exponential backoff multiplier
}

// DefaultRetryConfig returns sensible defaults for backend retry
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultInitialBackoff,
		MaxDelay:   DefaultMaxBackoff,
		Multiplier: DefaultBackoffMultiplier,
	}
}

// RetryingBackend wraps a Backend with the client-side retry policy. The
// synchronization engine never retries on its own: once this policy is
// exhausted the error is final.
type RetryingBackend struct {
	next   Backend
	config RetryConfig
	logger *slog.Logger
}

// NewRetryingBackend wraps next with the given retry policy
func NewRetryingBackend(next Backend, config RetryConfig, logger *slog.Logger) *RetryingBackend {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingBackend{next: next, config: config, logger: logger}
}

// Unwrap returns the wrapped backend
func (r *RetryingBackend) Unwrap() Backend {
	return r.next
}

func (r *RetryingBackend) EnsureIndex(ctx context.Context, index string, mapping *Mapping) error {
	return r.do(ctx, "ensure_index", func() error {
		return r.next.EnsureIndex(ctx, index, mapping)
	})
}

func (r *RetryingBackend) Refresh(ctx context.Context, index string) error {
	return r.do(ctx, "refresh", func() error {
		return r.next.Refresh(ctx, index)
	})
}

func (r *RetryingBackend) Status(ctx context.Context, index string) (*IndexStatus, error) {
	return retryWithBackoff(ctx, r, "status", func() (*IndexStatus, error) {
		return r.next.Status(ctx, index)
	})
}

func (r *RetryingBackend) SetQueryLog(ctx context.Context, index string, enabled bool) error {
	return r.do(ctx, "set_query_log", func() error {
		return r.next.SetQueryLog(ctx, index, enabled)
	})
}

func (r *RetryingBackend) BulkWrite(ctx context.Context, index string, docs []types.Document) error {
	return r.do(ctx, "bulk_write", func() error {
		return r.next.BulkWrite(ctx, index, docs)
	})
}

func (r *RetryingBackend) DeleteByQuery(ctx context.Context, index string, timeLessThan int64) (int64, error) {
	return retryWithBackoff(ctx, r, "delete_by_query", func() (int64, error) {
		return r.next.DeleteByQuery(ctx, index, timeLessThan)
	})
}

func (r *RetryingBackend) Get(ctx context.Context, index string, id string) (*types.Document, error) {
	return retryWithBackoff(ctx, r, "get", func() (*types.Document, error) {
		return r.next.Get(ctx, index, id)
	})
}

func (r *RetryingBackend) Search(ctx context.Context, index string, query Query) (*types.SearchResult, error) {
	return retryWithBackoff(ctx, r, "search", func() (*types.SearchResult, error) {
		return r.next.Search(ctx, index, query)
	})
}

func (r *RetryingBackend) Close() error {
	return r.next.Close()
}

func (r *RetryingBackend) do(ctx context.Context, op string, fn func() error) error {
	_, err := retryWithBackoff(ctx, r, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// IsRetryable reports whether err may succeed when the call is repeated.
// Only transient conditions qualify: a busy or locked database, an I/O
// failure, a timeout or an unavailable backend. Logic and constraint errors
// fail the same way every time and are returned at once.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidMapping):
		return false
	case errors.Is(err, types.ErrBackendUnavailable):
		return true
	case transientDriverError(err):
		return true
	}

	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

// retryWithBackoff executes fn with exponential backoff. Retry is skipped on
// context cancellation and on errors that cannot succeed on a second attempt.
func retryWithBackoff[T any](ctx context.Context, r *RetryingBackend, op string, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := r.config.BaseDelay

	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !IsRetryable(err) {
			return zero, err
		}

		if attempt < r.config.MaxRetries-1 {
			r.logger.Warn("backend call failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()))

			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * r.config.Multiplier)
				if backoff > r.config.MaxDelay {
					backoff = r.config.MaxDelay
				}
			}
		}
	}

	return zero, fmt.Errorf("%w: %s failed after %d attempts: %w",
		types.ErrBackendUnavailable, op, r.config.MaxRetries, lastErr)
}
