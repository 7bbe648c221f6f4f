package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/fsindex/internal/storage"
	"github.com/dshills/fsindex/pkg/types"
)

// Reconciler removes documents that were not refreshed by the latest run
type Reconciler struct {
	backend storage.Backend
	index   string
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler for index
func NewReconciler(backend storage.Backend, index string, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{backend: backend, index: index, logger: logger}
}

// Reconcile refreshes the index and then deletes every document stamped
// before epoch-1. It must only be called after a walk for epoch completed
// and its last batch was flushed. No deletion is attempted when the refresh
// fails.
func (r *Reconciler) Reconcile(ctx context.Context, epoch int64) (int64, error) {
	r.logger.Info("refreshing index", slog.String("index", r.index))
	if err := r.backend.Refresh(ctx, r.index); err != nil {
		return 0, backendError("refresh index "+r.index, err)
	}

	r.logger.Info("deleting stale documents",
		slog.String("index", r.index),
		slog.Int64("time_lt", types.StaleBefore(epoch)))
	deleted, err := r.backend.DeleteByQuery(ctx, r.index, types.StaleBefore(epoch))
	if err != nil {
		return 0, backendError("delete stale documents of "+r.index, err)
	}
	return deleted, nil
}

// backendError tags err as a backend failure unless it already is one
func backendError(op string, err error) error {
	if errors.Is(err, types.ErrBackendUnavailable) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return fmt.Errorf("%w: failed to %s: %w", types.ErrBackendUnavailable, op, err)
}
