// Package scheduler repeats synchronization runs on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dshills/fsindex/internal/indexer"
	"github.com/dshills/fsindex/pkg/types"
)

// State is the state of the scheduler's current cycle
type State = indexer.Phase

// Scheduler states
const (
	Idle        = indexer.PhaseIdle
	Preparing   = indexer.PhasePreparing
	Walking     = indexer.PhaseWalking
	Reconciling = indexer.PhaseReconciling
)

// Runner performs a single synchronization cycle
type Runner interface {
	Run(ctx context.Context) (*indexer.RunStats, error)
	Phase() indexer.Phase
}

// Scheduler drives a Runner in one-shot or daemon mode
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	runs    atomic.Int64
	nextRun atomic.Int64 // Unix nanoseconds, 0 while a run is active
}

// New creates a Scheduler sleeping interval between two runs
func New(runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, interval: interval, logger: logger}
}

// State reports the state of the current cycle, Idle between runs
func (s *Scheduler) State() State {
	return s.runner.Phase()
}

// Interval returns the sleep between two runs
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Runs returns the number of completed cycles
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// NextRun returns when the next cycle starts. It is zero unless the
// scheduler is sleeping.
func (s *Scheduler) NextRun() time.Time {
	n := s.nextRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// RunOnce executes exactly one cycle
func (s *Scheduler) RunOnce(ctx context.Context) (*indexer.RunStats, error) {
	stats, err := s.runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	s.runs.Add(1)
	return stats, nil
}

// Run repeats cycles until ctx is cancelled or a cycle fails. The first
// failure is returned unchanged; there is no automatic restart. Cancellation
// while sleeping is a clean shutdown and returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", types.ErrInvalidConfig, s.interval)
	}

	s.logger.Info("starting daemon mode", slog.Duration("wait_time", s.interval))

	for {
		if ctx.Err() != nil {
			s.logger.Info("daemon stopped")
			return nil
		}
		if _, err := s.RunOnce(ctx); err != nil {
			return err
		}

		next := time.Now().Add(s.interval)
		s.nextRun.Store(next.UnixNano())
		s.logger.Info("waiting for next run",
			slog.Duration("wait_time", s.interval),
			slog.Time("next_run", next))

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.nextRun.Store(0)
			s.logger.Info("daemon stopped")
			return nil
		case <-timer.C:
			s.nextRun.Store(0)
		}
	}
}
