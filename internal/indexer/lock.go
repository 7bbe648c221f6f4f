package indexer

import "context"

// IndexLock serializes runs against one index. TryAcquire never blocks, so
// a manually triggered run can be refused while a scheduled run is active.
type IndexLock struct {
	ch chan struct{}
}

// NewIndexLock returns an unlocked lock
func NewIndexLock() *IndexLock {
	return &IndexLock{ch: make(chan struct{}, 1)}
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until the lock is acquired or ctx is done
func (l *IndexLock) Acquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	<-l.ch
}
