package pipeline

import "sync/atomic"

// BatchLock provides non-blocking lock semantics using atomic operations.
// A coordinator holds it for the duration of one batch.
type BatchLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *BatchLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *BatchLock) Release() {
	l.state.Store(0)
}
