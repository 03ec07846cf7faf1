// Package lock provides per-user mutual exclusion for read-modify-write
// sequences on a user's progression, such as the daily reset.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// userMutex is a one-slot semaphore plus the number of goroutines holding
// or waiting for it. The entry is dropped once nobody references it.
type userMutex struct {
	sem  chan struct{}
	refs int
}

// UserLock serializes work per user ID.
type UserLock struct {
	mu    sync.Mutex
	locks map[int64]*userMutex
}

// NewUserLock creates a new UserLock instance.
func NewUserLock() *UserLock {
	return &UserLock{locks: make(map[int64]*userMutex)}
}

func (ul *UserLock) ref(userID int64) *userMutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	m, ok := ul.locks[userID]
	if !ok {
		m = &userMutex{sem: make(chan struct{}, 1)}
		ul.locks[userID] = m
	}
	m.refs++
	return m
}

func (ul *UserLock) unref(userID int64, m *userMutex) {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	m.refs--
	if m.refs == 0 {
		delete(ul.locks, userID)
	}
}

// Lock blocks until the user's lock is held or ctx is done.
func (ul *UserLock) Lock(ctx context.Context, userID int64) error {
	m := ul.ref(userID)
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		ul.unref(userID, m)
		return ctx.Err()
	}
}

// Unlock releases the user's lock. Unlocking a lock that is not held is a no-op.
func (ul *UserLock) Unlock(userID int64) {
	ul.mu.Lock()
	m, ok := ul.locks[userID]
	ul.mu.Unlock()
	if !ok {
		return
	}

	select {
	case <-m.sem:
		ul.unref(userID, m)
	default:
	}
}

// TryLock attempts to acquire the lock without blocking.
func (ul *UserLock) TryLock(userID int64) bool {
	m := ul.ref(userID)
	select {
	case m.sem <- struct{}{}:
		return true
	default:
		ul.unref(userID, m)
		return false
	}
}

// LockWithTimeout is Lock bounded by timeout. It returns ErrLockTimeout
// when the timeout elapses first.
func (ul *UserLock) LockWithTimeout(ctx context.Context, userID int64, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := ul.Lock(timeoutCtx, userID)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrLockTimeout
	}
	return err
}

// WithLock runs fn while holding the user's lock.
func (ul *UserLock) WithLock(ctx context.Context, userID int64, fn func() error) error {
	if err := ul.Lock(ctx, userID); err != nil {
		return err
	}
	defer ul.Unlock(userID)
	return fn()
}

// IsLocked reports whether the user's lock is currently held.
// The answer may be stale by the time it is read.
func (ul *UserLock) IsLocked(userID int64) bool {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	m, ok := ul.locks[userID]
	return ok && len(m.sem) == 1
}

// Tracked returns how many users currently have a lock entry.
func (ul *UserLock) Tracked() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.locks)
}
