// Package lock provides the exclusive, bounded-wait locks that serialize
// document ID allocation and legacy scratch-sheet work.
//
// Two implementations exist: Local for a single process and Redis for
// several renderers sharing one record table.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTimeout is returned when a lock could not be acquired within the wait.
var ErrTimeout = errors.New("lock acquisition timed out")

// DefaultWait bounds lock acquisition when callers pass zero.
const DefaultWait = 30 * time.Second

// Locker acquires named exclusive locks. The returned release function is
// idempotent and must be called exactly once on every path, usually deferred.
type Locker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (release func(), err error)
}

// Compile-time interface checks.
var (
	_ Locker = (*Local)(nil)
	_ Locker = (*Redis)(nil)
)

// Local is an in-process Locker keyed by name.
type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocal creates an empty in-process Locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire blocks until key is free, wait elapses or ctx is done.
func (l *Local) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	if wait <= 0 {
		wait = DefaultWait
	}
	ch := l.slot(key)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("%w: %q after %s", ErrTimeout, key, wait)
	case <-ctx.Done():
		return nil, waitErr(ctx, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}

// waitErr reports why a wait on key ended early. A caller deadline that
// expires during the wait is a lock timeout; cancellation is passed through.
func waitErr(ctx context.Context, key string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %q: %w", ErrTimeout, key, ctx.Err())
	}
	return ctx.Err()
}

// Held reports whether key is currently locked. Intended for tests and
// diagnostics only; the answer may be stale immediately.
func (l *Local) Held(key string) bool {
	return len(l.slot(key)) == 1
}
