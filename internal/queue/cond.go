package queue

import (
	"context"
	"sync"
	"time"
)

// cond is a broadcast condition variable bound to a mutex whose waits can be
// bounded by a timeout and cancelled by a context, which sync.Cond cannot do.
//
// Waiters snapshot the current generation channel while holding the lock;
// broadcast closes it and installs a new one. A waiter can therefore never
// miss a broadcast issued after it released the lock.
type cond struct {
	l  sync.Locker
	ch chan struct{}
}

func newCond(l sync.Locker) *cond {
	return &cond{l: l, ch: make(chan struct{})}
}

// wait releases the lock, blocks until broadcast or ctx is done, and
// reacquires the lock. Must be called with the lock held.
// Wakeups may be spurious; callers re-check their predicate.
func (c *cond) wait(ctx context.Context) error {
	ch := c.ch
	c.l.Unlock()
	defer c.l.Lock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitTimeout is wait bounded by d. Returning nil does not tell the caller
// whether it was woken or timed out; callers track their own deadline.
func (c *cond) waitTimeout(ctx context.Context, d time.Duration) error {
	ch := c.ch
	c.l.Unlock()
	defer c.l.Lock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ch:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// broadcast wakes every current waiter. Must be called with the lock held.
func (c *cond) broadcast() {
	close(c.ch)
	c.ch = make(chan struct{})
}
