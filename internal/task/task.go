package task

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Task is a unit of schedulable, mergeable work.
//
// Two tasks whose Key values are equal are the same logical unit of work: the
// queue never runs them concurrently and folds later submissions into the
// instance that is already pending or running. Key must return the same value
// for the whole life of the task.
//
// Implementations embed Base to get the cancellation flag.
type Task interface {
	// Key identifies the logical unit of work. It is the dedup key.
	Key() string

	// Execute performs the task's effect. It is not called for a cancelled task.
	Execute(ctx context.Context) error

	// Merge folds the state of a newer duplicate into this task.
	// The duplicate is cancelled and discarded afterwards.
	Merge(other Task)

	// Finish is the completion callback. It is called once per task claimed
	// from the queue, after the task left the running set, on the worker
	// goroutine.
	Finish()

	// Cancel marks the task cancelled. Only the queue calls it, when the task
	// loses a merge.
	Cancel()

	// Cancelled reports whether Cancel was called.
	Cancelled() bool
}

// Base carries the cancellation flag. Embed it in Task implementations.
// The flag is set once and never reset.
type Base struct {
	cancelled atomic.Bool
}

// Cancel marks the task cancelled.
func (b *Base) Cancel() {
	b.cancelled.Store(true)
}

// Cancelled reports whether the task was cancelled.
func (b *Base) Cancelled() bool {
	return b.cancelled.Load()
}

// Func is a Task assembled from closures. Nil closures are no-ops.
//
// It is handy for callers whose merge step does not need to look inside the
// duplicate, and for tests.
type Func struct {
	Base

	ID        string
	ExecuteFn func(ctx context.Context) error
	MergeFn   func(other Task)
	FinishFn  func()
}

// NewFunc creates a Func task keyed by id that runs fn.
func NewFunc(id string, fn func(ctx context.Context) error) *Func {
	return &Func{ID: id, ExecuteFn: fn}
}

// Key returns the task id.
func (f *Func) Key() string { return f.ID }

// Execute runs ExecuteFn.
func (f *Func) Execute(ctx context.Context) error {
	if f.ExecuteFn == nil {
		return nil
	}
	return f.ExecuteFn(ctx)
}

// Merge runs MergeFn.
func (f *Func) Merge(other Task) {
	if f.MergeFn != nil {
		f.MergeFn(other)
	}
}

// Finish runs FinishFn.
func (f *Func) Finish() {
	if f.FinishFn != nil {
		f.FinishFn()
	}
}

func (f *Func) String() string {
	return fmt.Sprintf("Func{%s}", f.ID)
}

// Describe returns a short human-readable label for t, used in logs and errors.
func Describe(t Task) string {
	if t == nil {
		return "<nil>"
	}
	if s, ok := t.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T{%s}", t, t.Key())
}

// SameInstance reports whether a and b are the same task value, not merely the
// same logical unit of work.
func SameInstance(a, b Task) bool {
	return a == b
}
