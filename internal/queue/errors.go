package queue

import "errors"

var (
	// ErrInvalidArgument is returned for nil tasks, non-task submissions and
	// a queue asked to drain into itself.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIllegalState is returned when running-set bookkeeping does not match
	// the task being finished, or an iterator is used out of order.
	ErrIllegalState = errors.New("illegal state")

	// ErrConcurrentModification is returned by an Iterator when the pending
	// set was structurally changed by someone other than the iterator.
	ErrConcurrentModification = errors.New("pending set modified during iteration")

	// ErrNoSuchElement is returned by Iterator.Next past the last task.
	ErrNoSuchElement = errors.New("no more pending tasks")

	// ErrInterrupted wraps the context error when a blocking wait is cancelled.
	// The queue is left exactly as it was before the wait.
	ErrInterrupted = errors.New("wait interrupted")

	// ErrClosed is returned by Submit after Close, and by Take and Poll once a
	// closed queue has no pending tasks left.
	ErrClosed = errors.New("queue closed")
)
