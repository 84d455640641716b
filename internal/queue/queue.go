package queue

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/steveyegge/mergeq/internal/events"
	"github.com/steveyegge/mergeq/internal/task"
)

// Queue is a blocking work queue that never holds two tasks with the same key.
//
// It keeps two disjoint sets: pending (submitted, not yet claimed) and running
// (claimed by a worker, not yet finished). A submission whose key matches a
// pending or running task is merged into that task and discarded. One mutex
// guards both sets, so merges and pending → running transitions are atomic
// with respect to each other.
//
// Merge is called with the queue lock held. Merge implementations must not
// call back into the queue.
type Queue struct {
	mu      sync.Mutex
	cond    *cond
	pending *pendingList
	running map[string]task.Task
	closed  bool

	logger *slog.Logger
	sink   events.Sink
}

// Option configures a Queue.
type Option func(*Queue)

// WithOrder sets the claim order of pending tasks. The default is FIFO.
func WithOrder(order Order) Option {
	return func(q *Queue) {
		q.pending = newPendingList(order)
	}
}

// WithLogger sets the logger used for debug tracing of queue operations.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithSink sets where queue-level events (submitted, merged, claimed, removed) go.
func WithSink(sink events.Sink) Option {
	return func(q *Queue) {
		if sink != nil {
			q.sink = sink
		}
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		pending: newPendingList(FIFO),
		running: make(map[string]task.Task),
		logger:  slog.New(slog.DiscardHandler),
		sink:    events.NopSink{},
	}
	q.cond = newCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Order returns the claim order of pending tasks.
func (q *Queue) Order() Order {
	return q.pending.order
}

// Submit adds t to the queue, or merges it into the pending or running task
// with the same key. A merged t is cancelled and must not be used again.
// Submit never blocks.
func (q *Queue) Submit(t task.Task) error {
	if t == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidArgument)
	}
	key := t.Key()
	q.logger.Debug("submit", "key", key)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("submit %s: %w", key, ErrClosed)
	}
	wasEmpty := q.pending.len() == 0
	event := q.enqueueLocked(t)
	if wasEmpty && q.pending.len() > 0 {
		q.cond.broadcast()
	}
	q.mu.Unlock()

	q.emit(event)
	return nil
}

// enqueueLocked applies the merge-or-insert rule. Running takes precedence
// over pending; the sets are disjoint so at most one of them matches.
func (q *Queue) enqueueLocked(t task.Task) *events.Event {
	key := t.Key()
	if running, ok := q.running[key]; ok {
		running.Merge(t)
		t.Cancel()
		return q.mergedEvent(key, "running", "submit")
	}
	if pending := q.pending.find(key); pending != nil {
		pending.Merge(t)
		t.Cancel()
		return q.mergedEvent(key, "pending", "submit")
	}
	q.pending.put(t)
	return events.NewSubmittedEvent(key)
}

// dequeueLocked moves the next pending task to running.
// The caller guarantees pending is not empty.
func (q *Queue) dequeueLocked() task.Task {
	t := q.pending.get()
	q.running[t.Key()] = t
	return t
}

// claimLocked dequeues and passes the wakeup on if more tasks remain, so
// consumers woken by one broadcast drain concurrently without stranding anyone.
func (q *Queue) claimLocked() task.Task {
	t := q.dequeueLocked()
	if q.pending.len() > 0 {
		q.cond.broadcast()
	}
	return t
}

// Take blocks until a task is pending, moves it to running and returns it.
//
// If ctx is cancelled while waiting, Take returns an error wrapping both
// ErrInterrupted and the context error, and the queue is unchanged.
// Once the queue is closed and drained, Take returns ErrClosed.
func (q *Queue) Take(ctx context.Context) (task.Task, error) {
	q.logger.Debug("take")

	q.mu.Lock()
	for q.pending.len() == 0 {
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if err := q.cond.wait(ctx); err != nil {
			q.mu.Unlock()
			return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
	}
	t := q.claimLocked()
	q.mu.Unlock()

	q.emit(events.NewClaimedEvent(t.Key()))
	return t, nil
}

// Poll is Take bounded by timeout. It returns (nil, nil) if no task became
// pending before the timeout elapsed.
//
// The deadline is fixed on entry using the monotonic clock. A wakeup that
// does not leave a task for this caller re-arms the wait with the time that
// remains, never with the full timeout.
func (q *Queue) Poll(ctx context.Context, timeout time.Duration) (task.Task, error) {
	q.logger.Debug("poll", "timeout", timeout)
	deadline := time.Now().Add(timeout)

	q.mu.Lock()
	for q.pending.len() == 0 {
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			q.mu.Unlock()
			return nil, nil
		}
		if err := q.cond.waitTimeout(ctx, remaining); err != nil {
			q.mu.Unlock()
			return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
	}
	t := q.claimLocked()
	q.mu.Unlock()

	q.emit(events.NewClaimedEvent(t.Key()))
	return t, nil
}

// TryPoll claims the next pending task without waiting, or returns nil.
func (q *Queue) TryPoll() task.Task {
	q.logger.Debug("try poll")

	q.mu.Lock()
	if q.pending.len() == 0 {
		q.mu.Unlock()
		return nil
	}
	t := q.claimLocked()
	q.mu.Unlock()

	q.emit(events.NewClaimedEvent(t.Key()))
	return t
}

// Peek returns the next pending task without claiming it, or nil.
func (q *Queue) Peek() task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.peek()
}

// Len returns the number of pending tasks. Running tasks are not counted.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.len()
}

// RunningLen returns the number of running tasks.
func (q *Queue) RunningLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.running)
}

// IsRunning reports whether a task with key is running.
func (q *Queue) IsRunning(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.running[key]
	return ok
}

// Remove removes the pending task with t's key. Running tasks are not touched.
func (q *Queue) Remove(t task.Task) bool {
	if t == nil {
		return false
	}
	key := t.Key()
	q.logger.Debug("remove", "key", key)

	q.mu.Lock()
	removed := q.pending.remove(key)
	q.mu.Unlock()

	if removed == nil {
		return false
	}
	q.emit(events.NewRemovedEvent(key, "removed"))
	return true
}

// RemoveInstance removes t from the pending set only if t itself is the pending
// task for its key. A different task with the same key is left alone.
func (q *Queue) RemoveInstance(t task.Task) bool {
	if t == nil {
		return false
	}
	key := t.Key()
	q.logger.Debug("remove instance", "key", key)

	q.mu.Lock()
	pending := q.pending.find(key)
	if pending == nil || !task.SameInstance(pending, t) {
		q.mu.Unlock()
		return false
	}
	q.pending.remove(key)
	q.mu.Unlock()

	q.emit(events.NewRemovedEvent(key, "withdrawn"))
	return true
}

// Contains reports whether a task with t's key is pending. Running tasks are
// not consulted.
func (q *Queue) Contains(t task.Task) bool {
	if t == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.find(t.Key()) != nil
}

// Clear empties the pending set. Running tasks are not cancelled.
func (q *Queue) Clear() {
	q.logger.Debug("clear")

	q.mu.Lock()
	cleared := q.pending.clear()
	q.mu.Unlock()

	for _, t := range cleared {
		q.emit(events.NewRemovedEvent(t.Key(), "cleared"))
	}
}

// Snapshot returns the pending tasks in claim order.
func (q *Queue) Snapshot() []task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.snapshot()
}

// All iterates over a snapshot of the pending tasks in claim order.
// Unlike Iterator it never fails: later changes to the queue are not seen.
func (q *Queue) All() iter.Seq[task.Task] {
	return func(yield func(task.Task) bool) {
		for _, t := range q.Snapshot() {
			if !yield(t) {
				return
			}
		}
	}
}

// Receiver accepts tasks drained from a queue. *Queue and *Batch implement it.
type Receiver interface {
	Submit(t task.Task) error
}

// Batch collects drained tasks in order.
type Batch struct {
	Tasks []task.Task
}

// Submit appends t.
func (b *Batch) Submit(t task.Task) error {
	b.Tasks = append(b.Tasks, t)
	return nil
}

// DrainTo moves up to max pending tasks, in claim order, to dst and returns
// how many were delivered. A negative max drains everything.
// Drained tasks skip the running set: they leave this queue entirely.
//
// If dst rejects a task, that task and the rest are put back and the error
// is returned.
func (q *Queue) DrainTo(dst Receiver, max int) (int, error) {
	if dst == nil {
		return 0, fmt.Errorf("%w: nil receiver", ErrInvalidArgument)
	}
	if other, ok := dst.(*Queue); ok && other == q {
		return 0, fmt.Errorf("%w: queue cannot drain into itself", ErrInvalidArgument)
	}
	if max == 0 {
		return 0, nil
	}
	q.logger.Debug("drain", "max", max)

	q.mu.Lock()
	n := q.pending.len()
	if max > 0 && max < n {
		n = max
	}
	drained := make([]task.Task, 0, n)
	for i := 0; i < n; i++ {
		drained = append(drained, q.pending.get())
	}
	q.mu.Unlock()

	for i, t := range drained {
		if err := dst.Submit(t); err != nil {
			q.restore(drained[i:])
			return i, fmt.Errorf("drain %s: %w", t.Key(), err)
		}
	}
	return len(drained), nil
}

// restore puts undelivered drained tasks back, applying the normal merge rule
// against anything submitted in the meantime.
func (q *Queue) restore(tasks []task.Task) {
	q.mu.Lock()
	wasEmpty := q.pending.len() == 0
	evs := make([]*events.Event, 0, len(tasks))
	for _, t := range tasks {
		evs = append(evs, q.enqueueLocked(t))
	}
	if wasEmpty && q.pending.len() > 0 {
		q.cond.broadcast()
	}
	q.mu.Unlock()

	for _, e := range evs {
		q.emit(e)
	}
}

// Prepare is called by a worker right before it executes t.
//
// It closes the window between claiming t and starting it: if a different
// instance with t's key is already running, t is merged into it and
// cancelled; if a duplicate slipped into pending, it is merged into t and
// discarded. t ends up registered as running unless it was cancelled.
// A nil t is ignored.
func (q *Queue) Prepare(t task.Task) {
	if t == nil {
		return
	}
	key := t.Key()
	q.logger.Debug("prepare", "key", key)

	var event *events.Event
	q.mu.Lock()
	if running, ok := q.running[key]; ok {
		if !task.SameInstance(running, t) {
			running.Merge(t)
			t.Cancel()
			event = q.mergedEvent(key, "running", "prepare")
		}
	} else {
		if dup := q.pending.remove(key); dup != nil {
			t.Merge(dup)
			dup.Cancel()
			event = q.mergedEvent(key, "running", "prepare")
		}
		q.running[key] = t
	}
	q.mu.Unlock()

	q.emit(event)
}

// Finish removes t from running and then calls t.Finish outside the lock.
//
// If the running slot for t's key holds a different instance, or nothing,
// Finish returns ErrIllegalState and leaves the running set alone. The one
// exception is a task cancelled by Prepare: it never owned the slot, so it is
// finished without touching running.
func (q *Queue) Finish(t task.Task) error {
	if t == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidArgument)
	}
	key := t.Key()
	q.logger.Debug("finish", "key", key)

	q.mu.Lock()
	running, ok := q.running[key]
	if !ok || !task.SameInstance(running, t) {
		if t.Cancelled() {
			q.mu.Unlock()
			t.Finish()
			return nil
		}
		q.mu.Unlock()
		return fmt.Errorf("%w: failed to find running task %s, found %s",
			ErrIllegalState, task.Describe(t), task.Describe(running))
	}
	delete(q.running, key)
	q.mu.Unlock()

	t.Finish()
	return nil
}

// Close stops the queue from accepting tasks. Pending tasks can still be
// claimed; once none are left, Take and Poll return ErrClosed.
// Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.broadcast()
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) mergedEvent(key, into, stage string) *events.Event {
	event, err := events.NewMergedEvent(key, events.MergeData{Into: into, Stage: stage})
	if err != nil {
		q.logger.Warn("failed to build merge event", "key", key, "error", err)
		return nil
	}
	return event
}

func (q *Queue) emit(event *events.Event) {
	if event != nil {
		q.sink.Emit(event)
	}
}
