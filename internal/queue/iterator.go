package queue

import (
	"container/list"
	"fmt"

	"github.com/steveyegge/mergeq/internal/task"
)

// Iterator walks the pending set in claim order and fails fast: once the
// pending set is structurally changed by anything other than the iterator's
// own Remove, Next and Remove return ErrConcurrentModification.
//
// Each call takes the queue lock, so an Iterator is safe to use while other
// goroutines use the queue; it just will not survive their mutations.
// Use All when a stable snapshot is wanted instead.
type Iterator struct {
	q        *Queue
	expected int
	next     *list.Element
	current  *list.Element
}

// Iterator returns a fail-fast iterator positioned before the first pending task.
func (q *Queue) Iterator() *Iterator {
	q.mu.Lock()
	defer q.mu.Unlock()
	return &Iterator{
		q:        q,
		expected: q.pending.modCount,
		next:     q.pending.items.Front(),
	}
}

// HasNext reports whether Next has a task to return. It does not check for
// concurrent modification; Next does.
func (it *Iterator) HasNext() bool {
	it.q.mu.Lock()
	defer it.q.mu.Unlock()
	return it.next != nil
}

// Next returns the next pending task.
func (it *Iterator) Next() (task.Task, error) {
	it.q.mu.Lock()
	defer it.q.mu.Unlock()

	if it.q.pending.modCount != it.expected {
		return nil, ErrConcurrentModification
	}
	if it.next == nil {
		return nil, ErrNoSuchElement
	}
	it.current = it.next
	it.next = it.next.Next()
	return it.current.Value.(task.Task), nil
}

// Remove removes the task most recently returned by Next from the pending set.
// It may be called once per Next.
func (it *Iterator) Remove() error {
	it.q.mu.Lock()
	defer it.q.mu.Unlock()

	if it.q.pending.modCount != it.expected {
		return ErrConcurrentModification
	}
	if it.current == nil {
		return fmt.Errorf("%w: Remove called without a preceding Next", ErrIllegalState)
	}
	it.q.pending.removeElement(it.current)
	it.current = nil
	it.expected = it.q.pending.modCount
	return nil
}
