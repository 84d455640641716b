package queue

import (
	"container/list"
	"fmt"
	"strings"

	"github.com/steveyegge/mergeq/internal/task"
)

// Order decides which pending task is claimed next.
type Order int

const (
	// FIFO claims the oldest pending task first.
	FIFO Order = iota
	// LIFO claims the newest pending task first, the way a stack does.
	LIFO
)

func (o Order) String() string {
	switch o {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// ParseOrder parses "fifo" or "lifo", case-insensitively.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo", "":
		return FIFO, nil
	case "lifo":
		return LIFO, nil
	default:
		return FIFO, fmt.Errorf("%w: unknown order %q (want fifo or lifo)", ErrInvalidArgument, s)
	}
}

// pendingList is an ordered set of tasks, unique by key.
// The front of the list is the next task to claim.
// modCount changes on every structural mutation; iterators use it to fail fast.
type pendingList struct {
	order    Order
	items    *list.List
	index    map[string]*list.Element
	modCount int
}

func newPendingList(order Order) *pendingList {
	return &pendingList{
		order: order,
		items: list.New(),
		index: make(map[string]*list.Element),
	}
}

func (l *pendingList) len() int {
	return l.items.Len()
}

// put inserts t. The caller guarantees no task with t's key is present.
func (l *pendingList) put(t task.Task) {
	var e *list.Element
	if l.order == LIFO {
		e = l.items.PushFront(t)
	} else {
		e = l.items.PushBack(t)
	}
	l.index[t.Key()] = e
	l.modCount++
}

func (l *pendingList) peek() task.Task {
	e := l.items.Front()
	if e == nil {
		return nil
	}
	return e.Value.(task.Task)
}

// get removes and returns the front task. The caller guarantees len() > 0.
func (l *pendingList) get() task.Task {
	return l.removeElement(l.items.Front())
}

func (l *pendingList) find(key string) task.Task {
	e, ok := l.index[key]
	if !ok {
		return nil
	}
	return e.Value.(task.Task)
}

func (l *pendingList) remove(key string) task.Task {
	e, ok := l.index[key]
	if !ok {
		return nil
	}
	return l.removeElement(e)
}

func (l *pendingList) removeElement(e *list.Element) task.Task {
	t := l.items.Remove(e).(task.Task)
	delete(l.index, t.Key())
	l.modCount++
	return t
}

// clear empties the list and returns what it held, front first.
func (l *pendingList) clear() []task.Task {
	out := l.snapshot()
	l.items.Init()
	l.index = make(map[string]*list.Element)
	l.modCount++
	return out
}

func (l *pendingList) snapshot() []task.Task {
	out := make([]task.Task, 0, l.items.Len())
	for e := l.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(task.Task))
	}
	return out
}
